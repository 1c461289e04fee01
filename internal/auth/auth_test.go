package auth

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"flightgate/internal/domain"
	"flightgate/internal/provider"
	"flightgate/internal/registry"
)

type stubProvider struct{ params map[string]string }

func (s *stubProvider) PackPath(parts ...string) (string, error)   { return "", nil }
func (s *stubProvider) UnpackPath(path string) ([]string, error)   { return nil, nil }
func (s *stubProvider) Close() error                               { return nil }
func (s *stubProvider) Info(context.Context, string) (*provider.TableInfo, error) {
	return nil, nil
}
func (s *stubProvider) List(context.Context) iter.Seq2[*provider.TableInfo, error] {
	return func(func(*provider.TableInfo, error) bool) {}
}
func (s *stubProvider) ReadFrom(context.Context, string, *provider.Query) (array.RecordReader, error) {
	return nil, nil
}
func (s *stubProvider) WriteTo(context.Context, string, array.RecordReader) error {
	return nil
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	store, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.PutProfile(ctx, "team", "stub", map[string]string{"root": "a"}))
	require.NoError(t, store.PutProfile(ctx, "other", "stub", map[string]string{"root": "b"}))
	require.NoError(t, store.PutToken(ctx, "secret", []string{"team"}))
	require.NoError(t, store.PutToken(ctx, "multi", []string{"team", "other"}))

	providers := provider.NewRegistry()
	providers.Register("stub", func(params map[string]string) (provider.Provider, error) {
		return &stubProvider{params: params}, nil
	})
	t.Cleanup(func() { providers.Close() })

	return NewResolver(store, providers)
}

func callCtx(headers ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(headers...))
}

func TestResolve(t *testing.T) {
	r := newTestResolver(t)

	cc, err := r.Resolve(callCtx(AuthorizationHeader, "Bearer secret", ProfileHeader, "team"))
	require.NoError(t, err)
	require.Equal(t, "team", cc.Profile)
	require.Equal(t, "a", cc.Provider.(*stubProvider).params["root"])
}

func TestResolveMultiGrantToken(t *testing.T) {
	r := newTestResolver(t)

	cc, err := r.Resolve(callCtx(AuthorizationHeader, "Bearer multi", ProfileHeader, "other"))
	require.NoError(t, err)
	require.Equal(t, "other", cc.Profile)
}

func TestResolveFailures(t *testing.T) {
	r := newTestResolver(t)

	cases := []struct {
		name string
		ctx  context.Context
	}{
		{"no metadata", context.Background()},
		{"missing authorization", callCtx(ProfileHeader, "team")},
		{"missing profile", callCtx(AuthorizationHeader, "Bearer secret")},
		{"bad scheme", callCtx(AuthorizationHeader, "Basic secret")},
		{"empty token", callCtx(AuthorizationHeader, "Bearer ")},
		{"unknown token", callCtx(AuthorizationHeader, "Bearer wrong", ProfileHeader, "team")},
		{"profile not granted", callCtx(AuthorizationHeader, "Bearer secret", ProfileHeader, "other")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(tc.ctx)
			var authErr *domain.AuthenticationError
			require.True(t, errors.As(err, &authErr))
		})
	}
}

func TestResolveCachesProviderPerProfile(t *testing.T) {
	r := newTestResolver(t)
	ctx := callCtx(AuthorizationHeader, "Bearer secret", ProfileHeader, "team")

	first, err := r.Resolve(ctx)
	require.NoError(t, err)
	second, err := r.Resolve(ctx)
	require.NoError(t, err)
	require.Same(t, first.Provider, second.Provider)
}
