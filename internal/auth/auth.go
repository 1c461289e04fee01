// Package auth resolves gRPC call metadata into an authenticated provider
// binding: bearer token to granted profiles, selected profile to a live
// storage provider.
package auth

import (
	"context"
	"slices"
	"strings"

	"google.golang.org/grpc/metadata"

	"flightgate/internal/domain"
	"flightgate/internal/provider"
	"flightgate/internal/registry"
)

// Metadata keys the gateway reads on every call.
const (
	AuthorizationHeader = "authorization"
	ProfileHeader       = "target-profile"
)

// CallContext is the result of authenticating one call.
type CallContext struct {
	// Profile is the granted profile the call selected.
	Profile string
	// Provider is the storage provider bound to that profile.
	Provider provider.Provider
}

// Resolver authenticates calls against the token registry and binds them to
// provider instances.
type Resolver struct {
	registry  *registry.Store
	providers *provider.Registry
}

func NewResolver(reg *registry.Store, providers *provider.Registry) *Resolver {
	return &Resolver{registry: reg, providers: providers}
}

// Resolve authenticates the incoming call. Every failure mode maps to
// AuthenticationError so transport code can blanket-map it to the
// unauthenticated status.
func (r *Resolver) Resolve(ctx context.Context) (*CallContext, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, domain.ErrAuthentication("missing %s header", AuthorizationHeader)
	}
	vals := md.Get(AuthorizationHeader)
	if len(vals) == 0 {
		return nil, domain.ErrAuthentication("missing %s header", AuthorizationHeader)
	}
	scheme, token, found := strings.Cut(vals[0], " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, domain.ErrAuthentication("authorization scheme must be Bearer")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrAuthentication("empty bearer token")
	}

	target := ""
	if hv := md.Get(ProfileHeader); len(hv) > 0 {
		target = hv[0]
	}
	if target == "" {
		return nil, domain.ErrAuthentication("missing %s header", ProfileHeader)
	}

	profiles, known, err := r.registry.ProfilesForToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, domain.ErrAuthentication("unknown token")
	}
	if !slices.Contains(profiles, target) {
		return nil, domain.ErrAuthentication("profile %q is not granted to this token", target)
	}

	return r.Bind(ctx, target)
}

// Bind looks up a profile and constructs its provider without checking call
// credentials. Ticket redemption uses it: the ticket already proves the
// caller held a token granting the profile.
func (r *Resolver) Bind(ctx context.Context, profile string) (*CallContext, error) {
	cfg, err := r.registry.Profile(ctx, profile)
	if err != nil {
		return nil, err
	}
	prov, err := r.providers.Construct(cfg.Kind, cfg.Params)
	if err != nil {
		return nil, err
	}
	return &CallContext{Profile: profile, Provider: prov}, nil
}
