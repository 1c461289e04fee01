package gateway

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"flightgate/internal/auth"
	"flightgate/internal/provider"
	"flightgate/internal/provider/file"
	"flightgate/internal/registry"
	"flightgate/internal/ticket"
)

var fruitsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "price", Type: arrow.PrimitiveTypes.Int64},
}, nil)

type testEnv struct {
	srv     *Server
	client  flight.Client
	tickets *ticket.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.PutProfile(ctx, "team", file.Kind, map[string]string{"root_path": t.TempDir()}))
	require.NoError(t, store.PutProfile(ctx, "other", file.Kind, map[string]string{"root_path": t.TempDir()}))
	require.NoError(t, store.PutToken(ctx, "alpha", []string{"team"}))
	require.NoError(t, store.PutToken(ctx, "beta", []string{"other"}))

	providers := provider.NewRegistry()
	providers.Register(file.Kind, file.New)
	t.Cleanup(func() { providers.Close() })

	tickets := ticket.NewStore(0)
	gw := New(auth.NewResolver(store, providers), tickets, nil)

	srv := NewServer("127.0.0.1:0", nil, gw)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	client, err := flight.NewClientWithMiddleware(srv.Addr(), nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &testEnv{srv: srv, client: client, tickets: tickets}
}

func authCtx(t *testing.T, token, profile string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	ctx = metadata.AppendToOutgoingContext(ctx, auth.AuthorizationHeader, "Bearer "+token)
	if profile != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, auth.ProfileHeader, profile)
	}
	return ctx
}

func fruitsRecord(t *testing.T) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.DefaultAllocator, fruitsSchema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues([]string{"apple", "banana", "cherry"}, nil)
	b.Field(1).(*array.Int64Builder).AppendValues([]int64{3, 1, 8}, nil)
	return b.NewRecord()
}

func putFruits(t *testing.T, env *testEnv, ctx context.Context, path ...string) {
	t.Helper()
	stream, err := env.client.DoPut(ctx)
	require.NoError(t, err)

	wr := flight.NewRecordWriter(stream, ipc.WithSchema(fruitsSchema))
	wr.SetFlightDescriptor(&flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: path})
	rec := fruitsRecord(t)
	require.NoError(t, wr.Write(rec))
	rec.Release()
	require.NoError(t, wr.Close())
	require.NoError(t, stream.CloseSend())

	// Drain acknowledgements so a server-side failure surfaces.
	for {
		if _, err := stream.Recv(); err != nil {
			if err == io.EOF {
				return
			}
			t.Fatalf("DoPut failed: %v", err)
		}
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := authCtx(t, "alpha", "team")

	putFruits(t, env, ctx, "teams", "fruits")

	desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"teams", "fruits"}}
	info, err := env.client.GetFlightInfo(ctx, desc)
	require.NoError(t, err)
	require.Len(t, info.Endpoint, 1)
	require.Equal(t, int64(3), info.TotalRecords)

	stream, err := env.client.DoGet(ctx, info.Endpoint[0].Ticket)
	require.NoError(t, err)
	rdr, err := flight.NewRecordReader(stream)
	require.NoError(t, err)
	t.Cleanup(rdr.Release)

	require.True(t, fruitsSchema.Equal(rdr.Schema()))
	require.True(t, rdr.Next())
	rec := rdr.Record()
	require.Equal(t, int64(3), rec.NumRows())
	require.Equal(t, "banana", rec.Column(0).(*array.String).Value(1))
	require.False(t, rdr.Next())
}

func TestTicketIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := authCtx(t, "alpha", "team")

	putFruits(t, env, ctx, "fruits")

	desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"fruits"}}
	info, err := env.client.GetFlightInfo(ctx, desc)
	require.NoError(t, err)

	stream, err := env.client.DoGet(ctx, info.Endpoint[0].Ticket)
	require.NoError(t, err)
	rdr, err := flight.NewRecordReader(stream)
	require.NoError(t, err)
	for rdr.Next() {
	}
	rdr.Release()

	stream, err = env.client.DoGet(ctx, info.Endpoint[0].Ticket)
	require.NoError(t, err)
	_, err = flight.NewRecordReader(stream)
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestListFlights(t *testing.T) {
	env := newTestEnv(t)
	ctx := authCtx(t, "alpha", "team")

	putFruits(t, env, ctx, "a", "one")
	putFruits(t, env, ctx, "b", "two")

	stream, err := env.client.ListFlights(ctx, &flight.Criteria{})
	require.NoError(t, err)

	var paths [][]string
	for {
		info, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Len(t, info.Endpoint, 1)
		paths = append(paths, info.FlightDescriptor.Path)
	}
	require.ElementsMatch(t, [][]string{{"a", "one"}, {"b", "two"}}, paths)
}

func TestListFlightsRejectsCriteria(t *testing.T) {
	env := newTestEnv(t)
	ctx := authCtx(t, "alpha", "team")

	stream, err := env.client.ListFlights(ctx, &flight.Criteria{Expression: []byte("name = apple")})
	require.NoError(t, err)
	_, err = stream.Recv()
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestProfileIsolation(t *testing.T) {
	env := newTestEnv(t)

	putFruits(t, env, authCtx(t, "alpha", "team"), "fruits")

	// The other profile sees none of the team's tables.
	stream, err := env.client.ListFlights(authCtx(t, "beta", "other"), &flight.Criteria{})
	require.NoError(t, err)
	_, err = stream.Recv()
	require.Equal(t, io.EOF, err)

	desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"fruits"}}
	_, err = env.client.GetFlightInfo(authCtx(t, "beta", "other"), desc)
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestAuthenticationFailures(t *testing.T) {
	env := newTestEnv(t)
	desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"fruits"}}

	_, err := env.client.GetFlightInfo(authCtx(t, "wrong", "team"), desc)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	// Profile not granted to the token.
	_, err = env.client.GetFlightInfo(authCtx(t, "alpha", "other"), desc)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = env.client.GetFlightInfo(ctx, desc)
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGetSchema(t *testing.T) {
	env := newTestEnv(t)
	ctx := authCtx(t, "alpha", "team")

	putFruits(t, env, ctx, "fruits")

	desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"fruits"}}
	res, err := env.client.GetSchema(ctx, desc)
	require.NoError(t, err)

	schema, err := flight.DeserializeSchema(res.GetSchema(), memory.DefaultAllocator)
	require.NoError(t, err)
	require.True(t, fruitsSchema.Equal(schema))
}

func TestGetFlightInfoMissingTable(t *testing.T) {
	env := newTestEnv(t)
	desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"absent"}}
	_, err := env.client.GetFlightInfo(authCtx(t, "alpha", "team"), desc)
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestCommandDescriptorRejected(t *testing.T) {
	env := newTestEnv(t)
	desc := &flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: []byte("SELECT 1")}
	_, err := env.client.GetFlightInfo(authCtx(t, "alpha", "team"), desc)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDoActionUnimplemented(t *testing.T) {
	env := newTestEnv(t)
	ctx := authCtx(t, "alpha", "team")

	stream, err := env.client.DoAction(ctx, &flight.Action{Type: "compact"})
	require.NoError(t, err)
	_, err = stream.Recv()
	require.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestTicketStoreDrainsAfterGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := authCtx(t, "alpha", "team")

	putFruits(t, env, ctx, "fruits")
	require.Equal(t, 0, env.tickets.Len())

	desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"fruits"}}
	info, err := env.client.GetFlightInfo(ctx, desc)
	require.NoError(t, err)
	require.Equal(t, 1, env.tickets.Len())

	stream, err := env.client.DoGet(ctx, info.Endpoint[0].Ticket)
	require.NoError(t, err)
	rdr, err := flight.NewRecordReader(stream)
	require.NoError(t, err)
	for rdr.Next() {
	}
	rdr.Release()
	require.Equal(t, 0, env.tickets.Len())
}
