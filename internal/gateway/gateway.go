// Package gateway implements the Flight surface of the transfer service:
// authenticated listing, schema discovery, and record streams in and out of
// the storage providers.
package gateway

import (
	"context"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"flightgate/internal/auth"
	"flightgate/internal/domain"
	"flightgate/internal/provider"
	"flightgate/internal/ticket"
)

// Gateway is the Flight service implementation. Every data operation first
// resolves the caller to a provider binding, then delegates to it.
type Gateway struct {
	flight.BaseFlightServer

	resolver *auth.Resolver
	tickets  *ticket.Store
	logger   *slog.Logger

	// location is the advertised endpoint URI; empty means clients reuse
	// the connection they called in on.
	location string
}

func New(resolver *auth.Resolver, tickets *ticket.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{resolver: resolver, tickets: tickets, logger: logger}
}

// SetLocation sets the endpoint URI advertised in flight infos.
func (g *Gateway) SetLocation(uri string) { g.location = uri }

func (g *Gateway) endpointLocation() []*flight.Location {
	uri := g.location
	if uri == "" {
		uri = flight.LocationReuseConnection
	}
	return []*flight.Location{{Uri: uri}}
}

// flightInfo mints a single-endpoint FlightInfo for a table, backed by a
// fresh single-use ticket.
func (g *Gateway) flightInfo(cc *auth.CallContext, info *provider.TableInfo, desc *flight.FlightDescriptor) *flight.FlightInfo {
	token := g.tickets.Add(ticket.Grant{Profile: cc.Profile, Path: info.Path})
	return &flight.FlightInfo{
		Schema:           flight.SerializeSchema(info.Schema, memory.DefaultAllocator),
		FlightDescriptor: desc,
		Endpoint: []*flight.FlightEndpoint{{
			Ticket:   &flight.Ticket{Ticket: []byte(token)},
			Location: g.endpointLocation(),
		}},
		TotalRecords: info.TotalRecords,
		TotalBytes:   info.TotalBytes,
	}
}

// pathDescriptor rejects command descriptors; the gateway addresses tables
// by path only.
func pathDescriptor(desc *flight.FlightDescriptor) ([]string, error) {
	if desc == nil || desc.Type != flight.DescriptorPATH {
		return nil, domain.ErrValidation("descriptor must be a path")
	}
	return desc.Path, nil
}

func (g *Gateway) ListFlights(criteria *flight.Criteria, fs flight.FlightService_ListFlightsServer) error {
	ctx := fs.Context()
	cc, err := g.resolver.Resolve(ctx)
	if err != nil {
		return statusFromError(err)
	}
	if criteria != nil && len(criteria.Expression) > 0 {
		return statusFromError(domain.ErrUnsupportedCriteria("list criteria are not supported"))
	}

	for info, err := range cc.Provider.List(ctx) {
		if err != nil {
			return statusFromError(err)
		}
		parts, err := cc.Provider.UnpackPath(info.Path)
		if err != nil {
			return statusFromError(err)
		}
		desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: parts}
		if err := fs.Send(g.flightInfo(cc, info, desc)); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	cc, err := g.resolver.Resolve(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}
	parts, err := pathDescriptor(desc)
	if err != nil {
		return nil, statusFromError(err)
	}
	path, err := cc.Provider.PackPath(parts...)
	if err != nil {
		return nil, statusFromError(err)
	}
	info, err := cc.Provider.Info(ctx, path)
	if err != nil {
		return nil, statusFromError(err)
	}
	return g.flightInfo(cc, info, desc), nil
}

func (g *Gateway) GetSchema(ctx context.Context, desc *flight.FlightDescriptor) (*flight.SchemaResult, error) {
	cc, err := g.resolver.Resolve(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}
	parts, err := pathDescriptor(desc)
	if err != nil {
		return nil, statusFromError(err)
	}
	path, err := cc.Provider.PackPath(parts...)
	if err != nil {
		return nil, statusFromError(err)
	}
	info, err := cc.Provider.Info(ctx, path)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &flight.SchemaResult{
		Schema: flight.SerializeSchema(info.Schema, memory.DefaultAllocator),
	}, nil
}

// DoGet streams a table out. The ticket is the sole credential: it proves
// the caller was granted the profile when the ticket was minted.
func (g *Gateway) DoGet(tkt *flight.Ticket, fs flight.FlightService_DoGetServer) error {
	ctx := fs.Context()
	grant, err := g.tickets.Use(string(tkt.GetTicket()))
	if err != nil {
		return statusFromError(err)
	}
	cc, err := g.resolver.Bind(ctx, grant.Profile)
	if err != nil {
		return statusFromError(err)
	}
	rdr, err := cc.Provider.ReadFrom(ctx, grant.Path, nil)
	if err != nil {
		return statusFromError(err)
	}
	defer rdr.Release()

	wr := flight.NewRecordWriter(fs, ipc.WithSchema(rdr.Schema()))
	defer wr.Close()
	for rdr.Next() {
		if err := wr.Write(rdr.Record()); err != nil {
			return err
		}
	}
	if err := rdr.Err(); err != nil {
		return statusFromError(err)
	}
	return nil
}

// DoPut streams a table in, replacing whatever the descriptor path held.
func (g *Gateway) DoPut(fs flight.FlightService_DoPutServer) error {
	ctx := fs.Context()
	cc, err := g.resolver.Resolve(ctx)
	if err != nil {
		return statusFromError(err)
	}
	rdr, err := flight.NewRecordReader(fs)
	if err != nil {
		return statusFromError(domain.ErrUnsupportedDataFormat("read record stream: %v", err))
	}
	defer rdr.Release()

	parts, err := pathDescriptor(rdr.LatestFlightDescriptor())
	if err != nil {
		return statusFromError(err)
	}
	path, err := cc.Provider.PackPath(parts...)
	if err != nil {
		return statusFromError(err)
	}
	if err := cc.Provider.WriteTo(ctx, path, rdr); err != nil {
		return statusFromError(err)
	}
	g.logger.Info("table stored", "profile", cc.Profile, "path", path)
	return nil
}

func (g *Gateway) DoAction(_ *flight.Action, _ flight.FlightService_DoActionServer) error {
	return statusFromError(domain.ErrNotImplemented("actions are not supported"))
}

func (g *Gateway) ListActions(_ *flight.Empty, _ flight.FlightService_ListActionsServer) error {
	return nil
}
