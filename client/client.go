// Package client is the Go client for the gateway: it wraps the raw Flight
// calls with token handling, profile selection, and conversions between
// tables, record batches, and streams.
package client

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"flightgate/internal/domain"
)

// tableChunkSize bounds the rows per batch when streaming an arrow.Table.
const tableChunkSize = 1024

// Client talks to one gateway with one bearer token.
type Client struct {
	fc      flight.Client
	token   string
	profile string
}

// Dial connects to the gateway at addr. profile is the default target
// profile; calls can override it with WithProfile.
func Dial(addr, token, profile string, opts ...grpc.DialOption) (*Client, error) {
	fc, err := flight.NewClientWithMiddleware(addr, nil, nil, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{fc: fc, token: token, profile: profile}, nil
}

func (c *Client) Close() error { return c.fc.Close() }

// CallOption adjusts a single call.
type CallOption func(*callSettings)

type callSettings struct {
	profile string
}

// WithProfile targets a different granted profile for this call.
func WithProfile(name string) CallOption {
	return func(s *callSettings) { s.profile = name }
}

func (c *Client) callCtx(ctx context.Context, opts []CallOption) context.Context {
	settings := callSettings{profile: c.profile}
	for _, opt := range opts {
		opt(&settings)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	if settings.profile != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "target-profile", settings.profile)
	}
	return ctx
}

// TableSummary describes one listed table.
type TableSummary struct {
	Path         []string
	TotalRecords int64
	TotalBytes   int64
}

// List enumerates the tables visible to the target profile.
func (c *Client) List(ctx context.Context, opts ...CallOption) ([]TableSummary, error) {
	stream, err := c.fc.ListFlights(c.callCtx(ctx, opts), &flight.Criteria{})
	if err != nil {
		return nil, err
	}
	var out []TableSummary
	for {
		info, err := stream.Recv()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, TableSummary{
			Path:         info.FlightDescriptor.GetPath(),
			TotalRecords: info.TotalRecords,
			TotalBytes:   info.TotalBytes,
		})
	}
}

// Schema fetches a table's schema without streaming its rows.
func (c *Client) Schema(ctx context.Context, path []string, opts ...CallOption) (*arrow.Schema, error) {
	res, err := c.fc.GetSchema(c.callCtx(ctx, opts), pathDescriptor(path))
	if err != nil {
		return nil, err
	}
	return flight.DeserializeSchema(res.GetSchema(), memory.DefaultAllocator)
}

// Read streams a whole table into memory. Release the returned table when
// done.
func (c *Client) Read(ctx context.Context, path []string, opts ...CallOption) (arrow.Table, error) {
	cctx := c.callCtx(ctx, opts)
	info, err := c.fc.GetFlightInfo(cctx, pathDescriptor(path))
	if err != nil {
		return nil, err
	}
	if len(info.Endpoint) == 0 {
		return nil, domain.ErrNotFound("no endpoints for table %v", path)
	}

	stream, err := c.fc.DoGet(cctx, info.Endpoint[0].Ticket)
	if err != nil {
		return nil, err
	}
	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, err
	}
	defer rdr.Release()

	var recs []arrow.RecordBatch
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := rdr.Err(); err != nil {
		return nil, err
	}
	return array.NewTableFromRecords(rdr.Schema(), recs), nil
}

// Write replaces the table at path with data. Accepted inputs: arrow.Table,
// arrow.RecordBatch, []arrow.RecordBatch, or an array.RecordReader. Anything
// else reports UnsupportedDataFormatError.
func (c *Client) Write(ctx context.Context, path []string, data any, opts ...CallOption) error {
	rdr, err := streamFor(data)
	if err != nil {
		return err
	}
	defer rdr.Release()

	stream, err := c.fc.DoPut(c.callCtx(ctx, opts))
	if err != nil {
		return err
	}
	wr := flight.NewRecordWriter(stream, ipc.WithSchema(rdr.Schema()))
	wr.SetFlightDescriptor(pathDescriptor(path))
	for rdr.Next() {
		if err := wr.Write(rdr.Record()); err != nil {
			return err
		}
	}
	if err := rdr.Err(); err != nil {
		return err
	}
	if err := wr.Close(); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	// Drain acknowledgements so server-side failures surface here.
	for {
		if _, err := stream.Recv(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// streamFor converts the accepted input forms into a record stream.
func streamFor(data any) (array.RecordReader, error) {
	switch v := data.(type) {
	case array.RecordReader:
		v.Retain()
		return v, nil
	case arrow.RecordBatch:
		return array.NewRecordReader(v.Schema(), []arrow.RecordBatch{v})
	case []arrow.RecordBatch:
		if len(v) == 0 {
			return nil, domain.ErrUnsupportedDataFormat("empty record batch slice")
		}
		return array.NewRecordReader(v[0].Schema(), v)
	case arrow.Table:
		return array.NewTableReader(v, tableChunkSize), nil
	default:
		return nil, domain.ErrUnsupportedDataFormat("cannot stream %T as record batches", data)
	}
}

func pathDescriptor(path []string) *flight.FlightDescriptor {
	return &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: path}
}
