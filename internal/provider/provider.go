// Package provider defines the storage provider capability set and the
// registry that maps provider kinds to constructors.
package provider

import (
	"context"
	"iter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Query is a placeholder for read filter criteria. No filtering is supported
// in this version: callers must pass nil, and providers reject anything else.
type Query struct{}

// TableInfo describes one table reachable through a provider. It is produced
// fresh on every info/list call and never cached.
type TableInfo struct {
	// Schema is the table's column layout.
	Schema *arrow.Schema

	// Path is the provider's canonical, backend-specific path for the
	// table. It is opaque to everything except the provider that made it.
	Path string

	// TotalRecords is the row count, or -1 when the backend cannot answer
	// cheaply.
	TotalRecords int64

	// TotalBytes is the stored size, or -1 when unknown.
	TotalBytes int64
}

// Provider streams tabular data in and out of one storage backend, scoped to
// a single profile. Implementations must be safe for concurrent use.
//
// Record batch streams are array.RecordReader values: lazy, finite,
// non-restartable, and released by the consumer. Both ReadFrom and WriteTo
// must bound memory by a small constant number of batches regardless of
// table size.
type Provider interface {
	// PackPath joins logical path components into the provider's canonical
	// path form.
	PackPath(parts ...string) (string, error)

	// UnpackPath splits a canonical path produced by this provider back
	// into its logical components. It is the inverse of PackPath for any
	// path returned by List or Info.
	UnpackPath(path string) ([]string, error)

	// ReadFrom opens a lazy record batch stream over the table at path.
	// query must be nil. Fails with domain.NotFoundError when the path
	// does not exist.
	ReadFrom(ctx context.Context, path string, query *Query) (array.RecordReader, error)

	// WriteTo consumes the entire stream into the table at path, creating
	// it if absent. Overwrite semantics are backend-defined. Producer-side
	// stream errors are propagated, never swallowed.
	WriteTo(ctx context.Context, path string, stream array.RecordReader) error

	// Info returns metadata for the table at path without reading all rows
	// when the backend can answer from metadata alone.
	Info(ctx context.Context, path string) (*TableInfo, error)

	// List lazily enumerates every table under the provider's configured
	// scope. An empty scope yields an empty sequence. Per-table failures
	// surface as an error element and end the sequence.
	List(ctx context.Context) iter.Seq2[*TableInfo, error]

	// Close releases backend resources (file handles, connections).
	Close() error
}
