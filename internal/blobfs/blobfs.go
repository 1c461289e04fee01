// Package blobfs abstracts the byte storage underneath the file provider.
// Paths use forward slashes on every backend.
package blobfs

import (
	"context"
	"io"
	"iter"
)

// Separator joins path components on every backend.
const Separator = "/"

// File is an open, random-access blob. The parquet reader needs both
// ReaderAt and Seeker.
type File interface {
	io.ReaderAt
	io.Seeker
	io.Closer
}

// Entry describes one stored blob.
type Entry struct {
	// Name is the full slash-separated path of the blob.
	Name string
	// Size is the blob size in bytes.
	Size int64
}

// FileSystem is the storage substrate for the file provider. Implementations
// must be safe for concurrent use. Missing blobs are reported with errors
// satisfying errors.Is(err, fs.ErrNotExist).
type FileSystem interface {
	// OpenRead opens the named blob for random-access reading.
	OpenRead(ctx context.Context, name string) (File, error)

	// Create opens the named blob for writing, truncating any existing
	// content. Parent directories are created as needed. The write is not
	// visible (or durable) until Close returns.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Stat returns metadata for the named blob.
	Stat(ctx context.Context, name string) (*Entry, error)

	// Walk lazily enumerates every blob under root, recursively. A missing
	// or empty root yields an empty sequence.
	Walk(ctx context.Context, root string) iter.Seq2[Entry, error]
}
