// Package file implements the parquet-backed storage provider. Tables are
// parquet objects on a blobfs filesystem, one object per table, addressed by
// slash-separated paths.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"flightgate/internal/blobfs"
	"flightgate/internal/domain"
	"flightgate/internal/provider"
)

// Kind is the provider kind this package registers under.
const Kind = "file"

// readBatchSize bounds the rows per record batch when streaming a table out.
const readBatchSize = 1024

// Provider stores one parquet object per table.
type Provider struct {
	fs     blobfs.FileSystem
	prefix string
}

// New builds a file provider from profile params.
//
// Recognized params:
//
//	filesystem        local (default) or s3
//	root_path         base directory (local) or key prefix (s3, optional)
//	bucket            s3 bucket name (s3 only, required)
//	region            s3 region
//	endpoint          s3-compatible endpoint, enables path-style addressing
//	access_key_id     static credentials override
//	secret_access_key static credentials override
func New(params map[string]string) (provider.Provider, error) {
	switch kind := params["filesystem"]; kind {
	case "", "local":
		root := params["root_path"]
		if root == "" {
			return nil, domain.ErrValidation("file provider: root_path is required")
		}
		return &Provider{fs: blobfs.NewLocal(root)}, nil
	case "s3":
		s3fs, err := blobfs.NewS3(context.Background(), blobfs.S3Options{
			Bucket:          params["bucket"],
			Region:          params["region"],
			Endpoint:        params["endpoint"],
			AccessKeyID:     params["access_key_id"],
			SecretAccessKey: params["secret_access_key"],
		})
		if err != nil {
			return nil, fmt.Errorf("file provider: %w", err)
		}
		prefix := strings.Trim(params["root_path"], blobfs.Separator)
		return &Provider{fs: s3fs, prefix: prefix}, nil
	default:
		return nil, domain.ErrValidation("file provider: unknown filesystem %q", kind)
	}
}

// PackPath joins descriptor path components into a storage path under the
// provider's prefix. Components must be plain names, no separators or
// relative elements.
func (p *Provider) PackPath(parts ...string) (string, error) {
	if len(parts) == 0 {
		return "", domain.ErrValidation("path must have at least one component")
	}
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return "", domain.ErrValidation("invalid path component %q", part)
		}
		if strings.ContainsAny(part, `/\`) {
			return "", domain.ErrValidation("path component %q contains a separator", part)
		}
	}
	joined := strings.Join(parts, blobfs.Separator)
	if p.prefix != "" {
		joined = p.prefix + blobfs.Separator + joined
	}
	return joined, nil
}

// UnpackPath is the inverse of PackPath: it strips the provider prefix and
// splits the remainder back into descriptor components.
func (p *Provider) UnpackPath(path string) ([]string, error) {
	rest := path
	if p.prefix != "" {
		var ok bool
		rest, ok = strings.CutPrefix(path, p.prefix+blobfs.Separator)
		if !ok {
			return nil, domain.ErrValidation("path %q is outside the provider root", path)
		}
	}
	if rest == "" {
		return nil, domain.ErrValidation("path %q has no components", path)
	}
	parts := strings.Split(rest, blobfs.Separator)
	for _, part := range parts {
		if part == "" {
			return nil, domain.ErrValidation("path %q has an empty component", path)
		}
	}
	return parts, nil
}

func (p *Provider) ReadFrom(ctx context.Context, path string, query *provider.Query) (array.RecordReader, error) {
	if query != nil {
		return nil, domain.ErrUnsupportedCriteria("file provider does not support query pushdown")
	}
	f, err := p.fs.OpenRead(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound("table %q not found", path)
		}
		return nil, err
	}
	pf, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return nil, domain.ErrUnsupportedDataFormat("open parquet %q: %v", path, err)
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: readBatchSize}, memory.DefaultAllocator)
	if err != nil {
		pf.Close()
		return nil, domain.ErrUnsupportedDataFormat("read parquet %q: %v", path, err)
	}
	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return &closingReader{RecordReader: rr, closer: pf}, nil
}

func (p *Provider) WriteTo(ctx context.Context, path string, stream array.RecordReader) error {
	wc, err := p.fs.Create(ctx, path)
	if err != nil {
		return err
	}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(stream.Schema(), wc, props, pqarrow.DefaultWriterProps())
	if err != nil {
		wc.Close()
		return fmt.Errorf("write %q: %w", path, err)
	}
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			fw.Close()
			return err
		}
		if err := fw.Write(stream.Record()); err != nil {
			fw.Close()
			return fmt.Errorf("write %q: %w", path, err)
		}
	}
	if err := stream.Err(); err != nil {
		fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("finalize %q: %w", path, err)
	}
	// The parquet writer may have closed the sink already.
	if err := wc.Close(); err != nil && !errors.Is(err, fs.ErrClosed) {
		return err
	}
	return nil
}

func (p *Provider) Info(ctx context.Context, path string) (*provider.TableInfo, error) {
	st, err := p.fs.Stat(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound("table %q not found", path)
		}
		return nil, err
	}
	f, err := p.fs.OpenRead(ctx, path)
	if err != nil {
		return nil, err
	}
	pf, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return nil, domain.ErrUnsupportedDataFormat("open parquet %q: %v", path, err)
	}
	defer pf.Close()
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, domain.ErrUnsupportedDataFormat("read parquet %q: %v", path, err)
	}
	schema, err := fr.Schema()
	if err != nil {
		return nil, domain.ErrUnsupportedDataFormat("parquet schema %q: %v", path, err)
	}
	return &provider.TableInfo{
		Schema:       schema,
		Path:         path,
		TotalRecords: pf.NumRows(),
		TotalBytes:   st.Size,
	}, nil
}

// List walks every object under the provider root and describes each one.
// Objects that are not parquet surface as an error element that ends the
// sequence.
func (p *Provider) List(ctx context.Context) iter.Seq2[*provider.TableInfo, error] {
	return func(yield func(*provider.TableInfo, error) bool) {
		for entry, err := range p.fs.Walk(ctx, p.prefix) {
			if err != nil {
				yield(nil, err)
				return
			}
			info, infoErr := p.Info(ctx, entry.Name)
			if !yield(info, infoErr) || infoErr != nil {
				return
			}
		}
	}
}

func (p *Provider) Close() error { return nil }

// closingReader releases the parquet file handle together with the record
// reader.
type closingReader struct {
	array.RecordReader
	closer interface{ Close() error }
}

func (r *closingReader) Release() {
	r.RecordReader.Release()
	r.closer.Close()
}
