package blobfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures an S3-backed filesystem.
type S3Options struct {
	Bucket string
	Region string
	// Endpoint enables path-style addressing against MinIO and similar
	// S3-compatible stores when non-empty.
	Endpoint string
	// AccessKeyID and SecretAccessKey override the default credential
	// chain when both are set.
	AccessKeyID     string
	SecretAccessKey string
}

// S3 stores blobs as objects in a single bucket. Blob names map directly to
// object keys.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 builds an S3 filesystem from the default AWS config, applying any
// overrides in opts.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	var s3opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3{client: s3.NewFromConfig(cfg, s3opts...), bucket: opts.Bucket}, nil
}

func (s *S3) OpenRead(ctx context.Context, name string) (File, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, s3Err(name, err)
	}
	return &s3File{
		ctx:    ctx,
		client: s.client,
		bucket: s.bucket,
		key:    name,
		size:   aws.ToInt64(head.ContentLength),
	}, nil
}

// Create starts a multipart upload fed through a pipe, so writer memory is
// bounded by the uploader's part buffers rather than the object size.
func (s *S3) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, done: make(chan struct{})}
	uploader := manager.NewUploader(s.client)
	go func() {
		defer close(w.done)
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(name),
			Body:   pr,
		})
		if err != nil {
			w.err = fmt.Errorf("s3 put %q: %w", name, err)
			// Unblock any writer still feeding the pipe.
			pr.CloseWithError(err)
			return
		}
		pr.Close()
	}()
	return w, nil
}

func (s *S3) Stat(ctx context.Context, name string) (*Entry, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, s3Err(name, err)
	}
	return &Entry{Name: name, Size: aws.ToInt64(head.ContentLength)}, nil
}

func (s *S3) Walk(ctx context.Context, root string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		prefix := root
		if prefix != "" && !strings.HasSuffix(prefix, Separator) {
			prefix += Separator
		}
		pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		for pager.HasMorePages() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(Entry{}, fmt.Errorf("s3 list %q: %w", prefix, err))
				return
			}
			for _, obj := range page.Contents {
				e := Entry{Name: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// s3File reads an object with ranged GETs. Seek only tracks the offset used
// by sequential Read-through consumers; ReadAt goes straight to the range.
type s3File struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	size   int64
	off    int64
}

func (f *s3File) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.size {
		return 0, io.EOF
	}
	end := off + int64(len(p)) - 1
	if end >= f.size {
		end = f.size - 1
	}
	rng := fmt.Sprintf("bytes=%d-%d", off, end)
	out, err := f.client.GetObject(f.ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
		Range:  aws.String(rng),
	})
	if err != nil {
		return 0, s3Err(f.key, err)
	}
	defer out.Body.Close()
	n, err := io.ReadFull(out.Body, p[:end-off+1])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err == nil && int64(n) < int64(len(p)) {
		err = io.EOF
	}
	return n, err
}

func (f *s3File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.off = offset
	case io.SeekCurrent:
		f.off += offset
	case io.SeekEnd:
		f.off = f.size + offset
	default:
		return 0, fmt.Errorf("s3: invalid whence %d", whence)
	}
	if f.off < 0 {
		return 0, errors.New("s3: negative seek offset")
	}
	return f.off, nil
}

func (f *s3File) Close() error { return nil }

// s3Writer feeds an in-flight multipart upload. Close finishes the pipe and
// waits for the upload to land before reporting its outcome.
type s3Writer struct {
	pw     *io.PipeWriter
	done   chan struct{}
	err    error
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.pw.Close()
	<-w.done
	return w.err
}

func s3Err(key string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("s3 object %q: %w", key, fs.ErrNotExist)
	}
	return err
}
