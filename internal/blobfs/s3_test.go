package blobfs

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// newPipedWriter wires an s3Writer to a consumer goroutine standing in for
// the upload, mirroring how Create runs it.
func newPipedWriter(consume func(r io.Reader) error) *s3Writer {
	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		if err := consume(pr); err != nil {
			w.err = err
			pr.CloseWithError(err)
			return
		}
		pr.Close()
	}()
	return w
}

func TestS3WriterStreamsToUpload(t *testing.T) {
	received := make(chan []byte, 1)
	w := newPipedWriter(func(r io.Reader) error {
		data, err := io.ReadAll(r)
		received <- data
		return err
	})

	// Many writes, each handed off through the pipe rather than buffered.
	for i := 0; i < 64; i++ {
		_, err := w.Write([]byte("chunk"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.Len(t, <-received, 64*len("chunk"))

	// Close is idempotent after the upload finished.
	require.NoError(t, w.Close())
}

func TestS3WriterCloseReportsUploadError(t *testing.T) {
	uploadErr := errors.New("upload failed")
	w := newPipedWriter(func(r io.Reader) error {
		io.Copy(io.Discard, r)
		return uploadErr
	})

	_, err := w.Write([]byte("row data"))
	require.NoError(t, err)
	require.ErrorIs(t, w.Close(), uploadErr)
}

func TestS3WriterFailedUploadUnblocksWrites(t *testing.T) {
	uploadErr := errors.New("part rejected")
	w := newPipedWriter(func(r io.Reader) error {
		buf := make([]byte, 4)
		r.Read(buf)
		return uploadErr
	})

	// Once the upload dies the pipe rejects further writes instead of
	// blocking the producer forever.
	var err error
	for i := 0; i < 100; i++ {
		if _, err = w.Write([]byte("chunk")); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, uploadErr)
	require.ErrorIs(t, w.Close(), uploadErr)
}
