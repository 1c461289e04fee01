package blobfs

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Local stores blobs on the local filesystem. Slash-separated blob names are
// mapped to OS paths rooted at Base.
type Local struct {
	// Base is an optional directory every name is resolved under. Empty
	// means names are used as-is.
	Base string
}

// NewLocal returns a Local filesystem rooted at base.
func NewLocal(base string) *Local {
	return &Local{Base: base}
}

func (l *Local) resolve(name string) string {
	if l.Base == "" {
		return filepath.FromSlash(name)
	}
	return filepath.Join(l.Base, filepath.FromSlash(name))
}

func (l *Local) OpenRead(_ context.Context, name string) (File, error) {
	return os.Open(l.resolve(name))
}

func (l *Local) Create(_ context.Context, name string) (io.WriteCloser, error) {
	full := l.resolve(name)
	if dir := filepath.Dir(full); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(full)
}

func (l *Local) Stat(_ context.Context, name string) (*Entry, error) {
	fi, err := os.Stat(l.resolve(name))
	if err != nil {
		return nil, err
	}
	return &Entry{Name: name, Size: fi.Size()}, nil
}

func (l *Local) Walk(ctx context.Context, root string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		base := l.resolve(root)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if root != "" {
				name = strings.TrimSuffix(root, Separator) + Separator + name
			}
			if !yield(Entry{Name: name, Size: fi.Size()}, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			yield(Entry{}, err)
		}
	}
}
