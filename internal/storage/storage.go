// Package storage is the shared namespace the pipeline stages raw inputs into
// and writes analytics output to.
//
// Paths are slash-separated and rooted at the namespace root, for example
// "/ecommerce/raw/olist_orders_dataset.csv". Each backend maps them onto its
// own addressing: a local directory tree, an HDFS path, or an S3 key.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
)

// Backend names accepted by New.
const (
	BackendLocal = "local"
	BackendHDFS  = "hdfs"
	BackendS3    = "s3"
)

// Store is a hierarchical file namespace.
type Store interface {
	// Backend names the implementation.
	Backend() string
	// URI renders p the way the backend's own tools address it.
	URI(p string) string
	// MkdirAll creates dir and any missing parents.
	MkdirAll(ctx context.Context, dir string) error
	// Put copies the local file src to dst. Without overwrite, an existing
	// dst fails with an error wrapping fs.ErrExist.
	Put(ctx context.Context, src, dst string, overwrite bool) error
	// Open returns the content of p. A missing p fails with fs.ErrNotExist.
	Open(ctx context.Context, p string) (io.ReadCloser, error)
	// Create returns a writer whose content replaces p once closed.
	Create(ctx context.Context, p string) (io.WriteCloser, error)
	// Exists reports whether p is a file or directory.
	Exists(ctx context.Context, p string) (bool, error)
	// RemoveAll removes p and everything below it. A missing p is not an error.
	RemoveAll(ctx context.Context, p string) error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	HDFSBin string
	S3      S3Options
	Logger  *slog.Logger
}

// New builds the Store named by opts.Backend.
func New(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch opts.Backend {
	case "", BackendLocal:
		return NewLocal(logger), nil
	case BackendHDFS:
		return NewHDFS(&ExecRunner{}, opts.HDFSBin, logger), nil
	case BackendS3:
		store, err := NewS3FromOptions(opts.S3, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// Join joins namespace path elements.
func Join(elem ...string) string {
	return path.Join(elem...)
}
