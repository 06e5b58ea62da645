package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
)

// HDFS stores files through the `hdfs dfs` command line client.
type HDFS struct {
	runner Runner
	bin    string
	logger *slog.Logger
}

// NewHDFS returns a Store that shells out to bin (default "hdfs").
func NewHDFS(runner Runner, bin string, logger *slog.Logger) *HDFS {
	if bin == "" {
		bin = "hdfs"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HDFS{runner: runner, bin: bin, logger: logger}
}

// Backend implements Store.
func (h *HDFS) Backend() string { return BackendHDFS }

// URI implements Store.
func (h *HDFS) URI(p string) string { return "hdfs://" + p }

func (h *HDFS) dfs(ctx context.Context, stdin io.Reader, args ...string) (*CommandResult, error) {
	result, err := h.runner.Run(ctx, stdin, h.bin, append([]string{"dfs"}, args...)...)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("hdfs command",
		"args", result.Args,
		"exit_code", result.ExitCode,
		"duration", result.Duration)
	return result, nil
}

// run executes an hdfs dfs subcommand and fails on a non-zero exit.
func (h *HDFS) run(ctx context.Context, stdin io.Reader, args ...string) (*CommandResult, error) {
	result, err := h.dfs(ctx, stdin, args...)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// MkdirAll implements Store.
func (h *HDFS) MkdirAll(ctx context.Context, dir string) error {
	if _, err := h.run(ctx, nil, "-mkdir", "-p", dir); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// Put implements Store.
func (h *HDFS) Put(ctx context.Context, src, dst string, overwrite bool) error {
	args := []string{"-put"}
	if overwrite {
		args = append(args, "-f")
	} else {
		exists, err := h.Exists(ctx, dst)
		if err != nil {
			return fmt.Errorf("put %s: %w", dst, err)
		}
		if exists {
			return fmt.Errorf("put %s: %w", dst, fs.ErrExist)
		}
	}
	if _, err := h.run(ctx, nil, append(args, src, dst)...); err != nil {
		return fmt.Errorf("put %s: %w", dst, err)
	}
	return nil
}

// Open implements Store. The whole file is read before returning.
func (h *HDFS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	exists, err := h.Exists(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	if !exists {
		return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	result, err := h.run(ctx, nil, "-cat", p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return io.NopCloser(bytes.NewReader(result.Stdout)), nil
}

// Create implements Store. Content is buffered and streamed to
// `hdfs dfs -put -f - p` on Close.
func (h *HDFS) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return &hdfsWriter{ctx: ctx, h: h, path: p}, nil
}

type hdfsWriter struct {
	ctx    context.Context
	h      *HDFS
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *hdfsWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fs.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *hdfsWriter) Close() error {
	if w.closed {
		return fs.ErrClosed
	}
	w.closed = true
	if _, err := w.h.run(w.ctx, &w.buf, "-put", "-f", "-", w.path); err != nil {
		return fmt.Errorf("create %s: %w", w.path, err)
	}
	return nil
}

// Exists implements Store. `-test -e` exits 1 when the path is absent.
func (h *HDFS) Exists(ctx context.Context, p string) (bool, error) {
	result, err := h.dfs(ctx, nil, "-test", "-e", p)
	if err != nil {
		return false, fmt.Errorf("test %s: %w", p, err)
	}
	switch result.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("test %s: %w", p, result.Err())
	}
}

// RemoveAll implements Store.
func (h *HDFS) RemoveAll(ctx context.Context, p string) error {
	if _, err := h.run(ctx, nil, "-rm", "-r", "-f", p); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}
