package storage_test

import (
	"context"
	"io"
	"io/fs"
	"strings"
	"sync"
	"testing"

	dferrors "github.com/paveg/ecomlake/internal/errors"
	"github.com/paveg/ecomlake/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHDFS emulates `hdfs dfs` over an in-memory file map.
type fakeHDFS struct {
	mu    sync.Mutex
	files map[string]string
	dirs  map[string]bool
	calls [][]string
	fail  map[string]int // subcommand -> exit code
}

func newFakeHDFS() *fakeHDFS {
	return &fakeHDFS{files: map[string]string{}, dirs: map[string]bool{}, fail: map[string]int{}}
}

func (f *fakeHDFS) Run(_ context.Context, stdin io.Reader, name string, args ...string) (*storage.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := append([]string{name}, args...)
	f.calls = append(f.calls, all)
	res := &storage.CommandResult{Args: all}

	if len(args) < 2 || args[0] != "dfs" {
		res.ExitCode = 255
		return res, nil
	}
	sub, rest := args[1], args[2:]
	if code, ok := f.fail[sub]; ok {
		res.ExitCode = code
		res.Stderr = []byte(sub + ": failed\n")
		return res, nil
	}

	switch sub {
	case "-mkdir":
		f.dirs[rest[len(rest)-1]] = true
	case "-put":
		src, dst := rest[len(rest)-2], rest[len(rest)-1]
		if src == "-" {
			data, _ := io.ReadAll(stdin)
			f.files[dst] = string(data)
		} else {
			f.files[dst] = "local:" + src
		}
	case "-cat":
		content, ok := f.files[rest[0]]
		if !ok {
			res.ExitCode = 1
			return res, nil
		}
		res.Stdout = []byte(content)
	case "-test":
		p := rest[len(rest)-1]
		if _, ok := f.files[p]; !ok && !f.dirs[p] && !f.hasPrefix(p) {
			res.ExitCode = 1
		}
	case "-rm":
		p := rest[len(rest)-1]
		for k := range f.files {
			if k == p || strings.HasPrefix(k, p+"/") {
				delete(f.files, k)
			}
		}
		delete(f.dirs, p)
	}
	return res, nil
}

func (f *fakeHDFS) hasPrefix(p string) bool {
	for k := range f.files {
		if strings.HasPrefix(k, p+"/") {
			return true
		}
	}
	return false
}

func (f *fakeHDFS) subcommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c[2])
	}
	return out
}

func TestHDFSPut(t *testing.T) {
	ctx := context.Background()
	fake := newFakeHDFS()
	s := storage.NewHDFS(fake, "", nil)

	require.NoError(t, s.MkdirAll(ctx, "/ecommerce/raw"))
	require.NoError(t, s.Put(ctx, "/tmp/orders.csv", "/ecommerce/raw/orders.csv", true))
	assert.Equal(t, "local:/tmp/orders.csv", fake.files["/ecommerce/raw/orders.csv"])
	assert.Equal(t, []string{"hdfs", "dfs", "-put", "-f", "/tmp/orders.csv", "/ecommerce/raw/orders.csv"}, fake.calls[1])

	err := s.Put(ctx, "/tmp/other.csv", "/ecommerce/raw/orders.csv", false)
	require.ErrorIs(t, err, fs.ErrExist)
	assert.Equal(t, "local:/tmp/orders.csv", fake.files["/ecommerce/raw/orders.csv"])
}

func TestHDFSCreateAndOpen(t *testing.T) {
	ctx := context.Background()
	fake := newFakeHDFS()
	s := storage.NewHDFS(fake, "/opt/hadoop/bin/hdfs", nil)

	w, err := s.Create(ctx, "/ecommerce/analytics/total_orders/_SUCCESS")
	require.NoError(t, err)
	_, err = w.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Empty(t, fake.files, "nothing is uploaded before Close")
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Close(), fs.ErrClosed)

	assert.Equal(t, "ok", readAll(t, s, "/ecommerce/analytics/total_orders/_SUCCESS"))
	assert.Equal(t, "/opt/hadoop/bin/hdfs", fake.calls[0][0])

	_, err = s.Open(ctx, "/ecommerce/missing.csv")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestHDFSExistsAndRemove(t *testing.T) {
	ctx := context.Background()
	fake := newFakeHDFS()
	fake.files["/out/a/part-00000.parquet"] = "x"
	s := storage.NewHDFS(fake, "", nil)

	ok, err := s.Exists(ctx, "/out/a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.RemoveAll(ctx, "/out/a"))
	ok, err = s.Exists(ctx, "/out/a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"-test", "-rm", "-test"}, fake.subcommands())
}

func TestHDFSCommandFailure(t *testing.T) {
	ctx := context.Background()
	fake := newFakeHDFS()
	fake.fail["-mkdir"] = 1
	fake.fail["-test"] = 2
	s := storage.NewHDFS(fake, "", nil)

	err := s.MkdirAll(ctx, "/ecommerce/raw")
	require.Error(t, err)
	var cmdErr *dferrors.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Equal(t, "-mkdir: failed", cmdErr.Stderr)

	_, err = s.Exists(ctx, "/ecommerce")
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 2, cmdErr.ExitCode)
}
