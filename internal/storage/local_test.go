package storage_test

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/ecomlake/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "src.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func readAll(t *testing.T, s storage.Store, p string) string {
	t.Helper()
	rc, err := s.Open(context.Background(), p)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocalPut(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := storage.NewLocal(nil)

	dir := storage.Join(root, "ecommerce", "raw")
	require.NoError(t, s.MkdirAll(ctx, dir))

	dst := storage.Join(dir, "orders.csv")
	require.NoError(t, s.Put(ctx, writeTemp(t, "a,b\n1,2\n"), dst, false))
	assert.Equal(t, "a,b\n1,2\n", readAll(t, s, dst))

	t.Run("existing without overwrite", func(t *testing.T) {
		err := s.Put(ctx, writeTemp(t, "x\n"), dst, false)
		require.ErrorIs(t, err, fs.ErrExist)
		assert.Equal(t, "a,b\n1,2\n", readAll(t, s, dst))
	})

	t.Run("existing with overwrite", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, writeTemp(t, "x\n"), dst, true))
		assert.Equal(t, "x\n", readAll(t, s, dst))
	})

	t.Run("missing source", func(t *testing.T) {
		err := s.Put(ctx, filepath.Join(root, "nope.csv"), storage.Join(dir, "other.csv"), true)
		require.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestLocalCreateExistsRemove(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := storage.NewLocal(nil)

	p := storage.Join(root, "analytics", "total_orders", "part-00000.parquet")
	w, err := s.Create(ctx, p)
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ok, err := s.Exists(ctx, p)
	require.NoError(t, err)
	assert.True(t, ok)

	dir := storage.Join(root, "analytics", "total_orders")
	require.NoError(t, s.RemoveAll(ctx, dir))
	ok, err = s.Exists(ctx, dir)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RemoveAll(ctx, dir), "removing a missing path is not an error")

	_, err = s.Open(ctx, p)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNew(t *testing.T) {
	s, err := storage.New(storage.Options{})
	require.NoError(t, err)
	assert.Equal(t, storage.BackendLocal, s.Backend())

	s, err = storage.New(storage.Options{Backend: storage.BackendHDFS})
	require.NoError(t, err)
	assert.Equal(t, storage.BackendHDFS, s.Backend())
	assert.Equal(t, "hdfs:///ecommerce/raw", s.URI("/ecommerce/raw"))

	_, err = storage.New(storage.Options{Backend: storage.BackendS3})
	require.Error(t, err, "s3 without a bucket")

	_, err = storage.New(storage.Options{Backend: "ftp"})
	require.Error(t, err)
}
