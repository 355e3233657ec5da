package digest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Known digests of "hello world".
const (
	helloMD5    = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	helloSHA1   = "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"
	helloSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
)

func TestReaderAllAlgorithms(t *testing.T) {
	t.Parallel()

	got, err := Reader(context.Background(), strings.NewReader("hello world"), types.AllAlgorithms())
	require.NoError(t, err)

	assert.Equal(t, helloMD5, got[types.MD5])
	assert.Equal(t, helloSHA1, got[types.SHA1])
	assert.Equal(t, helloSHA256, got[types.SHA256])
	assert.Len(t, got[types.SHA512], 128)
	assert.Len(t, got[types.BLAKE3], 64)
}

func TestNewUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	_, err := New("CRC32")
	assert.True(t, errors.Is(err, types.ErrUnknownAlgorithm))
}

func TestReaderCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Reader(ctx, strings.NewReader("data"), []types.HashAlgorithm{types.SHA256})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeCache struct {
	entries map[string]types.Hashes
	lookups int
	records int
}

func (f *fakeCache) Lookup(path string, _ int64, _ time.Time, algs []types.HashAlgorithm) (types.Hashes, bool) {
	f.lookups++
	h, ok := f.entries[path]
	if !ok {
		return nil, false
	}
	for _, alg := range algs {
		if _, ok := h[alg]; !ok {
			return nil, false
		}
	}
	return h, true
}

func (f *fakeCache) Record(path string, _ int64, _ time.Time, hashes types.Hashes) error {
	f.records++
	f.entries[path] = hashes
	return nil
}

func TestDigesterFileAlwaysReads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	fc := &fakeCache{entries: map[string]types.Hashes{}}
	d := NewDigester(WithCache(fc))
	algs := []types.HashAlgorithm{types.SHA256}

	// A stale entry must not hide the real content.
	fc.entries[path] = types.Hashes{types.SHA256: "stale"}
	got, err := d.File(context.Background(), path, algs)
	require.NoError(t, err)
	assert.Equal(t, helloSHA256, got[types.SHA256])
	assert.Equal(t, 0, fc.lookups)
	assert.Equal(t, 1, fc.records)
	assert.Equal(t, helloSHA256, fc.entries[path][types.SHA256], "File refreshes the cache entry")
}

func TestDigesterCachedUsesCache(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	fc := &fakeCache{entries: map[string]types.Hashes{}}
	d := NewDigester(WithCache(fc))
	algs := []types.HashAlgorithm{types.SHA256}

	first, err := d.Cached(context.Background(), path, algs)
	require.NoError(t, err)
	assert.Equal(t, helloSHA256, first[types.SHA256])
	assert.Equal(t, 1, fc.records)

	// A poisoned cache entry proves the second call never read the file.
	fc.entries[path] = types.Hashes{types.SHA256: "cached"}
	second, err := d.Cached(context.Background(), path, algs)
	require.NoError(t, err)
	assert.Equal(t, "cached", second[types.SHA256])
	assert.Equal(t, 1, fc.records)
}

func TestNilDigesterHashesDirectly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	var d *Digester
	got, err := d.File(context.Background(), path, []types.HashAlgorithm{types.MD5})
	require.NoError(t, err)
	assert.Equal(t, helloMD5, got[types.MD5])

	_, err = d.File(context.Background(), filepath.Join(t.TempDir(), "missing"), []types.HashAlgorithm{types.MD5})
	assert.True(t, os.IsNotExist(err))
}
