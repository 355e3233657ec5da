package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/preserve/pkg/preserve/filter"
)

func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range []string{
		"a.txt",
		"b.log",
		"sub/c.txt",
		"sub/deeper/d.txt",
		"dst/already.txt",
	} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(rel), 0o644))
	}
	return root
}

func rels(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestCollectNonRecursive(t *testing.T) {
	t.Parallel()
	root := makeTree(t)

	res, err := Collect(context.Background(), []string{root}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.log"}, rels(t, root, res.Files))
}

func TestCollectRecursive(t *testing.T) {
	t.Parallel()
	root := makeTree(t)

	res, err := Collect(context.Background(), []string{root}, Options{
		Recursive: true,
		SkipDirs:  []string{filepath.Join(root, "dst")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.log", "sub/c.txt", "sub/deeper/d.txt"}, rels(t, root, res.Files))
}

func TestCollectMaxDepth(t *testing.T) {
	t.Parallel()
	root := makeTree(t)

	res, err := Collect(context.Background(), []string{root}, Options{Recursive: true, MaxDepth: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.log", "dst/already.txt", "sub/c.txt"}, rels(t, root, res.Files))
}

func TestCollectFilterAndDedup(t *testing.T) {
	t.Parallel()
	root := makeTree(t)

	f, err := filter.New(filter.WithInclude("*.txt"))
	require.NoError(t, err)

	var seen atomic.Int64
	res, err := Collect(context.Background(),
		[]string{root, filepath.Join(root, "a.txt"), filepath.Join(root, "sub")},
		Options{Recursive: true, Filter: f, OnFile: func(string) { seen.Add(1) }},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "dst/already.txt", "sub/c.txt", "sub/deeper/d.txt"}, rels(t, root, res.Files))
	assert.Equal(t, int64(4), seen.Load(), "each file reported once")
	assert.Positive(t, res.Filtered)
}

func TestCollectExcludePaths(t *testing.T) {
	t.Parallel()
	root := makeTree(t)

	res, err := Collect(context.Background(),
		[]string{root, filepath.Join(root, "b.log")},
		Options{
			Recursive:    true,
			ExcludePaths: []string{filepath.Join(root, "sub"), filepath.Join(root, "b.log"), filepath.Join(root, "dst")},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, rels(t, root, res.Files))
	assert.Positive(t, res.Filtered, "an excluded argument counts as filtered")
}

func TestCollectErrors(t *testing.T) {
	t.Parallel()

	_, err := Collect(context.Background(), nil, Options{})
	assert.True(t, errors.Is(err, ErrNoSources))

	_, err = Collect(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, Options{})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCollectCancelled(t *testing.T) {
	t.Parallel()
	root := makeTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, []string{root}, Options{Recursive: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	list := filepath.Join(dir, "includes.txt")
	content := "# files to keep\n\nrel/one.txt\n  /abs/two.txt  \n#/skipped\n"
	require.NoError(t, os.WriteFile(list, []byte(content), 0o644))

	got, err := LoadList(list)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "rel", "one.txt"), "/abs/two.txt"}, got)

	_, err = LoadList(filepath.Join(dir, "nope"))
	assert.Error(t, err)
}
