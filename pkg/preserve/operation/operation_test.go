package operation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/preserve/pkg/preserve/cache"
	"github.com/jamesainslie/preserve/pkg/preserve/digest"
	"github.com/jamesainslie/preserve/pkg/preserve/link"
	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// sourceTree creates a.txt and sub/b.txt under a fresh directory.
func sourceTree(t *testing.T) (string, []string) {
	t.Helper()
	src := t.TempDir()
	a := filepath.Join(src, "a.txt")
	b := filepath.Join(src, "sub", "b.txt")
	writeFile(t, a, "alpha")
	writeFile(t, b, "bravo")
	return src, []string{a, b}
}

func copyOptions(dst string) Options {
	return Options{
		Operation:     types.OpCopy,
		Preservation:  types.DefaultOptions(),
		Dest:          dst,
		PreserveAttrs: true,
		Workers:       2,
	}
}

func statuses(r *Report) map[string]Status {
	out := make(map[string]Status, len(r.Files))
	for _, f := range r.Files {
		out[f.Source] = f.Status
	}
	return out
}

func latest(t *testing.T, dst string) *manifest.Manifest {
	t.Helper()
	store, err := manifest.New(dst)
	require.NoError(t, err)
	m, err := store.Select(manifest.Latest())
	require.NoError(t, err)
	return m
}

func TestCopyRelative(t *testing.T) {
	t.Parallel()
	src, files := sourceTree(t)
	dst := t.TempDir()

	var calls atomic.Int64
	opts := copyOptions(dst)
	opts.Progress = func(done, total int, _ string) {
		calls.Add(1)
		assert.LessOrEqual(t, done, total)
	}

	report, err := New().Run(context.Background(), files, opts)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, int64(10), report.TotalBytes)
	assert.Equal(t, 1, report.Sequence)
	assert.Equal(t, src, report.Base)
	assert.Equal(t, int64(2), calls.Load())

	got, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(got))

	m := latest(t, dst)
	assert.Equal(t, types.OpCopy, m.Operation)
	assert.Equal(t, src, m.SourceBase)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "a.txt", m.Files[0].DestinationPath)
	assert.Equal(t, "sub/b.txt", m.Files[1].DestinationPath)
	assert.NotEmpty(t, m.Files[0].Hashes[types.SHA256])

	for _, f := range files {
		assert.FileExists(t, f, "copy keeps sources")
	}
}

func TestCopyRecordsEveryAlgorithm(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()

	opts := copyOptions(dst)
	opts.Preservation.HashAlgorithms = mapset.NewThreadUnsafeSet(types.SHA256, types.MD5)
	opts.VerifyAfterCopy = true

	report, err := New().Run(context.Background(), files, opts)
	require.NoError(t, err)
	require.True(t, report.OK())

	m := latest(t, dst)
	for _, rec := range m.Files {
		assert.Len(t, rec.Hashes, 2, rec.DestinationPath)
	}
	assert.ElementsMatch(t, []types.HashAlgorithm{types.MD5, types.SHA256}, m.Algorithms)
}

func TestMoveRemovesSourcesAfterCommit(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()

	opts := copyOptions(dst)
	opts.Operation = types.OpMove

	report, err := New().Run(context.Background(), files, opts)
	require.NoError(t, err)
	assert.True(t, report.OK())
	for _, f := range files {
		assert.Equal(t, StatusMoved, statuses(report)[f])
		assert.NoFileExists(t, f)
	}
	assert.Equal(t, types.OpMove, latest(t, dst).Operation)
}

func TestMoveKeepsSourcesWhenManifestFails(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, manifest.StateDir), "not a directory")

	opts := copyOptions(dst)
	opts.Operation = types.OpMove

	report, err := New().Run(context.Background(), files, opts)
	var werr *manifest.WriteError
	require.True(t, errors.As(err, &werr), "error = %v", err)
	require.NotNil(t, report)
	assert.Len(t, report.Unindexed, 2)
	assert.Zero(t, report.Sequence)
	for _, f := range files {
		assert.FileExists(t, f)
	}
}

func TestSkipExisting(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, "a.txt"), "already here")

	report, err := New().Run(context.Background(), files, copyOptions(dst))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, statuses(report)[files[0]])
	assert.Equal(t, StatusCopied, statuses(report)[files[1]])
	assert.Equal(t, 1, report.Skipped)

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(got))

	m := latest(t, dst)
	require.Len(t, m.Files, 1, "skipped files are not recorded")
	assert.Equal(t, "sub/b.txt", m.Files[0].DestinationPath)
}

func TestOverwrite(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, "a.txt"), "stale")

	opts := copyOptions(dst)
	opts.Overwrite = true
	report, err := New().Run(context.Background(), files, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))
}

func TestNothingRecordedWritesNoManifest(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, "a.txt"), "x")
	writeFile(t, filepath.Join(dst, "sub", "b.txt"), "y")

	report, err := New().Run(context.Background(), files, copyOptions(dst))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Sequence)

	store, err := manifest.New(dst)
	require.NoError(t, err)
	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDryRunWritesNothing(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dry := copyOptions(filepath.Join(t.TempDir(), "dry"))
	dry.DryRun = true

	report, err := New().Run(context.Background(), files, dry)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	for _, f := range report.Files {
		assert.Equal(t, StatusPlanned, f.Status)
	}
	assert.Equal(t, int64(10), report.TotalBytes)
	assert.NoDirExists(t, dry.Dest)
}

func TestCancelledWritesNoManifest(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Run(ctx, files, copyOptions(dst))
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	for _, e := range entries {
		_, _, isManifest := manifest.ParseName(e.Name())
		assert.False(t, isManifest, e.Name())
	}
}

func TestSequenceAndDescription(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()

	first, err := New().Run(context.Background(), files[:1], copyOptions(dst))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sequence)

	opts := copyOptions(dst)
	opts.Description = "nightly run"
	second, err := New().Run(context.Background(), files[1:], opts)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sequence)
	assert.True(t, strings.HasSuffix(second.Manifest, "preserve_manifest_002__nightly-run.json"), second.Manifest)
}

func TestLinkSidecars(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()

	opts := copyOptions(dst)
	opts.Link = true
	_, err := New().Run(context.Background(), files, opts)
	require.NoError(t, err)

	m := latest(t, dst)
	sc := link.NewSidecars(dst)
	for _, rec := range m.Files {
		require.NotEmpty(t, rec.LinkHandle)
		src, err := sc.Resolve(rec.LinkHandle)
		require.NoError(t, err)
		assert.Equal(t, rec.SourcePath, src)
	}
}

func TestFlatDisambiguates(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	one := filepath.Join(src, "x", "report.txt")
	two := filepath.Join(src, "y", "report.txt")
	writeFile(t, one, "1")
	writeFile(t, two, "2")
	dst := t.TempDir()

	opts := copyOptions(dst)
	opts.Preservation.Style = types.StyleFlat
	_, err := New().Run(context.Background(), []string{one, two}, opts)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dst, "report.txt"))
	assert.FileExists(t, filepath.Join(dst, "report_1.txt"))
	assert.Len(t, latest(t, dst).Files, 2)
}

func TestDigesterRemembersSources(t *testing.T) {
	t.Parallel()
	_, files := sourceTree(t)
	dst := t.TempDir()

	c, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	e := New(WithDigester(digest.NewDigester(digest.WithCache(c))))
	_, err = e.Run(context.Background(), files, copyOptions(dst))
	require.NoError(t, err)

	info, err := os.Stat(files[0])
	require.NoError(t, err)
	_, ok := c.Lookup(files[0], info.Size(), info.ModTime(), []types.HashAlgorithm{types.SHA256})
	assert.True(t, ok)
}

func TestRunRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := New().Run(context.Background(), []string{"/x"}, Options{})
	assert.Error(t, err)

	_, err = New().Run(context.Background(), nil, copyOptions(t.TempDir()))
	assert.Error(t, err)
}

func TestMissingSourceFails(t *testing.T) {
	t.Parallel()
	src, files := sourceTree(t)
	missing := filepath.Join(src, "gone.txt")
	dst := t.TempDir()

	report, err := New().Run(context.Background(), append(files, missing), copyOptions(dst))
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, StatusFailed, statuses(report)[missing])
	assert.Len(t, latest(t, dst).Files, 2)
}
