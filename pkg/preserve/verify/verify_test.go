package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/preserve/pkg/preserve/cache"
	"github.com/jamesainslie/preserve/pkg/preserve/digest"
	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

const (
	helloMD5    = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	helloSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompare(t *testing.T) {
	t.Parallel()

	recorded := types.Hashes{types.SHA256: "ABCD", types.MD5: "1234"}

	tests := []struct {
		name   string
		actual types.Hashes
		want   []types.HashAlgorithm
	}{
		{"all match ignoring case", types.Hashes{types.SHA256: "abcd", types.MD5: "1234"}, nil},
		{"md5 differs", types.Hashes{types.SHA256: "abcd", types.MD5: "9999"}, []types.HashAlgorithm{types.MD5}},
		{"missing algorithm", types.Hashes{types.SHA256: "abcd"}, []types.HashAlgorithm{types.MD5}},
		{"nothing computed", nil, []types.HashAlgorithm{types.MD5, types.SHA256}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(recorded, tt.actual))
		})
	}
}

func TestVerifySingleTarget(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "f.txt"), "hello world")
	v := New(nil)

	res := v.Verify(context.Background(), types.Hashes{types.SHA256: strings.ToUpper(helloSHA256)}, path)
	assert.Equal(t, StatusVerified, res.Status)
	assert.NoError(t, res.Err())

	res = v.Verify(context.Background(), types.Hashes{types.SHA256: helloSHA256}, filepath.Join(dir, "missing"))
	assert.Equal(t, StatusNotFound, res.Status)
	assert.NoError(t, res.Err())
}

func TestVerifyAllAlgorithmsMustAgree(t *testing.T) {
	t.Parallel()
	path := writeFile(t, filepath.Join(t.TempDir(), "f.txt"), "hello world")

	recorded := types.Hashes{
		types.SHA256: helloSHA256,
		types.MD5:    "00000000000000000000000000000000",
	}
	res := New(nil).Verify(context.Background(), recorded, path)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, []types.HashAlgorithm{types.MD5}, res.Mismatched)

	var mismatch *HashMismatchError
	require.True(t, errors.As(res.Err(), &mismatch))
	assert.Equal(t, []types.HashAlgorithm{types.MD5}, mismatch.Algorithms)
	assert.Contains(t, mismatch.Error(), "MD5")
}

func TestVerifyDualTarget(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.txt"), "hello world")
	b := writeFile(t, filepath.Join(dir, "b.txt"), "hello world")
	c := writeFile(t, filepath.Join(dir, "c.txt"), "changed")
	recorded := types.Hashes{types.SHA256: helloSHA256, types.MD5: helloMD5}
	v := New(nil)

	res := v.Verify(context.Background(), recorded, a, b)
	assert.Equal(t, StatusVerified, res.Status)
	assert.False(t, res.CopiesDiffer)
	assert.Len(t, res.Targets, 2)

	res = v.Verify(context.Background(), recorded, a, c)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, res.CopiesDiffer)
	assert.ElementsMatch(t, []types.HashAlgorithm{types.MD5, types.SHA256}, res.Mismatched)

	// A missing target is reported as such, not as a mismatch.
	res = v.Verify(context.Background(), recorded, a, filepath.Join(dir, "gone.txt"))
	assert.Equal(t, StatusNotFound, res.Status)
	assert.False(t, res.CopiesDiffer)
}

func TestVerifyWithoutRecordedHashes(t *testing.T) {
	t.Parallel()
	path := writeFile(t, filepath.Join(t.TempDir(), "f.txt"), "x")

	res := New(nil).Verify(context.Background(), nil, path)
	assert.Equal(t, StatusUnverified, res.Status)
}

func TestVerifyRejectsBadArity(t *testing.T) {
	t.Parallel()
	res := New(nil).Verify(context.Background(), types.Hashes{types.SHA256: helloSHA256})
	assert.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	ok := TargetResult{Status: StatusVerified}
	bad := TargetResult{Status: StatusFailed}
	missing := TargetResult{Status: StatusNotFound}
	broken := TargetResult{Status: StatusError}

	tests := []struct {
		name   string
		source *TargetResult
		dest   TargetResult
		want   Category
	}{
		{"all agree", &ok, ok, CategoryConsistent},
		{"source unreachable", &missing, ok, CategoryConsistent},
		{"no source", nil, ok, CategoryConsistent},
		{"source modified", &bad, ok, CategorySourceModified},
		{"dest corrupted", &ok, bad, CategoryDestCorrupted},
		{"dest corrupted no source", nil, bad, CategoryDestCorrupted},
		{"both differ", &bad, bad, CategoryBothDiffer},
		{"dest missing", &ok, missing, CategoryDestMissing},
		{"unreadable dest", &ok, broken, CategoryUnreadable},
		{"unreadable source", &broken, ok, CategoryUnreadable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.source, tt.dest))
		})
	}
}

func TestThreeWay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "src.txt"), "edited")
	dst := writeFile(t, filepath.Join(dir, "dst.txt"), "hello world")

	c := New(nil).ThreeWay(context.Background(), types.Hashes{types.SHA256: helloSHA256}, src, dst)
	assert.Equal(t, CategorySourceModified, c.Category)
	assert.False(t, c.Consistent())
	require.NotNil(t, c.Source)
	assert.Equal(t, StatusFailed, c.Source.Status)
	assert.Equal(t, StatusVerified, c.Dest.Status)
}

func TestParseCheck(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Check{
		"":       CheckDest,
		"dest":   CheckDest,
		"DST":    CheckDest,
		"source": CheckSource,
		"both":   CheckBoth,
		"auto":   CheckAuto,
	} {
		got, err := ParseCheck(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCheck("sideways")
	assert.Error(t, err)
}

func buildManifest(t *testing.T, dst string, files map[string]string) *manifest.Manifest {
	t.Helper()
	m := manifest.NewManifest(types.OpCopy, types.DefaultOptions())
	for rel, content := range files {
		h, err := digest.Reader(context.Background(), strings.NewReader(content), []types.HashAlgorithm{types.SHA256})
		require.NoError(t, err)
		m.Add(types.FileRecord{
			SourcePath:      filepath.Join("/nonexistent/src", rel),
			DestinationPath: rel,
			Size:            int64(len(content)),
			Hashes:          h,
		})
	}
	m.Path = filepath.Join(dst, manifest.FileName(1, ""))
	return m
}

func TestVerifyManifest(t *testing.T) {
	t.Parallel()
	dst := t.TempDir()

	m := buildManifest(t, dst, map[string]string{
		"good.txt":     "good",
		"sub/also.txt": "also good",
		"bad.txt":      "original",
		"gone.txt":     "vanished",
	})
	writeFile(t, filepath.Join(dst, "good.txt"), "good")
	writeFile(t, filepath.Join(dst, "sub", "also.txt"), "also good")
	writeFile(t, filepath.Join(dst, "bad.txt"), "tampered")

	var calls int
	report, err := New(nil).VerifyManifest(context.Background(), m, BatchOptions{
		Workers:  1,
		Progress: func(done, total int, _ string) { calls++; assert.Equal(t, 4, total) },
	})
	require.NoError(t, err)

	assert.Equal(t, 4, calls)
	assert.Equal(t, 2, report.Verified)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.NotFound)
	assert.False(t, report.OK())

	byDest := map[string]FileReport{}
	for _, f := range report.Files {
		byDest[filepath.Base(f.DestPath)] = f
	}
	assert.Equal(t, StatusFailed, byDest["bad.txt"].Status)
	assert.Equal(t, []types.HashAlgorithm{types.SHA256}, byDest["bad.txt"].Mismatched)
	assert.NotEmpty(t, byDest["bad.txt"].Expected)
	assert.Equal(t, StatusNotFound, byDest["gone.txt"].Status)
}

func TestVerifyManifestSourceRoot(t *testing.T) {
	t.Parallel()
	dst := t.TempDir()
	alt := t.TempDir()

	m := buildManifest(t, dst, map[string]string{"a.txt": "same", "b.txt": "same too"})
	writeFile(t, filepath.Join(dst, "a.txt"), "same")
	writeFile(t, filepath.Join(dst, "b.txt"), "same too")
	writeFile(t, filepath.Join(alt, "a.txt"), "same")
	writeFile(t, filepath.Join(alt, "b.txt"), "drifted")

	report, err := New(nil).VerifyManifest(context.Background(), m, BatchOptions{
		Check:      CheckAuto,
		SourceRoot: alt,
	})
	require.NoError(t, err)

	byName := map[string]FileReport{}
	for _, f := range report.Files {
		byName[filepath.Base(f.SourcePath)] = f
	}
	assert.Equal(t, CategoryConsistent, byName["a.txt"].Category)
	assert.Equal(t, StatusVerified, byName["a.txt"].Status)
	assert.Equal(t, CategorySourceModified, byName["b.txt"].Category)
	assert.Equal(t, StatusFailed, byName["b.txt"].Status)
}

func TestVerifyManifestAutoIgnoresMissingSource(t *testing.T) {
	t.Parallel()
	dst := t.TempDir()

	m := buildManifest(t, dst, map[string]string{"a.txt": "content"})
	writeFile(t, filepath.Join(dst, "a.txt"), "content")

	report, err := New(nil).VerifyManifest(context.Background(), m, BatchOptions{Check: CheckAuto})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, StatusVerified, report.Files[0].Status)
	assert.True(t, report.OK())
}

func TestVerifyManifestCancelled(t *testing.T) {
	t.Parallel()
	dst := t.TempDir()
	m := buildManifest(t, dst, map[string]string{"a.txt": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).VerifyManifest(ctx, m, BatchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyReadsBytesBehindCachedDigest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c, err := cache.Open(filepath.Join(t.TempDir(), "digests"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	d := digest.NewDigester(digest.WithCache(c))

	path := writeFile(t, filepath.Join(t.TempDir(), "a.txt"), "hello world")
	info, err := os.Stat(path)
	require.NoError(t, err)
	recorded := types.Hashes{types.SHA256: helloSHA256}
	d.Remember(path, info, recorded)

	// Same size and mtime, different bytes.
	writeFile(t, path, "HELLO WORLD")
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	trusting := New(d, TrustCache()).Verify(ctx, recorded, path)
	assert.Equal(t, StatusVerified, trusting.Status, "trusting the cache skips the read")

	res := New(d).Verify(ctx, recorded, path)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, []types.HashAlgorithm{types.SHA256}, res.Mismatched)

	// The fresh read replaced the stale entry.
	again := New(d, TrustCache()).Verify(ctx, recorded, path)
	assert.Equal(t, StatusFailed, again.Status)
}

func TestVerifyManifestAltSourceRoots(t *testing.T) {
	t.Parallel()
	dst := t.TempDir()
	first := t.TempDir()
	second := t.TempDir()

	m := buildManifest(t, dst, map[string]string{"a.txt": "alpha", "b.txt": "bravo", "c.txt": "charlie"})
	writeFile(t, filepath.Join(dst, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dst, "b.txt"), "bravo")
	writeFile(t, filepath.Join(dst, "c.txt"), "charlie")
	writeFile(t, filepath.Join(first, "a.txt"), "alpha")
	writeFile(t, filepath.Join(second, "a.txt"), "stale")
	writeFile(t, filepath.Join(second, "b.txt"), "drifted")

	report, err := New(nil).VerifyManifest(context.Background(), m, BatchOptions{
		Check:          CheckSource,
		AltSourceRoots: []string{first, second},
	})
	require.NoError(t, err)

	byName := map[string]FileReport{}
	for _, f := range report.Files {
		byName[filepath.Base(f.DestPath)] = f
	}
	assert.Equal(t, filepath.Join(first, "a.txt"), byName["a.txt"].SourcePath, "first root holding the file wins")
	assert.Equal(t, StatusVerified, byName["a.txt"].Status)
	assert.Equal(t, filepath.Join(second, "b.txt"), byName["b.txt"].SourcePath)
	assert.Equal(t, StatusFailed, byName["b.txt"].Status)
	assert.Equal(t, filepath.Join("/nonexistent/src", "c.txt"), byName["c.txt"].SourcePath)
	assert.Equal(t, StatusNotFound, byName["c.txt"].Status)
}
