// Package fsops holds the file primitives used by preservation runs: copying
// with metadata and in-flight hashing, capturing and re-applying metadata,
// and removing sources after a move.
package fsops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jamesainslie/preserve/pkg/preserve/digest"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// ErrExists is returned when the target exists and overwriting is off.
var ErrExists = errors.New("destination exists")

// applyAttrs is Apply; tests replace it to simulate metadata failures.
var applyAttrs = Apply

// CopyOptions controls CopyFile.
type CopyOptions struct {
	// Algorithms are computed over the bytes as they are copied.
	Algorithms []types.HashAlgorithm

	Overwrite bool

	// PreserveAttrs re-applies mode and timestamps to the copy.
	PreserveAttrs bool

	// PreserveOwner also restores uid/gid. It usually requires root.
	PreserveOwner bool

	// BufferSize is the copy buffer in bytes; 0 uses the io.Copy default.
	BufferSize int
}

// CopyResult describes a completed copy.
type CopyResult struct {
	Size       int64
	Hashes     types.Hashes
	Attributes *types.Attributes
}

// CopyError wraps a failed copy. The target is never left half written.
type CopyError struct {
	Src, Dst string
	Op       string
	Err      error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s -> %s: %s: %v", e.Src, e.Dst, e.Op, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// CopyFile copies src to dst through a temporary file in dst's directory,
// hashing the stream on the way, and renames it into place only once the
// data is synced and the metadata applied. On any error dst is left as it
// was before the call.
func CopyFile(ctx context.Context, src, dst string, opts CopyOptions) (*CopyResult, error) {
	fail := func(op string, err error) (*CopyResult, error) {
		return nil, &CopyError{Src: src, Dst: dst, Op: op, Err: err}
	}

	in, err := os.Open(src)
	if err != nil {
		return fail("open source", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fail("stat source", err)
	}
	if !info.Mode().IsRegular() {
		return fail("stat source", fmt.Errorf("not a regular file: %s", info.Mode().Type()))
	}

	if !opts.Overwrite {
		if _, err := os.Lstat(dst); err == nil {
			return fail("check destination", ErrExists)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fail("create parent", err)
	}

	hasher, err := digest.NewMultiHash(opts.Algorithms)
	if err != nil {
		return fail("hash setup", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".preserve-*.tmp")
	if err != nil {
		return fail("create temp", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	var buf []byte
	if opts.BufferSize > 0 {
		buf = make([]byte, opts.BufferSize)
	}
	n, err := io.CopyBuffer(io.MultiWriter(tmp, hasher), digest.ContextReader(ctx, in), buf)
	if err != nil {
		return fail("write", err)
	}
	if n != info.Size() {
		return fail("write", fmt.Errorf("short copy: %d of %d bytes", n, info.Size()))
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close", err)
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return fail("chmod", err)
	}

	// Metadata goes onto the temp file so a failure leaves dst untouched.
	attrs := Capture(info)
	if opts.PreserveAttrs {
		if err := applyAttrs(tmpPath, attrs, opts.PreserveOwner); err != nil {
			return fail("apply metadata", err)
		}
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fail("rename", err)
	}
	committed = true

	return &CopyResult{Size: n, Hashes: hasher.Sum(), Attributes: attrs}, nil
}

// Exists reports whether path exists without following a final symlink.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
