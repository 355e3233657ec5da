// Package digest computes file hashes for one or more algorithms in a single
// pass over the data.
package digest

import (
	"context"
	"crypto/md5"  //nolint:gosec // recorded for compatibility, not security
	"crypto/sha1" //nolint:gosec // recorded for compatibility, not security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/jamesainslie/preserve/pkg/preserve/logging"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// New returns a fresh hash for alg.
func New(alg types.HashAlgorithm) (hash.Hash, error) {
	switch alg {
	case types.MD5:
		return md5.New(), nil //nolint:gosec
	case types.SHA1:
		return sha1.New(), nil //nolint:gosec
	case types.SHA256:
		return sha256.New(), nil
	case types.SHA512:
		return sha512.New(), nil
	case types.BLAKE3:
		return blake3.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownAlgorithm, alg)
}

// MultiHash is an io.Writer feeding every configured algorithm.
type MultiHash struct {
	hashes map[types.HashAlgorithm]hash.Hash
	w      io.Writer
}

// NewMultiHash builds a writer for algs. Duplicates are ignored.
func NewMultiHash(algs []types.HashAlgorithm) (*MultiHash, error) {
	m := &MultiHash{hashes: make(map[types.HashAlgorithm]hash.Hash, len(algs))}
	writers := make([]io.Writer, 0, len(algs))
	for _, alg := range algs {
		if _, dup := m.hashes[alg]; dup {
			continue
		}
		h, err := New(alg)
		if err != nil {
			return nil, err
		}
		m.hashes[alg] = h
		writers = append(writers, h)
	}
	m.w = io.MultiWriter(writers...)
	return m, nil
}

func (m *MultiHash) Write(p []byte) (int, error) {
	return m.w.Write(p)
}

// Sum returns the lowercase hex digest of everything written so far.
func (m *MultiHash) Sum() types.Hashes {
	out := make(types.Hashes, len(m.hashes))
	for alg, h := range m.hashes {
		out[alg] = hex.EncodeToString(h.Sum(nil))
	}
	return out
}

// Reader hashes everything read from r.
func Reader(ctx context.Context, r io.Reader, algs []types.HashAlgorithm) (types.Hashes, error) {
	m, err := NewMultiHash(algs)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(m, ContextReader(ctx, r)); err != nil {
		return nil, err
	}
	return m.Sum(), nil
}

// File hashes the file at path.
func File(ctx context.Context, path string, algs []types.HashAlgorithm) (types.Hashes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Reader(ctx, f, algs)
}

// ContextReader wraps r so reads fail once ctx is done.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Cache stores digests between runs. A *cache.Cache satisfies it.
type Cache interface {
	Lookup(path string, size int64, modTime time.Time, algs []types.HashAlgorithm) (types.Hashes, bool)
	Record(path string, size int64, modTime time.Time, hashes types.Hashes) error
}

// Digester hashes files, consulting an optional cache first.
type Digester struct {
	cache Cache
	log   *logging.Logger
}

// Option configures a Digester.
type Option func(*Digester)

// WithCache makes the Digester record every digest it computes, and lets
// Cached reuse digests of unchanged files.
func WithCache(c Cache) Option {
	return func(d *Digester) { d.cache = c }
}

// NewDigester returns a Digester. Without options it only hashes.
func NewDigester(opts ...Option) *Digester {
	d := &Digester{log: logging.Get("digest")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// File always reads and hashes path, then refreshes its cache entry.
// Integrity checks go through File so a file whose bytes changed behind
// an unchanged size and mtime is still caught.
func (d *Digester) File(ctx context.Context, path string, algs []types.HashAlgorithm) (types.Hashes, error) {
	if d == nil || d.cache == nil {
		return File(ctx, path, algs)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	hashes, err := File(ctx, path, algs)
	if err != nil {
		return nil, err
	}
	d.Remember(path, info, hashes)
	return hashes, nil
}

// Cached returns the cached digests of path when its size and mtime are
// unchanged, and hashes it like File otherwise. The result trusts the
// file's metadata, not its bytes.
func (d *Digester) Cached(ctx context.Context, path string, algs []types.HashAlgorithm) (types.Hashes, error) {
	if d == nil || d.cache == nil {
		return File(ctx, path, algs)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if hashes, ok := d.cache.Lookup(path, info.Size(), info.ModTime(), algs); ok {
		d.log.Debug("cache hit", "path", path)
		return hashes, nil
	}

	hashes, err := File(ctx, path, algs)
	if err != nil {
		return nil, err
	}
	d.Remember(path, info, hashes)
	return hashes, nil
}

// Remember records digests computed elsewhere, for example while copying.
// Cache failures are logged and otherwise ignored.
func (d *Digester) Remember(path string, info os.FileInfo, hashes types.Hashes) {
	if d == nil || d.cache == nil || info == nil {
		return
	}
	if err := d.cache.Record(path, info.Size(), info.ModTime(), hashes); err != nil {
		d.log.Warn("caching digest failed", "path", path, "error", err)
	}
}
