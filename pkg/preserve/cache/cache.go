// Package cache persists file digests between runs so unchanged files are
// not hashed twice. An entry is valid only while the file keeps the size and
// modification time it had when hashed.
package cache

import (
	"errors"
	"time"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Cache provides digest lookups on top of a Store.
type Cache struct {
	store *Store
}

// Open opens or creates a cache at the given directory.
func Open(path string) (*Cache, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Lookup returns cached digests for path when the entry matches size and
// modTime and holds every requested algorithm.
func (c *Cache) Lookup(path string, size int64, modTime time.Time, algs []types.HashAlgorithm) (types.Hashes, bool) {
	entry, err := c.store.Get(path)
	if err != nil {
		return nil, false
	}
	if entry.Version != CacheVersion || entry.Size != size || entry.Mtime != modTime.UnixNano() {
		return nil, false
	}

	out := make(types.Hashes, len(algs))
	for _, alg := range algs {
		v, ok := entry.Hashes[string(alg)]
		if !ok {
			return nil, false
		}
		out[alg] = v
	}
	return out, true
}

// Record stores digests for path. Digests already cached for the same
// file state are kept, so the entry accumulates algorithms over runs.
func (c *Cache) Record(path string, size int64, modTime time.Time, hashes types.Hashes) error {
	mtime := modTime.UnixNano()
	entry := &DigestEntry{
		Version: CacheVersion,
		Size:    size,
		Mtime:   mtime,
		Hashes:  make(map[string]string, len(hashes)),
	}

	prev, err := c.store.Get(path)
	switch {
	case err == nil && prev.Version == CacheVersion && prev.Size == size && prev.Mtime == mtime:
		for alg, v := range prev.Hashes {
			entry.Hashes[alg] = v
		}
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}

	for alg, v := range hashes {
		entry.Hashes[string(alg)] = v
	}
	return c.store.Put(path, entry)
}

// Forget drops the entry for path.
func (c *Cache) Forget(path string) error {
	return c.store.Delete(path)
}

// ForgetTree drops every entry under dir.
func (c *Cache) ForgetTree(dir string) error {
	return c.store.DeletePrefix(dir)
}

// Len returns the number of cached files.
func (c *Cache) Len() (int, error) {
	return c.store.Count()
}
