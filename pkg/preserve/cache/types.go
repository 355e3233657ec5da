package cache

import (
	"bytes"
	"encoding/gob"
)

// CacheVersion is incremented when the entry format changes. Entries with
// another version are treated as misses.
const CacheVersion = 1

// keyPrefix namespaces digest entries inside the badger directory.
const keyPrefix = "d\x00"

// DigestEntry is the cached digest state of one file.
type DigestEntry struct {
	Version int
	Size    int64
	Mtime   int64             // UnixNano
	Hashes  map[string]string // algorithm -> lowercase hex
}

// Encode serializes the entry using gob.
func (e *DigestEntry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes bytes into the entry using gob.
func (e *DigestEntry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// MakeKey returns the cache key for an absolute path.
func MakeKey(path string) []byte {
	return []byte(keyPrefix + path)
}
