// Package manifest stores numbered, immutable operation manifests in a
// destination directory.
//
// Manifests are named preserve_manifest_NNN.json, optionally followed by
// "__description" before the extension. A lone preserve_manifest.json from
// older tools is treated as sequence 0 and renumbered to 1 before the next
// append.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jamesainslie/preserve/pkg/preserve/logging"
)

// StateDir is the per-destination directory for the lock file and link
// sidecars.
const StateDir = ".preserve"

const lockRetry = 50 * time.Millisecond

// dirLocks serialises appends per destination directory within a process.
var dirLocks sync.Map // cleaned dir -> *sync.Mutex

// dirLock serialises writers to one directory within this process. The
// flock on the lock file covers other processes.
func dirLock(dir string) *sync.Mutex {
	mu, _ := dirLocks.LoadOrStore(dir, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Store reads and writes manifests in one destination directory.
type Store struct {
	dir  string
	mu   *sync.Mutex
	lock *flock.Flock
	log  *logging.Logger
}

// New returns a Store for dir. Nothing is created until the first write.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("manifest directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest directory: %w", err)
	}
	return &Store{
		dir:  abs,
		mu:   dirLock(abs),
		lock: flock.New(filepath.Join(abs, StateDir, "manifest.lock")),
		log:  logging.Get("manifest").With("dir", abs),
	}, nil
}

// Dir returns the destination directory.
func (s *Store) Dir() string { return s.dir }

// acquire takes the in-process and advisory file locks. The returned
// function releases both.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()

	if err := os.MkdirAll(filepath.Dir(s.lock.Path()), 0o755); err != nil {
		s.mu.Unlock()
		return nil, &WriteError{Dir: s.dir, Err: err}
	}
	ok, err := s.lock.TryLockContext(ctx, lockRetry)
	switch {
	case err != nil && ctx.Err() != nil:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrLocked, ctx.Err())
	case err != nil:
		s.mu.Unlock()
		return nil, &WriteError{Dir: s.dir, Err: err}
	case !ok:
		s.mu.Unlock()
		return nil, ErrLocked
	}

	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("releasing manifest lock failed", "error", err)
		}
		s.mu.Unlock()
	}, nil
}

// Append assigns the next sequence number to m and writes it atomically.
// A legacy manifest is migrated first. On success m.Sequence and m.Path
// are set.
func (s *Store) Append(ctx context.Context, m *Manifest) (int, error) {
	if m == nil {
		return 0, errors.New("nil manifest")
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	if _, err := s.migrateLegacy(); err != nil {
		return 0, &WriteError{Dir: s.dir, Err: fmt.Errorf("migrating legacy manifest: %w", err)}
	}

	idx, err := s.scan()
	if err != nil {
		return 0, &WriteError{Dir: s.dir, Err: err}
	}
	seq := 1
	if n := len(idx); n > 0 {
		seq = idx[n-1].seq + 1
	}

	m.Description = SanitizeDescription(m.Description)
	data, err := Encode(m)
	if err != nil {
		return 0, &WriteError{Dir: s.dir, Err: err}
	}

	path := filepath.Join(s.dir, FileName(seq, m.Description))
	if err := writeAtomic(path, data); err != nil {
		return 0, &WriteError{Dir: s.dir, Err: err}
	}

	m.Sequence = seq
	m.Path = path
	m.Version = SchemaVersion
	s.log.Info("manifest written", "sequence", seq, "files", len(m.Files), "path", path)
	return seq, nil
}

// writeAtomic writes data to a temp file beside path, syncs it, and renames
// it into place, so path is either absent or complete.
func writeAtomic(path string, data []byte) error {
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("%s already exists", filepath.Base(path))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".preserve_manifest-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return cleanup(err)
	}
	return nil
}

// MigrateLegacy renumbers an unnumbered manifest to sequence 1, shifting
// the run of numbered manifests that starts at 1 up by one. It reports
// whether anything was renamed. Running it again is a no-op.
func (s *Store) MigrateLegacy(ctx context.Context) (bool, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	return s.migrateLegacy()
}

// migrateLegacy must be called with the store locked.
//
// Renames go from the highest number down so every target is free. If the
// process dies halfway, the next run still sees the legacy file and a
// contiguous run from 1 and finishes the job.
func (s *Store) migrateLegacy() (bool, error) {
	legacy := filepath.Join(s.dir, LegacyName)
	if _, err := os.Lstat(legacy); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	idx, err := s.scan()
	if err != nil {
		return false, err
	}
	bySeq := make(map[int][]indexEntry)
	for _, e := range idx {
		bySeq[e.seq] = append(bySeq[e.seq], e)
	}

	top := 0
	for len(bySeq[top+1]) > 0 {
		top++
	}
	for seq := top; seq >= 1; seq-- {
		for _, e := range bySeq[seq] {
			target := filepath.Join(s.dir, FileName(seq+1, e.desc))
			if err := renameNoClobber(e.path, target); err != nil {
				return false, err
			}
			s.log.Debug("renumbered manifest", "from", e.name, "to", filepath.Base(target))
		}
	}

	target := filepath.Join(s.dir, FileName(1, ""))
	if err := renameNoClobber(legacy, target); err != nil {
		return false, err
	}
	s.log.Info("migrated legacy manifest", "to", filepath.Base(target), "shifted", top)
	return true, nil
}

// renameNoClobber renames from to to, refusing to replace an existing file.
func renameNoClobber(from, to string) error {
	if _, err := os.Lstat(to); err == nil {
		return fmt.Errorf("rename %s: %s already exists", filepath.Base(from), filepath.Base(to))
	}
	return os.Rename(from, to)
}

type indexEntry struct {
	seq  int
	desc string
	name string
	path string
}

// scan lists numbered manifests ascending. The legacy file is excluded.
func (s *Store) scan() ([]indexEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest directory: %w", err)
	}

	var idx []indexEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		seq, desc, ok := ParseName(e.Name())
		if !ok || seq == 0 {
			continue
		}
		idx = append(idx, indexEntry{seq: seq, desc: desc, name: e.Name(), path: filepath.Join(s.dir, e.Name())})
	}
	sort.Slice(idx, func(i, j int) bool {
		if idx[i].seq != idx[j].seq {
			return idx[i].seq < idx[j].seq
		}
		return idx[i].name < idx[j].name
	})
	return idx, nil
}

// index is scan plus the legacy file, if present, as sequence 0.
func (s *Store) index() ([]indexEntry, error) {
	idx, err := s.scan()
	if err != nil {
		return nil, err
	}
	legacy := filepath.Join(s.dir, LegacyName)
	if _, err := os.Lstat(legacy); err == nil {
		idx = append([]indexEntry{{seq: 0, name: LegacyName, path: legacy}}, idx...)
	}
	return idx, nil
}

// List returns a summary of every readable manifest, ascending by number.
// Files that fail to parse are logged and skipped.
func (s *Store) List() ([]Summary, error) {
	idx, err := s.index()
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(idx))
	for _, e := range idx {
		m, err := Load(e.path)
		if err != nil {
			s.log.Warn("skipping unreadable manifest", "file", e.name, "error", err)
			continue
		}
		out = append(out, m.summary())
	}
	return out, nil
}

// Select loads the manifest chosen by c.
func (s *Store) Select(c Criteria) (*Manifest, error) {
	if c.Path != "" {
		return s.selectPath(c.Path)
	}

	idx, err := s.index()
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return nil, &NotFoundError{Dir: s.dir}
	}

	if !c.HasNumber {
		return Load(idx[len(idx)-1].path)
	}

	var matches []indexEntry
	for _, e := range idx {
		if e.seq == c.Number {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &NotFoundError{
			Dir:       s.dir,
			Number:    c.Number,
			HasNumber: true,
			Min:       idx[0].seq,
			Max:       idx[len(idx)-1].seq,
			Count:     len(idx),
		}
	case 1:
		return Load(matches[0].path)
	}
	names := make([]string, len(matches))
	for i, e := range matches {
		names[i] = e.name
	}
	return nil, &AmbiguousError{Number: c.Number, Names: names}
}

// selectPath loads a manifest named by path, trying it as given and then
// relative to the store directory.
func (s *Store) selectPath(p string) (*Manifest, error) {
	candidates := []string{p}
	if !filepath.IsAbs(p) {
		candidates = append(candidates, filepath.Join(s.dir, p))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return Load(c)
		}
	}
	return nil, &NotFoundError{Dir: s.dir, Path: p}
}

// Load reads a manifest file of any supported version.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	m, err := Decode(data, filepath.Dir(abs))
	if err != nil {
		var verr *UnsupportedVersionError
		if errors.As(err, &verr) {
			verr.Path = path
		}
		return nil, err
	}

	m.Path = abs
	if seq, desc, ok := ParseName(filepath.Base(path)); ok {
		m.Sequence = seq
		if desc != "" {
			m.Description = desc
		}
	}
	return m, nil
}
