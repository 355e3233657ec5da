package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("log writer closed")

// RotationConfig controls when the log file is rotated and how many old
// files are kept.
type RotationConfig struct {
	// MaxSize in bytes. Zero uses the default of 10 MiB.
	MaxSize int64

	// MaxAge in days. Zero keeps rotated files regardless of age.
	MaxAge int

	// MaxBackups caps the number of rotated files. Zero keeps all.
	MaxBackups int

	// Daily rotates on the first write after midnight.
	Daily bool
}

// DefaultRotationConfig returns 10 MiB files, five backups, thirty days.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 << 20,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

// RotatingWriter is an io.WriteCloser that rotates its file by size and
// day. Writes take an advisory lock on a sibling ".lock" file so several
// preserve processes can share one log.
type RotatingWriter struct {
	path   string
	cfg    RotationConfig
	mu     sync.Mutex
	file   *os.File
	lock   *flock.Flock
	size   int64
	opened time.Time
}

// NewRotatingWriter opens path for appending, creating parent directories.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{
		path: path,
		cfg:  cfg,
		lock: flock.New(path + ".lock"),
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, ErrWriterClosed
	}

	if w.due(int64(len(p))) {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	if err := w.lock.Lock(); err != nil {
		return 0, fmt.Errorf("locking log file: %w", err)
	}
	defer func() { _ = w.lock.Unlock() }()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the file. It is safe to call more than once.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	_ = w.lock.Close()
	return errors.Join(syncErr, closeErr)
}

// open opens the log file for appending and records its size.
func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		return errors.Join(fmt.Errorf("stat log file: %w", err), file.Close())
	}
	w.file = file
	w.size = info.Size()
	w.opened = info.ModTime()
	return nil
}

// due reports whether writing n more bytes, or a new day, needs a rotation.
func (w *RotatingWriter) due(n int64) bool {
	if w.size > 0 && w.size+n > w.cfg.MaxSize {
		return true
	}
	if !w.cfg.Daily {
		return false
	}
	now := time.Now()
	return now.YearDay() != w.opened.YearDay() || now.Year() != w.opened.Year()
}

// rotate renames the current file to name.<timestamp>.ext and opens a
// fresh one.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing current file: %w", err)
	}
	w.file = nil

	ext := filepath.Ext(w.path)
	rotated := fmt.Sprintf("%s.%s%s", strings.TrimSuffix(w.path, ext), time.Now().Format("2006-01-02-150405"), ext)
	if err := os.Rename(w.path, rotated); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("renaming log file: %w", err)
	}

	if err := w.open(); err != nil {
		return err
	}
	w.opened = time.Now()
	w.prune()
	return nil
}

// prune deletes rotated files beyond MaxBackups or older than MaxAge.
// Errors are ignored.
func (w *RotatingWriter) prune() {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	type rotatedFile struct {
		path    string
		modTime time.Time
	}
	var files []rotatedFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == base || !strings.HasPrefix(name, stem) || !strings.HasSuffix(name, ext) {
			continue
		}
		if strings.HasSuffix(name, ".lock") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, rotatedFile{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	cutoff := time.Now().Add(-time.Duration(w.cfg.MaxAge) * 24 * time.Hour)
	for i, f := range files {
		tooMany := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		tooOld := w.cfg.MaxAge > 0 && f.modTime.Before(cutoff)
		if tooMany || tooOld {
			_ = os.Remove(f.path)
		}
	}
}
