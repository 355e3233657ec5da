package logging_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/preserve/pkg/preserve/logging"
)

func countLogs(t *testing.T, dir, stem string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), stem) && strings.HasSuffix(e.Name(), ".log") {
			n++
		}
	}
	return n
}

func TestRotationBySize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := logging.NewRotatingWriter(filepath.Join(dir, "size.log"), logging.RotationConfig{MaxSize: 200})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := w.Write([]byte(strings.Repeat("x", 60) + "\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := countLogs(t, dir, "size"); got < 2 {
		t.Errorf("found %d log files, want at least 2", got)
	}
}

func TestRotationPrunesOldBackups(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	old := time.Now().Add(-72 * time.Hour)
	for _, stamp := range []string{"2020-01-01-000000", "2020-01-02-000000", "2020-01-03-000000"} {
		p := filepath.Join(dir, "prune."+stamp+".log")
		if err := os.WriteFile(p, []byte("old\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}

	w, err := logging.NewRotatingWriter(filepath.Join(dir, "prune.log"), logging.RotationConfig{MaxAge: 1})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	if got := countLogs(t, dir, "prune"); got != 1 {
		t.Errorf("found %d log files after pruning, want 1", got)
	}
}

func TestRotationMaxBackups(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i, stamp := range []string{"2020-01-01-000000", "2020-01-02-000000", "2020-01-03-000000", "2020-01-04-000000"} {
		p := filepath.Join(dir, "cap."+stamp+".log")
		if err := os.WriteFile(p, []byte("old\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		mt := time.Now().Add(-time.Duration(10-i) * time.Minute)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	w, err := logging.NewRotatingWriter(filepath.Join(dir, "cap.log"), logging.RotationConfig{MaxBackups: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for _, gone := range []string{"cap.2020-01-01-000000.log", "cap.2020-01-02-000000.log"} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Errorf("%s should have been pruned", gone)
		}
	}
	if got := countLogs(t, dir, "cap"); got != 3 {
		t.Errorf("found %d log files, want 3 (current + 2 backups)", got)
	}
}

func TestRotatingWriterCreatesDirs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "deep.log")
	w, err := logging.NewRotatingWriter(path, logging.DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("late\n")); !errors.Is(err, logging.ErrWriterClosed) {
		t.Errorf("Write() after Close error = %v, want ErrWriterClosed", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\n" {
		t.Errorf("content = %q, want %q", data, "hello\n")
	}
}
