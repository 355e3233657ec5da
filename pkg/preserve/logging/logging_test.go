package logging_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jamesainslie/preserve/pkg/preserve/logging"
)

// Init mutates package state, so these tests do not run in parallel.

func TestGetBeforeInitDiscards(t *testing.T) {
	logger := logging.Get("early")
	logger.Info("dropped")

	if logging.Get("early") != logger {
		t.Error("Get() returned a different logger for the same component")
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "preserve.log")

	logger := logging.Get("manifest")
	if err := logging.Init(logging.Config{Level: "debug", Path: logPath}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer logging.Close()

	logger.Info("appended manifest", "sequence", 7)
	logger.With("dest", "/backup").Warn("lock busy")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(data)
	for _, want := range []string{"appended manifest", "sequence=7", "manifest", "lock busy", "dest=/backup"} {
		if !strings.Contains(content, want) {
			t.Errorf("log file missing %q:\n%s", want, content)
		}
	}
}

func TestComponentLevelOverride(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "levels.log")

	err := logging.Init(logging.Config{
		Level:      "warn",
		Path:       logPath,
		Components: map[string]string{"restore": "debug"},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("verify").Info("quiet info")
	logging.Get("restore").Debug("loud debug")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "quiet info") {
		t.Error("info record written below warn level")
	}
	if !strings.Contains(string(data), "loud debug") {
		t.Error("component override did not enable debug")
	}
}

func TestInitRejectsBadLevels(t *testing.T) {
	dir := t.TempDir()

	cases := []logging.Config{
		{Level: "loud", Path: filepath.Join(dir, "a.log")},
		{Level: "info", Path: filepath.Join(dir, "b.log"), Components: map[string]string{"x": "nope"}},
		{Level: "info", Path: filepath.Join(dir, "c.log"), ConsoleLevel: "chatty"},
	}
	for _, cfg := range cases {
		if err := logging.Init(cfg); !errors.Is(err, logging.ErrInvalidLevel) {
			t.Errorf("Init(%+v) error = %v, want ErrInvalidLevel", cfg, err)
		}
	}
}

func TestCloseThenLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "closed.log")
	if err := logging.Init(logging.Config{Path: logPath}); err != nil {
		t.Fatal(err)
	}
	logger := logging.Get("operation")
	if err := logging.Close(); err != nil {
		t.Fatal(err)
	}
	if err := logging.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	logger.Error("after close")

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), "after close") {
		t.Error("record written after Close")
	}
}

func TestConcurrentLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	if err := logging.Init(logging.Config{Path: logPath}); err != nil {
		t.Fatal(err)
	}
	defer logging.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger := logging.Get("worker")
			for j := 0; j < 50; j++ {
				logger.Info("copied", "worker", n, "file", j)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "copied"); got != 400 {
		t.Errorf("found %d records, want 400", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]logging.Level{
		"debug":   logging.LevelDebug,
		"":        logging.LevelInfo,
		"INFO":    logging.LevelInfo,
		"warning": logging.LevelWarn,
		"error":   logging.LevelError,
	}
	for in, want := range tests {
		got, err := logging.ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error = %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultLogPath(t *testing.T) {
	path := logging.DefaultLogPath()
	if filepath.Base(path) != "preserve.log" || filepath.Base(filepath.Dir(path)) != "preserve" {
		t.Errorf("DefaultLogPath() = %q, want .../preserve/preserve.log", path)
	}
}
