package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func TestConfigDir(t *testing.T) {
	home := isolate(t)

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if want := filepath.Join(home, ".config", "preserve"); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	dir, err = ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if want := filepath.Join("/custom/config", "preserve"); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.DefaultStyle != DefaultStyle {
		t.Errorf("DefaultStyle = %q, want %q", cfg.Paths.DefaultStyle, DefaultStyle)
	}
	if len(cfg.Verification.HashAlgorithms) != 1 || cfg.Verification.HashAlgorithms[0] != DefaultHashAlgorithm {
		t.Errorf("HashAlgorithms = %v, want [%s]", cfg.Verification.HashAlgorithms, DefaultHashAlgorithm)
	}
	if !cfg.Verification.VerifyAfterCopy {
		t.Error("VerifyAfterCopy should default to true")
	}
	if !cfg.Operations.PreserveAttrs {
		t.Error("PreserveAttrs should default to true")
	}
	if cfg.Operations.Overwrite {
		t.Error("Overwrite should default to false")
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled should default to true")
	}
	if cfg.Output != DefaultOutput {
		t.Errorf("Output = %q, want %q", cfg.Output, DefaultOutput)
	}
	if cfg.Logging.Rotation.MaxSize != DefaultLogMaxSize {
		t.Errorf("Rotation.MaxSize = %q, want %q", cfg.Logging.Rotation.MaxSize, DefaultLogMaxSize)
	}
	if cfg.Logging.Rotation.MaxBackups != 5 {
		t.Errorf("Rotation.MaxBackups = %d, want 5", cfg.Logging.Rotation.MaxBackups)
	}
}

func TestLoadFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `paths:
  default_style: flat
  include_base: true
verification:
  hash_algorithms: [sha256, blake3]
  verify_after_copy: false
workers: 3
logging:
  level: debug
  path: ~/logs/preserve.log
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Paths.DefaultStyle != "flat" || !cfg.Paths.IncludeBase {
		t.Errorf("Paths = %+v", cfg.Paths)
	}
	if cfg.Verification.VerifyAfterCopy {
		t.Error("VerifyAfterCopy should be false")
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if strings.HasPrefix(cfg.Logging.Path, "~") {
		t.Errorf("Logging.Path not expanded: %q", cfg.Logging.Path)
	}

	opts, err := cfg.Preservation()
	if err != nil {
		t.Fatalf("Preservation() error = %v", err)
	}
	if opts.Style != types.StyleFlat || !opts.IncludeBase {
		t.Errorf("Preservation() = %+v", opts)
	}
	if !opts.HashAlgorithms.Contains(types.SHA256, types.BLAKE3) || opts.HashAlgorithms.Cardinality() != 2 {
		t.Errorf("HashAlgorithms = %v", opts.HashAlgorithms)
	}
}

func TestLoadEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("PRESERVE_PATHS_DEFAULT_STYLE", "absolute")
	t.Setenv("PRESERVE_WORKERS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Paths.DefaultStyle != "absolute" {
		t.Errorf("DefaultStyle = %q, want absolute", cfg.Paths.DefaultStyle)
	}
	if cfg.Workers != 7 {
		t.Errorf("Workers = %d, want 7", cfg.Workers)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)

	tests := []struct {
		name    string
		content string
	}{
		{"style", "paths:\n  default_style: sideways\n"},
		{"algorithm", "verification:\n  hash_algorithms: [crc32]\n"},
		{"workers", "workers: -2\n"},
		{"syntax", "paths: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	created, err := WriteDefault(path)
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if !created {
		t.Error("WriteDefault() should report a new file")
	}

	v := viper.New()
	Prepare(v, path)
	if err := Read(v); err != nil {
		t.Fatalf("default config does not parse: %v", err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if cfg.Logging.Components["scanner"] != "warn" {
		t.Errorf("components = %v", cfg.Logging.Components)
	}

	created, err = WriteDefault(path)
	if err != nil {
		t.Fatalf("second WriteDefault() error = %v", err)
	}
	if created {
		t.Error("WriteDefault() should not replace an existing file")
	}
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)

	tests := []struct {
		in   string
		want string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"/var/log", "/var/log"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCachePath(t *testing.T) {
	cfg := &Config{}
	if cfg.CachePath() != DigestCacheDir() {
		t.Errorf("CachePath() = %q, want %q", cfg.CachePath(), DigestCacheDir())
	}
	cfg.Cache.Path = "/tmp/digests"
	if cfg.CachePath() != "/tmp/digests" {
		t.Errorf("CachePath() = %q", cfg.CachePath())
	}
}
