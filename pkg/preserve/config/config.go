package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// PathsConfig sets how sources are laid out under the destination.
type PathsConfig struct {
	DefaultStyle string `mapstructure:"default_style"`
	IncludeBase  bool   `mapstructure:"include_base"`
}

// VerificationConfig sets the recorded digests.
type VerificationConfig struct {
	HashAlgorithms  []string `mapstructure:"hash_algorithms"`
	VerifyAfterCopy bool     `mapstructure:"verify_after_copy"`
}

// OperationsConfig holds copy and restore defaults.
type OperationsConfig struct {
	Overwrite      bool `mapstructure:"overwrite"`
	PreserveAttrs  bool `mapstructure:"preserve_attrs"`
	PreserveOwner  bool `mapstructure:"preserve_owner"`
	FollowSymlinks bool `mapstructure:"follow_symlinks"`
}

// CacheConfig configures the digest cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Path of the cache directory. Empty uses DigestCacheDir.
	Path string `mapstructure:"path"`
}

// Config represents the application configuration.
type Config struct {
	Paths        PathsConfig        `mapstructure:"paths"`
	Verification VerificationConfig `mapstructure:"verification"`
	Operations   OperationsConfig   `mapstructure:"operations"`
	Move         struct {
		UseTrash bool `mapstructure:"use_trash"`
	} `mapstructure:"move"`
	Link struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"link"`
	Workers int           `mapstructure:"workers"`
	Output  string        `mapstructure:"output"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.default_style", DefaultStyle)
	v.SetDefault("paths.include_base", false)
	v.SetDefault("verification.hash_algorithms", []string{DefaultHashAlgorithm})
	v.SetDefault("verification.verify_after_copy", true)
	v.SetDefault("operations.overwrite", false)
	v.SetDefault("operations.preserve_attrs", true)
	v.SetDefault("operations.preserve_owner", false)
	v.SetDefault("operations.follow_symlinks", false)
	v.SetDefault("move.use_trash", false)
	v.SetDefault("link.enabled", false)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "")

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", "") // empty means DefaultLogPath
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{})
}

// Prepare points v at the config file and environment. cfgFile, when set,
// replaces the search path.
//
// Search order:
//   - $XDG_CONFIG_HOME/preserve/config.yaml
//   - $HOME/.config/preserve/config.yaml
//
// Environment variables use the PRESERVE_ prefix with '.' and '-' mapped
// to '_', e.g. PRESERVE_VERIFICATION_VERIFY_AFTER_COPY=false.
func Prepare(v *viper.Viper, cfgFile string) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "preserve"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "preserve"))
		}
	}

	v.SetEnvPrefix("PRESERVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// Read loads the config file into v. A missing file is not an error.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	if cfg.Cache.Path, err = ExpandPath(cfg.Cache.Path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration from a fresh viper instance.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	Prepare(v, cfgFile)
	if err := Read(v); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks values that cannot be checked by type alone.
func (c *Config) Validate() error {
	if _, err := types.ParsePathStyle(c.Paths.DefaultStyle); err != nil {
		return fmt.Errorf("paths.default_style: %w", err)
	}
	if _, err := types.ParseHashAlgorithms(c.Verification.HashAlgorithms); err != nil {
		return fmt.Errorf("verification.hash_algorithms: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers: must not be negative, got %d", c.Workers)
	}
	return nil
}

// Preservation returns the path and digest options the config describes.
func (c *Config) Preservation() (types.PreservationOptions, error) {
	opts := types.DefaultOptions()
	style, err := types.ParsePathStyle(c.Paths.DefaultStyle)
	if err != nil {
		return opts, err
	}
	algs, err := types.ParseHashAlgorithms(c.Verification.HashAlgorithms)
	if err != nil {
		return opts, err
	}
	opts.Style = style
	opts.IncludeBase = c.Paths.IncludeBase
	if algs.Cardinality() > 0 {
		opts.HashAlgorithms = algs
	}
	return opts, nil
}

// CachePath returns the digest cache directory in use.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return DigestCacheDir()
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "preserve"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "preserve"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// WriteDefault writes a commented default config to path unless a file is
// already there. It reports whether a file was created.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to check config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	var components strings.Builder
	for _, name := range []string{"operation", "restore", "verify", "manifest", "scanner", "cache"} {
		fmt.Fprintf(&components, "    %s: %s\n", name, DefaultComponentLevels[name])
	}

	content := fmt.Sprintf(`# preserve configuration

paths:
  # relative, absolute or flat
  default_style: %s
  # keep the common base directory's name as the first destination segment
  include_base: false

verification:
  # any of MD5, SHA1, SHA256, SHA512, BLAKE3
  hash_algorithms:
    - %s
  verify_after_copy: true

operations:
  overwrite: false
  preserve_attrs: true
  preserve_owner: false
  follow_symlinks: false

move:
  # send moved sources to the desktop trash instead of deleting them
  use_trash: false

link:
  # write .preserve/links sidecars for every preserved file
  enabled: false

# worker count; 0 sizes pools from the CPU count
workers: %d

# auto, pretty, plain, json, yaml, tsv, csv, markdown, paths
output: %s

cache:
  enabled: true
  # empty means %s
  path: ""

logging:
  # debug, info, warn, error
  level: %s
  # empty means %s
  path: ""
  rotation:
    max_size: %s
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
%s`, DefaultStyle, DefaultHashAlgorithm, DefaultWorkers, DefaultOutput, DigestCacheDir(),
		DefaultLogLevel, DefaultLogPath(), DefaultLogMaxSize, components.String())

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// StateDir returns $XDG_STATE_HOME/preserve/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "preserve")
}

// CacheDir returns $XDG_CACHE_HOME/preserve/.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "preserve")
}

// DigestCacheDir returns the default badger directory of the digest cache.
func DigestCacheDir() string {
	return filepath.Join(CacheDir(), "digests")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "preserve.log")
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// EnsureCacheDir creates the cache directory if it doesn't exist.
func EnsureCacheDir() error {
	if err := os.MkdirAll(CacheDir(), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return nil
}
