package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/preserve/pkg/preserve/config"
	"github.com/jamesainslie/preserve/pkg/preserve/filter"
	"github.com/jamesainslie/preserve/pkg/preserve/logging"
)

// defaultMaxLogSize applies when logging.rotation.max_size is empty or
// cannot be parsed.
const defaultMaxLogSize = 10 * 1024 * 1024

// logConfig is the configuration logging was last initialized with.
var logConfig logging.Config

// initializeLogging is the PersistentPreRunE hook. It creates the config,
// state and cache directories and opens the log file.
func initializeLogging(_ *cobra.Command, _ []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if err := config.EnsureStateDir(); err != nil {
		return err
	}
	if err := config.EnsureCacheDir(); err != nil {
		return err
	}

	// Only the logging section is decoded here so that a broken setting
	// elsewhere can still be fixed with "preserve config edit".
	var lc config.LoggingConfig
	if err := viper.UnmarshalKey("logging", &lc); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	path, err := config.ExpandPath(lc.Path)
	if err != nil {
		return err
	}
	if lc.Level == "" {
		lc.Level = config.DefaultLogLevel
	}

	console := "error"
	switch {
	case getQuiet():
		console = ""
	case getVerbose():
		console = "debug"
	}

	logConfig = logging.Config{
		Level:        lc.Level,
		Path:         path,
		Rotation:     parseRotationConfig(lc.Rotation),
		Components:   lc.Components,
		ConsoleLevel: console,
	}
	if err := logging.Init(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

// initTUILogging silences console logging while the progress view owns the
// terminal.
func initTUILogging() error {
	cfg := logConfig
	cfg.TUIMode = true
	return logging.Init(cfg)
}

// restoreConsoleLogging undoes initTUILogging.
func restoreConsoleLogging() {
	if err := logging.Init(logConfig); err != nil {
		printVerbose("re-enabling console logging failed: %v", err)
	}
}

// parseRotationConfig converts the config file form into the logging form.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	maxSize := int64(defaultMaxLogSize)
	if rc.MaxSize != "" {
		if n, err := filter.ParseSize(rc.MaxSize); err == nil && n > 0 {
			maxSize = n
		}
	}
	return logging.RotationConfig{
		MaxSize:    maxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
}
