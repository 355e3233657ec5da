// Package logging provides component loggers for preserve, backed by
// charmbracelet/log and a rotating log file.
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logging.Get("manifest").Info("appended", "sequence", 3)
//
// Loggers obtained before Init discard everything.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "unknown"
}

// charm maps a Level onto charmbracelet/log.
func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	}
	return log.InfoLevel
}

// ErrInvalidLevel is returned for an unrecognised level name.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a level name. An empty name means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
}

// Config configures the logging system.
type Config struct {
	// Level is the default file log level.
	Level string

	// Path is the log file. Empty uses DefaultLogPath().
	Path string

	Rotation RotationConfig

	// Components overrides the level per component name.
	Components map[string]string

	// ConsoleLevel mirrors records at or above this level to stderr.
	// Empty disables console output.
	ConsoleLevel string

	// TUIMode silences the console while a progress view owns the terminal.
	TUIMode bool
}

// Logger is a component logger writing to the log file and, optionally,
// to stderr.
type Logger struct {
	sinks atomic.Pointer[sinks]
}

type sinks struct {
	file    *log.Logger
	console *log.Logger
}

// newFromSinks returns a Logger writing to s.
func newFromSinks(s *sinks) *Logger {
	l := &Logger{}
	l.sinks.Store(s)
	return l
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.emit(LevelDebug, msg, keyvals) }
func (l *Logger) Info(msg string, keyvals ...interface{})  { l.emit(LevelInfo, msg, keyvals) }
func (l *Logger) Warn(msg string, keyvals ...interface{})  { l.emit(LevelWarn, msg, keyvals) }
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.emit(LevelError, msg, keyvals) }

// emit writes to the file sink and, when set, the console.
func (l *Logger) emit(level Level, msg string, keyvals []interface{}) {
	s := l.sinks.Load()
	s.file.Log(level.charm(), msg, keyvals...)
	if s.console != nil {
		s.console.Log(level.charm(), msg, keyvals...)
	}
}

// With returns a logger that adds keyvals to every record. The returned
// logger is not rebuilt by a later Init.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	s := l.sinks.Load()
	out := &sinks{file: s.file.With(keyvals...)}
	if s.console != nil {
		out.console = s.console.With(keyvals...)
	}
	return newFromSinks(out)
}

type state struct {
	mu          sync.RWMutex
	initialized bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	console     bool
	consoleLvl  Level
	loggers     map[string]*Logger
}

var global = &state{
	components: make(map[string]Level),
	loggers:    make(map[string]*Logger),
}

// Init configures the package. Calling it again replaces the previous
// configuration and rebuilds every logger handed out so far.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	var consoleLvl Level
	console := cfg.ConsoleLevel != "" && !cfg.TUIMode
	if console {
		if consoleLvl, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if global.writer != nil {
		_ = global.writer.Close()
	}
	global.writer = writer
	global.level = level
	global.components = components
	global.console = console
	global.consoleLvl = consoleLvl
	global.initialized = true

	for comp, logger := range global.loggers {
		logger.sinks.Store(newSinks(comp))
	}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	global.mu.RLock()
	logger, ok := global.loggers[component]
	global.mu.RUnlock()
	if ok {
		return logger
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if logger, ok := global.loggers[component]; ok {
		return logger
	}
	logger = newFromSinks(newSinks(component))
	global.loggers[component] = logger
	return logger
}

// newSinks must be called with global.mu held.
func newSinks(component string) *sinks {
	level := global.level
	if lvl, ok := global.components[component]; ok {
		level = lvl
	}

	if !global.initialized {
		return &sinks{file: log.NewWithOptions(io.Discard, log.Options{Prefix: component})}
	}

	s := &sinks{
		file: log.NewWithOptions(global.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
	}
	if global.console {
		s.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           global.consoleLvl.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			Prefix:          component,
		})
	}
	return s
}

// Close flushes the log file. Loggers keep working but discard output
// until Init is called again.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.initialized {
		return nil
	}
	global.initialized = false

	var err error
	if global.writer != nil {
		err = global.writer.Close()
		global.writer = nil
	}
	for comp, logger := range global.loggers {
		logger.sinks.Store(newSinks(comp))
	}
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/preserve/preserve.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "preserve", "preserve.log")
}

// DefaultConfig returns info level logging to DefaultLogPath.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
