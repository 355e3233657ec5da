// Package output renders command results (operation, restore and verify
// reports, manifest listings) in the formats selected with --output
// (pretty, plain, json, yaml, tsv and friends).
//
// Every report is first turned into a Result, a small tabular view with
// header fields, rows and a summary. Structured formatters (json, yaml)
// encode the original report carried in Result.Payload instead, so
// scripts see every field.
//
// Basic usage:
//
//	f, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := f.Format(&buf, output.FromVerify(report)); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/jamesainslie/preserve/pkg/preserve/logging"
)

// logger is the package-level logger for output operations.
var logger = logging.Get("output")

// Level classifies a row for styling and exit status.
type Level int

const (
	// LevelNone is neutral information.
	LevelNone Level = iota

	// LevelOK marks a row that succeeded.
	LevelOK

	// LevelWarn marks a row that needs attention but is not a failure.
	LevelWarn

	// LevelError marks a failed row.
	LevelError
)

// Field is a labelled value shown in headers and summaries.
type Field struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Row is one line of the result table.
type Row struct {
	// Path is the primary path of the row, used by the paths formatters.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Cells line up with Result.Columns.
	Cells []string `json:"cells" yaml:"cells"`

	Level Level `json:"-" yaml:"-"`
}

// Result is the formatter-neutral view of a command's outcome.
type Result struct {
	// Title names the kind of result, e.g. "verify" or "manifests".
	Title string `json:"title" yaml:"title"`

	// Meta is shown above the table.
	Meta []Field `json:"meta,omitempty" yaml:"meta,omitempty"`

	Columns []string `json:"columns" yaml:"columns"`
	Rows    []Row    `json:"rows" yaml:"rows"`

	// Summary is shown below the table.
	Summary []Field `json:"summary,omitempty" yaml:"summary,omitempty"`

	// Warnings are printed after the summary.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// Payload is the report the view was built from. JSON and YAML
	// encode it in place of the view when set.
	Payload any `json:"-" yaml:"-"`
}

// Failed counts rows at LevelError.
func (r *Result) Failed() int {
	n := 0
	for _, row := range r.Rows {
		if row.Level == LevelError {
			n++
		}
	}
	return n
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	// It returns an error if formatting fails.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
// It returns an error if the formatter is not found.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown output format: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// Render formats r with the named formatter and writes it to w.
func Render(w io.Writer, format string, r *Result) error {
	f, err := Get(format)
	if err != nil {
		return err
	}
	return Write(w, f, r)
}

// Write formats r with f and writes the result to w in one call.
func Write(w io.Writer, f Formatter, r *Result) error {
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		logger.Error("formatting failed", "title", r.Title, "error", err)
		return fmt.Errorf("format %s: %w", r.Title, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
