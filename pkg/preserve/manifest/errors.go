package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLocked is returned when another process holds the manifest lock.
var ErrLocked = errors.New("manifest directory is locked by another process")

// NotFoundError reports a failed manifest selection.
type NotFoundError struct {
	Dir  string
	Path string

	// Number is set when a specific sequence number was requested.
	Number    int
	HasNumber bool

	// Min, Max, and Count describe the manifests that do exist.
	Min, Max int
	Count    int
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("manifest not found: %s", e.Path)
	case e.Count == 0:
		return fmt.Sprintf("no manifests found in %s", e.Dir)
	case e.HasNumber:
		return fmt.Sprintf("manifest %d not found in %s (available: %d-%d)", e.Number, e.Dir, e.Min, e.Max)
	}
	return fmt.Sprintf("manifest not found in %s", e.Dir)
}

// AmbiguousError reports two files claiming the same sequence number.
// Append never produces this; it needs hand-made files.
type AmbiguousError struct {
	Number int
	Names  []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("manifest number %d is ambiguous: %s", e.Number, strings.Join(e.Names, ", "))
}

// WriteError reports that a manifest could not be persisted.
type WriteError struct {
	Dir string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing manifest to %s: %v", e.Dir, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// UnsupportedVersionError reports a manifest_version this build cannot read.
type UnsupportedVersionError struct {
	Path    string
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unsupported manifest version %s", e.Version)
	}
	return fmt.Sprintf("unsupported manifest version %s in %s", e.Version, e.Path)
}
