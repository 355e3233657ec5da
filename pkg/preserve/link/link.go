// Package link records where each preserved file came from in small
// sidecar files beside the destination tree. Operations write them when
// asked to and restore falls back to them when a record lacks a source.
package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Dir is the sidecar directory under a destination's state directory.
const Dir = ".preserve/links"

// Ext is appended to the destination path to name a sidecar.
const Ext = ".link.json"

// ErrNotFound is returned when a handle has no sidecar.
var ErrNotFound = errors.New("link not found")

// Linker creates and resolves links between a preserved file and its
// original location.
type Linker interface {
	// Create links source to the destination-relative path dest and
	// returns a handle that can be stored in a record.
	Create(source, dest string) (string, error)

	// Resolve returns the source path a handle points to.
	Resolve(handle string) (string, error)
}

// record is the on-disk sidecar.
type record struct {
	SourcePath      string    `json:"source_path"`
	DestinationPath string    `json:"destination_path"`
	CreatedAt       time.Time `json:"created_at"`
}

// Sidecars stores links as JSON files under <root>/.preserve/links.
type Sidecars struct {
	root string
}

// NewSidecars returns a Linker rooted at a destination directory.
func NewSidecars(root string) *Sidecars {
	return &Sidecars{root: root}
}

// HandleFor returns the handle Create would return for dest.
func HandleFor(dest string) string {
	return path.Join(Dir, filepath.ToSlash(dest)) + Ext
}

// Create writes the sidecar for dest, replacing any earlier one.
func (s *Sidecars) Create(source, dest string) (string, error) {
	if source == "" || dest == "" {
		return "", errors.New("link needs a source and a destination")
	}
	handle := HandleFor(dest)
	p, err := s.path(handle)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(record{
		SourcePath:      source,
		DestinationPath: filepath.ToSlash(dest),
		CreatedAt:       time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create link directory: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write link: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write link: %w", err)
	}
	return handle, nil
}

// Resolve reads the sidecar behind handle.
func (s *Sidecars) Resolve(handle string) (string, error) {
	p, err := s.path(handle)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	if err != nil {
		return "", err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("parse link %s: %w", handle, err)
	}
	if rec.SourcePath == "" {
		return "", fmt.Errorf("link %s has no source path", handle)
	}
	return rec.SourcePath, nil
}

// path maps a handle to a file, refusing handles that escape the sidecar
// directory.
func (s *Sidecars) path(handle string) (string, error) {
	clean := path.Clean(handle)
	if !strings.HasPrefix(clean, Dir+"/") || !strings.HasSuffix(clean, Ext) {
		return "", fmt.Errorf("invalid link handle %q", handle)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Source returns the original location of rec, consulting l when the
// record does not carry one. A nil Linker only uses the record.
func Source(l Linker, rec types.FileRecord) (string, error) {
	if rec.SourcePath != "" {
		return rec.SourcePath, nil
	}
	if l == nil {
		return "", ErrNotFound
	}
	handle := rec.LinkHandle
	if handle == "" {
		handle = HandleFor(rec.DestinationPath)
	}
	return l.Resolve(handle)
}
