package manifest

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Manifest is one recorded preservation operation.
type Manifest struct {
	// Sequence comes from the file name; 0 is the legacy unnumbered file.
	Sequence int

	// Path is the file the manifest was read from or written to.
	Path string

	// Version is the schema version the manifest was decoded from.
	Version int

	OperationID string
	Description string
	CreatedAt   time.Time
	Operation   types.OperationType
	Style       types.PathStyle
	SourceBase  string
	IncludeBase bool
	Algorithms  []types.HashAlgorithm
	Platform    Platform

	// Files is ordered by source path.
	Files []types.FileRecord
}

// Platform identifies the machine that wrote a manifest.
type Platform struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname,omitempty"`
}

// CurrentPlatform describes the running process.
func CurrentPlatform() Platform {
	host, _ := os.Hostname()
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH, Hostname: host}
}

// NewManifest starts an empty manifest for an operation.
func NewManifest(op types.OperationType, opts types.PreservationOptions) *Manifest {
	return &Manifest{
		Version:     SchemaVersion,
		OperationID: uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Operation:   op,
		Style:       opts.Style,
		SourceBase:  opts.SourceBase,
		IncludeBase: opts.IncludeBase,
		Algorithms:  opts.Algorithms(),
		Platform:    CurrentPlatform(),
	}
}

// Add appends records and keeps Files ordered by source path.
func (m *Manifest) Add(records ...types.FileRecord) {
	m.Files = append(m.Files, records...)
	sort.SliceStable(m.Files, func(i, j int) bool {
		return m.Files[i].SourcePath < m.Files[j].SourcePath
	})
}

// TotalBytes sums the recorded file sizes.
func (m *Manifest) TotalBytes() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Size
	}
	return n
}

// DestPath returns where rec lives under root. Absolute destinations,
// which only version 1 manifests carry, are returned unchanged.
func DestPath(root string, rec types.FileRecord) string {
	dest := filepath.FromSlash(rec.DestinationPath)
	if filepath.IsAbs(dest) {
		return dest
	}
	return filepath.Join(root, dest)
}

// Summary is the listing view of a manifest.
type Summary struct {
	Number      int                 `json:"number"`
	Legacy      bool                `json:"legacy,omitempty"`
	Description string              `json:"description,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	Operation   types.OperationType `json:"operation"`
	Style       types.PathStyle     `json:"style"`
	FileCount   int                 `json:"file_count"`
	TotalBytes  int64               `json:"total_bytes"`
	Path        string              `json:"path"`
}

// summary condenses m for List.
func (m *Manifest) summary() Summary {
	return Summary{
		Number:      m.Sequence,
		Legacy:      m.Sequence == 0,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		Operation:   m.Operation,
		Style:       m.Style,
		FileCount:   len(m.Files),
		TotalBytes:  m.TotalBytes(),
		Path:        m.Path,
	}
}

// Criteria selects a manifest. Path wins over Number, Number over latest.
type Criteria struct {
	Path      string
	Number    int
	HasNumber bool
}

// Latest selects the highest numbered manifest.
func Latest() Criteria { return Criteria{} }

// ByNumber selects a manifest by sequence number.
func ByNumber(n int) Criteria { return Criteria{Number: n, HasNumber: true} }

// ByPath selects a manifest file directly.
func ByPath(p string) Criteria { return Criteria{Path: p} }
