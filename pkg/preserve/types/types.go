// Package types provides the core data types shared by the preserve packages.
// It includes preservation styles, operation kinds, hash algorithms, the
// per-file record written into manifests, and the options that drive a run.
package types

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
)

// PathStyle selects how a source path is laid out under the destination.
type PathStyle string

const (
	// StyleRelative strips the common base directory from each source path.
	StyleRelative PathStyle = "REL"

	// StyleAbsolute mirrors the full source path, with the drive or volume
	// rewritten as a top-level directory.
	StyleAbsolute PathStyle = "ABS"

	// StyleFlat keeps only the base name of each file.
	StyleFlat PathStyle = "FLAT"
)

// ErrInvalidPathStyle is returned when a path style cannot be parsed.
var ErrInvalidPathStyle = errors.New("invalid path style")

// ParsePathStyle parses a style name. Both the short manifest form
// ("REL") and the long config form ("relative") are accepted.
func ParsePathStyle(s string) (PathStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rel", "relative":
		return StyleRelative, nil
	case "abs", "absolute":
		return StyleAbsolute, nil
	case "flat":
		return StyleFlat, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPathStyle, s)
}

// String returns the long, lowercase name used in config and CLI output.
func (s PathStyle) String() string {
	switch s {
	case StyleRelative:
		return "relative"
	case StyleAbsolute:
		return "absolute"
	case StyleFlat:
		return "flat"
	}
	return string(s)
}

// OperationType is the kind of preservation run recorded in a manifest.
type OperationType string

const (
	OpCopy OperationType = "COPY"
	OpMove OperationType = "MOVE"
)

// HashAlgorithm names a digest algorithm. The value is the key used in
// manifest hash maps.
type HashAlgorithm string

const (
	MD5    HashAlgorithm = "MD5"
	SHA1   HashAlgorithm = "SHA1"
	SHA256 HashAlgorithm = "SHA256"
	SHA512 HashAlgorithm = "SHA512"
	BLAKE3 HashAlgorithm = "BLAKE3"
)

// ErrUnknownAlgorithm is returned for unsupported hash algorithm names.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// AllAlgorithms lists every supported algorithm in canonical order.
func AllAlgorithms() []HashAlgorithm {
	return []HashAlgorithm{MD5, SHA1, SHA256, SHA512, BLAKE3}
}

// ParseHashAlgorithm parses an algorithm name case-insensitively.
// "SHA-256" style names with a dash are accepted as well.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	for _, alg := range AllAlgorithms() {
		if string(alg) == norm {
			return alg, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// ParseHashAlgorithms parses a list of names into a set.
func ParseHashAlgorithms(names []string) (mapset.Set[HashAlgorithm], error) {
	set := mapset.NewThreadUnsafeSet[HashAlgorithm]()
	for _, name := range names {
		alg, err := ParseHashAlgorithm(name)
		if err != nil {
			return nil, err
		}
		set.Add(alg)
	}
	return set, nil
}

// SortedAlgorithms returns the members of set in canonical order.
func SortedAlgorithms(set mapset.Set[HashAlgorithm]) []HashAlgorithm {
	if set == nil {
		return nil
	}
	var out []HashAlgorithm
	for _, alg := range AllAlgorithms() {
		if set.Contains(alg) {
			out = append(out, alg)
		}
	}
	return out
}

// Hashes maps an algorithm to its lowercase hex digest.
type Hashes map[HashAlgorithm]string

// Algorithms returns the algorithms present in h, sorted by name.
func (h Hashes) Algorithms() []HashAlgorithm {
	algs := make([]HashAlgorithm, 0, len(h))
	for alg := range h {
		algs = append(algs, alg)
	}
	sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })
	return algs
}

// Equal reports whether both maps carry the same digests. Hex comparison
// is case-insensitive.
func (h Hashes) Equal(other Hashes) bool {
	if len(h) != len(other) {
		return false
	}
	for alg, v := range h {
		if !strings.EqualFold(v, other[alg]) {
			return false
		}
	}
	return true
}

// Attributes is the OS metadata captured for a preserved file.
type Attributes struct {
	// Mode holds the permission bits.
	Mode os.FileMode `json:"mode"`

	// ModTime and AccessTime are re-applied after copying.
	ModTime    time.Time `json:"mtime"`
	AccessTime time.Time `json:"atime,omitempty"`

	// CreateTime is informational; most platforms cannot set it.
	CreateTime time.Time `json:"ctime,omitempty"`

	// UID and GID are recorded on unix systems only.
	UID *int `json:"uid,omitempty"`
	GID *int `json:"gid,omitempty"`
}

// FileRecord describes one preserved file.
type FileRecord struct {
	// SourcePath is the absolute, cleaned original location.
	SourcePath string `json:"-"`

	// DestinationPath is relative to the manifest root, slash separated.
	DestinationPath string `json:"destination_path"`

	Size         int64       `json:"size"`
	Hashes       Hashes      `json:"hashes"`
	ModifiedTime time.Time   `json:"modified_time"`
	Attributes   *Attributes `json:"attributes,omitempty"`

	// LinkHandle is set when a link sidecar was created for the file.
	LinkHandle string `json:"link,omitempty"`
}

// PreservationOptions configures how a batch of source paths is mapped.
// It is built once per operation and not modified afterwards.
type PreservationOptions struct {
	Style PathStyle

	// IncludeBase keeps the final segment of the common base as the
	// leading destination directory.
	IncludeBase bool

	// SourceBase overrides common base inference when non-empty.
	SourceBase string

	// HashAlgorithms is the set of digests recorded for every file.
	HashAlgorithms mapset.Set[HashAlgorithm]
}

// DefaultOptions returns relative style with SHA256 only.
func DefaultOptions() PreservationOptions {
	return PreservationOptions{
		Style:          StyleRelative,
		HashAlgorithms: mapset.NewThreadUnsafeSet(SHA256),
	}
}

// Algorithms returns the configured algorithms in canonical order,
// defaulting to SHA256 when none are set.
func (o PreservationOptions) Algorithms() []HashAlgorithm {
	algs := SortedAlgorithms(o.HashAlgorithms)
	if len(algs) == 0 {
		return []HashAlgorithm{SHA256}
	}
	return algs
}

// FormatSize formats bytes using binary (IEC) units.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}
