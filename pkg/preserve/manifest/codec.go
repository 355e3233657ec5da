package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Schema versions:
// 1 - original layout: files keyed by id, absolute destination paths,
//     style and base kept in an operations list
// 2 - files keyed by source path, destination relative to the manifest
const SchemaVersion = 2

type documentV2 struct {
	Version     int                         `json:"manifest_version"`
	OperationID string                      `json:"operation_id,omitempty"`
	Operation   types.OperationType         `json:"operationType"`
	Style       types.PathStyle             `json:"pathStyle"`
	CreatedAt   time.Time                   `json:"createdAt"`
	Description string                      `json:"description,omitempty"`
	Options     optionsV2                   `json:"options"`
	Platform    *Platform                   `json:"platform,omitempty"`
	Files       map[string]types.FileRecord `json:"files"`
}

type optionsV2 struct {
	SourceBase     string                `json:"source_base,omitempty"`
	IncludeBase    bool                  `json:"include_base"`
	HashAlgorithms []types.HashAlgorithm `json:"hash_algorithms,omitempty"`
}

type documentV1 struct {
	CreatedAt  string            `json:"created_at"`
	Operations []operationV1     `json:"operations"`
	Files      map[string]fileV1 `json:"files"`
	Platform   map[string]any    `json:"platform"`
}

type operationV1 struct {
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Options   map[string]any `json:"options"`
}

type fileV1 struct {
	SourcePath      string            `json:"source_path"`
	DestinationPath string            `json:"destination_path"`
	Hashes          map[string]string `json:"hashes"`
	Size            int64             `json:"size"`
	ModifiedTime    any               `json:"modified_time"`
	Timestamps      struct {
		Modified float64 `json:"modified"`
	} `json:"timestamps"`
}

// Encode renders m in the current schema.
func Encode(m *Manifest) ([]byte, error) {
	doc := documentV2{
		Version:     SchemaVersion,
		OperationID: m.OperationID,
		Operation:   m.Operation,
		Style:       m.Style,
		CreatedAt:   m.CreatedAt.UTC(),
		Description: m.Description,
		Options: optionsV2{
			SourceBase:     m.SourceBase,
			IncludeBase:    m.IncludeBase,
			HashAlgorithms: m.Algorithms,
		},
		Files: make(map[string]types.FileRecord, len(m.Files)),
	}
	if m.Platform != (Platform{}) {
		p := m.Platform
		doc.Platform = &p
	}
	for _, f := range m.Files {
		if _, dup := doc.Files[f.SourcePath]; dup {
			return nil, fmt.Errorf("duplicate source path %q", f.SourcePath)
		}
		doc.Files[f.SourcePath] = f
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode reads any supported schema version. root is the directory the
// manifest lives in; version 1 destination paths under it are made
// relative.
func Decode(data []byte, root string) (*Manifest, error) {
	var head struct {
		Version json.RawMessage `json:"manifest_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	version := 1
	if raw := bytes.TrimSpace(head.Version); len(raw) > 0 && string(raw) != "null" {
		v, err := strconv.Atoi(strings.Trim(string(raw), `"`))
		if err != nil {
			return nil, &UnsupportedVersionError{Version: string(raw)}
		}
		version = v
	}

	switch version {
	case 1:
		return decodeV1(data, root)
	case 2:
		return decodeV2(data)
	}
	return nil, &UnsupportedVersionError{Version: strconv.Itoa(version)}
}

// decodeV2 reads the current layout, where files are keyed by source path.
func decodeV2(data []byte) (*Manifest, error) {
	var doc documentV2
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest v2: %w", err)
	}

	m := &Manifest{
		Version:     2,
		OperationID: doc.OperationID,
		Description: doc.Description,
		CreatedAt:   doc.CreatedAt,
		Operation:   doc.Operation,
		Style:       doc.Style,
		SourceBase:  doc.Options.SourceBase,
		IncludeBase: doc.Options.IncludeBase,
		Algorithms:  doc.Options.HashAlgorithms,
	}
	if doc.Platform != nil {
		m.Platform = *doc.Platform
	}
	for src, f := range doc.Files {
		f.SourcePath = src
		f.Hashes = normalizeHashes(f.Hashes)
		m.Files = append(m.Files, f)
	}
	sortFiles(m.Files)
	return m, nil
}

// decodeV1 converts the original tool's layout. Destination paths are made
// relative to root, hash names normalised and the first operation's options
// supply the path style.
func decodeV1(data []byte, root string) (*Manifest, error) {
	var doc documentV1
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest v1: %w", err)
	}

	m := &Manifest{
		Version:   1,
		CreatedAt: parseLooseTime(doc.CreatedAt),
		Operation: types.OpCopy,
		Style:     types.StyleRelative,
	}
	if sys, ok := doc.Platform["system"].(string); ok {
		m.Platform.OS = strings.ToLower(sys)
	}
	if mach, ok := doc.Platform["machine"].(string); ok {
		m.Platform.Arch = mach
	}

	if len(doc.Operations) > 0 {
		op := doc.Operations[0]
		if strings.EqualFold(op.Type, string(types.OpMove)) {
			m.Operation = types.OpMove
		}
		if s, ok := op.Options["path_style"].(string); ok {
			if style, err := types.ParsePathStyle(s); err == nil {
				m.Style = style
			}
		}
		if b, ok := op.Options["include_base"].(bool); ok {
			m.IncludeBase = b
		}
		// source_base is null when the original ran without a search path.
		if base, ok := op.Options["source_base"].(string); ok && base != "" {
			m.SourceBase = base
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = parseLooseTime(op.Timestamp)
		}
	}

	algs := map[types.HashAlgorithm]bool{}
	for _, f := range doc.Files {
		rec := types.FileRecord{
			SourcePath:      f.SourcePath,
			DestinationPath: relativize(f.DestinationPath, root),
			Size:            f.Size,
			Hashes:          make(types.Hashes, len(f.Hashes)),
		}
		for name, v := range f.Hashes {
			alg := types.HashAlgorithm(strings.ToUpper(name))
			if parsed, err := types.ParseHashAlgorithm(name); err == nil {
				alg = parsed
			}
			rec.Hashes[alg] = strings.ToLower(v)
			algs[alg] = true
		}
		switch mt := f.ModifiedTime.(type) {
		case string:
			rec.ModifiedTime = parseLooseTime(mt)
		case float64:
			rec.ModifiedTime = unixFloat(mt)
		}
		if rec.ModifiedTime.IsZero() && f.Timestamps.Modified > 0 {
			rec.ModifiedTime = unixFloat(f.Timestamps.Modified)
		}
		m.Files = append(m.Files, rec)
	}
	for _, alg := range types.AllAlgorithms() {
		if algs[alg] {
			m.Algorithms = append(m.Algorithms, alg)
		}
	}
	sortFiles(m.Files)
	return m, nil
}

// relativize turns an absolute destination under root into a slash
// separated relative path. Paths outside root stay absolute.
func relativize(dest, root string) string {
	if dest == "" || !filepath.IsAbs(dest) || root == "" {
		return filepath.ToSlash(dest)
	}
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return dest
	}
	return filepath.ToSlash(rel)
}

// normalizeHashes canonicalises algorithm names and lower-cases digests.
func normalizeHashes(h types.Hashes) types.Hashes {
	out := make(types.Hashes, len(h))
	for alg, v := range h {
		if parsed, err := types.ParseHashAlgorithm(string(alg)); err == nil {
			alg = parsed
		}
		out[alg] = strings.ToLower(v)
	}
	return out
}

// sortFiles orders records by destination path.
func sortFiles(files []types.FileRecord) {
	sort.Slice(files, func(i, j int) bool { return files[i].SourcePath < files[j].SourcePath })
}

var looseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseLooseTime accepts RFC 3339 and zone-less ISO timestamps, the
// latter read as local time. Unparsable input yields the zero time.
func parseLooseTime(s string) time.Time {
	for _, layout := range looseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// unixFloat converts fractional Unix seconds.
func unixFloat(f float64) time.Time {
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9))
}
