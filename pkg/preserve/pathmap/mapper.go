package pathmap

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// ErrNoFileName is returned when a path has no final segment to map.
var ErrNoFileName = errors.New("path has no file name")

// Status tells how a mapping was produced.
type Status string

const (
	// StatusMapped is a mapping in the requested style.
	StatusMapped Status = "MAPPED"

	// StatusFallbackAbsolute marks a relative mapping that fell back to
	// the absolute layout because no usable common base existed.
	StatusFallbackAbsolute Status = "FALLBACK_ABSOLUTE"

	// StatusDisambiguated marks a destination renamed to avoid a collision
	// with an earlier file in the same operation.
	StatusDisambiguated Status = "DISAMBIGUATED"

	// StatusFailed means no destination could be computed.
	StatusFailed Status = "FAILED"
)

// Mapping is the destination chosen for one source path.
type Mapping struct {
	Source string
	Dest   string
	Status Status

	// Err holds the *ResolutionError behind a fallback, or the failure
	// when Status is StatusFailed.
	Err error
}

// Plan is the result of mapping a batch of sources.
type Plan struct {
	Base     CommonBase
	Mappings []Mapping
}

// Fallbacks counts mappings that fell back to the absolute layout.
func (p Plan) Fallbacks() int {
	n := 0
	for _, m := range p.Mappings {
		if m.Status == StatusFallbackAbsolute {
			n++
		}
	}
	return n
}

// Map computes the destination-relative path for a single source. It is a
// pure function of its arguments. For relative style, base must come from
// Resolve unless opts.SourceBase is set.
//
// When a relative mapping is impossible, Map returns the absolute layout
// together with a *ResolutionError.
func Map(source string, opts types.PreservationOptions, base CommonBase) (string, error) {
	pp := parse(source)
	if len(pp.segments) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoFileName, source)
	}

	switch opts.Style {
	case types.StyleFlat:
		return pp.segments[len(pp.segments)-1], nil
	case types.StyleAbsolute:
		return absolute(pp), nil
	}

	var bp parsedPath
	switch {
	case opts.SourceBase != "":
		bp = parse(opts.SourceBase)
		if !bp.rooted || len(bp.segments) == 0 {
			return absolute(pp), &ResolutionError{Path: source, Kind: KindRootOnly, Reason: "source base is a filesystem root"}
		}
	case base.Kind != KindExact:
		return absolute(pp), &ResolutionError{Path: source, Kind: base.Kind, Reason: "no common base directory"}
	default:
		bp = parse(base.Path)
	}

	rel, ok := strip(pp, bp)
	if !ok {
		return absolute(pp), &ResolutionError{Path: source, Kind: KindNone, Reason: "outside base " + bp.render(len(bp.segments))}
	}
	if opts.IncludeBase {
		rel = append([]string{bp.segments[len(bp.segments)-1]}, rel...)
	}
	return strings.Join(rel, "/"), nil
}

// absolute lays out the full path with the volume as leading segments.
func absolute(pp parsedPath) string {
	segs := make([]string, 0, len(pp.volume)+len(pp.segments))
	segs = append(segs, pp.volume...)
	segs = append(segs, pp.segments...)
	return strings.Join(segs, "/")
}

// strip removes base from the front of pp. It fails when pp is not
// strictly below base.
func strip(pp, base parsedPath) ([]string, bool) {
	if !pp.sameVolume(base) || len(pp.segments) <= len(base.segments) {
		return nil, false
	}
	for i, seg := range base.segments {
		if !pp.segmentEqual(seg, pp.segments[i]) {
			return nil, false
		}
	}
	return append([]string(nil), pp.segments[len(base.segments):]...), true
}

// MapAll maps every source. Sources are processed in lexical order so the
// plan does not depend on the order in which they were collected. Two
// sources never share a destination: later ones get a numeric suffix
// (name_1.ext, name_2.ext, ...).
func MapAll(sources []string, opts types.PreservationOptions) Plan {
	sorted := append([]string(nil), sources...)
	sort.Strings(sorted)

	var plan Plan
	if opts.Style == types.StyleRelative && opts.SourceBase == "" {
		plan.Base = Resolve(sorted)
	}

	used := make(map[string]struct{}, len(sorted))
	var prev string
	for i, src := range sorted {
		if i > 0 && src == prev {
			continue
		}
		prev = src

		m := Mapping{Source: src, Status: StatusMapped}
		dest, err := Map(src, opts, plan.Base)
		var resErr *ResolutionError
		switch {
		case errors.As(err, &resErr):
			m.Status = StatusFallbackAbsolute
			m.Err = err
		case err != nil:
			m.Status = StatusFailed
			m.Err = err
			plan.Mappings = append(plan.Mappings, m)
			continue
		}

		key := strings.ToLower(dest)
		if _, taken := used[key]; taken {
			for n := 1; ; n++ {
				candidate := withSuffix(dest, n)
				if _, taken := used[strings.ToLower(candidate)]; !taken {
					dest, key = candidate, strings.ToLower(candidate)
					break
				}
			}
			if m.Status == StatusMapped {
				m.Status = StatusDisambiguated
			}
		}
		used[key] = struct{}{}
		m.Dest = dest
		plan.Mappings = append(plan.Mappings, m)
	}
	return plan
}

// withSuffix inserts _n before the extension of dest.
func withSuffix(dest string, n int) string {
	dir, file := path.Split(dest)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if stem == "" {
		stem, ext = file, ""
	}
	return fmt.Sprintf("%s%s_%d%s", dir, stem, n, ext)
}

// Reroot places the absolute layout of source under root. It is used when
// restoring to an alternate location.
func Reroot(source, root string) string {
	return filepath.Join(root, filepath.FromSlash(absolute(parse(source))))
}
