// Package pathmap maps absolute source paths to destination-relative paths
// under a preservation style, and back again.
//
// Paths are parsed without consulting the host OS, so Windows drive paths,
// UNC shares, and POSIX paths are all handled on every platform. Destination
// paths are always returned slash separated; convert them with
// filepath.FromSlash before touching the filesystem.
package pathmap

import (
	"fmt"
	"strings"
)

// Kind classifies the outcome of common base resolution.
type Kind int

const (
	// KindNone means the paths span incompatible roots, such as two drives.
	KindNone Kind = iota

	// KindRootOnly means only the filesystem root or drive is shared.
	KindRootOnly

	// KindExact means a non-root common ancestor directory exists.
	KindExact
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "EXACT"
	case KindRootOnly:
		return "ROOT_ONLY"
	default:
		return "NONE"
	}
}

// CommonBase is the result of Resolve. Path is only set for KindExact.
type CommonBase struct {
	Kind Kind
	Path string
}

// parsedPath is a platform-neutral view of a path.
type parsedPath struct {
	// windows is set for drive and UNC paths.
	windows bool

	// rooted is false for relative input.
	rooted bool

	// volume holds the top-level destination segments standing in for
	// the drive or share: ["C"] or ["UNC", "server", "share"].
	volume []string

	segments []string
}

// parse splits p into its volume and cleaned segments, recognising drive
// letters and UNC shares regardless of the host.
func parse(p string) parsedPath {
	var pp parsedPath
	rest := p

	switch {
	case len(p) >= 2 && p[1] == ':' && isLetter(p[0]):
		pp.windows = true
		pp.rooted = true
		pp.volume = []string{strings.ToUpper(p[:1])}
		rest = p[2:]
	case strings.HasPrefix(p, `\\`):
		pp.windows = true
		pp.rooted = true
		parts := splitAll(p[2:])
		pp.volume = []string{"UNC"}
		for i := 0; i < 2 && len(parts) > 0; i++ {
			pp.volume = append(pp.volume, parts[0])
			parts = parts[1:]
		}
		pp.segments = clean(parts)
		return pp
	case strings.HasPrefix(p, "/"):
		pp.rooted = true
	}

	if pp.windows {
		pp.segments = clean(splitAll(rest))
	} else {
		pp.segments = clean(strings.Split(rest, "/"))
	}
	return pp
}

// isLetter reports an ASCII letter.
func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// splitAll splits on both separators.
func splitAll(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' })
}

// clean drops empty and "." segments and resolves "..", never climbing
// above the root.
func clean(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return out
}

// sameVolume reports whether a and b live under the same root.
func (pp parsedPath) sameVolume(o parsedPath) bool {
	if pp.windows != o.windows || pp.rooted != o.rooted || len(pp.volume) != len(o.volume) {
		return false
	}
	for i := range pp.volume {
		if !strings.EqualFold(pp.volume[i], o.volume[i]) {
			return false
		}
	}
	return true
}

// segmentEqual compares segments case-insensitively on Windows volumes.
func (pp parsedPath) segmentEqual(a, b string) bool {
	if pp.windows {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// render formats the first n segments back into a path in the style of the
// original input.
func (pp parsedPath) render(n int) string {
	segs := pp.segments[:n]
	if !pp.windows {
		joined := strings.Join(segs, "/")
		if pp.rooted {
			return "/" + joined
		}
		return joined
	}
	var head string
	if pp.volume[0] == "UNC" {
		head = `\\` + strings.Join(pp.volume[1:], `\`) + `\`
	} else {
		head = pp.volume[0] + `:\`
	}
	return head + strings.Join(segs, `\`)
}

// dir returns the parent directory segments of the path.
func (pp parsedPath) dir() []string {
	if len(pp.segments) == 0 {
		return nil
	}
	return pp.segments[:len(pp.segments)-1]
}

// Normalize returns p cleaned in its own path convention.
func Normalize(p string) string {
	pp := parse(p)
	return pp.render(len(pp.segments))
}

// Resolve computes the deepest directory shared by the parent directories
// of all paths. It compares whole segments only.
func Resolve(paths []string) CommonBase {
	if len(paths) == 0 {
		return CommonBase{Kind: KindNone}
	}

	first := parse(paths[0])
	prefix := first.dir()

	for _, p := range paths[1:] {
		pp := parse(p)
		if !first.sameVolume(pp) {
			return CommonBase{Kind: KindNone}
		}
		d := pp.dir()
		n := 0
		for n < len(prefix) && n < len(d) && first.segmentEqual(prefix[n], d[n]) {
			n++
		}
		prefix = prefix[:n]
	}

	if !first.rooted {
		return CommonBase{Kind: KindNone}
	}
	if len(prefix) == 0 {
		return CommonBase{Kind: KindRootOnly}
	}
	return CommonBase{Kind: KindExact, Path: first.render(len(prefix))}
}

// ResolutionError reports that a relative mapping could not be computed
// for Path. The mapper recovers from it by falling back to absolute layout.
type ResolutionError struct {
	Path   string
	Kind   Kind
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve relative path for %s (%s): %s", e.Path, e.Kind, e.Reason)
}
