package pathmap

import (
	"path/filepath"
	"strings"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Inverse rebuilds a source path from a destination-relative path. It is
// only needed when a record carries no source path.
//
// Absolute layouts are read back using the host convention: on Windows a
// single-letter first segment is a drive and "UNC" starts a share.
func Inverse(dest string, style types.PathStyle, sourceBase string, includeBase bool) (string, error) {
	return inverse(dest, style, sourceBase, includeBase, filepath.Separator == '\\')
}

// inverse undoes Map for one style. windows selects the separator
// convention of the rebuilt path.
func inverse(dest string, style types.PathStyle, sourceBase string, includeBase, windows bool) (string, error) {
	segs := clean(splitAll(dest))
	if len(segs) == 0 {
		return "", &ResolutionError{Path: dest, Kind: KindNone, Reason: "empty destination path"}
	}

	switch style {
	case types.StyleFlat:
		return "", &ResolutionError{Path: dest, Kind: KindNone, Reason: "flat layout keeps no directory information"}
	case types.StyleAbsolute:
		return fromAbsolute(segs, windows), nil
	}

	if sourceBase == "" {
		return "", &ResolutionError{Path: dest, Kind: KindNone, Reason: "manifest records no source base"}
	}
	if includeBase {
		if len(segs) < 2 {
			return "", &ResolutionError{Path: dest, Kind: KindNone, Reason: "missing base directory segment"}
		}
		segs = segs[1:]
	}
	bp := parse(sourceBase)
	bp.segments = append(append([]string(nil), bp.segments...), segs...)
	return bp.render(len(bp.segments)), nil
}

// fromAbsolute rebuilds an absolute path from ABSOLUTE-style segments,
// where a leading drive letter or UNC marker stands for the volume.
func fromAbsolute(segs []string, windows bool) string {
	if !windows {
		return "/" + strings.Join(segs, "/")
	}
	if len(segs) >= 3 && segs[0] == "UNC" {
		return `\\` + strings.Join(segs[1:], `\`)
	}
	if len(segs[0]) == 1 && isLetter(segs[0][0]) {
		return strings.ToUpper(segs[0]) + `:\` + strings.Join(segs[1:], `\`)
	}
	return `\` + strings.Join(segs, `\`)
}
