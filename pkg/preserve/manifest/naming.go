package manifest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// LegacyName is the unnumbered manifest written by older tools.
	LegacyName = "preserve_manifest.json"

	// descSep separates the number from the description in a file name.
	descSep = "__"

	maxDescriptionLen = 64
)

var nameRE = regexp.MustCompile(`^preserve_manifest_(\d+)(?:__(.+))?\.json$`)

// FileName returns the stored name for a sequence number and description.
func FileName(seq int, description string) string {
	name := fmt.Sprintf("preserve_manifest_%03d", seq)
	if description != "" {
		name += descSep + description
	}
	return name + ".json"
}

// ParseName extracts the sequence number and description from a file name.
// The legacy name parses as sequence 0. Everything after the first "__" is
// description text, even if it contains "__" again.
func ParseName(name string) (seq int, description string, ok bool) {
	if name == LegacyName {
		return 0, "", true
	}
	m := nameRE.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	seq, err := strconv.Atoi(m[1])
	if err != nil || seq == 0 {
		return 0, "", false
	}
	return seq, m[2], true
}

// SanitizeDescription makes a user description safe for a file name.
// Runs of other characters collapse to a single '-'.
func SanitizeDescription(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-.")
	if len(out) > maxDescriptionLen {
		out = strings.TrimRight(out[:maxDescriptionLen], "-.")
	}
	return out
}
