// Package filter selects files by glob pattern, extension, size and age.
// It decides which sources an operation collects and which records a
// selective restore touches.
package filter

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// FileInfo is what a Filter looks at.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FromOS builds a FileInfo from a stat result.
func FromOS(p string, info os.FileInfo) FileInfo {
	return FileInfo{Path: p, Size: info.Size(), ModTime: info.ModTime()}
}

// Filter holds the selection criteria. The zero value matches everything.
type Filter struct {
	Include    []string
	Exclude    []string
	Extensions []string

	// Regex keeps files whose full path matches at least one expression.
	Regex []string

	MinSize    int64
	MaxSize    int64

	// NewerThan keeps files modified within this duration.
	NewerThan time.Duration

	// OlderThan keeps files modified before this duration ago.
	OlderThan time.Duration

	include []glob.Glob
	exclude []glob.Glob
	regex   []*regexp.Regexp
	now     func() time.Time
}

// Option configures a Filter.
type Option func(*Filter)

// New builds a Filter and compiles its patterns.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{now: time.Now}
	for _, opt := range opts {
		opt(f)
	}

	var err error
	if f.include, err = compile(f.Include); err != nil {
		return nil, err
	}
	if f.exclude, err = compile(f.Exclude); err != nil {
		return nil, err
	}
	for _, expr := range f.Regex {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", expr, err)
		}
		f.regex = append(f.regex, re)
	}
	return f, nil
}

// WithInclude keeps only files matching at least one pattern.
func WithInclude(patterns ...string) Option {
	return func(f *Filter) { f.Include = append(f.Include, patterns...) }
}

// WithExclude drops files matching any pattern.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) { f.Exclude = append(f.Exclude, patterns...) }
}

// WithExtensions keeps only the given extensions. A leading dot is added
// when missing and case is ignored.
func WithExtensions(exts ...string) Option {
	return func(f *Filter) {
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			f.Extensions = append(f.Extensions, ext)
		}
	}
}

// WithRegex keeps only files whose path matches one of exprs. Expressions
// are unanchored, so `\.log$` selects every log file.
func WithRegex(exprs ...string) Option {
	return func(f *Filter) { f.Regex = append(f.Regex, exprs...) }
}

// WithSizeRange bounds file size. Zero leaves a bound open.
func WithSizeRange(minSize, maxSize int64) Option {
	return func(f *Filter) {
		f.MinSize = max(minSize, 0)
		f.MaxSize = max(maxSize, 0)
	}
}

// WithNewerThan keeps files modified within d.
func WithNewerThan(d time.Duration) Option {
	return func(f *Filter) { f.NewerThan = d }
}

// WithOlderThan keeps files last modified more than d ago.
func WithOlderThan(d time.Duration) Option {
	return func(f *Filter) { f.OlderThan = d }
}

// compile turns glob patterns into matchers that treat '/' as separator.
func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(filepath.ToSlash(p), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Empty reports whether the filter has no criteria.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.include) == 0 && len(f.exclude) == 0 && len(f.Extensions) == 0 && len(f.regex) == 0 &&
		f.MinSize == 0 && f.MaxSize == 0 && f.NewerThan == 0 && f.OlderThan == 0)
}

// Match reports whether fi passes every criterion. A nil Filter matches
// everything.
func (f *Filter) Match(fi FileInfo) bool {
	if f == nil {
		return true
	}
	return f.matchSize(fi) && f.matchExtension(fi.Path) && f.matchAge(fi) && f.matchRegex(fi.Path) && f.MatchPath(fi.Path)
}

// MatchPath applies only the include and exclude patterns. Patterns are
// tried against the slash-separated path and against its base name.
func (f *Filter) MatchPath(p string) bool {
	if f == nil {
		return true
	}
	p = filepath.ToSlash(p)
	if anyMatch(f.exclude, p) {
		return false
	}
	return len(f.include) == 0 || anyMatch(f.include, p)
}

// MatchAny reports whether any of paths passes the pattern check.
func (f *Filter) MatchAny(paths ...string) bool {
	for _, p := range paths {
		if p != "" && f.MatchPath(p) {
			return true
		}
	}
	return false
}

// anyMatch tries every glob against the full path and its base name.
func anyMatch(globs []glob.Glob, p string) bool {
	base := path.Base(p)
	for _, g := range globs {
		if g.Match(p) || g.Match(base) {
			return true
		}
	}
	return false
}

// matchRegex tries the expressions against the slash-separated path.
func (f *Filter) matchRegex(p string) bool {
	if len(f.regex) == 0 {
		return true
	}
	p = filepath.ToSlash(p)
	for _, re := range f.regex {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// matchSize applies the size bounds.
func (f *Filter) matchSize(fi FileInfo) bool {
	if f.MinSize > 0 && fi.Size < f.MinSize {
		return false
	}
	return f.MaxSize <= 0 || fi.Size <= f.MaxSize
}

// matchExtension compares the lower-cased name against Extensions.
func (f *Filter) matchExtension(p string) bool {
	if len(f.Extensions) == 0 {
		return true
	}
	name := strings.ToLower(filepath.Base(p))
	for _, ext := range f.Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// matchAge applies NewerThan and OlderThan relative to now.
func (f *Filter) matchAge(fi FileInfo) bool {
	now := time.Now()
	if f.now != nil {
		now = f.now()
	}
	if f.NewerThan > 0 && fi.ModTime.Before(now.Add(-f.NewerThan)) {
		return false
	}
	if f.OlderThan > 0 && fi.ModTime.After(now.Add(-f.OlderThan)) {
		return false
	}
	return true
}
