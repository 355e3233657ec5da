// Package scanner collects the source files of an operation from the
// paths given on the command line, walking directories in parallel with
// fastwalk.
package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/preserve/pkg/preserve/filter"
	"github.com/jamesainslie/preserve/pkg/preserve/logging"
)

// ErrNoSources is returned when nothing was given to collect.
var ErrNoSources = errors.New("no source paths given")

// Options controls collection.
type Options struct {
	// Recursive descends into subdirectories. Without it a directory
	// contributes only the files directly inside it.
	Recursive bool

	// MaxDepth limits recursion; 0 means unlimited.
	MaxDepth int

	FollowSymlinks bool

	// Filter selects files. Nil keeps everything.
	Filter *filter.Filter

	// SkipDirs are never entered, typically the destination directory.
	SkipDirs []string

	// ExcludePaths are files or directories left out together with
	// everything below them.
	ExcludePaths []string

	// OnFile is called for every collected file. It must be safe to call
	// from multiple goroutines.
	OnFile func(path string)
}

// Error is a path that could not be read during collection.
type Error struct {
	Path string
	Err  error
}

func (e Error) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

// Result is the outcome of a collection.
type Result struct {
	// Files are absolute, cleaned and sorted without duplicates.
	Files []string

	// Filtered counts files dropped by the filter.
	Filtered int64

	Errors []Error
}

type collector struct {
	opts     Options
	skip     map[string]struct{}
	excluded map[string]struct{}
	log      *logging.Logger
	mu       sync.Mutex
	files    map[string]struct{}
	errs     []Error
	filtered atomic.Int64
}

// Collect gathers regular files from paths. Unreadable entries are
// recorded in the result and do not stop the walk; a path that does not
// exist at all is an error.
func Collect(ctx context.Context, paths []string, opts Options) (*Result, error) {
	if len(paths) == 0 {
		return nil, ErrNoSources
	}

	c := &collector{
		opts:  opts,
		skip:     make(map[string]struct{}, len(opts.SkipDirs)),
		excluded: make(map[string]struct{}, len(opts.ExcludePaths)),
		log:      logging.Get("scanner"),
		files:    make(map[string]struct{}),
	}
	for _, d := range opts.SkipDirs {
		if abs, err := filepath.Abs(d); err == nil {
			c.skip[abs] = struct{}{}
		}
	}
	for _, p := range opts.ExcludePaths {
		if abs, err := filepath.Abs(p); err == nil {
			c.excluded[abs] = struct{}{}
		}
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		if c.isExcluded(abs) {
			c.filtered.Add(1)
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", p, err)
		}
		if !info.IsDir() {
			c.consider(abs, info)
			continue
		}
		if err := c.walk(ctx, abs); err != nil {
			return nil, err
		}
	}

	res := &Result{Filtered: c.filtered.Load(), Errors: c.errs}
	res.Files = make([]string, 0, len(c.files))
	for f := range c.files {
		res.Files = append(res.Files, f)
	}
	sort.Strings(res.Files)
	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].Path < res.Errors[j].Path })

	c.log.Debug("sources collected", "files", len(res.Files), "filtered", res.Filtered, "errors", len(res.Errors))
	return res, nil
}

// walk collects the files below root, honouring recursion and depth.
func (c *collector) walk(ctx context.Context, root string) error {
	maxDepth := c.opts.MaxDepth
	if !c.opts.Recursive {
		maxDepth = 1
	}

	conf := fastwalk.Config{Follow: c.opts.FollowSymlinks}
	err := fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			c.addError(p, err)
			return nil
		}

		if d.IsDir() {
			if p == root {
				return nil
			}
			if _, skip := c.skip[p]; skip {
				return fastwalk.SkipDir
			}
			if _, skip := c.excluded[p]; skip {
				return fastwalk.SkipDir
			}
			if maxDepth > 0 && depth(root, p) >= maxDepth {
				return fastwalk.SkipDir
			}
			return nil
		}

		if maxDepth > 0 && depth(root, p) > maxDepth {
			return nil
		}

		switch {
		case d.Type().IsRegular():
		case d.Type()&fs.ModeSymlink != 0 && c.opts.FollowSymlinks:
		default:
			return nil
		}
		info, err := os.Stat(p)
		if err != nil {
			c.addError(p, err)
			return nil
		}
		c.consider(p, info)
		return nil
	})
	if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
		return err
	}
	return nil
}

// depth counts the segments of p below root.
func depth(root, p string) int {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// isExcluded reports whether p or one of its parents is an excluded path.
func (c *collector) isExcluded(p string) bool {
	if len(c.excluded) == 0 {
		return false
	}
	for {
		if _, ok := c.excluded[p]; ok {
			return true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		p = parent
	}
}

// consider adds a regular file that passes the exclusions and the filter.
func (c *collector) consider(p string, info os.FileInfo) {
	if !info.Mode().IsRegular() {
		return
	}
	if c.isExcluded(filepath.Clean(p)) {
		c.filtered.Add(1)
		return
	}
	if !c.opts.Filter.Match(filter.FromOS(p, info)) {
		c.filtered.Add(1)
		return
	}
	p = filepath.Clean(p)

	c.mu.Lock()
	_, seen := c.files[p]
	c.files[p] = struct{}{}
	c.mu.Unlock()

	if !seen && c.opts.OnFile != nil {
		c.opts.OnFile(p)
	}
}

// addError records an unreadable path and keeps going.
func (c *collector) addError(p string, err error) {
	c.log.Warn("cannot read source", "path", p, "error", err)
	c.mu.Lock()
	c.errs = append(c.errs, Error{Path: p, Err: err})
	c.mu.Unlock()
}

// LoadList reads one path per line. Blank lines and lines starting with
// '#' are ignored; relative entries are taken relative to the list file.
func LoadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	base := filepath.Dir(path)
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
