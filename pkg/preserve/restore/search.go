package restore

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
	"github.com/jamesainslie/preserve/pkg/preserve/verify"
)

// finder locates preserved files that are no longer at their recorded
// path. The destination tree is walked once, on the first miss.
type finder struct {
	root string

	once   sync.Once
	err    error
	byName map[string][]string // base name -> slash-separated relative paths
}

// newFinder returns a finder over root. Nothing is walked until the first
// lookup.
func newFinder(root string) *finder {
	return &finder{root: root}
}

// build walks root once and indexes every regular file by base name.
// Later calls return the error of the first walk.
func (f *finder) build() error {
	f.once.Do(func() {
		f.byName = make(map[string][]string)
		var mu sync.Mutex

		conf := fastwalk.Config{Follow: false}
		err := fastwalk.Walk(&conf, f.root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			rel, relErr := filepath.Rel(f.root, p)
			if relErr != nil || rel == "." {
				return nil
			}
			if d.IsDir() {
				if rel == manifest.StateDir {
					return fastwalk.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || skipFile(rel) {
				return nil
			}

			rel = filepath.ToSlash(rel)
			mu.Lock()
			f.byName[path.Base(rel)] = append(f.byName[path.Base(rel)], rel)
			mu.Unlock()
			return nil
		})
		if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
			f.err = err
		}
	})
	return f.err
}

// skipFile excludes manifests and leftovers of interrupted writes at the
// top of the tree.
func skipFile(rel string) bool {
	name := filepath.Base(rel)
	if strings.HasPrefix(name, ".preserve-") || strings.HasPrefix(name, ".preserve_manifest-") {
		return true
	}
	if filepath.Dir(rel) != "." {
		return false
	}
	_, _, ok := manifest.ParseName(name)
	return ok
}

type candidate struct {
	rel    string
	suffix int
	depth  int
}

// rank orders candidates for rec: the longest shared trailing path wins,
// then the shallowest, then the lexically smallest.
func (f *finder) rank(rec types.FileRecord) []candidate {
	want := strings.Split(strings.TrimPrefix(filepath.ToSlash(rec.DestinationPath), "/"), "/")
	name := want[len(want)-1]

	var out []candidate
	for _, rel := range f.byName[name] {
		if rel == strings.Join(want, "/") {
			continue
		}
		segs := strings.Split(rel, "/")
		out = append(out, candidate{
			rel:    rel,
			suffix: sharedSuffix(segs, want),
			depth:  len(segs),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.suffix != b.suffix {
			return a.suffix > b.suffix
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.rel < b.rel
	})
	return out
}

// sharedSuffix counts the trailing segments a and b have in common.
func sharedSuffix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}

// find returns the best candidate whose content matches the recorded
// digests. Records without digests accept the best ranked name match.
func (f *finder) find(ctx context.Context, v *verify.Verifier, rec types.FileRecord) (string, int, error) {
	if err := f.build(); err != nil {
		return "", 0, err
	}

	cands := f.rank(rec)
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return "", len(cands), err
		}
		p := filepath.Join(f.root, filepath.FromSlash(c.rel))
		if len(rec.Hashes) == 0 {
			return p, len(cands), nil
		}
		if res := v.Verify(ctx, rec.Hashes, p); res.Status == verify.StatusVerified {
			return p, len(cands), nil
		}
	}
	return "", len(cands), nil
}
