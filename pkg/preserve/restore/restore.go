// Package restore copies preserved files back to where they came from.
//
// Each record is handled on its own: a missing or damaged file is
// reported and the rest of the manifest is still processed.
package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/preserve/pkg/preserve/digest"
	"github.com/jamesainslie/preserve/pkg/preserve/filter"
	"github.com/jamesainslie/preserve/pkg/preserve/fsops"
	"github.com/jamesainslie/preserve/pkg/preserve/link"
	"github.com/jamesainslie/preserve/pkg/preserve/logging"
	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
	"github.com/jamesainslie/preserve/pkg/preserve/pathmap"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
	"github.com/jamesainslie/preserve/pkg/preserve/verify"
)

// Outcome is what happened to one record.
type Outcome string

const (
	OutcomeRestored         Outcome = "RESTORED"
	OutcomeSkippedExists    Outcome = "SKIPPED_EXISTS"
	OutcomeVerifiedMismatch Outcome = "VERIFIED_MISMATCH"
	OutcomeNotFound         Outcome = "NOT_FOUND"

	// OutcomeFallbackRestored means the file was restored from a copy
	// found by searching the destination tree.
	OutcomeFallbackRestored Outcome = "FALLBACK_RESTORED"

	OutcomeIOError Outcome = "IO_ERROR"
)

// NotFoundError is reported for a record whose preserved copy could not
// be found, even by searching.
type NotFoundError struct {
	Path       string
	Record     string
	Candidates int
}

func (e *NotFoundError) Error() string {
	if e.Candidates > 0 {
		return fmt.Sprintf("preserved file not found: %s (%d same-named candidates did not match)", e.Path, e.Candidates)
	}
	return fmt.Sprintf("preserved file not found: %s", e.Path)
}

// ProgressFunc is called after each record.
type ProgressFunc func(done, total int, path string)

// Options controls a restore run.
type Options struct {
	// Root holds the preserved files. Empty means the manifest's directory.
	Root string

	// Overwrite replaces files that already exist at the target.
	Overwrite bool

	// Verify checks the preserved copy against the record, and the
	// current file at the target if there is one, before copying.
	Verify bool

	DryRun        bool
	PreserveAttrs bool
	PreserveOwner bool

	// AlternateRoot re-roots every target under this directory.
	AlternateRoot string

	// Select limits the run to records whose source or destination path
	// matches.
	Select *filter.Filter

	Workers  int
	Progress ProgressFunc
}

// Result is the outcome for one record.
type Result struct {
	// Target is where the file was (or would be) written.
	Target string `json:"target"`

	// From is the preserved copy that was used.
	From string `json:"from,omitempty"`

	Outcome    Outcome               `json:"outcome"`
	Category   verify.Category       `json:"category,omitempty"`
	Mismatched []types.HashAlgorithm `json:"mismatched,omitempty"`
	Expected   types.Hashes          `json:"expected,omitempty"`
	Error      string                `json:"error,omitempty"`

	Err error `json:"-"`
}

// Report collects every result of a run.
type Report struct {
	Manifest string   `json:"manifest"`
	Sequence int      `json:"sequence"`
	DryRun   bool     `json:"dry_run,omitempty"`
	Results  []Result `json:"results"`

	Restored         int `json:"restored"`
	FallbackRestored int `json:"fallback_restored"`
	Skipped          int `json:"skipped"`
	Mismatched       int `json:"mismatched"`
	NotFound         int `json:"not_found"`
	IOErrors         int `json:"io_errors"`

	// Filtered counts records left out by Options.Select.
	Filtered int `json:"filtered,omitempty"`
}

// OK reports whether no record failed.
func (r *Report) OK() bool {
	return r.Mismatched == 0 && r.NotFound == 0 && r.IOErrors == 0
}

// tally counts the outcomes in Results.
func (r *Report) tally() {
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeRestored:
			r.Restored++
		case OutcomeFallbackRestored:
			r.FallbackRestored++
		case OutcomeSkippedExists:
			r.Skipped++
		case OutcomeVerifiedMismatch:
			r.Mismatched++
		case OutcomeNotFound:
			r.NotFound++
		case OutcomeIOError:
			r.IOErrors++
		}
	}
}

// Restorer restores manifests.
type Restorer struct {
	digester *digest.Digester
	verifier *verify.Verifier
	linker   link.Linker
	log      *logging.Logger
}

// Option configures a Restorer.
type Option func(*Restorer)

// WithDigester hashes through d. Restore always reads the files it checks;
// a cache behind d is only refreshed.
func WithDigester(d *digest.Digester) Option {
	return func(r *Restorer) { r.digester = d }
}

// WithLinker resolves sources of records that do not carry one.
func WithLinker(l link.Linker) Option {
	return func(r *Restorer) { r.linker = l }
}

// New returns a Restorer.
func New(opts ...Option) *Restorer {
	r := &Restorer{log: logging.Get("restore")}
	for _, opt := range opts {
		opt(r)
	}
	r.verifier = verify.New(r.digester)
	return r
}

// Restore processes every selected record of m. The returned error is
// only set when the run was cancelled; per-record failures are in the
// report.
func (r *Restorer) Restore(ctx context.Context, m *manifest.Manifest, opts Options) (*Report, error) {
	root := opts.Root
	if root == "" && m.Path != "" {
		root = filepath.Dir(m.Path)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	report := &Report{Manifest: m.Path, Sequence: m.Sequence, DryRun: opts.DryRun}

	type job struct {
		rec    types.FileRecord
		target string
		err    error
	}
	var jobs []job
	for _, rec := range m.Files {
		target, err := r.target(m, rec, opts.AlternateRoot)
		if !opts.Select.Empty() && !opts.Select.MatchAny(target, rec.SourcePath, rec.DestinationPath) {
			report.Filtered++
			continue
		}
		jobs = append(jobs, job{rec: rec, target: target, err: err})
	}

	report.Results = make([]Result, len(jobs))
	find := newFinder(root)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if j.err != nil {
				report.Results[i] = failed(Result{Target: j.target}, OutcomeIOError, j.err)
			} else {
				report.Results[i] = r.restoreOne(gctx, j.rec, root, j.target, find, opts)
			}
			res := report.Results[i]
			if res.Err != nil {
				r.log.Warn("restore failed", "target", res.Target, "outcome", res.Outcome, "error", res.Err)
			}
			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(int(n), len(jobs), j.target)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.tally()
	r.log.Info("restore finished",
		"manifest", m.Path,
		"dry_run", opts.DryRun,
		"restored", report.Restored+report.FallbackRestored,
		"skipped", report.Skipped,
		"not_found", report.NotFound,
		"mismatched", report.Mismatched,
		"errors", report.IOErrors,
	)
	return report, nil
}

// target works out where rec goes back to: the linked or recorded source,
// or its inverse mapping, re-rooted under altRoot when one is given.
func (r *Restorer) target(m *manifest.Manifest, rec types.FileRecord, altRoot string) (string, error) {
	src, err := link.Source(r.linker, rec)
	if err != nil {
		src, err = pathmap.Inverse(rec.DestinationPath, m.Style, m.SourceBase, m.IncludeBase)
		if err != nil {
			return "", fmt.Errorf("no source path for %s: %w", rec.DestinationPath, err)
		}
	}
	if altRoot != "" {
		return pathmap.Reroot(src, altRoot), nil
	}
	// A path recorded on another platform, such as C:\a\x.txt on a unix
	// host, would otherwise land relative to the working directory.
	if !filepath.IsAbs(src) {
		return src, fmt.Errorf("source path %s is not absolute on this system; restore to an alternate root instead", src)
	}
	return filepath.Clean(src), nil
}

// restoreOne restores one record. It finds the live copy, falling back to
// a search, then applies the existing-target, verification and copy steps
// in that order.
func (r *Restorer) restoreOne(ctx context.Context, rec types.FileRecord, root, target string, find *finder, opts Options) Result {
	res := Result{Target: target}

	live := manifest.DestPath(root, rec)
	fellBack := false
	if info, err := os.Stat(live); err != nil || !info.Mode().IsRegular() {
		found, n, ferr := find.find(ctx, r.verifier, rec)
		switch {
		case ferr != nil:
			return failed(res, OutcomeIOError, fmt.Errorf("searching %s: %w", root, ferr))
		case found == "":
			return failed(res, OutcomeNotFound, &NotFoundError{Path: live, Record: rec.DestinationPath, Candidates: n})
		}
		r.log.Info("using fallback copy", "recorded", live, "found", found)
		live, fellBack = found, true
	}
	res.From = live

	targetExists := fsops.Exists(target)
	if targetExists && !opts.Overwrite {
		res.Outcome = OutcomeSkippedExists
		return res
	}

	if opts.Verify {
		current := ""
		if targetExists {
			current = target
		}
		c := r.verifier.ThreeWay(ctx, rec.Hashes, current, live)
		res.Category = c.Category
		switch c.Dest.Status {
		case verify.StatusFailed:
			res.Mismatched = c.Dest.Mismatched
			res.Expected = rec.Hashes
			return failed(res, OutcomeVerifiedMismatch, &verify.HashMismatchError{
				Path:       live,
				Algorithms: c.Dest.Mismatched,
				Expected:   rec.Hashes,
				Actual:     c.Dest.Actual,
			})
		case verify.StatusError, verify.StatusNotFound:
			return failed(res, OutcomeIOError, c.Dest.Err)
		}
	}

	res.Outcome = OutcomeRestored
	if fellBack {
		res.Outcome = OutcomeFallbackRestored
	}
	if opts.DryRun {
		return res
	}

	cr, err := fsops.CopyFile(ctx, live, target, fsops.CopyOptions{
		Algorithms:    hashable(rec.Hashes),
		Overwrite:     opts.Overwrite,
		PreserveAttrs: opts.PreserveAttrs,
		PreserveOwner: opts.PreserveOwner,
	})
	switch {
	case errors.Is(err, fsops.ErrExists):
		res.Outcome = OutcomeSkippedExists
		return res
	case err != nil:
		return failed(res, OutcomeIOError, err)
	}

	if opts.PreserveAttrs && rec.Attributes != nil {
		if err := fsops.Apply(target, rec.Attributes, opts.PreserveOwner); err != nil {
			r.log.Warn("restoring recorded metadata failed", "target", target, "error", err)
		}
	}

	if opts.Verify {
		if bad := verify.Compare(rec.Hashes, cr.Hashes); len(bad) > 0 {
			res.Mismatched = bad
			res.Expected = rec.Hashes
			return failed(res, OutcomeVerifiedMismatch, &verify.HashMismatchError{
				Path: target, Algorithms: bad, Expected: rec.Hashes, Actual: cr.Hashes,
			})
		}
	}
	r.log.Debug("restored", "from", live, "to", target)
	return res
}

// failed sets the outcome and error of res.
func failed(res Result, outcome Outcome, err error) Result {
	res.Outcome = outcome
	res.Err = err
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// hashable returns the recorded algorithms this build can compute.
func hashable(h types.Hashes) []types.HashAlgorithm {
	var out []types.HashAlgorithm
	for _, alg := range h.Algorithms() {
		if _, err := digest.New(alg); err == nil {
			out = append(out, alg)
		}
	}
	if len(out) == 0 {
		out = []types.HashAlgorithm{types.SHA256}
	}
	return out
}
