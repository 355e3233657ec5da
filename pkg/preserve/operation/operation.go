// Package operation runs COPY and MOVE preservation operations: it maps
// sources into the destination, copies and hashes them with a bounded
// worker pool, and commits one manifest once every file is settled.
package operation

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
	"github.com/jamesainslie/preserve/pkg/preserve/fsops"
	"github.com/jamesainslie/preserve/pkg/preserve/link"
	"github.com/jamesainslie/preserve/pkg/preserve/logging"
	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
	"github.com/jamesainslie/preserve/pkg/preserve/pathmap"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
	"github.com/jamesainslie/preserve/pkg/preserve/verify"
)

// Status is the outcome for one source file.
type Status string

const (
	StatusCopied Status = "COPIED"

	// StatusMoved means the file was copied, recorded and its source
	// removed.
	StatusMoved Status = "MOVED"

	StatusSkipped      Status = "SKIPPED_EXISTS"
	StatusFailed       Status = "FAILED"
	StatusVerifyFailed Status = "VERIFY_FAILED"

	// StatusRemoveFailed means a moved file was preserved and recorded
	// but its source could not be removed.
	StatusRemoveFailed Status = "REMOVE_FAILED"

	// StatusPlanned is reported for every file of a dry run.
	StatusPlanned Status = "PLANNED"
)

// ProgressFunc is called after each file.
type ProgressFunc func(done, total int, path string)

// Options configures a run.
type Options struct {
	Operation    types.OperationType
	Preservation types.PreservationOptions

	// Dest is the destination root; the manifest is written there.
	Dest        string
	Description string

	// VerifyAfterCopy re-reads every copy and compares it with the digest
	// taken while copying.
	VerifyAfterCopy bool

	Overwrite     bool
	PreserveAttrs bool
	PreserveOwner bool
	DryRun        bool

	// UseTrash sends moved sources to the OS trash instead of unlinking.
	UseTrash bool

	// Link writes a sidecar per file under Dest/.preserve/links.
	Link bool

	Workers    int
	BufferSize int
	Progress   ProgressFunc
}

// FileResult is the outcome for one source.
type FileResult struct {
	Source  string         `json:"source"`
	Dest    string         `json:"dest,omitempty"`
	Status  Status         `json:"status"`
	Mapping pathmap.Status `json:"mapping,omitempty"`
	Size    int64          `json:"size,omitempty"`
	Hashes  types.Hashes   `json:"hashes,omitempty"`
	Error   string         `json:"error,omitempty"`

	record *types.FileRecord
}

// Report summarises a run.
type Report struct {
	Operation  types.OperationType `json:"operation"`
	Dest       string              `json:"dest"`
	DryRun     bool                `json:"dry_run,omitempty"`
	Base       string              `json:"base,omitempty"`
	Manifest   string              `json:"manifest,omitempty"`
	Sequence   int                 `json:"sequence,omitempty"`
	Files      []FileResult        `json:"files"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	Skipped    int                 `json:"skipped"`
	Fallbacks  int                 `json:"fallbacks,omitempty"`
	TotalBytes int64               `json:"total_bytes"`
	Unindexed  []string            `json:"unindexed,omitempty"`
}

// OK reports whether every file succeeded.
func (r *Report) OK() bool { return r.Failed == 0 }

// tally recomputes the counters from Files.
func (r *Report) tally() {
	r.Succeeded, r.Failed, r.Skipped, r.TotalBytes = 0, 0, 0, 0
	for _, f := range r.Files {
		switch f.Status {
		case StatusCopied, StatusMoved, StatusPlanned:
			r.Succeeded++
			r.TotalBytes += f.Size
		case StatusSkipped:
			r.Skipped++
		default:
			r.Failed++
		}
	}
}

// Engine runs operations.
type Engine struct {
	digester *digest.Digester
	log      *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDigester records digests through d so later verifications of
// unchanged files can skip hashing.
func WithDigester(d *digest.Digester) Option {
	return func(e *Engine) { e.digester = d }
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{log: logging.Get("operation")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run preserves sources into opts.Dest.
//
// Nothing is written to the manifest store until every file has been
// copied or has definitively failed. A cancelled run, or one that
// recorded no files, writes no manifest. For MOVE, sources are removed
// only after the manifest is committed.
//
// The returned error covers invalid options, cancellation and manifest
// write failures; per-file problems are in the report.
func (e *Engine) Run(ctx context.Context, sources []string, opts Options) (*Report, error) {
	if opts.Dest == "" {
		return nil, errors.New("destination is required")
	}
	if len(sources) == 0 {
		return nil, errors.New("no source files")
	}
	if opts.Operation == "" {
		opts.Operation = types.OpCopy
	}
	dest, err := filepath.Abs(opts.Dest)
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}

	abs := make([]string, len(sources))
	for i, src := range sources {
		if abs[i], err = filepath.Abs(src); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", src, err)
		}
	}

	plan := pathmap.MapAll(abs, opts.Preservation)
	report := &Report{
		Operation: opts.Operation,
		Dest:      dest,
		DryRun:    opts.DryRun,
		Fallbacks: plan.Fallbacks(),
		Files:     make([]FileResult, len(plan.Mappings)),
	}
	if plan.Base.Kind == pathmap.KindExact {
		report.Base = plan.Base.Path
	}
	if report.Fallbacks > 0 {
		e.log.Warn("no common base, using absolute layout", "files", report.Fallbacks)
	}

	if opts.DryRun {
		for i, mp := range plan.Mappings {
			report.Files[i] = planned(mp)
		}
		report.tally()
		return report, nil
	}

	store, err := manifest.New(dest)
	if err != nil {
		return nil, err
	}
	var linker link.Linker
	if opts.Link {
		linker = link.NewSidecars(dest)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, mp := range plan.Mappings {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Files[i] = e.copyOne(gctx, mp, dest, linker, opts)
			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(int(n), len(plan.Mappings), mp.Source)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	m := manifest.NewManifest(opts.Operation, opts.Preservation)
	m.Description = opts.Description
	if m.SourceBase == "" {
		m.SourceBase = report.Base
	}
	for _, f := range report.Files {
		if f.record != nil {
			m.Add(*f.record)
		}
	}

	if waitErr != nil {
		report.Unindexed = destinations(dest, m)
		e.logUnindexed("operation cancelled before the manifest was written", report.Unindexed)
		report.tally()
		return report, waitErr
	}

	if len(m.Files) == 0 {
		e.log.Info("no files recorded, manifest not written", "dest", dest)
		report.tally()
		return report, nil
	}

	seq, err := store.Append(ctx, m)
	if err != nil {
		report.Unindexed = destinations(dest, m)
		e.logUnindexed("manifest write failed", report.Unindexed, "error", err)
		report.tally()
		return report, err
	}
	report.Manifest = m.Path
	report.Sequence = seq

	if opts.Operation == types.OpMove {
		e.removeSources(ctx, report, opts.UseTrash)
	}

	report.tally()
	e.log.Info("operation complete",
		"operation", opts.Operation,
		"dest", dest,
		"manifest", seq,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

// planned describes what a dry run would do with mp.
func planned(mp pathmap.Mapping) FileResult {
	fr := FileResult{Source: mp.Source, Dest: mp.Dest, Mapping: mp.Status, Status: StatusPlanned}
	if mp.Status == pathmap.StatusFailed {
		return fail(fr, StatusFailed, mp.Err)
	}
	if info, err := os.Stat(mp.Source); err == nil {
		fr.Size = info.Size()
	}
	return fr
}

// copyOne copies a single mapping, verifies the copy when asked and
// builds its manifest record.
func (e *Engine) copyOne(ctx context.Context, mp pathmap.Mapping, dest string, linker link.Linker, opts Options) FileResult {
	fr := FileResult{Source: mp.Source, Dest: mp.Dest, Mapping: mp.Status}
	if mp.Status == pathmap.StatusFailed {
		return fail(fr, StatusFailed, mp.Err)
	}

	target := filepath.Join(dest, filepath.FromSlash(mp.Dest))
	algs := opts.Preservation.Algorithms()

	res, err := fsops.CopyFile(ctx, mp.Source, target, fsops.CopyOptions{
		Algorithms:    algs,
		Overwrite:     opts.Overwrite,
		PreserveAttrs: opts.PreserveAttrs,
		PreserveOwner: opts.PreserveOwner,
		BufferSize:    opts.BufferSize,
	})
	switch {
	case errors.Is(err, fsops.ErrExists):
		fr.Status = StatusSkipped
		e.log.Debug("destination exists, skipped", "dest", target)
		return fr
	case err != nil:
		return fail(fr, StatusFailed, err)
	}
	fr.Size = res.Size
	fr.Hashes = res.Hashes

	if opts.VerifyAfterCopy {
		check := verify.New(nil).Verify(ctx, res.Hashes, target)
		if check.Status != verify.StatusVerified {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				e.log.Warn("removing unverified copy failed", "dest", target, "error", err)
			}
			verr := check.Err()
			if verr == nil {
				verr = fmt.Errorf("copy of %s could not be verified: %s", mp.Source, check.Status)
			}
			return fail(fr, StatusVerifyFailed, verr)
		}
	}

	if info, err := os.Stat(mp.Source); err == nil {
		e.digester.Remember(mp.Source, info, res.Hashes)
	}
	if info, err := os.Stat(target); err == nil {
		e.digester.Remember(target, info, res.Hashes)
	}

	rec := types.FileRecord{
		SourcePath:      mp.Source,
		DestinationPath: mp.Dest,
		Size:            res.Size,
		Hashes:          res.Hashes,
		ModifiedTime:    res.Attributes.ModTime,
		Attributes:      res.Attributes,
	}
	if linker != nil {
		if handle, err := linker.Create(mp.Source, mp.Dest); err != nil {
			e.log.Warn("creating link failed", "source", mp.Source, "error", err)
		} else {
			rec.LinkHandle = handle
		}
	}

	fr.Status = StatusCopied
	fr.record = &rec
	return fr
}

// removeSources deletes the sources of recorded files after a MOVE.
func (e *Engine) removeSources(ctx context.Context, report *Report, useTrash bool) {
	for i := range report.Files {
		f := &report.Files[i]
		if f.record == nil {
			continue
		}
		if err := fsops.RemoveSource(ctx, f.Source, useTrash); err != nil {
			e.log.Warn("source kept after move", "source", f.Source, "error", err)
			*f = fail(*f, StatusRemoveFailed, err)
			continue
		}
		f.Status = StatusMoved
	}
}

// fail marks fr with status and err.
func fail(fr FileResult, status Status, err error) FileResult {
	fr.Status = status
	if err != nil {
		fr.Error = err.Error()
	}
	return fr
}

// destinations lists the absolute destination of every record in m.
func destinations(root string, m *manifest.Manifest) []string {
	out := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		out = append(out, manifest.DestPath(root, f))
	}
	return out
}

// logUnindexed logs copies that exist on disk but are in no manifest.
func (e *Engine) logUnindexed(msg string, files []string, keyvals ...interface{}) {
	if len(files) == 0 {
		return
	}
	kv := append([]interface{}{"files", len(files)}, keyvals...)
	e.log.Error(msg+"; copied files are not indexed", kv...)
	for _, f := range files {
		e.log.Error("unindexed file", "path", f)
	}
}
