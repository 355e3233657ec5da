package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/preserve/pkg/preserve/logging"
	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Check selects which copies a batch verification hashes.
type Check string

const (
	CheckDest   Check = "dest"
	CheckSource Check = "source"
	CheckBoth   Check = "both"

	// CheckAuto hashes the destination, and the source too when it exists.
	CheckAuto Check = "auto"
)

// ParseCheck parses a --check value. Empty means CheckDest.
func ParseCheck(s string) (Check, error) {
	switch c := Check(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CheckDest, nil
	case "destination", "dst":
		return CheckDest, nil
	case "src":
		return CheckSource, nil
	case CheckDest, CheckSource, CheckBoth, CheckAuto:
		return c, nil
	}
	return "", fmt.Errorf("invalid check mode %q (want dest, source, both or auto)", s)
}

// ProgressFunc is called after each file with the running count.
type ProgressFunc func(done, total int, path string)

// BatchOptions configures VerifyManifest.
type BatchOptions struct {
	// Root is the directory the manifest's destination paths are relative
	// to. Empty means the manifest's own directory.
	Root string

	Check Check

	// SourceRoot replaces each record's source path with the record's
	// destination path under this directory.
	SourceRoot string

	// AltSourceRoots are tried in order, joined with the record's
	// destination path, when the primary source does not exist.
	AltSourceRoots []string

	Workers  int
	Progress ProgressFunc
}

// FileReport is the verification of one manifest record.
type FileReport struct {
	SourcePath string                `json:"source_path"`
	DestPath   string                `json:"dest_path"`
	Status     Status                `json:"status"`
	Category   Category              `json:"category,omitempty"`
	Mismatched []types.HashAlgorithm `json:"mismatched,omitempty"`
	Expected   types.Hashes          `json:"expected,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Report is the outcome of verifying a whole manifest.
type Report struct {
	Manifest   string       `json:"manifest"`
	Sequence   int          `json:"sequence"`
	Check      Check        `json:"check"`
	Files      []FileReport `json:"files"`
	Verified   int          `json:"verified"`
	Failed     int          `json:"failed"`
	NotFound   int          `json:"not_found"`
	Errors     int          `json:"errors"`
	Unverified int          `json:"unverified"`
}

// OK reports whether every file verified.
func (r *Report) OK() bool {
	return r.Failed == 0 && r.NotFound == 0 && r.Errors == 0
}

// tally counts the statuses in Files.
func (r *Report) tally() {
	r.Verified, r.Failed, r.NotFound, r.Errors, r.Unverified = 0, 0, 0, 0, 0
	for _, f := range r.Files {
		switch f.Status {
		case StatusVerified:
			r.Verified++
		case StatusFailed:
			r.Failed++
		case StatusNotFound:
			r.NotFound++
		case StatusError:
			r.Errors++
		case StatusUnverified:
			r.Unverified++
		}
	}
}

// VerifyManifest checks every record of m in parallel. Per-file problems
// land in the report; only cancellation is returned as an error.
func (v *Verifier) VerifyManifest(ctx context.Context, m *manifest.Manifest, opts BatchOptions) (*Report, error) {
	log := logging.Get("verify")

	root := opts.Root
	if root == "" && m.Path != "" {
		root = filepath.Dir(m.Path)
	}
	check := opts.Check
	if check == "" {
		check = CheckDest
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	report := &Report{
		Manifest: m.Path,
		Sequence: m.Sequence,
		Check:    check,
		Files:    make([]FileReport, len(m.Files)),
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, rec := range m.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Files[i] = v.verifyRecord(gctx, rec, root, check, opts)
			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(int(n), len(m.Files), rec.SourcePath)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.tally()
	log.Info("manifest verified",
		"manifest", m.Path,
		"verified", report.Verified,
		"failed", report.Failed,
		"not_found", report.NotFound,
		"errors", report.Errors,
	)
	return report, nil
}

// verifyRecord checks one record according to check.
func (v *Verifier) verifyRecord(ctx context.Context, rec types.FileRecord, root string, check Check, opts BatchOptions) FileReport {
	dest := manifest.DestPath(root, rec)
	source := sourceFor(rec, opts)

	fr := FileReport{SourcePath: source, DestPath: dest}

	var res Result
	switch check {
	case CheckSource:
		res = v.Verify(ctx, rec.Hashes, source)
	case CheckBoth:
		res = v.Verify(ctx, rec.Hashes, source, dest)
		fr.Category = classifyResult(res)
	case CheckAuto:
		c := v.ThreeWay(ctx, rec.Hashes, source, dest)
		fr.Category = c.Category
		res = autoResult(c)
	default:
		res = v.Verify(ctx, rec.Hashes, dest)
	}

	fr.Status = res.Status
	fr.Mismatched = res.Mismatched
	if res.Status != StatusVerified {
		fr.Expected = rec.Hashes
	}
	if err := res.Err(); err != nil {
		fr.Error = err.Error()
	} else if res.Status == StatusNotFound {
		fr.Error = "file not found"
	}
	return fr
}

// sourceFor picks the original to hash for rec: the recorded path or its
// re-rooted form under SourceRoot, then the first alternate root holding
// the file. When none exists the primary path is kept so the report names
// it.
func sourceFor(rec types.FileRecord, opts BatchOptions) string {
	primary := rec.SourcePath
	if opts.SourceRoot != "" {
		primary = filepath.Join(opts.SourceRoot, filepath.FromSlash(rec.DestinationPath))
	}
	if len(opts.AltSourceRoots) == 0 || exists(primary) {
		return primary
	}
	for _, alt := range opts.AltSourceRoots {
		candidate := filepath.Join(alt, filepath.FromSlash(rec.DestinationPath))
		if exists(candidate) {
			return candidate
		}
	}
	return primary
}

// exists reports whether path is a regular file.
func exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// classifyResult derives the three-way category of a dual-target result.
func classifyResult(res Result) Category {
	if len(res.Targets) != 2 {
		return ""
	}
	src := res.Targets[0]
	return Classify(&src, res.Targets[1])
}

// autoResult folds a three-way classification into a plain result. An
// unreachable source is ignored; a modified one is a failure.
func autoResult(c Classification) Result {
	res := Result{Targets: []TargetResult{c.Dest}}
	if c.Source != nil && c.Source.Status != StatusNotFound {
		res.Targets = append([]TargetResult{*c.Source}, res.Targets...)
	}

	switch c.Category {
	case CategoryConsistent:
		res.Status = c.Dest.Status
	case CategoryDestMissing:
		res.Status = StatusNotFound
	case CategoryUnreadable:
		res.Status = StatusError
	default:
		res.Status = StatusFailed
	}

	seen := map[types.HashAlgorithm]bool{}
	for _, t := range res.Targets {
		for _, alg := range t.Mismatched {
			if !seen[alg] {
				seen[alg] = true
				res.Mismatched = append(res.Mismatched, alg)
			}
		}
	}
	return res
}
