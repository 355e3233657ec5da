package output

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
	"github.com/jamesainslie/preserve/pkg/preserve/operation"
	"github.com/jamesainslie/preserve/pkg/preserve/pathmap"
	"github.com/jamesainslie/preserve/pkg/preserve/restore"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
	"github.com/jamesainslie/preserve/pkg/preserve/verify"
)

// size formats bytes for a table cell.
func size(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func count(n int) string { return strconv.Itoa(n) }

// manifestLabel names a manifest file for the header.
func manifestLabel(path string, seq int) string {
	if path == "" {
		return "not written"
	}
	if seq == 0 {
		return path + " (legacy)"
	}
	return fmt.Sprintf("#%d %s", seq, path)
}

func title(name string, dryRun bool) string {
	if dryRun {
		return name + " (dry run)"
	}
	return name
}

// algorithms joins algorithm names with commas.
func algorithms(algs []types.HashAlgorithm) string {
	names := make([]string, len(algs))
	for i, a := range algs {
		names[i] = string(a)
	}
	return strings.Join(names, ",")
}

// FromOperation builds the view of a copy or move.
func FromOperation(r *operation.Report) *Result {
	res := &Result{
		Title:   title(strings.ToLower(string(r.Operation)), r.DryRun),
		Columns: []string{"status", "size", "source", "destination", "detail"},
		Payload: r,
		Meta: []Field{
			{Label: "Destination", Value: r.Dest},
		},
	}
	if r.Base != "" {
		res.Meta = append(res.Meta, Field{Label: "Source base", Value: r.Base})
	}
	if !r.DryRun {
		res.Meta = append(res.Meta, Field{Label: "Manifest", Value: manifestLabel(r.Manifest, r.Sequence)})
	}

	for _, f := range r.Files {
		row := Row{Path: f.Source, Level: LevelError}
		switch f.Status {
		case operation.StatusCopied, operation.StatusMoved, operation.StatusPlanned:
			row.Level = LevelOK
		case operation.StatusSkipped:
			row.Level = LevelWarn
		}
		detail := f.Error
		if detail == "" && f.Mapping != "" && f.Mapping != pathmap.StatusMapped {
			detail = strings.ToLower(string(f.Mapping))
		}
		row.Cells = []string{string(f.Status), size(f.Size), f.Source, f.Dest, detail}
		res.Rows = append(res.Rows, row)
	}

	res.Summary = []Field{
		{Label: "Succeeded", Value: count(r.Succeeded)},
		{Label: "Skipped", Value: count(r.Skipped)},
		{Label: "Failed", Value: count(r.Failed)},
		{Label: "Total", Value: size(r.TotalBytes)},
	}
	if r.Fallbacks > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d files have no common base and use the absolute layout", r.Fallbacks))
	}
	if n := len(r.Unindexed); n > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d copied files are not recorded in any manifest (see the log)", n))
	}
	return res
}

// FromRestore builds the view of a restore run.
func FromRestore(r *restore.Report) *Result {
	res := &Result{
		Title:   title("restore", r.DryRun),
		Columns: []string{"outcome", "target", "from", "detail"},
		Payload: r,
		Meta:    []Field{{Label: "Manifest", Value: manifestLabel(r.Manifest, r.Sequence)}},
	}
	for _, rr := range r.Results {
		row := Row{Path: rr.Target, Level: LevelError}
		switch rr.Outcome {
		case restore.OutcomeRestored, restore.OutcomeFallbackRestored:
			row.Level = LevelOK
		case restore.OutcomeSkippedExists:
			row.Level = LevelWarn
		}
		detail := rr.Error
		if detail == "" && rr.Category != "" && rr.Category != verify.CategoryConsistent {
			detail = string(rr.Category)
		}
		row.Cells = []string{string(rr.Outcome), rr.Target, rr.From, detail}
		res.Rows = append(res.Rows, row)
	}

	res.Summary = []Field{
		{Label: "Restored", Value: count(r.Restored)},
		{Label: "From fallback", Value: count(r.FallbackRestored)},
		{Label: "Skipped", Value: count(r.Skipped)},
		{Label: "Mismatched", Value: count(r.Mismatched)},
		{Label: "Not found", Value: count(r.NotFound)},
		{Label: "Errors", Value: count(r.IOErrors)},
	}
	if r.Filtered > 0 {
		res.Summary = append(res.Summary, Field{Label: "Not selected", Value: count(r.Filtered)})
	}
	if r.Skipped > 0 && !r.DryRun {
		res.Warnings = append(res.Warnings, "existing files were left in place; use --overwrite to replace them")
	}
	return res
}

// FromVerify builds the view of a manifest verification.
func FromVerify(r *verify.Report) *Result {
	res := &Result{
		Title:   "verify",
		Columns: []string{"status", "path", "source", "detail"},
		Payload: r,
		Meta: []Field{
			{Label: "Manifest", Value: manifestLabel(r.Manifest, r.Sequence)},
			{Label: "Check", Value: string(r.Check)},
		},
	}
	for _, f := range r.Files {
		row := Row{Path: f.DestPath, Level: LevelError}
		switch f.Status {
		case verify.StatusVerified:
			row.Level = LevelOK
		case verify.StatusUnverified:
			row.Level = LevelWarn
		}
		var detail string
		switch {
		case f.Error != "":
			detail = f.Error
		case len(f.Mismatched) > 0:
			detail = algorithms(f.Mismatched) + " mismatch"
		case f.Category != "" && f.Category != verify.CategoryConsistent:
			detail = string(f.Category)
		}
		row.Cells = []string{string(f.Status), f.DestPath, f.SourcePath, detail}
		res.Rows = append(res.Rows, row)
	}

	res.Summary = []Field{
		{Label: "Verified", Value: count(r.Verified)},
		{Label: "Failed", Value: count(r.Failed)},
		{Label: "Not found", Value: count(r.NotFound)},
		{Label: "Errors", Value: count(r.Errors)},
	}
	if r.Unverified > 0 {
		res.Summary = append(res.Summary, Field{Label: "Unverified", Value: count(r.Unverified)})
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d records carry no hashes", r.Unverified))
	}
	return res
}

// FromSummaries builds the manifest listing of a destination directory.
func FromSummaries(dir string, list []manifest.Summary) *Result {
	res := &Result{
		Title:   "manifests",
		Columns: []string{"number", "created", "operation", "style", "files", "size", "description"},
		Payload: list,
		Meta:    []Field{{Label: "Directory", Value: dir}},
	}
	var files int
	var total int64
	for _, s := range list {
		num := count(s.Number)
		if s.Legacy {
			num = "legacy"
		}
		res.Rows = append(res.Rows, Row{
			Path: s.Path,
			Cells: []string{
				num,
				s.CreatedAt.Local().Format(time.DateTime),
				string(s.Operation),
				string(s.Style),
				count(s.FileCount),
				size(s.TotalBytes),
				s.Description,
			},
		})
		files += s.FileCount
		total += s.TotalBytes
	}
	res.Summary = []Field{
		{Label: "Manifests", Value: count(len(list))},
		{Label: "Files", Value: count(files)},
		{Label: "Total", Value: size(total)},
	}
	return res
}

// FromManifest builds the file-level view of one manifest. root is the
// directory destination paths are relative to.
func FromManifest(root string, m *manifest.Manifest) *Result {
	res := &Result{
		Title:   "manifest",
		Columns: []string{"size", "destination", "source", "hashes"},
		Meta: []Field{
			{Label: "Manifest", Value: manifestLabel(m.Path, m.Sequence)},
			{Label: "Operation", Value: string(m.Operation)},
			{Label: "Created", Value: m.CreatedAt.Local().Format(time.DateTime)},
			{Label: "Style", Value: string(m.Style)},
		},
	}
	if data, err := manifest.Encode(m); err == nil {
		res.Payload = json.RawMessage(data)
	} else {
		logger.Warn("encoding manifest for output failed", "path", m.Path, "error", err)
	}
	if m.SourceBase != "" {
		res.Meta = append(res.Meta, Field{Label: "Source base", Value: m.SourceBase})
	}
	if m.Description != "" {
		res.Meta = append(res.Meta, Field{Label: "Description", Value: m.Description})
	}
	if m.Platform.OS != "" {
		res.Meta = append(res.Meta, Field{Label: "Platform", Value: m.Platform.OS + "/" + m.Platform.Arch})
	}

	for _, rec := range m.Files {
		hashes := make([]string, 0, len(rec.Hashes))
		for _, alg := range rec.Hashes.Algorithms() {
			hashes = append(hashes, string(alg)+":"+rec.Hashes[alg])
		}
		res.Rows = append(res.Rows, Row{
			Path:  manifest.DestPath(root, rec),
			Cells: []string{size(rec.Size), rec.DestinationPath, rec.SourcePath, strings.Join(hashes, " ")},
		})
	}
	res.Summary = []Field{
		{Label: "Files", Value: count(len(m.Files))},
		{Label: "Total", Value: size(m.TotalBytes())},
	}
	return res
}
