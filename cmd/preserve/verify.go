package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/preserve/cmd/preserve/tui"
	"github.com/jamesainslie/preserve/pkg/preserve/output"
	"github.com/jamesainslie/preserve/pkg/preserve/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [dir]",
	Short: "Check preserved files against their recorded hashes",
	Long: `Hash the files recorded in a manifest and compare them with the hashes
taken when they were preserved.

Check modes:
  dest     hash the preserved copies (default)
  source   hash the original files
  both     hash both and classify any difference
  auto     hash the copies, and the originals where they still exist

Examples:
  preserve verify /backup/project
  preserve verify /backup/project --check both --report report.json
  preserve verify /backup/project --check source --src /mnt/old/project
  preserve verify /backup/project --check auto --alt-src /mnt/a --alt-src /mnt/b

Every check reads the files. --trust-cache reuses digests from the cache for
files whose size and modification time are unchanged, which is faster but
cannot notice corruption that leaves both alone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	addSelectionFlags(verifyCmd)
	verifyCmd.Flags().String("check", string(verify.CheckDest), "what to hash: dest, source, both or auto")
	verifyCmd.Flags().String("src", "", "look for originals under this directory instead of their recorded paths")
	verifyCmd.Flags().StringArray("alt-src", nil, "also look for originals under this directory (repeatable)")
	verifyCmd.Flags().Bool("trust-cache", false, "reuse cached digests of files with unchanged size and mtime")
	verifyCmd.Flags().String("report", "", "also write the report to this file (format from its extension)")
	rootCmd.AddCommand(verifyCmd)
}

// runVerify is the verify command handler.
func runVerify(cmd *cobra.Command, args []string) error {
	checkStr, _ := cmd.Flags().GetString("check")
	check, err := verify.ParseCheck(checkStr)
	if err != nil {
		return err
	}

	dir, err := destinationDir(args)
	if err != nil {
		return err
	}
	m, err := selectManifest(cmd, dir)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	opts := verify.BatchOptions{
		Root:    dir,
		Check:   check,
		Workers: s.tuned.VerifyWorkers,
	}
	if src, _ := cmd.Flags().GetString("src"); src != "" {
		if opts.SourceRoot, err = absPath(src); err != nil {
			return err
		}
	}

	alts, _ := cmd.Flags().GetStringArray("alt-src")
	for _, alt := range alts {
		abs, err := absPath(alt)
		if err != nil {
			return err
		}
		opts.AltSourceRoots = append(opts.AltSourceRoots, abs)
	}

	var vopts []verify.Option
	if trust, _ := cmd.Flags().GetBool("trust-cache"); trust {
		vopts = append(vopts, verify.TrustCache())
	}

	ctx, cancel := signalContext()
	defer cancel()

	verifier := verify.New(s.digester, vopts...)
	var report *verify.Report
	title := fmt.Sprintf("verify %d files in %s", len(m.Files), dir)
	err = runTask(ctx, title, func(ctx context.Context, progress tui.ProgressFunc) error {
		opts.Progress = verify.ProgressFunc(progress)
		var err error
		report, err = verifier.VerifyManifest(ctx, m, opts)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}

	view := output.FromVerify(report)
	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := writeReportFile(path, view); err != nil {
			return err
		}
		printInfo("Report written to %s", path)
	}
	if err := render(view); err != nil {
		return err
	}
	if !report.OK() {
		return partialFailure("%d files failed verification", report.Failed+report.NotFound+report.Errors)
	}
	return nil
}
