package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/preserve/cmd/preserve/tui"
	"github.com/jamesainslie/preserve/pkg/preserve/filter"
	"github.com/jamesainslie/preserve/pkg/preserve/link"
	"github.com/jamesainslie/preserve/pkg/preserve/output"
	"github.com/jamesainslie/preserve/pkg/preserve/restore"
)

var restoreCmd = &cobra.Command{
	Use:   "restore [dir]",
	Short: "Restore preserved files to their original locations",
	Long: `Restore the files recorded in a manifest back to where they came from.

The manifest is taken from the preserved directory (default: current
directory). --manifest picks a file, --number a sequence number; otherwise
the latest manifest is used. When a preserved copy is missing from its
recorded place, the directory is searched for a file with the same name
and recorded hash.

Examples:
  preserve restore /backup/project
  preserve restore /backup/project --number 3 --dry-run
  preserve restore /backup/project --dst /tmp/restored --selective "*.go"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRestore,
}

func init() {
	addSelectionFlags(restoreCmd)
	restoreCmd.Flags().String("dst", "", "restore under this directory instead of the original locations")
	restoreCmd.Flags().StringSlice("selective", nil, "only restore files whose paths match these glob patterns")
	restoreCmd.Flags().Bool("overwrite", false, "replace files that already exist at the target")
	restoreCmd.Flags().Bool("verify", true, "check hashes before restoring")
	restoreCmd.Flags().Bool("preserve-attrs", true, "re-apply recorded permissions and timestamps")
	restoreCmd.Flags().Bool("preserve-owner", false, "re-apply recorded ownership (needs privileges)")
	restoreCmd.Flags().BoolP("dry-run", "d", false, "show what would be restored without touching anything")
	rootCmd.AddCommand(restoreCmd)
}

// runRestore is the restore command handler.
func runRestore(cmd *cobra.Command, args []string) error {
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

	opts := restore.Options{
		Root:          dir,
		Overwrite:     s.cfg.Operations.Overwrite,
		PreserveAttrs: s.cfg.Operations.PreserveAttrs,
		PreserveOwner: s.cfg.Operations.PreserveOwner,
		Workers:       s.tuned.CopyWorkers,
	}
	opts.Verify, _ = cmd.Flags().GetBool("verify")
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	if alt, _ := cmd.Flags().GetString("dst"); alt != "" {
		if opts.AlternateRoot, err = absPath(alt); err != nil {
			return err
		}
	}
	if patterns, _ := cmd.Flags().GetStringSlice("selective"); len(patterns) > 0 {
		if opts.Select, err = filter.New(filter.WithInclude(patterns...)); err != nil {
			return err
		}
	}

	restorer := restore.New(
		restore.WithDigester(s.digester),
		restore.WithLinker(link.NewSidecars(dir)),
	)

	ctx, cancel := signalContext()
	defer cancel()

	var report *restore.Report
	title := fmt.Sprintf("restore %d files from %s", len(m.Files), dir)
	err = runTask(ctx, title, func(ctx context.Context, progress tui.ProgressFunc) error {
		opts.Progress = restore.ProgressFunc(progress)
		var err error
		report, err = restorer.Restore(ctx, m, opts)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}

	if err := render(output.FromRestore(report)); err != nil {
		return err
	}
	if !report.OK() {
		return partialFailure("%d files could not be restored",
			report.Mismatched+report.NotFound+report.IOErrors)
	}
	return nil
}
