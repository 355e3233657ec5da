package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/preserve/cmd/preserve/tui"
	"github.com/jamesainslie/preserve/pkg/preserve/config"
	"github.com/jamesainslie/preserve/pkg/preserve/operation"
	"github.com/jamesainslie/preserve/pkg/preserve/output"
	"github.com/jamesainslie/preserve/pkg/preserve/scanner"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

var copyCmd = &cobra.Command{
	Use:   "copy [sources...] --dst DIR",
	Short: "Copy files and record them in a manifest",
	Long: `Copy files into a destination directory and write a numbered manifest
recording each file's original path and hashes.

Path styles:
  relative   strip the common base directory (default)
  absolute   mirror the full source path, drive letters become directories
  flat       keep only file names, numbering any that collide

Examples:
  preserve copy -r ~/project --dst /backup/project
  preserve copy --include "*.go" -r src --dst /backup --style absolute
  preserve copy --load-includes files.txt --dst /backup --hash sha256,blake3
  preserve copy -r ~/src --load-excludes skip.txt --regex '\.go$' --dst /backup`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreserve(cmd, args, types.OpCopy)
	},
}

var moveCmd = &cobra.Command{
	Use:   "move [sources...] --dst DIR",
	Short: "Move files and record them in a manifest",
	Long: `Move files into a destination directory. Each source is removed only
after its copy has been verified and the manifest has been written.

Examples:
  preserve move -r ~/Downloads/old --dst /archive/downloads
  preserve move *.log --dst /archive/logs --style flat --trash`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreserve(cmd, args, types.OpMove)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{copyCmd, moveCmd} {
		cmd.Flags().String("dst", "", "destination directory (required)")
		_ = cmd.MarkFlagRequired("dst")

		cmd.Flags().BoolP("recursive", "r", false, "descend into source directories")
		cmd.Flags().Int("max-depth", 0, "limit recursion depth (0=unlimited)")
		cmd.Flags().String("load-includes", "", "read additional source paths from a file, one per line")
		cmd.Flags().String("load-excludes", "", "read files or directories to leave out from a file, one per line")
		addFilterFlags(cmd)

		cmd.Flags().String("style", config.DefaultStyle, "path style: relative, absolute or flat")
		cmd.Flags().Bool("rel", false, "shorthand for --style relative")
		cmd.Flags().Bool("abs", false, "shorthand for --style absolute")
		cmd.Flags().Bool("flat", false, "shorthand for --style flat")
		cmd.MarkFlagsMutuallyExclusive("style", "rel", "abs", "flat")
		cmd.Flags().Bool("include-base", false, "keep the common base directory name in destination paths")
		cmd.Flags().String("source-base", "", "strip this directory instead of the inferred common base")

		cmd.Flags().StringSlice("hash", nil, "hash algorithms to record: md5, sha1, sha256, sha512, blake3")
		cmd.Flags().Bool("verify-after-copy", true, "re-hash each copy and compare with the source")
		cmd.Flags().String("description", "", "description added to the manifest name")
		cmd.Flags().Bool("link", false, "write a link sidecar for every file")
		cmd.Flags().Bool("overwrite", false, "replace files that already exist at the destination")
		cmd.Flags().Bool("preserve-attrs", true, "copy permissions and timestamps")
		cmd.Flags().Bool("preserve-owner", false, "copy file ownership (needs privileges)")
		cmd.Flags().Bool("follow-symlinks", false, "follow symbolic links while collecting sources")
		cmd.Flags().BoolP("dry-run", "d", false, "show what would be done without touching anything")

		rootCmd.AddCommand(cmd)
	}
	moveCmd.Flags().Bool("trash", false, "send moved sources to the trash instead of deleting them")
}

// runPreserve collects sources and runs a copy or move.
func runPreserve(cmd *cobra.Command, args []string, op types.OperationType) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	opts, err := operationOptions(cmd, s, op)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	files, collectErrs, err := collectSources(ctx, cmd, args, s.cfg, opts.Dest)
	if err != nil {
		return err
	}
	printVerbose("Collected %d files", len(files))

	engine := operation.New(operation.WithDigester(s.digester))
	var report *operation.Report
	title := fmt.Sprintf("%s %d files to %s", strings.ToLower(string(op)), len(files), opts.Dest)
	runErr := runTask(ctx, title, func(ctx context.Context, progress tui.ProgressFunc) error {
		opts.Progress = operation.ProgressFunc(progress)
		var err error
		report, err = engine.Run(ctx, files, opts)
		return err
	})

	if report != nil {
		if err := render(output.FromOperation(report)); err != nil {
			return err
		}
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("interrupted, no manifest was written")
		}
		return runErr
	}

	failed := report.Failed + collectErrs
	if failed > 0 {
		return partialFailure("%d of %d files could not be preserved", failed, len(report.Files)+collectErrs)
	}
	return nil
}

// operationOptions builds the run options from config and flags.
func operationOptions(cmd *cobra.Command, s *session, op types.OperationType) (operation.Options, error) {
	cfg := s.cfg
	pres, err := cfg.Preservation()
	if err != nil {
		return operation.Options{}, err
	}
	switch {
	case flagSet(cmd, "rel"):
		pres.Style = types.StyleRelative
	case flagSet(cmd, "abs"):
		pres.Style = types.StyleAbsolute
	case flagSet(cmd, "flat"):
		pres.Style = types.StyleFlat
	}
	if base, _ := cmd.Flags().GetString("source-base"); base != "" {
		if pres.SourceBase, err = absPath(base); err != nil {
			return operation.Options{}, err
		}
	}

	dst, _ := cmd.Flags().GetString("dst")
	if dst, err = absPath(dst); err != nil {
		return operation.Options{}, err
	}

	description, _ := cmd.Flags().GetString("description")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	return operation.Options{
		Operation:       op,
		Preservation:    pres,
		Dest:            dst,
		Description:     description,
		VerifyAfterCopy: cfg.Verification.VerifyAfterCopy,
		Overwrite:       cfg.Operations.Overwrite,
		PreserveAttrs:   cfg.Operations.PreserveAttrs,
		PreserveOwner:   cfg.Operations.PreserveOwner,
		DryRun:          dryRun,
		UseTrash:        cfg.Move.UseTrash,
		Link:            cfg.Link.Enabled,
		Workers:         s.tuned.CopyWorkers,
		BufferSize:      s.tuned.BufferSize,
	}, nil
}

// collectSources expands the arguments and --load-includes into files,
// dropping anything listed by --load-excludes. It returns the number of
// paths that could not be read.
func collectSources(ctx context.Context, cmd *cobra.Command, args []string, cfg *config.Config, dest string) ([]string, int, error) {
	paths := append([]string(nil), args...)
	if list, _ := cmd.Flags().GetString("load-includes"); list != "" {
		loaded, err := scanner.LoadList(list)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load includes: %w", err)
		}
		paths = append(paths, loaded...)
	}
	for i, p := range paths {
		expanded, err := config.ExpandPath(p)
		if err != nil {
			return nil, 0, err
		}
		paths[i] = expanded
	}

	var excludes []string
	if list, _ := cmd.Flags().GetString("load-excludes"); list != "" {
		loaded, err := scanner.LoadList(list)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load excludes: %w", err)
		}
		for _, p := range loaded {
			expanded, err := config.ExpandPath(p)
			if err != nil {
				return nil, 0, err
			}
			excludes = append(excludes, expanded)
		}
	}

	f, err := buildFilter(cmd)
	if err != nil {
		return nil, 0, err
	}
	recursive, _ := cmd.Flags().GetBool("recursive")
	maxDepth, _ := cmd.Flags().GetInt("max-depth")

	res, err := scanner.Collect(ctx, paths, scanner.Options{
		Recursive:      recursive,
		MaxDepth:       maxDepth,
		FollowSymlinks: cfg.Operations.FollowSymlinks,
		Filter:         f,
		SkipDirs:       []string{dest},
		ExcludePaths:   excludes,
	})
	if err != nil {
		return nil, 0, err
	}
	for _, e := range res.Errors {
		printInfo("warning: %v", e)
	}
	if res.Filtered > 0 {
		printVerbose("Filtered out %d files", res.Filtered)
	}
	if len(res.Files) == 0 {
		return nil, 0, errors.New("no files to preserve")
	}
	return res.Files, len(res.Errors), nil
}

// flagSet reports whether a bool flag is true.
func flagSet(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

// absPath expands ~ and makes p absolute.
func absPath(p string) (string, error) {
	expanded, err := config.ExpandPath(p)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return abs, nil
}
