package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/preserve/cmd/preserve/tui"
	"github.com/jamesainslie/preserve/pkg/preserve/cache"
	"github.com/jamesainslie/preserve/pkg/preserve/config"
	"github.com/jamesainslie/preserve/pkg/preserve/digest"
	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
	"github.com/jamesainslie/preserve/pkg/preserve/output"
	"github.com/jamesainslie/preserve/pkg/preserve/tuner"
	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// session holds what every file-processing command needs.
type session struct {
	cfg      *config.Config
	cache    *cache.Cache
	digester *digest.Digester
	tuned    tuner.Config
}

// openSession loads the configuration and opens the digest cache. A cache
// that cannot be opened, for example because another preserve process
// holds it, only disables caching.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, tuned: tuner.Auto(cfg.Workers)}
	printVerbose("Workers: %d copy, %d verify, %s buffer",
		s.tuned.CopyWorkers, s.tuned.VerifyWorkers, types.FormatSize(int64(s.tuned.BufferSize)))

	if cfg.Cache.Enabled && !viper.GetBool("no_cache") {
		c, err := cache.Open(cfg.CachePath())
		if err != nil {
			printVerbose("Digest cache unavailable, hashing every file: %v", err)
		} else {
			s.cache = c
		}
	}
	if s.cache != nil {
		s.digester = digest.NewDigester(digest.WithCache(s.cache))
	} else {
		s.digester = digest.NewDigester()
	}
	return s, nil
}

// Close releases the digest cache.
func (s *session) Close() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Close(); err != nil {
		printVerbose("Closing digest cache: %v", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// interactive reports whether the progress view should be shown.
func interactive() bool {
	if viper.GetBool("no_progress") || getQuiet() {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// runTask runs task under the progress view on a terminal, or directly
// with no progress reporting otherwise.
func runTask(ctx context.Context, title string, task tui.Task) error {
	if !interactive() {
		return task(ctx, nil)
	}
	if err := initTUILogging(); err != nil {
		return fmt.Errorf("failed to initialize TUI logging: %w", err)
	}
	defer restoreConsoleLogging()
	return tui.Run(ctx, title, task)
}

// selectFormatter resolves the --output flag. "auto" picks pretty on a
// terminal and plain otherwise.
func selectFormatter(name string) (output.Formatter, error) {
	if name == "" || name == config.DefaultOutput {
		name = "plain"
		if fd := os.Stdout.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			name = "pretty"
		}
	}
	if name == "template" {
		tmpl := viper.GetString("template")
		if tmpl == "" {
			return nil, fmt.Errorf("--template is required when using -o template")
		}
		return output.NewTemplateFormatter(tmpl), nil
	}
	f, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}
	return f, nil
}

// render writes r to stdout in the selected format.
func render(r *output.Result) error {
	f, err := selectFormatter(viper.GetString("output"))
	if err != nil {
		return err
	}
	return output.Write(os.Stdout, f, r)
}

// formatForFile picks a formatter from a report file's extension.
func formatForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".jsonl":
		return "jsonl"
	case ".yaml", ".yml":
		return "yaml"
	case ".csv":
		return "csv"
	case ".tsv":
		return "tsv"
	case ".md":
		return "markdown"
	}
	return "plain"
}

// writeReportFile writes r to path in the format its extension names.
func writeReportFile(path string, r *output.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := output.Render(f, formatForFile(path), r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// destinationDir returns the absolute destination directory named by args,
// defaulting to the working directory.
func destinationDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	expanded, err := config.ExpandPath(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access destination: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("destination is not a directory: %s", abs)
	}
	return abs, nil
}

// addSelectionFlags registers --number and --manifest.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("number", "n", 0, "use the manifest with this sequence number")
	cmd.Flags().StringP("manifest", "m", "", "use this manifest file")
	cmd.MarkFlagsMutuallyExclusive("number", "manifest")
}

// selection builds the manifest selection from --number and --manifest.
// An explicit path wins over a number, which wins over the latest.
func selection(cmd *cobra.Command) manifest.Criteria {
	if p, _ := cmd.Flags().GetString("manifest"); p != "" {
		if expanded, err := config.ExpandPath(p); err == nil {
			p = expanded
		}
		return manifest.ByPath(p)
	}
	if cmd.Flags().Changed("number") {
		n, _ := cmd.Flags().GetInt("number")
		return manifest.ByNumber(n)
	}
	return manifest.Latest()
}

// selectManifest opens the store at dir and loads the selected manifest.
func selectManifest(cmd *cobra.Command, dir string) (*manifest.Manifest, error) {
	store, err := manifest.New(dir)
	if err != nil {
		return nil, err
	}
	m, err := store.Select(selection(cmd))
	if err != nil {
		return nil, err
	}
	printVerbose("Using manifest %s", m.Path)
	return m, nil
}
