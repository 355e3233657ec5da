package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jamesainslie/preserve/pkg/preserve/config"
)

var (
	cfgFile   string
	configErr error
	rootCmd   = &cobra.Command{
		Use:   "preserve",
		Short: "Copy and move files with manifests, verification and restore",
		Long: `Preserve copies or moves files into a destination directory while recording
where every file came from and its hashes in a numbered manifest. The
manifest lets you verify the copies later and restore them to their
original locations.

Examples:
  preserve copy -r ~/project --dst /backup/project
  preserve move --style flat *.log --dst /archive/logs --description "old logs"
  preserve verify /backup/project --check both
  preserve restore /backup/project --number 2 --dry-run
  preserve list /backup/project`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: preRun,
	}
)

// commandFlagKeys binds per-command flags to config keys. Binding happens in
// preRun for the command being executed, so commands that share a flag
// name don't overwrite each other's binding.
var commandFlagKeys = map[string]string{
	"style":             "paths.default_style",
	"include-base":      "paths.include_base",
	"hash":              "verification.hash_algorithms",
	"verify-after-copy": "verification.verify_after_copy",
	"overwrite":         "operations.overwrite",
	"preserve-attrs":    "operations.preserve_attrs",
	"preserve-owner":    "operations.preserve_owner",
	"follow-symlinks":   "operations.follow_symlinks",
	"trash":             "move.use_trash",
	"link":              "link.enabled",
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/preserve/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format: auto, pretty, plain, json, yaml, tsv, csv, markdown, paths, template")
	rootCmd.PersistentFlags().String("template", "", "Go template for -o template")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "override worker count (0=auto)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().Bool("no-cache", false, "neither read nor update the digest cache")
	rootCmd.PersistentFlags().Bool("no-progress", false, "never show the progress view")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("template", rootCmd.PersistentFlags().Lookup("template"))
	_ = viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("no_cache", rootCmd.PersistentFlags().Lookup("no-cache"))
	_ = viper.BindPFlag("no_progress", rootCmd.PersistentFlags().Lookup("no-progress"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	v := viper.GetViper()
	config.Prepare(v, cfgFile)
	configErr = config.Read(v)
}

// preRun binds the executing command's flags and starts logging.
func preRun(cmd *cobra.Command, args []string) error {
	bindCommandFlags(cmd)
	return initializeLogging(cmd, args)
}

// bindCommandFlags binds the flags of cmd listed in commandFlagKeys.
func bindCommandFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := commandFlagKeys[f.Name]; ok {
			_ = viper.BindPFlag(key, f)
		}
	})
}

// loadConfig decodes the merged flag, environment and file settings.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	return config.Decode(viper.GetViper())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message to stderr if quiet mode is not enabled.
// Stdout is reserved for reports.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
