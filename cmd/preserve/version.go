package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
)

// Build-time variables set by goreleaser or go build -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version, commit hash, build date and manifest format of preserve.`,
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// runVersion prints version information.
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("preserve %s\n", version)
	fmt.Printf("  commit:   %s\n", commit)
	fmt.Printf("  built:    %s\n", date)
	fmt.Printf("  go:       %s\n", runtime.Version())
	fmt.Printf("  os/arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  manifest: v%d\n", manifest.SchemaVersion)
}
