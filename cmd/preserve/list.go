package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/preserve/pkg/preserve/manifest"
	"github.com/jamesainslie/preserve/pkg/preserve/output"
)

var listCmd = &cobra.Command{
	Use:     "list [dir]",
	Aliases: []string{"ls", "history"},
	Short:   "List the manifests in a preserved directory",
	Long: `List every manifest in a preserved directory, oldest first.

With --number or --manifest, show the files recorded in one manifest.

Examples:
  preserve list /backup/project
  preserve list /backup/project --number 2
  preserve list /backup/project -n 2 -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	addSelectionFlags(listCmd)
	listCmd.Flags().Bool("migrate", false, "number a legacy unnumbered manifest before listing")
	rootCmd.AddCommand(listCmd)
}

// runList is the list command handler.
func runList(cmd *cobra.Command, args []string) error {
	dir, err := destinationDir(args)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("number") || cmd.Flags().Changed("manifest") {
		m, err := selectManifest(cmd, dir)
		if err != nil {
			return err
		}
		return render(output.FromManifest(dir, m))
	}

	store, err := manifest.New(dir)
	if err != nil {
		return err
	}
	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		ctx, cancel := signalContext()
		defer cancel()
		migrated, err := store.MigrateLegacy(ctx)
		if err != nil {
			return err
		}
		if migrated {
			printInfo("Legacy manifest numbered")
		}
	}

	list, err := store.List()
	if err != nil {
		return err
	}
	return render(output.FromSummaries(dir, list))
}
