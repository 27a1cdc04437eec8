package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bibreview/internal/config"
)

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the query layer from source data",
	Long: `Rebuild the SQLite query database from the JSONL source files.

Use this after pulling changes from git or if the database becomes corrupted.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

// RebuildResult is the response for the rebuild command.
type RebuildResult struct {
	Status     string `json:"status"`
	References int    `json:"references"`
	Snapshot   string `json:"snapshot"`
}

func runRebuild(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	if !config.HasBase(repoRoot) {
		exitWithError(ExitNotFound, "no base imported yet\n\nRun 'bibreview import <file.xml>' first.")
	}

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	count, err := db.RebuildFromFiles(config.StorageFiles(repoRoot))
	if err != nil {
		exitWithError(ExitDataError, "rebuilding database: %v", err)
	}
	snapshot, err := db.SnapshotID()
	if err != nil {
		exitWithError(ExitError, "reading snapshot id: %v", err)
	}

	if humanOutput {
		fmt.Printf("Rebuilt query database with %d references (snapshot %s)\n", count, snapshot)
	} else {
		outputJSON(RebuildResult{
			Status:     "rebuilt",
			References: count,
			Snapshot:   snapshot,
		})
	}
	return nil
}
