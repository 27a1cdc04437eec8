package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a single reference by ID",
	Long: `Get a single reference by its ID.

Example:
  bibreview get Smith2020`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	id := args[0]
	entry, err := db.GetByID(id)
	if err != nil {
		exitWithError(ExitError, "getting reference: %v", err)
	}
	if entry == nil {
		exitWithError(ExitNotFound, "reference not found: %s", id)
	}

	if humanOutput {
		printEntryDetail(entry)
	} else {
		outputJSON(entry)
	}
	return nil
}
