package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bibreview/internal/storage"
)

func init() {
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the review history of a reference",
	Long: `Show every review entry recorded for a reference, oldest first.

Example:
  bibreview history Smith2020 --human`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

// HistoryResult is the response for the history command.
type HistoryResult struct {
	ID      string                 `json:"id"`
	Reviews []storage.HistoryEntry `json:"reviews"`
}

func runHistory(cmd *cobra.Command, args []string) error {
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

	reviews, err := db.History(id)
	if err != nil {
		exitWithError(ExitError, "reading history: %v", err)
	}
	if reviews == nil {
		reviews = []storage.HistoryEntry{}
	}

	if humanOutput {
		fmt.Printf("%s: %s\n", entry.ID, truncateString(entry.Title, DetailTitleMaxLen))
		if len(reviews) == 0 {
			fmt.Println("  not reviewed")
			return nil
		}
		for _, r := range reviews {
			user := r.User
			if user == "" {
				user = "-"
			}
			fmt.Printf("  %s  %-12s %s\n", r.Date, user, r.Status)
		}
		return nil
	}
	outputJSON(HistoryResult{ID: entry.ID, Reviews: reviews})
	return nil
}
