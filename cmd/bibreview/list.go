package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bibreview/internal/storage"
	"github.com/matsen/bibreview/internal/tag"
)

var (
	listTag   string
	listLimit int
)

func init() {
	listCmd.Flags().StringVar(&listTag, "tag", "", "Only references under this tag (includes child tags)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum results to return (0 for all)")
	_ = listCmd.RegisterFlagCompletionFunc("tag", completeTagNames)
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List references in base order",
	Long: `List references in the order they appear in the base.

With --tag, only references carrying the tag or one of its descendants
are listed. When several tags share a name, the last declared one is used.

Examples:
  bibreview list --human
  bibreview list --tag methods --limit 20`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	var (
		entries []*storage.Entry
		err     error
	)
	if listTag != "" {
		entries, err = db.ListByTag(listTag, listLimit)
	} else {
		entries, err = db.ListAll(listLimit)
	}
	if errors.Is(err, tag.ErrUnknownTag) {
		exitWithError(ExitNotFound, "%v", err)
	}
	if err != nil {
		exitWithError(ExitError, "listing references: %v", err)
	}

	if humanOutput {
		if len(entries) == 0 {
			fmt.Println("No references")
			return nil
		}
		for _, e := range entries {
			printEntryLine(e)
		}
		return nil
	}
	if entries == nil {
		entries = []*storage.Entry{}
	}
	outputJSON(entries)
	return nil
}
