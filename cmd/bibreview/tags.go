package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibreview/internal/storage"
)

func init() {
	rootCmd.AddCommand(tagsCmd)
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Show the tag tree with reference counts",
	Long: `Show the tag tree in declaration order.

Each count includes references attached to descendant tags.
Exclusive tags are marked with '!', categorized tags show their
category and value.

Example:
  bibreview tags --human`,
	Args: cobra.NoArgs,
	RunE: runTags,
}

func runTags(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	usage, err := db.TagUsage()
	if err != nil {
		exitWithError(ExitError, "reading tags: %v", err)
	}

	if humanOutput {
		if len(usage) == 0 {
			fmt.Println("No tags")
			return nil
		}
		for _, u := range usage {
			fmt.Println(formatTagLine(u))
		}
		return nil
	}
	if usage == nil {
		usage = []storage.TagUsage{}
	}
	outputJSON(usage)
	return nil
}

// formatTagLine renders a tag indented by its depth below the root.
func formatTagLine(u storage.TagUsage) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", max(u.Depth-1, 0)))
	b.WriteString(u.Name)
	if u.Exclusive {
		b.WriteString("!")
	}
	if u.Category != "" {
		fmt.Fprintf(&b, " [%s=%s]", u.Category, u.CategoryValue)
	}
	fmt.Fprintf(&b, " (%d)", u.References)
	return b.String()
}
