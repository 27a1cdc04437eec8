package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibreview/internal/author"
	"github.com/matsen/bibreview/internal/storage"
)

var (
	searchLimit   int
	searchAuthors []string
)

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", DefaultSearchLimit, "Maximum results to return")
	searchCmd.Flags().StringArrayVarP(&searchAuthors, "author", "a", nil, "Filter by author name (can be repeated, uses AND logic)")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search [query]...",
	Short: "Search references by keyword or author",
	Long: `Full-text search over titles, abstracts and authors.

All words must match. Results come back in base order.

Author filters match the last name exactly and the first name by prefix,
so "Tim Yu" matches "Timothy C Yu" and "Yu TC" but "Yu" does not match
"Yujia Chan". Several --author flags must all match.

Examples:
  bibreview search phylogenetics
  bibreview search deep mutational scanning --limit 10
  bibreview search -a Bloom -a "Tim Yu"`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	queries := author.ParseQueries(searchAuthors)
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" && len(queries) == 0 {
		exitWithError(ExitError, "a search query or --author is required")
	}

	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	// Author filtering happens after the query, so fetch without a limit
	limit := searchLimit
	if len(queries) > 0 {
		limit = 0
	}

	var (
		entries []*storage.Entry
		err     error
	)
	if strings.TrimSpace(query) != "" {
		entries, err = db.Search(query, limit)
	} else {
		entries, err = db.ListAll(0)
	}
	if err != nil {
		exitWithError(ExitError, "searching: %v", err)
	}
	entries = filterByAuthors(entries, queries, searchLimit)

	if humanOutput {
		if len(entries) == 0 {
			fmt.Println("No matching references")
			return nil
		}
		fmt.Printf("Found %d references:\n\n", len(entries))
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

// filterByAuthors keeps entries matching every query, up to limit.
// A limit of 0 keeps all matches.
func filterByAuthors(entries []*storage.Entry, queries []author.Query, limit int) []*storage.Entry {
	var out []*storage.Entry
	for _, e := range entries {
		if !author.MatchesField(queries, e.Authors) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
