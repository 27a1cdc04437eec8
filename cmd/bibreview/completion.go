package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibreview/internal/config"
	"github.com/matsen/bibreview/internal/storage"
)

func init() {
	rootCmd.AddCommand(completionCmd)

	getCmd.ValidArgsFunction = completeRefIDs
	historyCmd.ValidArgsFunction = completeRefIDs
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate completion scripts for your shell.

Reference IDs and tag names complete from the repository cache, so run
'bibreview rebuild' if completions look stale.

Bash:
  $ source <(bibreview completion bash)

Zsh:
  $ bibreview completion zsh > "${fpath[1]}/_bibreview"

Fish:
  $ bibreview completion fish > ~/.config/fish/completions/bibreview.fish

PowerShell:
  PS> bibreview completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}

// withCache opens the repository cache for a completion. Completions fail
// quietly: no repository or no cache means no suggestions.
func withCache(fn func(db *storage.DB) []string) ([]string, cobra.ShellCompDirective) {
	root, err := config.LocateRepository()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if _, err := os.Stat(config.DBPath(root)); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	db, err := storage.OpenDB(config.DBPath(root))
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer db.Close()
	return fn(db), cobra.ShellCompDirectiveNoFileComp
}

func completeRefIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return withCache(func(db *storage.DB) []string {
		entries, err := db.ListAll(0)
		if err != nil {
			return nil
		}
		return matchingIDs(entries, toComplete, "")
	})
}

// completeKeyList completes the last element of a comma-separated key list.
func completeKeyList(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	prefix, last := "", toComplete
	if i := strings.LastIndex(toComplete, ","); i >= 0 {
		prefix, last = toComplete[:i+1], toComplete[i+1:]
	}
	ids, directive := withCache(func(db *storage.DB) []string {
		entries, err := db.ListAll(0)
		if err != nil {
			return nil
		}
		return matchingIDs(entries, last, prefix)
	})
	return ids, directive | cobra.ShellCompDirectiveNoSpace
}

func completeTagNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return withCache(func(db *storage.DB) []string {
		usage, err := db.TagUsage()
		if err != nil {
			return nil
		}
		return matchingTagNames(usage, toComplete)
	})
}

// matchingIDs returns the IDs starting with partial, each prefixed with
// prefix, with the title as the completion description.
func matchingIDs(entries []*storage.Entry, partial, prefix string) []string {
	var out []string
	for _, e := range entries {
		if !strings.HasPrefix(e.ID, partial) {
			continue
		}
		out = append(out, prefix+e.ID+"\t"+truncateString(e.Title, ListTitleMaxLen))
	}
	return out
}

// matchingTagNames returns distinct tag names starting with partial, in tree
// order.
func matchingTagNames(usage []storage.TagUsage, partial string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range usage {
		if seen[u.Name] || !strings.HasPrefix(u.Name, partial) {
			continue
		}
		seen[u.Name] = true
		out = append(out, u.Name)
	}
	return out
}
