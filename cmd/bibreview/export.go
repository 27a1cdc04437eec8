package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/bibreview/internal/clipboard"
	"github.com/matsen/bibreview/internal/export"
	"github.com/matsen/bibreview/internal/reference"
)

var (
	exportBibtex bool
	exportXML    bool
	exportKeys   string
	exportCopy   bool
)

func init() {
	exportCmd.Flags().BoolVar(&exportBibtex, "bibtex", false, "Export to BibTeX format")
	exportCmd.Flags().BoolVar(&exportXML, "xml", false, "Export to BibReview XML format")
	exportCmd.Flags().StringVar(&exportKeys, "keys", "", "Export only specified IDs (comma-separated)")
	_ = exportCmd.RegisterFlagCompletionFunc("keys", completeKeyList)
	exportCmd.Flags().BoolVar(&exportCopy, "copy", false, "Also copy the output to the system clipboard")
	exportCmd.MarkFlagsMutuallyExclusive("bibtex", "xml")
	exportCmd.MarkFlagsOneRequired("bibtex", "xml")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export references to BibTeX or BibReview XML",
	Long: `Export references to BibTeX or BibReview XML.

BibTeX entries are keyed by the stored reference IDs. XML output keeps
the full tag tree and review histories and can be imported again.

Examples:
  bibreview export --bibtex
  bibreview export --bibtex --keys Smith2020,Doe2019
  bibreview export --xml > lab.xml
  bibreview export --bibtex --keys Smith2020 --copy`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	snapshot := mustReadSnapshot(repoRoot)

	b, err := snapshot.ToBase()
	if err != nil {
		exitWithError(exitCodeFor(err), "loading base: %v", err)
	}
	ids := make([]string, len(snapshot.Refs))
	for i, rec := range snapshot.Refs {
		ids[i] = rec.ID
	}

	refs, ids := selectRefs(b.References, ids, exportKeys)

	// Both formats are text output, never JSON
	var out strings.Builder
	if exportXML {
		filtered := *b
		filtered.References = refs
		if err := export.WriteBibReview(&out, &filtered); err != nil {
			exitWithError(exitCodeFor(err), "writing xml: %v", err)
		}
	} else {
		entries := make([]string, len(refs))
		for i, ref := range refs {
			entries[i] = export.ToBibTeX(ref, ids[i])
		}
		out.WriteString(strings.Join(entries, "\n"))
	}
	fmt.Print(out.String())

	if exportCopy {
		copyToClipboard(cmd.Context(), out.String())
	}
	return nil
}

// copyToClipboard copies text, warning on stderr when it cannot.
func copyToClipboard(ctx context.Context, text string) {
	tool, err := clipboard.Copy(ctx, text)
	switch {
	case errors.Is(err, clipboard.ErrClipboardUnavailable):
		fmt.Fprintln(os.Stderr, "warning: clipboard unavailable (install pbcopy, xclip, xsel or wl-copy)")
	case err != nil:
		fmt.Fprintf(os.Stderr, "warning: clipboard error: %v\n", err)
	default:
		logger.Debug("copied export to clipboard", zap.String("tool", tool), zap.Int("bytes", len(text)))
	}
}

// selectRefs returns the references named in keys, in the order given. An
// empty keys string selects everything.
func selectRefs(refs []*reference.Reference, ids []string, keys string) ([]*reference.Reference, []string) {
	if keys == "" {
		return refs, ids
	}

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	var outRefs []*reference.Reference
	var outIDs []string
	for _, key := range strings.Split(keys, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			exitWithError(ExitNotFound, "unknown key: %s", key)
		}
		outRefs = append(outRefs, refs[i])
		outIDs = append(outIDs, ids[i])
	}
	return outRefs, outIDs
}
