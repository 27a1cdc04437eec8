package main

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/bibreview/internal/config"
	"github.com/matsen/bibreview/internal/export"
	"github.com/matsen/bibreview/internal/importer"
	"github.com/matsen/bibreview/internal/storage"
)

var importDryRun bool

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without writing")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <file.xml>",
	Short: "Import a BibReview XML file into the repository",
	Long: `Import a BibReview XML file into the repository.

The first import stores the base as is. Later imports merge into it:
tags are matched by their path in the tree, references by DOI and then
by ID and title. Matched references keep their ID, take the incoming
fields and gain any review entries they did not have.

When the base has auto_export_bibtex set, new entries are appended to the
configured BibTeX file.

Usage:
  bibreview import lab.xml
  bibreview import lab.xml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// ImportResult represents the result of an import operation.
type ImportResult struct {
	New        int      `json:"new"`
	Updated    int      `json:"updated"`
	Skipped    int      `json:"skipped"`
	TagsAdded  int      `json:"tags_added"`
	Snapshot   string   `json:"snapshot,omitempty"`
	BibTeXPath string   `json:"bibtex_path,omitempty"`
	Exported   []string `json:"exported,omitempty"`
}

// DryRunResult represents the result of a dry-run import.
type DryRunResult struct {
	WouldAdd    int            `json:"would_add"`
	WouldUpdate int            `json:"would_update"`
	WouldSkip   int            `json:"would_skip"`
	TagsAdded   int            `json:"tags_added"`
	Details     []ImportDetail `json:"details,omitempty"`
}

// ImportDetail describes a single import action.
type ImportDetail struct {
	ID     string `json:"id"`
	Action string `json:"action"` // new, update, skip
	Title  string `json:"title"`
	Reason string `json:"reason,omitempty"`
}

// importStats tracks import operation counts.
type importStats struct {
	newCount  int
	updated   int
	skipped   int
	tagsAdded int
}

func runImport(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	incoming, err := importer.ParseFile(args[0], importOptions()...)
	if err != nil {
		exitWithError(exitCodeFor(err), "parsing %s: %v", args[0], err)
	}
	logger.Debug("parsed import file", zap.String("file", args[0]), zap.Int("references", len(incoming.References)))

	var existing storage.Snapshot
	if config.HasBase(repoRoot) {
		existing = mustReadSnapshot(repoRoot)
	}

	merged, stats, details := mergeSnapshot(existing, storage.NewSnapshot(incoming))

	if importDryRun {
		reportDryRun(stats, details)
		return nil
	}

	if err := storage.WriteSnapshot(config.StorageFiles(repoRoot), merged); err != nil {
		exitWithError(ExitError, "writing base: %v", err)
	}

	db := mustOpenDatabase(repoRoot)
	defer db.Close()
	if _, err := db.RebuildFromSnapshot(merged); err != nil {
		exitWithError(ExitDataError, "rebuilding cache: %v", err)
	}
	snapshot, err := db.SnapshotID()
	if err != nil {
		logger.Warn("reading snapshot id", zap.Error(err))
	}

	result := ImportResult{
		New:       stats.newCount,
		Updated:   stats.updated,
		Skipped:   stats.skipped,
		TagsAdded: stats.tagsAdded,
		Snapshot:  snapshot,
	}

	if merged.Base.AutoExportBibTeX {
		result.BibTeXPath = cfg.ResolveBibTeXPath(repoRoot)
		result.Exported = autoExport(result.BibTeXPath, merged)
	}

	reportImportResults(result)
	return nil
}

// autoExport appends references missing from the .bib file, keyed by their
// stored IDs.
func autoExport(path string, s storage.Snapshot) []string {
	b, err := s.ToBase()
	if err != nil {
		exitWithError(ExitDataError, "loading base for export: %v", err)
	}
	keys := make([]string, len(s.Refs))
	for i, ref := range s.Refs {
		keys[i] = ref.ID
	}

	added, err := export.AppendNewBibTeX(path, b.References, keys)
	if err != nil {
		exitWithError(ExitError, "exporting bibtex: %v", err)
	}
	logger.Info("exported bibtex", zap.String("path", path), zap.Int("added", len(added)))
	return added
}

// mergeSnapshot folds incoming records into existing ones. An empty
// existing snapshot takes the incoming base metadata.
func mergeSnapshot(existing, incoming storage.Snapshot) (storage.Snapshot, importStats, []ImportDetail) {
	merged := storage.Snapshot{
		Base: existing.Base,
		Tags: slices.Clone(existing.Tags),
		Refs: make([]storage.RefRecord, len(existing.Refs)),
	}
	// Renumber rewrites links in place
	for i, ref := range existing.Refs {
		ref.Tags = slices.Clone(ref.Tags)
		merged.Refs[i] = ref
	}
	if len(existing.Refs) == 0 && len(existing.Tags) == 0 && existing.Base.Name == "" {
		merged.Base = incoming.Base
	}

	var stats importStats
	tagIDs, added := mergeTags(&merged, incoming.Tags)
	stats.tagsAdded = added

	var details []ImportDetail
	for _, ref := range incoming.Refs {
		ref.Tags = remapLinks(ref.Tags, tagIDs)
		action := classifyImport(merged.Refs, ref)

		switch action.action {
		case "new":
			ref.ID = storage.GenerateUniqueID(merged.Refs, ref.ID)
			merged.Refs = append(merged.Refs, ref)
			stats.newCount++
		case "update":
			old := merged.Refs[action.existingIdx]
			updated := mergeRef(old, ref)
			if reflect.DeepEqual(old, updated) {
				action = importAction{action: "skip", reason: "unchanged", existingIdx: action.existingIdx}
				stats.skipped++
			} else {
				merged.Refs[action.existingIdx] = updated
				stats.updated++
			}
			ref.ID = old.ID
		}

		details = append(details, ImportDetail{
			ID:     ref.ID,
			Action: action.action,
			Title:  ref.Extra["title"],
			Reason: action.reason,
		})
	}

	merged.Renumber()
	return merged, stats, details
}

// tagKey identifies a tag by its path of names from the root.
func tagKey(parentKey, name string) string {
	return parentKey + "/" + name
}

// mergeTags adds incoming tags missing from s, matching by path. It returns
// the incoming-to-merged ID mapping and the number of tags added.
func mergeTags(s *storage.Snapshot, incoming []storage.TagRecord) (map[int]int, int) {
	keys := map[int]string{0: ""}
	byKey := make(map[string]int)
	maxID := 0
	for _, t := range s.Tags {
		key := tagKey(keys[t.Parent], t.Name)
		keys[t.ID] = key
		byKey[key] = t.ID // a repeated path resolves to the last declaration
		maxID = max(maxID, t.ID)
	}

	ids := map[int]int{0: 0}
	incomingKeys := map[int]string{0: ""}
	added := 0
	for _, t := range incoming {
		key := tagKey(incomingKeys[t.Parent], t.Name)
		incomingKeys[t.ID] = key

		if id, ok := byKey[key]; ok {
			ids[t.ID] = id
			continue
		}

		maxID++
		rec := t
		rec.ID = maxID
		rec.Parent = ids[t.Parent]
		s.Tags = append(s.Tags, rec)
		byKey[key] = maxID
		ids[t.ID] = maxID
		added++
	}
	return ids, added
}

func remapLinks(links []storage.TagLink, ids map[int]int) []storage.TagLink {
	if links == nil {
		return nil
	}
	out := make([]storage.TagLink, len(links))
	for i, l := range links {
		l.ID = ids[l.ID]
		out[i] = l
	}
	return out
}

// importAction describes how to handle an incoming reference.
type importAction struct {
	action      string // "new", "update" or "skip"
	reason      string // "doi_match", "id_match", "unchanged"
	existingIdx int    // index of the matched reference, -1 if new
}

// classifyImport matches an incoming reference against existing ones.
// DOI is the primary match; an equal ID with the same title is the fallback.
func classifyImport(existing []storage.RefRecord, ref storage.RefRecord) importAction {
	if doi := export.NormalizeDOI(ref.Extra["doi"]); doi != "" {
		for i, e := range existing {
			if export.NormalizeDOI(e.Extra["doi"]) == doi {
				return importAction{action: "update", reason: "doi_match", existingIdx: i}
			}
		}
	}

	if idx, found := storage.FindByID(existing, ref.ID); found {
		if strings.EqualFold(strings.TrimSpace(existing[idx].Extra["title"]), strings.TrimSpace(ref.Extra["title"])) {
			return importAction{action: "update", reason: "id_match", existingIdx: idx}
		}
	}

	return importAction{action: "new", existingIdx: -1}
}

// mergeRef combines a stored reference with an incoming version of it.
// Incoming non-empty fields win; tags and reviews are unions in order.
func mergeRef(old, incoming storage.RefRecord) storage.RefRecord {
	merged := old
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&merged.Authors, incoming.Authors},
		{&merged.Abstract, incoming.Abstract},
		{&merged.Comment, incoming.Comment},
		{&merged.PubDate, incoming.PubDate},
		{&merged.EPubDate, incoming.EPubDate},
		{&merged.InsertDate, incoming.InsertDate},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}

	if len(incoming.Extra) > 0 {
		merged.Extra = maps.Clone(old.Extra)
		if merged.Extra == nil {
			merged.Extra = make(map[string]string, len(incoming.Extra))
		}
		changed := false
		for k, v := range incoming.Extra {
			if merged.Extra[k] != v {
				merged.Extra[k] = v
				changed = true
			}
		}
		if !changed {
			merged.Extra = old.Extra
		}
	}

	merged.Tags = slices.Clone(old.Tags)
	for _, l := range incoming.Tags {
		i := slices.IndexFunc(merged.Tags, func(e storage.TagLink) bool { return e.ID == l.ID })
		if i < 0 {
			merged.Tags = append(merged.Tags, l)
		} else {
			merged.Tags[i].Order = l.Order
		}
	}

	merged.Reviews = slices.Clone(old.Reviews)
	for _, r := range incoming.Reviews {
		if !slices.Contains(merged.Reviews, r) {
			merged.Reviews = append(merged.Reviews, r)
		}
	}

	return merged
}

func reportDryRun(stats importStats, details []ImportDetail) {
	if humanOutput {
		fmt.Printf("Would import: %d new, %d update, %d skip, %d new tags\n",
			stats.newCount, stats.updated, stats.skipped, stats.tagsAdded)
		for _, d := range details {
			reason := ""
			if d.Reason != "" {
				reason = " (" + d.Reason + ")"
			}
			fmt.Printf("  %-6s %s%s: %s\n", d.Action, d.ID, reason, truncateString(d.Title, ListTitleMaxLen))
		}
		return
	}
	outputJSON(DryRunResult{
		WouldAdd:    stats.newCount,
		WouldUpdate: stats.updated,
		WouldSkip:   stats.skipped,
		TagsAdded:   stats.tagsAdded,
		Details:     details,
	})
}

func reportImportResults(result ImportResult) {
	if humanOutput {
		fmt.Printf("Imported %d new, %d updated, %d skipped references (%d new tags)\n",
			result.New, result.Updated, result.Skipped, result.TagsAdded)
		if result.BibTeXPath != "" {
			fmt.Printf("Exported %d entries to %s\n", len(result.Exported), result.BibTeXPath)
		}
		return
	}
	outputJSON(result)
}
