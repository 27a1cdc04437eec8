// Package export writes bases and references to BibTeX and BibReview XML.
package export

import (
	"fmt"
	"strings"

	"github.com/matsen/bibreview/internal/reference"
)

// ToBibTeX converts a reference to a BibTeX entry under the given key.
func ToBibTeX(ref *reference.Reference, key string) string {
	entryType := determineEntryType(ref)
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, key))

	// Authors
	if authors := reference.ParseAuthors(ref.Authors); len(authors) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(authors)))
	}

	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(ref.Title())))

	// Venue
	if journal := ref.Journal(); journal != "" {
		fieldName := "journal"
		if entryType == "inproceedings" {
			fieldName = "booktitle"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(journal)))
	}

	if year := ref.Year(); year > 0 {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", year))
	}
	if ref.PubDate.Month > 0 {
		b.WriteString(fmt.Sprintf("  month = {%d},\n", ref.PubDate.Month))
	}

	if doi := ref.Extra["doi"]; doi != "" {
		b.WriteString(fmt.Sprintf("  doi = {%s},\n", doi))
	}
	if pmid := ref.Extra["pmid"]; pmid != "" {
		b.WriteString(fmt.Sprintf("  pmid = {%s},\n", pmid))
	}

	if ref.Abstract != "" {
		b.WriteString(fmt.Sprintf("  abstract = {%s},\n", escapeLatex(strings.TrimSpace(ref.Abstract))))
	}

	if len(ref.Tags) > 0 {
		b.WriteString(fmt.Sprintf("  keywords = {%s},\n", escapeLatex(strings.Join(ref.TagNames(), ", "))))
	}

	if last, ok := ref.LastReview(); ok {
		b.WriteString(fmt.Sprintf("  note = {review status %s by %s on %s},\n",
			escapeLatex(last.Status.String()), escapeLatex(last.User), last.Time.Format("2006-01-02")))
	}

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts references to BibTeX, keying them with
// reference.AssignKeys.
func ToBibTeXList(refs []*reference.Reference) string {
	keys := reference.AssignKeys(refs)
	entries := make([]string, len(refs))
	for i, ref := range refs {
		entries[i] = ToBibTeX(ref, keys[i])
	}
	return strings.Join(entries, "\n")
}

// determineEntryType returns the BibTeX entry type for a reference.
func determineEntryType(ref *reference.Reference) string {
	if t := ref.Extra["type"]; t != "" {
		return strings.ToLower(t)
	}

	venue := strings.ToLower(ref.Journal())

	// Conference proceedings
	if strings.Contains(venue, "proceedings") ||
		strings.Contains(venue, "conference") ||
		strings.Contains(venue, "workshop") ||
		strings.Contains(venue, "symposium") {
		return "inproceedings"
	}

	return "article"
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First"
func formatAuthors(authors []reference.Author) string {
	formatted := make([]string, len(authors))
	for i, a := range authors {
		formatted[i] = escapeLatex(a.String())
	}
	return strings.Join(formatted, " and ")
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	// Single pass: the braces in \textbackslash{} are not escaped again
	replacer := strings.NewReplacer(
		`\`, `\textbackslash{}`,
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
