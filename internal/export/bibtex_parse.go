package export

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/matsen/bibreview/internal/reference"
)

// BibTeXIndex indexes existing BibTeX entries for deduplication.
type BibTeXIndex struct {
	// Keys maps citation keys to true for existence check
	Keys map[string]bool
	// DOIs maps DOI values to citation keys
	DOIs map[string]string
}

var (
	// @type{key,
	entryStartRegex = regexp.MustCompile(`@\w+\{([^,]+),`)
	// doi = {value} or doi = "value"
	doiFieldRegex = regexp.MustCompile(`(?i)^\s*doi\s*=\s*[\{"]([^\}"]+)[\}"]`)
)

// NewBibTeXIndex creates an empty BibTeX index.
func NewBibTeXIndex() *BibTeXIndex {
	return &BibTeXIndex{
		Keys: make(map[string]bool),
		DOIs: make(map[string]string),
	}
}

// HasEntry returns true if the entry already exists (by DOI or key).
// DOI is the primary match; citation key is the fallback if no DOI.
func (idx *BibTeXIndex) HasEntry(key, doi string) bool {
	if doi != "" {
		if _, exists := idx.DOIs[NormalizeDOI(doi)]; exists {
			return true
		}
	}
	return idx.Keys[key]
}

// Add records an entry in the index.
func (idx *BibTeXIndex) Add(key, doi string) {
	idx.Keys[key] = true
	if d := NormalizeDOI(doi); d != "" {
		idx.DOIs[d] = key
	}
}

// ParseBibTeXFile builds an index from an existing .bib file.
// Returns an empty index if the file doesn't exist or is empty.
func ParseBibTeXFile(path string) (*BibTeXIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewBibTeXIndex(), nil
		}
		return nil, fmt.Errorf("reading bibtex file: %w", err)
	}
	return parseBibTeX(data)
}

func parseBibTeX(data []byte) (*BibTeXIndex, error) {
	idx := NewBibTeXIndex()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var currentKey string

	for scanner.Scan() {
		line := scanner.Text()

		if matches := entryStartRegex.FindStringSubmatch(line); len(matches) > 1 {
			currentKey = strings.TrimSpace(matches[1])
			idx.Keys[currentKey] = true
		}

		if matches := doiFieldRegex.FindStringSubmatch(line); len(matches) > 1 {
			doi := NormalizeDOI(matches[1])
			if doi != "" && currentKey != "" {
				idx.DOIs[doi] = currentKey
			}
		}
	}

	return idx, scanner.Err()
}

// NormalizeDOI normalizes a DOI for comparison.
// Removes common prefixes like "https://doi.org/" and lowercases.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi.org/")
	doi = strings.TrimPrefix(doi, "DOI:")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(doi)
}

// AppendNewBibTeX adds the references that are not yet in the .bib file at
// path and rewrites it atomically. keys parallels refs; nil assigns cite
// keys. It returns the keys that were added.
func AppendNewBibTeX(path string, refs []*reference.Reference, keys []string) ([]string, error) {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading bibtex file: %w", err)
	}
	idx, err := parseBibTeX(existing)
	if err != nil {
		return nil, fmt.Errorf("indexing bibtex file: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(existing)

	if keys == nil {
		keys = reference.AssignKeys(refs)
	}
	if len(keys) != len(refs) {
		return nil, fmt.Errorf("got %d keys for %d references", len(keys), len(refs))
	}

	var added []string
	for i, ref := range refs {
		if idx.HasEntry(keys[i], ref.Extra["doi"]) {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(ToBibTeX(ref, keys[i]))
		idx.Add(keys[i], ref.Extra["doi"])
		added = append(added, keys[i])
	}

	if len(added) == 0 {
		return nil, nil
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return nil, fmt.Errorf("writing bibtex file: %w", err)
	}
	return added, nil
}
