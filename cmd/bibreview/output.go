package main

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/matsen/bibreview/internal/base"
	"github.com/matsen/bibreview/internal/export"
	"github.com/matsen/bibreview/internal/importer"
	"github.com/matsen/bibreview/internal/reference"
	"github.com/matsen/bibreview/internal/storage"
	"github.com/matsen/bibreview/internal/tag"
)

// Constants for output formatting.
const (
	DefaultSearchLimit = 50 // Default limit for search/list commands

	ListTitleMaxLen   = 60 // Used in list and search output
	DetailTitleMaxLen = 70 // Used in get command detail view

	TextWrapWidth = 60 // Standard text wrap width
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitCodeFor maps a parse or load error to an exit code.
func exitCodeFor(err error) int {
	var parseErr *importer.ParseError
	var syntaxErr *xml.SyntaxError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ExitNotFound
	case errors.As(err, &parseErr), errors.As(err, &syntaxErr),
		errors.Is(err, importer.ErrEmptyDocument),
		errors.Is(err, base.ErrInvalidSortCriteria),
		errors.Is(err, export.ErrShadowedTag),
		errors.Is(err, tag.ErrUnknownTag),
		errors.Is(err, reference.ErrInvalidDate),
		errors.Is(err, reference.ErrInvalidStatus):
		return ExitDataError
	default:
		return ExitError
	}
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// printEntryLine prints one reference as a single summary line.
func printEntryLine(e *storage.Entry) {
	year := "    "
	if e.Year > 0 {
		year = fmt.Sprintf("%4d", e.Year)
	}
	status := e.LastStatus
	if status == "" {
		status = "-"
	}
	fmt.Printf("%-20s %s  %-4s  %s\n", e.ID, year, status, truncateString(e.Title, ListTitleMaxLen))
}

// printEntryDetail prints every stored field of a reference.
func printEntryDetail(e *storage.Entry) {
	fmt.Println(e.ID)
	fmt.Println(strings.Repeat("=", DetailTitleMaxLen))
	fmt.Println()

	fmt.Printf("Title:    %s\n", wrapText(e.Title, TextWrapWidth, "          "))
	if e.Authors != "" {
		fmt.Printf("Authors:  %s\n", wrapText(e.Authors, TextWrapWidth, "          "))
	}
	if e.Journal != "" {
		fmt.Printf("Journal:  %s\n", e.Journal)
	}
	if e.PubDate != "" {
		fmt.Printf("Date:     %s\n", e.PubDate)
	} else if e.Year > 0 {
		fmt.Printf("Year:     %d\n", e.Year)
	}
	if e.InsertDate != "" {
		fmt.Printf("Added:    %s\n", e.InsertDate)
	}
	if len(e.Tags) > 0 {
		fmt.Printf("Tags:     %s\n", strings.Join(e.Tags, ", "))
	}
	if e.LastStatus != "" {
		fmt.Printf("Status:   %s\n", e.LastStatus)
	}
	if doi := e.Extra["doi"]; doi != "" {
		fmt.Printf("DOI:      %s\n", doi)
	}

	if e.Abstract != "" {
		fmt.Println()
		fmt.Println("Abstract:")
		fmt.Printf("  %s\n", wrapText(strings.TrimSpace(e.Abstract), TextWrapWidth, "  "))
	}
	if e.Comment != "" {
		fmt.Println()
		fmt.Println("Comment:")
		fmt.Printf("  %s\n", wrapText(strings.TrimSpace(e.Comment), TextWrapWidth, "  "))
	}
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// wrapText wraps text to the specified width with indentation on subsequent lines.
func wrapText(text string, width int, indent string) string {
	if len(text) <= width {
		return text
	}

	var lines []string
	words := strings.Fields(text)
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n"+indent)
}
