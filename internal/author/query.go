// Package author matches author filters against the free-text authors
// field of a reference.
package author

import (
	"strings"
	"unicode"

	"github.com/matsen/bibreview/internal/reference"
)

// Query is one parsed author filter.
type Query struct {
	First string // may be empty for last-name-only queries
	Last  string
}

// ParseQuery parses an author filter. "Yu" is a last name, "Timothy Yu"
// and "Yu, Timothy" are first plus last. Case is kept; matching ignores it.
func ParseQuery(input string) Query {
	input = strings.TrimSpace(input)
	if input == "" {
		return Query{}
	}

	if last, first, ok := strings.Cut(input, ","); ok && strings.TrimSpace(last) != "" {
		return Query{First: strings.TrimSpace(first), Last: strings.TrimSpace(last)}
	}

	parts := strings.Fields(input)
	if len(parts) == 1 {
		return Query{Last: parts[0]}
	}
	return Query{
		First: strings.Join(parts[:len(parts)-1], " "),
		Last:  parts[len(parts)-1],
	}
}

// ParseQueries parses each filter, dropping empty ones.
func ParseQueries(inputs []string) []Query {
	var queries []Query
	for _, in := range inputs {
		if q := ParseQuery(in); q.Last != "" {
			queries = append(queries, q)
		}
	}
	return queries
}

// Matches reports whether q names a.
//
// The last name must match exactly, ignoring case, so "Yu" does not match
// "Yujia". A first name in the query is a prefix of the author's, and when
// the author only has initials the query's initials must lead them:
// "Tim Yu" matches "Timothy C Yu" and "Yu, T. C.".
func (q Query) Matches(a reference.Author) bool {
	if !strings.EqualFold(q.Last, a.Last) {
		return false
	}
	if q.First == "" {
		return true
	}

	first := strings.ToLower(a.First)
	want := strings.ToLower(q.First)
	if strings.HasPrefix(first, want) {
		return true
	}
	if !onlyInitials(a.First) {
		return false
	}
	want = initials(q.First)
	return want != "" && strings.HasPrefix(initials(a.First), want)
}

func nameParts(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '.' || r == '-' })
}

// onlyInitials matches "J.", "J. A." and "JA" but not "Jo".
func onlyInitials(s string) bool {
	parts := nameParts(s)
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if len([]rune(p)) > 1 && !isInitialRun(p) {
			return false
		}
	}
	return true
}

// initials returns the leading letter of each name part, lowercased.
// "J. A." and "JA" both give "ja".
func initials(s string) string {
	var b strings.Builder
	for _, part := range nameParts(s) {
		if isInitialRun(part) {
			for _, r := range part {
				b.WriteRune(unicode.ToLower(r))
			}
			continue
		}
		for _, r := range part {
			b.WriteRune(unicode.ToLower(r))
			break
		}
	}
	return b.String()
}

// isInitialRun matches "JA" in "Smith JA".
func isInitialRun(s string) bool {
	if len([]rune(s)) > 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// MatchesAny reports whether q names any of the authors.
func (q Query) MatchesAny(authors []reference.Author) bool {
	for _, a := range authors {
		if q.Matches(a) {
			return true
		}
	}
	return false
}

// AllMatch reports whether every query names at least one author.
func AllMatch(queries []Query, authors []reference.Author) bool {
	for _, q := range queries {
		if !q.MatchesAny(authors) {
			return false
		}
	}
	return true
}

// MatchesField parses a free-text authors field and applies AllMatch.
func MatchesField(queries []Query, field string) bool {
	if len(queries) == 0 {
		return true
	}
	return AllMatch(queries, reference.ParseAuthors(field))
}
