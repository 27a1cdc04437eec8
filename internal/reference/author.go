package reference

import (
	"strings"
	"unicode"
)

// Author is one name split out of a reference's free-text authors field.
type Author struct {
	First string `json:"first"` // Given name(s) or initials
	Last  string `json:"last"`  // Family name
}

// ParseAuthors splits an authors string into names. Recognized layouts:
//
//	Smith, J.; Doe, A.          semicolon separated "Last, First"
//	John Smith and Jane Doe     BibTeX style
//	Smith JA, Doe A             PubMed style
//	Smith, J.                   a single "Last, First"
func ParseAuthors(s string) []Author {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var parts []string
	switch {
	case strings.Contains(s, ";"):
		parts = strings.Split(s, ";")
	case strings.Contains(s, " and "):
		parts = strings.Split(s, " and ")
	default:
		commaParts := strings.Split(s, ",")
		if len(commaParts) == 2 && looksLikeInitials(strings.TrimSpace(commaParts[1])) {
			parts = []string{s}
		} else {
			parts = commaParts
		}
	}

	var authors []Author
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		authors = append(authors, parseName(p))
	}
	return authors
}

// parseName handles a single "Last, First", "Last Initials" or "First Last".
func parseName(s string) Author {
	if last, first, ok := strings.Cut(s, ","); ok {
		return Author{First: strings.TrimSpace(first), Last: strings.TrimSpace(last)}
	}

	fields := strings.Fields(s)
	if len(fields) == 1 {
		return Author{Last: fields[0]}
	}

	tail := fields[len(fields)-1]
	head := strings.Join(fields[:len(fields)-1], " ")
	if looksLikeInitials(tail) {
		return Author{First: tail, Last: head}
	}
	return Author{First: head, Last: tail}
}

// looksLikeInitials matches "J", "JA", "J.", "J. A." and similar.
func looksLikeInitials(s string) bool {
	letters := 0
	for _, c := range s {
		switch {
		case c == '.' || c == ' ' || c == '-':
		case unicode.IsUpper(c):
			letters++
		default:
			return false
		}
	}
	return letters > 0 && letters <= 3
}

// String formats the author as "Last, First".
func (a Author) String() string {
	if a.First == "" {
		return a.Last
	}
	return a.Last + ", " + a.First
}
