// Package reference defines the core domain types for reviewed bibliographic references.
package reference

import (
	"slices"
	"strconv"
	"strings"

	"github.com/matsen/bibreview/internal/tag"
)

// Reference is one bibliographic entry together with its review history.
type Reference struct {
	// Free text accumulated from character data
	Authors  string
	Abstract string
	Comment  string

	PubDate    Date
	EPubDate   Date
	InsertDate Date

	Tags          []TagRef
	ReviewHistory []ReviewEntry

	// Extra holds attributes without a typed field (title, journal, pmid, ...).
	Extra map[string]string
}

// TagRef attaches a tag to a reference with an ordering weight.
type TagRef struct {
	Tag   *tag.Tag
	Order int
}

// New returns an empty reference.
func New() *Reference {
	return &Reference{Extra: make(map[string]string)}
}

// AddTag registers t on the reference. Adding a tag twice updates its order.
func (r *Reference) AddTag(t *tag.Tag, order int) {
	for i := range r.Tags {
		if r.Tags[i].Tag == t {
			r.Tags[i].Order = order
			return
		}
	}
	r.Tags = append(r.Tags, TagRef{Tag: t, Order: order})
}

// HasTag reports whether a tag with the given name is attached.
func (r *Reference) HasTag(name string) bool {
	return slices.ContainsFunc(r.Tags, func(tr TagRef) bool {
		return tr.Tag.Name == name
	})
}

// TagNames returns the names of the attached tags in attachment order.
func (r *Reference) TagNames() []string {
	names := make([]string, len(r.Tags))
	for i, tr := range r.Tags {
		names[i] = tr.Tag.Name
	}
	return names
}

// AppendReview adds an entry to the end of the review history.
func (r *Reference) AppendReview(e ReviewEntry) {
	r.ReviewHistory = append(r.ReviewHistory, e)
}

// LastReview returns the most recently appended review entry.
func (r *Reference) LastReview() (ReviewEntry, bool) {
	if len(r.ReviewHistory) == 0 {
		return ReviewEntry{}, false
	}
	return r.ReviewHistory[len(r.ReviewHistory)-1], true
}

// Set assigns an attribute by name. Authors, abstract and comment are typed
// fields; every other name lands in Extra uninterpreted.
func (r *Reference) Set(attr, value string) {
	switch attr {
	case "authors":
		r.Authors = value
	case "abstract":
		r.Abstract = value
	case "comment":
		r.Comment = value
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[attr] = value
	}
}

// Attr reads an attribute by name, the inverse of Set.
func (r *Reference) Attr(attr string) string {
	switch attr {
	case "authors":
		return r.Authors
	case "abstract":
		return r.Abstract
	case "comment":
		return r.Comment
	default:
		return r.Extra[attr]
	}
}

// Title returns the title attribute.
func (r *Reference) Title() string {
	return r.Extra["title"]
}

// Journal returns the journal attribute.
func (r *Reference) Journal() string {
	return r.Extra["journal"]
}

// Year returns the publication year, falling back to the year attribute.
func (r *Reference) Year() int {
	if !r.PubDate.IsZero() {
		return r.PubDate.Year
	}
	if y, err := strconv.Atoi(r.Extra["year"]); err == nil {
		return y
	}
	return 0
}

// CiteKey returns the key attribute when present, otherwise the first
// author's surname followed by the publication year.
func (r *Reference) CiteKey() string {
	for _, attr := range []string{"key", "id"} {
		if k := strings.TrimSpace(r.Extra[attr]); k != "" {
			return k
		}
	}

	key := "ref"
	if authors := ParseAuthors(r.Authors); len(authors) > 0 && authors[0].Last != "" {
		key = keySafe(authors[0].Last)
	}
	if y := r.Year(); y > 0 {
		key += strconv.Itoa(y)
	}
	return key
}

// keySafe drops characters that are not letters or digits.
func keySafe(s string) string {
	var b strings.Builder
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c > 127 {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "ref"
	}
	return b.String()
}
