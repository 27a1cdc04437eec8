// Package base defines the root aggregate of a bibliography: metadata, the
// tag tree and the reviewed references.
package base

import (
	"github.com/matsen/bibreview/internal/reference"
	"github.com/matsen/bibreview/internal/tag"
)

// Base is a full bibliography collection.
type Base struct {
	Name             string
	ReviewMode       int
	AutoExportBibTeX bool
	SortCriteria     string
	Comment          string
	RootTag          *tag.Tag
	Filename         string // where the base was loaded from, if anywhere

	References []*reference.Reference
}

// Stats summarizes the size of a base.
type Stats struct {
	References int `json:"references"`
	Tags       int `json:"tags"`
	Reviews    int `json:"reviews"`
}

// New returns an empty base with a fresh tag root.
func New() *Base {
	return &Base{RootTag: tag.NewRoot()}
}

// Add commits a reference to the base.
func (b *Base) Add(ref *reference.Reference) {
	b.References = append(b.References, ref)
}

// FindByKey returns the first reference whose cite key matches.
func (b *Base) FindByKey(key string) (*reference.Reference, bool) {
	for _, ref := range b.References {
		if ref.CiteKey() == key {
			return ref, true
		}
	}
	return nil, false
}

// ReferencesWithTag returns the references carrying the named tag or any
// tag below it.
func (b *Base) ReferencesWithTag(name string) ([]*reference.Reference, error) {
	want, err := b.RootTag.Lookup(name)
	if err != nil {
		return nil, err
	}

	var refs []*reference.Reference
	for _, ref := range b.References {
		for _, tr := range ref.Tags {
			if tr.Tag.IsDescendantOf(want) {
				refs = append(refs, ref)
				break
			}
		}
	}
	return refs, nil
}

// Stats counts references, tags and review entries.
func (b *Base) Stats() Stats {
	s := Stats{References: len(b.References), Tags: b.RootTag.Len()}
	for _, ref := range b.References {
		s.Reviews += len(ref.ReviewHistory)
	}
	return s
}
