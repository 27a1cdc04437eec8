package storage

import (
	"fmt"
	"maps"

	"github.com/matsen/bibreview/internal/base"
	"github.com/matsen/bibreview/internal/reference"
	"github.com/matsen/bibreview/internal/tag"
)

// BaseRecord is the metadata line of a saved base.
type BaseRecord struct {
	Name             string `json:"name"`
	ReviewMode       int    `json:"review_mode"`
	AutoExportBibTeX bool   `json:"auto_export_bibtex"`
	SortCriteria     string `json:"sort_criteria,omitempty"`
	Comment          string `json:"comment,omitempty"`
	Source           string `json:"source,omitempty"` // file the base was imported from
}

// TagRecord is one node of the tag tree. IDs are assigned in pre-order
// starting at 1; Parent 0 is the root.
type TagRecord struct {
	ID            int     `json:"id"`
	Parent        int     `json:"parent"`
	Name          string  `json:"name"`
	Category      string  `json:"category,omitempty"`
	CategoryValue *string `json:"category_value,omitempty"`
	Exclusive     bool    `json:"exclusive,omitempty"`
}

// TagLink attaches a tag to a reference record. Name is informational; ID
// is authoritative since tag names may repeat.
type TagLink struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order,omitempty"`
}

// ReviewRecord is one review history entry.
type ReviewRecord struct {
	Date   string `json:"date"`
	User   string `json:"user"`
	Status string `json:"status"`
}

// RefRecord is one reference line in refs.jsonl.
type RefRecord struct {
	ID         string            `json:"id"`
	Authors    string            `json:"authors,omitempty"`
	Abstract   string            `json:"abstract,omitempty"`
	Comment    string            `json:"comment,omitempty"`
	PubDate    string            `json:"pub_date,omitempty"`
	EPubDate   string            `json:"epub_date,omitempty"`
	InsertDate string            `json:"insert_date,omitempty"`
	Tags       []TagLink         `json:"tags,omitempty"`
	Reviews    []ReviewRecord    `json:"reviews,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Snapshot is a base in record form, as persisted.
type Snapshot struct {
	Base BaseRecord
	Tags []TagRecord
	Refs []RefRecord
}

// NewSnapshot flattens a base.
func NewSnapshot(b *base.Base) Snapshot {
	meta, tags, refs := ToRecords(b)
	return Snapshot{Base: meta, Tags: tags, Refs: refs}
}

// ToBase rebuilds the base held by s.
func (s Snapshot) ToBase() (*base.Base, error) {
	return FromRecords(s.Base, s.Tags, s.Refs)
}

// Renumber reassigns tag IDs in pre-order of the tree the records describe,
// updating parents and reference links. Records appended out of tree order
// (by a merge, say) come back in the order ToRecords would produce.
func (s *Snapshot) Renumber() {
	children := make(map[int][]TagRecord)
	for _, t := range s.Tags {
		children[t.Parent] = append(children[t.Parent], t)
	}

	remap := map[int]int{0: 0}
	tags := make([]TagRecord, 0, len(s.Tags))
	var visit func(parent int)
	visit = func(parent int) {
		for _, t := range children[parent] {
			old := t.ID
			t.ID = len(tags) + 1
			t.Parent = remap[parent]
			remap[old] = t.ID
			tags = append(tags, t)
			visit(old)
		}
	}
	visit(0)
	s.Tags = tags

	for i := range s.Refs {
		for j := range s.Refs[i].Tags {
			s.Refs[i].Tags[j].ID = remap[s.Refs[i].Tags[j].ID]
		}
	}
}

// ToRecords flattens a base. Reference IDs are unique cite keys in base order.
func ToRecords(b *base.Base) (BaseRecord, []TagRecord, []RefRecord) {
	meta := BaseRecord{
		Name:             b.Name,
		ReviewMode:       b.ReviewMode,
		AutoExportBibTeX: b.AutoExportBibTeX,
		SortCriteria:     b.SortCriteria,
		Comment:          b.Comment,
		Source:           b.Filename,
	}

	ids := make(map[*tag.Tag]int)
	var tags []TagRecord
	b.RootTag.Walk(func(t *tag.Tag) bool {
		if t.IsRoot() {
			return true
		}
		id := len(tags) + 1
		ids[t] = id
		rec := TagRecord{
			ID:        id,
			Parent:    ids[t.Parent()], // 0 for the root
			Name:      t.Name,
			Category:  t.Category,
			Exclusive: t.Exclusive,
		}
		if t.CategoryValue.IsSet() {
			v := t.CategoryValue.String()
			rec.CategoryValue = &v
		}
		tags = append(tags, rec)
		return true
	})

	keys := reference.AssignKeys(b.References)
	refs := make([]RefRecord, len(b.References))
	for i, ref := range b.References {
		rec := RefRecord{
			ID:         keys[i],
			Authors:    ref.Authors,
			Abstract:   ref.Abstract,
			Comment:    ref.Comment,
			PubDate:    dateString(ref.PubDate),
			EPubDate:   dateString(ref.EPubDate),
			InsertDate: dateString(ref.InsertDate),
		}
		if len(ref.Extra) > 0 {
			rec.Extra = maps.Clone(ref.Extra)
		}
		for _, tr := range ref.Tags {
			rec.Tags = append(rec.Tags, TagLink{ID: ids[tr.Tag], Name: tr.Tag.Name, Order: tr.Order})
		}
		for _, e := range ref.ReviewHistory {
			rec.Reviews = append(rec.Reviews, ReviewRecord{
				Date:   reference.FormatReviewTime(e.Time),
				User:   e.User,
				Status: e.Status.String(),
			})
		}
		refs[i] = rec
	}

	return meta, tags, refs
}

// FromRecords rebuilds a base from its records. Tag records must list
// parents before children.
func FromRecords(meta BaseRecord, tags []TagRecord, refs []RefRecord) (*base.Base, error) {
	b := base.New()
	b.Name = meta.Name
	b.ReviewMode = meta.ReviewMode
	b.AutoExportBibTeX = meta.AutoExportBibTeX
	b.SortCriteria = meta.SortCriteria
	b.Comment = meta.Comment
	b.Filename = meta.Source

	byID := map[int]*tag.Tag{0: b.RootTag}
	for _, rec := range tags {
		parent, ok := byID[rec.Parent]
		if !ok {
			return nil, fmt.Errorf("tag %d (%s): unknown parent %d", rec.ID, rec.Name, rec.Parent)
		}
		value := tag.NoCategoryValue()
		if rec.CategoryValue != nil {
			value = tag.ParseCategoryValue(*rec.CategoryValue, true)
		}
		byID[rec.ID] = parent.AddChild(rec.Name, rec.Category, value, rec.Exclusive)
	}

	for _, rec := range refs {
		ref, err := fromRefRecord(rec, byID)
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", rec.ID, err)
		}
		b.Add(ref)
	}
	return b, nil
}

func fromRefRecord(rec RefRecord, tags map[int]*tag.Tag) (*reference.Reference, error) {
	ref := reference.New()
	ref.Authors = rec.Authors
	ref.Abstract = rec.Abstract
	ref.Comment = rec.Comment
	maps.Copy(ref.Extra, rec.Extra)

	var err error
	if ref.PubDate, err = parseOptionalDate(rec.PubDate); err != nil {
		return nil, err
	}
	if ref.EPubDate, err = parseOptionalDate(rec.EPubDate); err != nil {
		return nil, err
	}
	if ref.InsertDate, err = parseOptionalDate(rec.InsertDate); err != nil {
		return nil, err
	}

	for _, link := range rec.Tags {
		t, ok := tags[link.ID]
		if !ok || t.IsRoot() {
			return nil, fmt.Errorf("%w: id %d (%s)", tag.ErrUnknownTag, link.ID, link.Name)
		}
		ref.AddTag(t, link.Order)
	}

	for _, r := range rec.Reviews {
		when, err := reference.ParseReviewTime(r.Date)
		if err != nil {
			return nil, err
		}
		status, err := reference.ParseReviewStatus(r.Status)
		if err != nil {
			return nil, err
		}
		ref.AppendReview(reference.ReviewEntry{Time: when, User: r.User, Status: status})
	}
	return ref, nil
}

func dateString(d reference.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseOptionalDate(s string) (reference.Date, error) {
	if s == "" {
		return reference.Date{}, nil
	}
	return reference.ParseDate(s)
}
