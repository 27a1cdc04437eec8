package export

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matsen/bibreview/internal/base"
	"github.com/matsen/bibreview/internal/importer"
	"github.com/matsen/bibreview/internal/tag"
)

const roundTripDoc = `<base name="phylo" review_mode="1" auto_export_bibtex="1" sort_criteria="authors">
  <comment>Shared &amp; reviewed</comment>
  <tag name="topic" exclusive="1">
    <tag name="trees" category="field" category_value="3"/>
    <tag name="cells" category="field" category_value="n/a"/>
  </tag>
  <tag name="todo"/>
  <reference tags="trees,todo" pub_date="2019-3-7" epub_date="2019-2-1" insert_date="2021-1-2" title="Trees &lt;&amp;&gt; more" journal="Syst Biol">
    <authors>Adams, M.</authors>
    <abstract>Line one.
Line two.</abstract>
    <comment>check</comment>
    <review_status date="2021-01-02 09:00:00" user="amy" status="None"/>
    <review_status date="2021-01-03 10:15:30.500000" user="bob" status="c"/>
    <review_status date="2021-01-04 11:00:00" user="amy" status="3"/>
  </reference>
  <reference authors="Brown, K." title="Cells"/>
</base>`

// flatBase is a comparable view of a base with the tag tree flattened.
type flatBase struct {
	Name, SortCriteria, Comment string
	ReviewMode                  int
	AutoExport                  bool
	Tags                        [][]string
	TagValues                   []tag.CategoryValue
	Refs                        []flatRef
}

type flatRef struct {
	Authors, Abstract, Comment string
	Dates                      []string
	Tags                       []string
	Reviews                    []string
	Extra                      map[string]string
}

func flatten(b *base.Base) flatBase {
	f := flatBase{
		Name: b.Name, SortCriteria: b.SortCriteria, Comment: b.Comment,
		ReviewMode: b.ReviewMode, AutoExport: b.AutoExportBibTeX,
	}
	b.RootTag.Walk(func(t *tag.Tag) bool {
		if !t.IsRoot() {
			f.Tags = append(f.Tags, append(t.Path(), t.Category, boolAttr(t.Exclusive)))
			f.TagValues = append(f.TagValues, t.CategoryValue)
		}
		return true
	})
	for _, r := range b.References {
		fr := flatRef{
			Authors: r.Authors, Abstract: r.Abstract, Comment: r.Comment,
			Dates: []string{r.PubDate.String(), r.EPubDate.String(), r.InsertDate.String()},
			Tags:  r.TagNames(),
			Extra: r.Extra,
		}
		for _, e := range r.ReviewHistory {
			fr.Reviews = append(fr.Reviews, e.Time.String()+"|"+e.User+"|"+e.Status.String())
		}
		f.Refs = append(f.Refs, fr)
	}
	return f
}

func TestWriteBibReview_RoundTrip(t *testing.T) {
	original, err := importer.Parse(roundTripDoc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	var buf bytes.Buffer
	if err := WriteBibReview(&buf, original); err != nil {
		t.Fatalf("WriteBibReview() error = %v", err)
	}

	reparsed, err := importer.Parse(buf.String())
	if err != nil {
		t.Fatalf("Parse(written) error = %v\n%s", err, buf.String())
	}

	if diff := cmp.Diff(flatten(original), flatten(reparsed)); diff != "" {
		t.Errorf("round trip mismatch (-original +reparsed):\n%s\nwritten:\n%s", diff, buf.String())
	}
}

func TestBibReviewString_Shape(t *testing.T) {
	b, err := importer.Parse(roundTripDoc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got, err := BibReviewString(b)
	if err != nil {
		t.Fatalf("BibReviewString() error = %v", err)
	}

	if !strings.HasPrefix(got, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Errorf("missing XML declaration:\n%s", got)
	}
	// Tags are written before references so names resolve on re-import.
	if strings.Index(got, "<tag ") > strings.Index(got, "<reference") {
		t.Errorf("tags should precede references:\n%s", got)
	}
	if !strings.Contains(got, `exclusive="1"`) || !strings.Contains(got, `category_value="n/a"`) {
		t.Errorf("tag attributes missing:\n%s", got)
	}
}

func TestBibReviewString_EmptyBase(t *testing.T) {
	got, err := BibReviewString(base.New())
	if err != nil {
		t.Fatalf("BibReviewString() error = %v", err)
	}

	b, err := importer.Parse(got)
	if err != nil {
		t.Fatalf("Parse(empty base) error = %v\n%s", err, got)
	}
	if len(b.References) != 0 || b.RootTag.Len() != 0 {
		t.Errorf("empty base round trip produced %+v", b.Stats())
	}
}

func TestWriteBibReview_ShadowedTag(t *testing.T) {
	b, err := importer.Parse(`<base name="x">
  <tag name="a"><tag name="dup"/></tag>
  <reference tags="dup" title="Early"/>
  <tag name="b"><tag name="dup"/></tag>
</base>`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := b.References[0].Tags[0].Tag.Path(); !slices.Equal(got, []string{"a", "dup"}) {
		t.Fatalf("parsed tag path = %v, want [a dup]", got)
	}

	var buf bytes.Buffer
	err = WriteBibReview(&buf, b)
	if !errors.Is(err, ErrShadowedTag) {
		t.Fatalf("WriteBibReview() error = %v, want ErrShadowedTag", err)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written on error, got:\n%s", buf.String())
	}
	if _, err := BibReviewString(b); !errors.Is(err, ErrShadowedTag) {
		t.Errorf("BibReviewString() error = %v, want ErrShadowedTag", err)
	}
}

func TestWriteBibReview_DuplicateNameLastDeclarationUsed(t *testing.T) {
	b, err := importer.Parse(`<base name="x">
  <tag name="a"><tag name="dup"/></tag>
  <tag name="b"><tag name="dup"/></tag>
  <reference tags="dup" title="Late"/>
</base>`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got, err := BibReviewString(b)
	if err != nil {
		t.Fatalf("BibReviewString() error = %v", err)
	}
	reparsed, err := importer.Parse(got)
	if err != nil {
		t.Fatalf("Parse(written) error = %v\n%s", err, got)
	}
	if path := reparsed.References[0].Tags[0].Tag.Path(); !slices.Equal(path, []string{"b", "dup"}) {
		t.Errorf("reparsed tag path = %v, want [b dup]", path)
	}
}
