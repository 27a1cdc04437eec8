package importer

import (
	"context"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matsen/bibreview/internal/base"
	"github.com/matsen/bibreview/internal/reference"
	"github.com/matsen/bibreview/internal/tag"
)

const sampleBase = `<?xml version="1.0" encoding="UTF-8"?>
<base name="phylo" review_mode="1" auto_export_bibtex="1" sort_criteria="-pub_date">
  <comment>Papers for the review.</comment>
  <tag name="topic" exclusive="1">
    <tag name="phylogenetics" category="field" category_value="1"/>
    <tag name="immunology" category="field" category_value="notanumber"/>
  </tag>
  <tag name="todo"/>
  <reference tags="phylogenetics, todo" pub_date="2019-3-7" insert_date="2021-01-02" title="Older paper" pmid="111">
    <authors>
      Doe, A.
    </authors>
    <abstract>First line. </abstract>
    <abstract>Second line.</abstract>
    <comment>Worth a look</comment>
    <review_status date="2021-01-02 09:00:00" user="amy" status="None"/>
    <review_status date="2020-12-31 09:00:00" user="bob" status="c"/>
    <review_status date="2021-01-03 10:15:30.500000" user="amy" status="2"/>
  </reference>
  <reference authors="Smith, J." pub_date="2020-1-5" title="Newer paper">
    <note>ignored text</note>
  </reference>
</base>`

// snapshot flattens a base into plain values so two parses can be compared.
type snapshot struct {
	Name             string
	ReviewMode       int
	AutoExportBibTeX bool
	SortCriteria     string
	Comment          string
	Tags             []tagSnapshot
	References       []refSnapshot
}

type tagSnapshot struct {
	Path      string
	Category  string
	Value     tag.CategoryValue
	Exclusive bool
}

type refSnapshot struct {
	Authors, Abstract, Comment string
	PubDate, EPubDate, Insert  reference.Date
	Tags                       map[string]int
	History                    []reference.ReviewEntry
	Extra                      map[string]string
}

func takeSnapshot(b *base.Base) snapshot {
	s := snapshot{
		Name:             b.Name,
		ReviewMode:       b.ReviewMode,
		AutoExportBibTeX: b.AutoExportBibTeX,
		SortCriteria:     b.SortCriteria,
		Comment:          b.Comment,
	}
	b.RootTag.Walk(func(t *tag.Tag) bool {
		if !t.IsRoot() {
			s.Tags = append(s.Tags, tagSnapshot{
				Path:      strings.Join(t.Path(), "/"),
				Category:  t.Category,
				Value:     t.CategoryValue,
				Exclusive: t.Exclusive,
			})
		}
		return true
	})
	for _, r := range b.References {
		rs := refSnapshot{
			Authors: r.Authors, Abstract: r.Abstract, Comment: r.Comment,
			PubDate: r.PubDate, EPubDate: r.EPubDate, Insert: r.InsertDate,
			Tags:    map[string]int{},
			History: r.ReviewHistory,
			Extra:   r.Extra,
		}
		for _, tr := range r.Tags {
			rs.Tags[tr.Tag.Name] = tr.Order
		}
		s.References = append(s.References, rs)
	}
	return s
}

func TestParse_ExampleScenario(t *testing.T) {
	doc := `<base name="x"><tag name="topic"/><reference authors="Smith, J." pub_date="2020-1-5"><review_status date="2020-01-05T10:00:00" user="bob" status="1"/></reference></base>`

	b, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if b.Name != "x" {
		t.Errorf("Name = %q, want x", b.Name)
	}
	if len(b.References) != 1 {
		t.Fatalf("len(References) = %d, want 1", len(b.References))
	}

	ref := b.References[0]
	if ref.Authors != "Smith, J." {
		t.Errorf("Authors = %q, want %q", ref.Authors, "Smith, J.")
	}
	if ref.PubDate != (reference.Date{Year: 2020, Month: 1, Day: 5}) {
		t.Errorf("PubDate = %v, want 2020-01-05", ref.PubDate)
	}

	want := []reference.ReviewEntry{{
		Time:   time.Date(2020, 1, 5, 10, 0, 0, 0, time.UTC),
		User:   "bob",
		Status: reference.Coded(1),
	}}
	if diff := cmp.Diff(want, ref.ReviewHistory); diff != "" {
		t.Errorf("ReviewHistory mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_FullDocument(t *testing.T) {
	b, err := Parse(sampleBase)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if b.ReviewMode != 1 || !b.AutoExportBibTeX || b.SortCriteria != "-pub_date" {
		t.Errorf("base attributes = mode %d, export %v, sort %q", b.ReviewMode, b.AutoExportBibTeX, b.SortCriteria)
	}
	if b.Comment != "Papers for the review." {
		t.Errorf("Comment = %q", b.Comment)
	}

	// Sorted newest first by -pub_date
	if len(b.References) != 2 {
		t.Fatalf("len(References) = %d, want 2", len(b.References))
	}
	newer, older := b.References[0], b.References[1]
	if newer.Title() != "Newer paper" || older.Title() != "Older paper" {
		t.Fatalf("order = [%s, %s], want newer first", newer.Title(), older.Title())
	}

	if older.Authors != "Doe, A." {
		t.Errorf("Authors = %q, want trimmed %q", older.Authors, "Doe, A.")
	}
	if older.Abstract != "First line. Second line." {
		t.Errorf("Abstract = %q", older.Abstract)
	}
	if older.Comment != "Worth a look" {
		t.Errorf("Comment = %q", older.Comment)
	}
	if older.InsertDate != (reference.Date{Year: 2021, Month: 1, Day: 2}) {
		t.Errorf("InsertDate = %v", older.InsertDate)
	}
	if older.Extra["pmid"] != "111" {
		t.Errorf("Extra[pmid] = %q, want 111", older.Extra["pmid"])
	}

	tagOrders := map[string]int{}
	for _, tr := range older.Tags {
		tagOrders[tr.Tag.Name] = tr.Order
	}
	if diff := cmp.Diff(map[string]int{"phylogenetics": 0, "todo": 0}, tagOrders); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_ReviewHistoryKeepsDocumentOrder(t *testing.T) {
	b, err := Parse(sampleBase)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	older := b.References[1]

	if len(older.ReviewHistory) != 3 {
		t.Fatalf("len(ReviewHistory) = %d, want 3", len(older.ReviewHistory))
	}
	var users []string
	var statuses []reference.ReviewStatus
	for _, e := range older.ReviewHistory {
		users = append(users, e.User)
		statuses = append(statuses, e.Status)
	}
	if diff := cmp.Diff([]string{"amy", "bob", "amy"}, users); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}
	wantStatuses := []reference.ReviewStatus{reference.Pending(), reference.Custom("c"), reference.Coded(2)}
	if diff := cmp.Diff(wantStatuses, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if got := older.ReviewHistory[2].Time.Nanosecond(); got != 500000000 {
		t.Errorf("microseconds not kept: nanosecond = %d", got)
	}
}

func TestParse_TagTree(t *testing.T) {
	b, err := Parse(sampleBase)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	topic, err := b.RootTag.Lookup("topic")
	if err != nil {
		t.Fatalf("Lookup(topic) error = %v", err)
	}
	if !topic.Exclusive || topic.Parent() != b.RootTag {
		t.Errorf("topic: exclusive=%v, parent is root=%v", topic.Exclusive, topic.Parent() == b.RootTag)
	}
	if len(topic.Children()) != 2 {
		t.Fatalf("topic has %d children, want 2", len(topic.Children()))
	}

	immuno, _ := b.RootTag.Lookup("immunology")
	if immuno.CategoryValue != tag.StringCategoryValue("notanumber") {
		t.Errorf("category_value = %+v, want literal notanumber", immuno.CategoryValue)
	}
	phylo, _ := b.RootTag.Lookup("phylogenetics")
	if phylo.CategoryValue != tag.IntCategoryValue(1) || phylo.Category != "field" {
		t.Errorf("phylogenetics = %+v", phylo)
	}
	todo, _ := b.RootTag.Lookup("todo")
	if todo.CategoryValue.IsSet() || todo.Category != "" || todo.Exclusive {
		t.Errorf("todo defaults = %+v", todo)
	}

	// Every tag resolved on a reference is reachable from the root.
	for _, ref := range b.References {
		for _, tr := range ref.Tags {
			if !tr.Tag.IsDescendantOf(b.RootTag) {
				t.Errorf("tag %q is not reachable from the root", tr.Tag.Name)
			}
		}
	}
}

func TestParse_CategoryValueNotANumber(t *testing.T) {
	b, err := Parse(`<base><tag name="t" category_value="notanumber"/></base>`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got, _ := b.RootTag.Lookup("t")
	if got.CategoryValue.String() != "notanumber" {
		t.Errorf("CategoryValue = %q, want notanumber", got.CategoryValue.String())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"unknown tag", `<base><reference tags="topic"/></base>`, tag.ErrUnknownTag},
		{"tag declared after reference", `<base><reference tags="topic"/><tag name="topic"/></base>`, tag.ErrUnknownTag},
		{"invalid pub date", `<base><reference pub_date="2020-13-1"/></base>`, reference.ErrInvalidDate},
		{"non numeric date", `<base><reference epub_date="soon"/></base>`, reference.ErrInvalidDate},
		{"invalid review date", `<base><reference><review_status date="later" user="u" status="1"/></reference></base>`, reference.ErrInvalidDate},
		{"invalid status", `<base><reference><review_status date="2020-1-1" user="u" status="maybe"/></reference></base>`, reference.ErrInvalidStatus},
		{"invalid exclusive", `<base><tag name="t" exclusive="yes"/></base>`, ErrInvalidInteger},
		{"invalid review mode", `<base review_mode="x"/>`, ErrInvalidInteger},
		{"tag without name", `<base><tag category="c"/></base>`, ErrMissingAttribute},
		{"review outside reference", `<base><review_status date="2020-1-1" user="u" status="1"/></base>`, ErrNoReference},
		{"nested reference", `<base><reference><reference/></reference></base>`, ErrNestedReference},
		{"empty document", ``, ErrEmptyDocument},
		{"lone sort prefix", `<base sort_criteria="authors, -"/>`, base.ErrInvalidSortCriteria},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("error %T is not a *ParseError", err)
			}
		})
	}
}

func TestParse_MalformedXML(t *testing.T) {
	for _, doc := range []string{
		`<base><tag name="a"></base>`,
		`<base><reference>`,
		`<base name="x"`,
	} {
		_, err := Parse(doc)
		var syntaxErr *xml.SyntaxError
		if !errors.As(err, &syntaxErr) {
			t.Errorf("Parse(%q) error = %v, want *xml.SyntaxError", doc, err)
		}
	}
}

func TestParse_ErrorLocation(t *testing.T) {
	doc := "<base>\n<tag name=\"a\"/>\n<reference tags=\"b\"/>\n</base>"

	_, err := Parse(doc)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if perr.Line != 3 || perr.Element != "reference" {
		t.Errorf("ParseError at line %d element %q, want line 3 element reference", perr.Line, perr.Element)
	}
}

func TestParse_MaxDepth(t *testing.T) {
	doc := strings.Repeat("<tag name=\"n\">", 10) + strings.Repeat("</tag>", 10)

	if _, err := Parse(doc, WithMaxDepth(5)); !errors.Is(err, ErrTooDeep) {
		t.Errorf("Parse() error = %v, want ErrTooDeep", err)
	}
	if _, err := Parse(doc, WithMaxDepth(10)); err != nil {
		t.Errorf("Parse() at the limit error = %v", err)
	}
}

func TestParse_DiscardedTextIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	b, err := Parse(sampleBase, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	entries := logs.FilterMessage("discarding character data").All()
	if len(entries) != 1 {
		t.Fatalf("got %d discard log entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["element"]; got != "note" {
		t.Errorf("logged element = %v, want note", got)
	}
	for _, ref := range b.References {
		if strings.Contains(ref.Comment+ref.Abstract+ref.Authors, "ignored") {
			t.Errorf("unrouted text leaked into reference %q", ref.Title())
		}
	}
}

func TestParse_AuthorsOutsideReferenceDiscarded(t *testing.T) {
	b, err := Parse(`<base><authors>nobody</authors><comment>kept</comment></base>`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if b.Comment != "kept" {
		t.Errorf("Comment = %q, want kept", b.Comment)
	}
	if len(b.References) != 0 {
		t.Errorf("len(References) = %d, want 0", len(b.References))
	}
}

func TestParse_Idempotent(t *testing.T) {
	first, err := Parse(sampleBase)
	if err != nil {
		t.Fatalf("first Parse() error = %v", err)
	}
	second, err := Parse(sampleBase)
	if err != nil {
		t.Fatalf("second Parse() error = %v", err)
	}

	if first == second || first.RootTag == second.RootTag {
		t.Fatal("parses share state")
	}
	if diff := cmp.Diff(takeSnapshot(first), takeSnapshot(second)); diff != "" {
		t.Errorf("parses differ (-first +second):\n%s", diff)
	}
}

func TestParse_Latin1(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><base name=\"caf\xe9\"/>"

	b, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if b.Name != "café" {
		t.Errorf("Name = %q, want café", b.Name)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.xml")
	if err := os.WriteFile(path, []byte(sampleBase), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	b, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if b.Filename != path {
		t.Errorf("Filename = %q, want %q", b.Filename, path)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.xml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ParseFile(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestParseFiles(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a", "b", "c", "d"} {
		path := filepath.Join(dir, name+".xml")
		doc := `<base name="` + name + `"><reference title="` + name + `"/></base>`
		if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		paths = append(paths, path)
	}

	bases, err := ParseFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("ParseFiles() error = %v", err)
	}
	var names []string
	for _, b := range bases {
		names = append(names, b.Name)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, names); diff != "" {
		t.Errorf("ParseFiles() order mismatch (-want +got):\n%s", diff)
	}

	bad := filepath.Join(dir, "bad.xml")
	if err := os.WriteFile(bad, []byte(`<base><reference tags="nope"/></base>`), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := ParseFiles(context.Background(), append(paths, bad)); !errors.Is(err, tag.ErrUnknownTag) {
		t.Errorf("ParseFiles() error = %v, want ErrUnknownTag", err)
	}
}
