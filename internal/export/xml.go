package export

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/matsen/bibreview/internal/base"
	"github.com/matsen/bibreview/internal/reference"
	"github.com/matsen/bibreview/internal/tag"
)

// ErrShadowedTag is returned when a reference carries a tag whose name was
// declared again later in the tree. Tags are written by name and names resolve
// to their last declaration, so such a base cannot be read back unchanged.
var ErrShadowedTag = errors.New("reference uses a shadowed tag name")

// WriteBibReview serializes a base as BibReview XML. Reading the output back
// with the importer yields an equivalent base.
func WriteBibReview(w io.Writer, b *base.Base) error {
	doc, err := bibReviewDocument(b)
	if err != nil {
		return err
	}
	_, err = doc.WriteTo(w)
	return err
}

// BibReviewString returns the BibReview XML of a base.
func BibReviewString(b *base.Base) (string, error) {
	doc, err := bibReviewDocument(b)
	if err != nil {
		return "", err
	}
	return doc.WriteToString()
}

// checkTagNames makes sure every tag a reference carries is the one its name
// resolves to.
func checkTagNames(b *base.Base) error {
	for _, ref := range b.References {
		for _, rt := range ref.Tags {
			found, err := rt.Tag.Lookup(rt.Tag.Name)
			if err != nil || found != rt.Tag {
				return fmt.Errorf("%w: %q under %q", ErrShadowedTag, rt.Tag.Name, strings.Join(rt.Tag.Path(), "/"))
			}
		}
	}
	return nil
}

func bibReviewDocument(b *base.Base) (*etree.Document, error) {
	if err := checkTagNames(b); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("base")
	root.CreateAttr("name", b.Name)
	root.CreateAttr("review_mode", strconv.Itoa(b.ReviewMode))
	root.CreateAttr("auto_export_bibtex", boolAttr(b.AutoExportBibTeX))
	root.CreateAttr("sort_criteria", b.SortCriteria)

	if b.Comment != "" {
		root.CreateElement("comment").SetText(b.Comment)
	}

	// Tags precede references so every tag name resolves on the way back in.
	for _, t := range b.RootTag.Children() {
		writeTag(root, t)
	}
	for _, ref := range b.References {
		writeReference(root, ref)
	}

	doc.Indent(2)
	return doc, nil
}

func writeTag(parent *etree.Element, t *tag.Tag) {
	el := parent.CreateElement("tag")
	el.CreateAttr("name", t.Name)
	if t.Category != "" {
		el.CreateAttr("category", t.Category)
	}
	if t.CategoryValue.IsSet() {
		el.CreateAttr("category_value", t.CategoryValue.String())
	}
	if t.Exclusive {
		el.CreateAttr("exclusive", "1")
	}
	for _, child := range t.Children() {
		writeTag(el, child)
	}
}

// reservedReferenceAttrs are written from typed fields, never from Extra.
var reservedReferenceAttrs = map[string]bool{
	"tags": true, "pub_date": true, "epub_date": true, "insert_date": true,
}

func writeReference(parent *etree.Element, ref *reference.Reference) {
	el := parent.CreateElement("reference")

	if len(ref.Tags) > 0 {
		el.CreateAttr("tags", strings.Join(ref.TagNames(), ","))
	}
	for _, d := range []struct {
		attr string
		date reference.Date
	}{
		{"pub_date", ref.PubDate},
		{"epub_date", ref.EPubDate},
		{"insert_date", ref.InsertDate},
	} {
		if !d.date.IsZero() {
			el.CreateAttr(d.attr, d.date.String())
		}
	}

	extraKeys := make([]string, 0, len(ref.Extra))
	for k := range ref.Extra {
		if !reservedReferenceAttrs[k] {
			extraKeys = append(extraKeys, k)
		}
	}
	slices.Sort(extraKeys)
	for _, k := range extraKeys {
		el.CreateAttr(k, ref.Extra[k])
	}

	if ref.Authors != "" {
		el.CreateElement("authors").SetText(ref.Authors)
	}
	if ref.Abstract != "" {
		el.CreateElement("abstract").SetText(ref.Abstract)
	}
	if ref.Comment != "" {
		el.CreateElement("comment").SetText(ref.Comment)
	}

	for _, e := range ref.ReviewHistory {
		rs := el.CreateElement("review_status")
		rs.CreateAttr("date", reference.FormatReviewTime(e.Time))
		rs.CreateAttr("user", e.User)
		rs.CreateAttr("status", e.Status.String())
	}
}

func boolAttr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
