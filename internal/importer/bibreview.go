// Package importer reads BibReview XML into a base.Base.
package importer

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/matsen/bibreview/internal/base"
	"github.com/matsen/bibreview/internal/reference"
	"github.com/matsen/bibreview/internal/tag"
)

// Element names of the BibReview format.
const (
	elemBase         = "base"
	elemTag          = "tag"
	elemReference    = "reference"
	elemReviewStatus = "review_status"
	elemAuthors      = "authors"
	elemAbstract     = "abstract"
	elemComment      = "comment"
)

// textTarget is the field that character data inside an element accumulates into.
type textTarget int

const (
	targetNone textTarget = iota
	targetReferenceAuthors
	targetReferenceAbstract
	targetReferenceComment
	targetBaseComment
)

type frame struct {
	element string
	target  textTarget
}

// handler turns a stream of XML tokens into mutations on a Base. It is built
// fresh for every parse and never shared.
type handler struct {
	base   *base.Base
	frames []frame    // one per open element
	scopes []*tag.Tag // open <tag> elements; the root tag sits at the bottom
	ref    *reference.Reference
	text   strings.Builder
	seen   bool // at least one element was opened
	opts   options
}

func newHandler(opts options) *handler {
	b := base.New()
	return &handler{
		base:   b,
		scopes: []*tag.Tag{b.RootTag},
		opts:   opts,
	}
}

// run consumes the whole stream. The first error aborts the parse.
func (h *handler) run(r io.Reader) error {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line, col := dec.InputPos()
			var syntaxErr *xml.SyntaxError
			if errors.As(err, &syntaxErr) {
				line = syntaxErr.Line
			}
			return &ParseError{Line: line, Column: col, Err: err}
		}

		if element, err := h.processToken(tok); err != nil {
			line, col := dec.InputPos()
			return &ParseError{Line: line, Column: col, Element: element, Err: err}
		}
	}

	if !h.seen {
		return &ParseError{Err: ErrEmptyDocument}
	}
	return nil
}

func (h *handler) processToken(tok xml.Token) (string, error) {
	switch t := tok.(type) {
	case xml.StartElement:
		return t.Name.Local, h.handleStartElement(t)
	case xml.EndElement:
		return t.Name.Local, h.handleEndElement(t)
	case xml.CharData:
		h.text.Write(t)
	}
	// Comments, processing instructions and directives carry no data.
	return "", nil
}

func (h *handler) handleStartElement(el xml.StartElement) error {
	h.flush()
	h.seen = true

	if len(h.frames) >= h.opts.maxDepth {
		return fmt.Errorf("%w (%d)", ErrTooDeep, h.opts.maxDepth)
	}

	name := el.Name.Local
	attrs := attrMap(el.Attr)

	var err error
	switch name {
	case elemReference:
		err = h.startReference(el.Attr)
	case elemTag:
		err = h.startTag(attrs)
	case elemBase:
		err = h.startBase(attrs)
	case elemReviewStatus:
		err = h.startReviewStatus(attrs)
	}
	if err != nil {
		return err
	}

	h.frames = append(h.frames, frame{element: name, target: h.targetFor(name)})
	return nil
}

func (h *handler) handleEndElement(el xml.EndElement) error {
	h.flush()

	switch el.Name.Local {
	case elemReference:
		h.ref.Authors = strings.TrimSpace(h.ref.Authors)
		h.base.Add(h.ref)
		h.ref = nil
	case elemTag:
		h.scopes = h.scopes[:len(h.scopes)-1]
	}

	// The decoder rejects unbalanced end tags, so a frame is always open here.
	h.frames = h.frames[:len(h.frames)-1]
	return nil
}

// targetFor decides where text inside a newly opened element goes. Must be
// called before the element's own frame is pushed.
func (h *handler) targetFor(name string) textTarget {
	parent := ""
	if n := len(h.frames); n > 0 {
		parent = h.frames[n-1].element
	}

	switch name {
	case elemAuthors:
		if h.ref != nil {
			return targetReferenceAuthors
		}
	case elemAbstract:
		if h.ref != nil {
			return targetReferenceAbstract
		}
	case elemComment:
		switch parent {
		case elemReference:
			return targetReferenceComment
		case elemBase:
			return targetBaseComment
		}
	}
	return targetNone
}

// flush routes buffered character data to the current frame's target.
func (h *handler) flush() {
	if h.text.Len() == 0 {
		return
	}
	s := h.text.String()
	h.text.Reset()

	var target textTarget
	element := ""
	if n := len(h.frames); n > 0 {
		target = h.frames[n-1].target
		element = h.frames[n-1].element
	}

	switch target {
	case targetReferenceAuthors:
		h.ref.Authors += s
	case targetReferenceAbstract:
		h.ref.Abstract += s
	case targetReferenceComment:
		h.ref.Comment += s
	case targetBaseComment:
		h.base.Comment += s
	default:
		if strings.TrimSpace(s) != "" {
			h.opts.logger.Debug("discarding character data",
				zap.String("element", element),
				zap.Int("bytes", len(s)))
		}
	}
}

func (h *handler) startReference(attrs []xml.Attr) error {
	if h.ref != nil {
		return ErrNestedReference
	}
	ref := reference.New()

	for _, a := range attrs {
		value := a.Value
		switch a.Name.Local {
		case "tags":
			if err := h.resolveTags(ref, value); err != nil {
				return err
			}
		case "pub_date", "epub_date", "insert_date":
			d, err := reference.ParseDate(value)
			if err != nil {
				return fmt.Errorf("%s: %w", a.Name.Local, err)
			}
			switch a.Name.Local {
			case "pub_date":
				ref.PubDate = d
			case "epub_date":
				ref.EPubDate = d
			default:
				ref.InsertDate = d
			}
		default:
			ref.Set(a.Name.Local, value)
		}
	}

	h.ref = ref
	return nil
}

// resolveTags attaches every comma separated tag name, each with order 0.
func (h *handler) resolveTags(ref *reference.Reference, value string) error {
	if value == "" {
		return nil
	}
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t, err := h.base.RootTag.Lookup(name)
		if err != nil {
			return err
		}
		ref.AddTag(t, 0)
	}
	return nil
}

func (h *handler) startTag(attrs map[string]string) error {
	name, ok := attrs["name"]
	if !ok {
		return fmt.Errorf("%w: name", ErrMissingAttribute)
	}
	exclusive, err := intAttr(attrs, "exclusive")
	if err != nil {
		return err
	}
	raw, present := attrs["category_value"]

	parent := h.scopes[len(h.scopes)-1]
	t := parent.AddChild(name, attrs["category"], tag.ParseCategoryValue(raw, present), exclusive != 0)
	h.scopes = append(h.scopes, t)
	return nil
}

func (h *handler) startBase(attrs map[string]string) error {
	reviewMode, err := intAttr(attrs, "review_mode")
	if err != nil {
		return err
	}
	autoExport, err := intAttr(attrs, "auto_export_bibtex")
	if err != nil {
		return err
	}

	if _, err := base.ParseSortCriteria(attrs["sort_criteria"]); err != nil {
		return err
	}

	h.base.Name = attrs["name"]
	h.base.ReviewMode = reviewMode
	h.base.AutoExportBibTeX = autoExport != 0
	h.base.SortCriteria = attrs["sort_criteria"]
	return nil
}

func (h *handler) startReviewStatus(attrs map[string]string) error {
	if h.ref == nil {
		return ErrNoReference
	}

	status, err := reference.ParseReviewStatus(attrs["status"])
	if err != nil {
		return err
	}
	ts, err := reference.ParseReviewTime(attrs["date"])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	h.ref.AppendReview(reference.ReviewEntry{
		Time:   ts,
		User:   attrs["user"],
		Status: status,
	})
	return nil
}

// intAttr parses an optional integer attribute, defaulting to 0.
func intAttr(attrs map[string]string, name string) (int, error) {
	raw, ok := attrs[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidInteger, name, raw)
	}
	return n, nil
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}
