// Package tag defines the hierarchical classification tags of a bibliography.
package tag

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownTag is returned when a tag name is not registered under a root.
var ErrUnknownTag = errors.New("unknown tag")

// Tag is a node in the tag tree. Children are owned by their parent; the
// parent link only points upward. The root owns the name index.
type Tag struct {
	Name          string
	Category      string
	CategoryValue CategoryValue
	Exclusive     bool // children are mutually exclusive selections

	parent   *Tag
	children []*Tag
	index    map[string]*Tag // root only
}

// NewRoot returns an empty synthetic root tag.
func NewRoot() *Tag {
	return &Tag{index: make(map[string]*Tag)}
}

// AddChild creates a tag under t and registers it in the root's index.
// Redeclaring a name replaces the index entry; both tags stay in the tree.
func (t *Tag) AddChild(name, category string, value CategoryValue, exclusive bool) *Tag {
	child := &Tag{
		Name:          name,
		Category:      category,
		CategoryValue: value,
		Exclusive:     exclusive,
		parent:        t,
	}
	t.children = append(t.children, child)
	t.Root().index[name] = child
	return child
}

// Lookup resolves a tag name through the root's index.
func (t *Tag) Lookup(name string) (*Tag, error) {
	if found, ok := t.Root().index[name]; ok {
		return found, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTag, name)
}

// Parent returns the parent tag, or nil for the root.
func (t *Tag) Parent() *Tag {
	return t.parent
}

// Children returns the direct children in declaration order.
func (t *Tag) Children() []*Tag {
	return t.children
}

// IsRoot reports whether t is the synthetic root.
func (t *Tag) IsRoot() bool {
	return t.parent == nil
}

// Root follows parent links up to the root.
func (t *Tag) Root() *Tag {
	node := t
	for node.parent != nil {
		node = node.parent
	}
	return node
}

// Depth is the number of parent links between t and the root.
func (t *Tag) Depth() int {
	depth := 0
	for node := t; node.parent != nil; node = node.parent {
		depth++
	}
	return depth
}

// Path returns the tag names from the first level below the root down to t.
func (t *Tag) Path() []string {
	path := make([]string, t.Depth())
	i := len(path) - 1
	for node := t; node.parent != nil; node = node.parent {
		path[i] = node.Name
		i--
	}
	return path
}

// IsDescendantOf reports whether ancestor is t or one of t's ancestors.
func (t *Tag) IsDescendantOf(ancestor *Tag) bool {
	for node := t; node != nil; node = node.parent {
		if node == ancestor {
			return true
		}
	}
	return false
}

// Walk visits t and every tag below it in pre-order. Returning false from
// fn skips the subtree of that tag.
func (t *Tag) Walk(fn func(*Tag) bool) {
	if !fn(t) {
		return
	}
	for _, child := range t.children {
		child.Walk(fn)
	}
}

// Len counts the tags below t.
func (t *Tag) Len() int {
	n := 0
	t.Walk(func(*Tag) bool {
		n++
		return true
	})
	return n - 1
}

// Siblings returns the other children of t's parent.
func (t *Tag) Siblings() []*Tag {
	if t.parent == nil {
		return nil
	}
	var siblings []*Tag
	for _, c := range t.parent.children {
		if c != t {
			siblings = append(siblings, c)
		}
	}
	return siblings
}

// ExclusiveGroup returns the tags competing with t for a single selection:
// t and its siblings when the parent is exclusive, otherwise nil.
func (t *Tag) ExclusiveGroup() []*Tag {
	if t.parent == nil || !t.parent.Exclusive {
		return nil
	}
	return t.parent.children
}

// CategoryKind distinguishes the variants of CategoryValue.
type CategoryKind int

const (
	CategoryNone CategoryKind = iota
	CategoryInt
	CategoryString
)

// CategoryValue is the optional value of a tag within its category: absent,
// an integer, or a raw string when the serialized value is not numeric.
type CategoryValue struct {
	Kind CategoryKind
	Int  int
	Str  string
}

// NoCategoryValue returns the absent value.
func NoCategoryValue() CategoryValue {
	return CategoryValue{}
}

// IntCategoryValue wraps an integer value.
func IntCategoryValue(n int) CategoryValue {
	return CategoryValue{Kind: CategoryInt, Int: n}
}

// StringCategoryValue wraps a non-numeric value.
func StringCategoryValue(s string) CategoryValue {
	return CategoryValue{Kind: CategoryString, Str: s}
}

// ParseCategoryValue never fails: integers become CategoryInt, anything else
// is kept verbatim, and a missing attribute is CategoryNone.
func ParseCategoryValue(raw string, present bool) CategoryValue {
	if !present {
		return NoCategoryValue()
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return IntCategoryValue(n)
	}
	return StringCategoryValue(raw)
}

// IsSet reports whether a value is present.
func (v CategoryValue) IsSet() bool {
	return v.Kind != CategoryNone
}

// String returns the serialized form ("" when absent).
func (v CategoryValue) String() string {
	switch v.Kind {
	case CategoryInt:
		return strconv.Itoa(v.Int)
	case CategoryString:
		return v.Str
	default:
		return ""
	}
}
