package base

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/matsen/bibreview/internal/reference"
)

// ErrInvalidSortCriteria is returned for criteria with empty field names.
var ErrInvalidSortCriteria = errors.New("invalid sort criteria")

// SortKey is one field of a sort_criteria string.
type SortKey struct {
	Field      string
	Descending bool
}

// ParseSortCriteria parses fields separated by commas or whitespace, each
// optionally prefixed with "-" (descending) or "+" (ascending).
func ParseSortCriteria(s string) ([]SortKey, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})

	keys := make([]SortKey, 0, len(fields))
	for _, f := range fields {
		key := SortKey{Field: f}
		switch f[0] {
		case '-':
			key.Descending = true
			key.Field = f[1:]
		case '+':
			key.Field = f[1:]
		}
		if key.Field == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSortCriteria, s)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Sort orders the references by SortCriteria. The sort is stable, so empty
// criteria keep document order and ties keep their relative order.
func (b *Base) Sort() error {
	keys, err := ParseSortCriteria(b.SortCriteria)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	fold := cases.Fold()
	slices.SortStableFunc(b.References, func(x, y *reference.Reference) int {
		for _, k := range keys {
			c := compareField(fold, k.Field, x, y)
			if k.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return nil
}

func compareField(fold cases.Caser, field string, x, y *reference.Reference) int {
	switch field {
	case "pub_date":
		return x.PubDate.Compare(y.PubDate)
	case "epub_date":
		return x.EPubDate.Compare(y.EPubDate)
	case "insert_date":
		return x.InsertDate.Compare(y.InsertDate)
	case "year":
		return x.Year() - y.Year()
	case "review_date":
		return lastReviewTime(x).Compare(lastReviewTime(y))
	default:
		return strings.Compare(fold.String(x.Attr(field)), fold.String(y.Attr(field)))
	}
}

func lastReviewTime(ref *reference.Reference) time.Time {
	if e, ok := ref.LastReview(); ok {
		return e.Time
	}
	return time.Time{}
}
