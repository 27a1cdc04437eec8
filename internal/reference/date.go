package reference

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned for non-numeric or out-of-range date components.
var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar date. The zero value means "not set".
type Date struct {
	Year  int
	Month int // 1-12
	Day   int // 1-31
}

// NewDate validates the components and builds a Date.
func NewDate(year, month, day int) (Date, error) {
	if err := validateYMD(year, month, day); err != nil {
		return Date{}, err
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// ParseDate parses "YYYY-M-D"; components need not be zero padded.
func ParseDate(s string) (Date, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("%w: %q: want year-month-day", ErrInvalidDate, s)
	}

	var ymd [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, fmt.Errorf("%w: %q: %v", ErrInvalidDate, s, err)
		}
		ymd[i] = n
	}

	d, err := NewDate(ymd[0], ymd[1], ymd[2])
	if err != nil {
		return Date{}, fmt.Errorf("%q: %w", s, err)
	}
	return d, nil
}

func validateYMD(year, month, day int) error {
	if year < 1 || year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidDate, year)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidDate, month)
	}
	// time.Date normalizes overflowing days, so compare the round trip
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if day < 1 || t.Day() != day {
		return fmt.Errorf("%w: day %d out of range for %d-%02d", ErrInvalidDate, day, year, month)
	}
	return nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

// String formats the date as YYYY-MM-DD, or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or +1. Unset dates sort first.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmp.Compare(d.Year, other.Year)
	case d.Month != other.Month:
		return cmp.Compare(d.Month, other.Month)
	default:
		return cmp.Compare(d.Day, other.Day)
	}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}
