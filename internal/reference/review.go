package reference

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidStatus is returned for review status values that are neither
// "None", "c", nor an integer.
var ErrInvalidStatus = errors.New("invalid review status")

// StatusKind distinguishes the variants of ReviewStatus.
type StatusKind int

const (
	StatusPending StatusKind = iota // serialized as "None"
	StatusCustom                    // serialized verbatim, e.g. "c"
	StatusCoded                     // serialized as an integer
)

// CustomStatusLabel is the only non-numeric label a review may carry.
const CustomStatusLabel = "c"

// ReviewStatus is the decision recorded by one review.
type ReviewStatus struct {
	Kind  StatusKind
	Code  int
	Label string
}

// Pending returns the "no decision yet" status.
func Pending() ReviewStatus {
	return ReviewStatus{Kind: StatusPending}
}

// Custom returns a labelled status.
func Custom(label string) ReviewStatus {
	return ReviewStatus{Kind: StatusCustom, Label: label}
}

// Coded returns a numeric status.
func Coded(code int) ReviewStatus {
	return ReviewStatus{Kind: StatusCoded, Code: code}
}

// ParseReviewStatus decodes the serialized status attribute.
func ParseReviewStatus(s string) (ReviewStatus, error) {
	switch s {
	case "None":
		return Pending(), nil
	case CustomStatusLabel:
		return Custom(s), nil
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return ReviewStatus{}, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return Coded(code), nil
}

// String returns the serialized form of the status.
func (s ReviewStatus) String() string {
	switch s.Kind {
	case StatusCustom:
		return s.Label
	case StatusCoded:
		return strconv.Itoa(s.Code)
	default:
		return "None"
	}
}

// ReviewEntry is one decision in a reference's review history.
type ReviewEntry struct {
	Time   time.Time
	User   string
	Status ReviewStatus
}

// reviewTimeSep splits review timestamps such as "2020-01-05 10:00:00.250000"
// or "2020-01-05T10:00:00".
var reviewTimeSep = regexp.MustCompile(`[ :.\-T]`)

// ParseReviewTime parses a review timestamp of 3 to 7 numeric components:
// year, month, day, hour, minute, second, microsecond.
func ParseReviewTime(s string) (time.Time, error) {
	parts := reviewTimeSep.Split(s, -1)
	if len(parts) < 3 || len(parts) > 7 {
		return time.Time{}, fmt.Errorf("%w: %q: want 3 to 7 components", ErrInvalidDate, s)
	}

	var c [7]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidDate, s, err)
		}
		c[i] = n
	}

	if err := validateYMD(c[0], c[1], c[2]); err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", s, err)
	}
	if c[3] < 0 || c[3] > 23 || c[4] < 0 || c[4] > 59 || c[5] < 0 || c[5] > 59 || c[6] < 0 || c[6] > 999999 {
		return time.Time{}, fmt.Errorf("%w: %q: time of day out of range", ErrInvalidDate, s)
	}

	return time.Date(c[0], time.Month(c[1]), c[2], c[3], c[4], c[5], c[6]*1000, time.UTC), nil
}

// FormatReviewTime is the inverse of ParseReviewTime.
func FormatReviewTime(t time.Time) string {
	if us := t.Nanosecond() / 1000; us != 0 {
		return t.Format("2006-01-02 15:04:05") + fmt.Sprintf(".%06d", us)
	}
	return t.Format("2006-01-02 15:04:05")
}
