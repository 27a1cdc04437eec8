package reference

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/matsen/bibreview/internal/tag"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Date
		wantErr bool
	}{
		{"unpadded", "2020-1-5", Date{2020, 1, 5}, false},
		{"padded", "2020-01-05", Date{2020, 1, 5}, false},
		{"leap day", "2024-2-29", Date{2024, 2, 29}, false},
		{"not a leap year", "2023-2-29", Date{}, true},
		{"month out of range", "2020-13-1", Date{}, true},
		{"day zero", "2020-1-0", Date{}, true},
		{"non numeric", "2020-jan-5", Date{}, true},
		{"too few parts", "2020-1", Date{}, true},
		{"empty", "", Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Errorf("ParseDate(%q) error = %v, want ErrInvalidDate", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDate_StringAndCompare(t *testing.T) {
	d := Date{2020, 1, 5}
	if d.String() != "2020-01-05" {
		t.Errorf("String() = %q, want 2020-01-05", d.String())
	}
	if (Date{}).String() != "" {
		t.Error("zero Date should format as empty string")
	}
	if !(Date{}).Before(d) {
		t.Error("unset date should sort before a set date")
	}
	if d.Compare(Date{2020, 1, 5}) != 0 {
		t.Error("equal dates should compare as 0")
	}
	if !d.Before(Date{2020, 2, 1}) {
		t.Error("2020-01-05 should be before 2020-02-01")
	}
}

func TestParseReviewStatus(t *testing.T) {
	tests := []struct {
		input string
		want  ReviewStatus
	}{
		{"None", Pending()},
		{"c", Custom("c")},
		{"1", Coded(1)},
		{"0", Coded(0)},
		{"-1", Coded(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseReviewStatus(tt.input)
			if err != nil {
				t.Fatalf("ParseReviewStatus(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseReviewStatus(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}

	for _, bad := range []string{"", "none", "accepted", "1.5"} {
		if _, err := ParseReviewStatus(bad); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("ParseReviewStatus(%q) error = %v, want ErrInvalidStatus", bad, err)
		}
	}
}

func TestParseReviewTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"iso", "2020-01-05T10:00:00", time.Date(2020, 1, 5, 10, 0, 0, 0, time.UTC)},
		{"space", "2020-01-05 10:30:15", time.Date(2020, 1, 5, 10, 30, 15, 0, time.UTC)},
		{"microseconds", "2020-01-05 10:30:15.250000", time.Date(2020, 1, 5, 10, 30, 15, 250000000, time.UTC)},
		{"date only", "2020-1-5", time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReviewTime(tt.input)
			if err != nil {
				t.Fatalf("ParseReviewTime(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseReviewTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"yesterday", "2020-01", "2020-01-05 25:00:00", "2020-02-30 10:00:00"} {
		if _, err := ParseReviewTime(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseReviewTime(%q) error = %v, want ErrInvalidDate", bad, err)
		}
	}
}

func TestFormatReviewTime_RoundTrip(t *testing.T) {
	for _, ts := range []time.Time{
		time.Date(2020, 1, 5, 10, 0, 0, 0, time.UTC),
		time.Date(2021, 12, 31, 23, 59, 59, 123456000, time.UTC),
	} {
		got, err := ParseReviewTime(FormatReviewTime(ts))
		if err != nil {
			t.Fatalf("ParseReviewTime(FormatReviewTime(%v)) error = %v", ts, err)
		}
		if !got.Equal(ts) {
			t.Errorf("round trip of %v = %v", ts, got)
		}
	}
}

func TestAddTag_UpdatesOrder(t *testing.T) {
	root := tag.NewRoot()
	topic := root.AddChild("topic", "", tag.NoCategoryValue(), false)
	other := root.AddChild("other", "", tag.NoCategoryValue(), false)

	ref := New()
	ref.AddTag(topic, 0)
	ref.AddTag(other, 1)
	ref.AddTag(topic, 5)

	if len(ref.Tags) != 2 {
		t.Fatalf("len(Tags) = %d, want 2", len(ref.Tags))
	}
	if ref.Tags[0].Order != 5 {
		t.Errorf("topic order = %d, want 5", ref.Tags[0].Order)
	}
	if !ref.HasTag("other") || ref.HasTag("missing") {
		t.Error("HasTag() mismatch")
	}
	if got := ref.TagNames(); !reflect.DeepEqual(got, []string{"topic", "other"}) {
		t.Errorf("TagNames() = %v", got)
	}
}

func TestSetAndAttr(t *testing.T) {
	ref := New()
	ref.Set("authors", "Smith, J.")
	ref.Set("title", "A Paper")
	ref.Set("pmid", "12345")

	if ref.Authors != "Smith, J." {
		t.Errorf("Authors = %q", ref.Authors)
	}
	if ref.Title() != "A Paper" || ref.Attr("title") != "A Paper" {
		t.Errorf("Title() = %q", ref.Title())
	}
	if ref.Extra["pmid"] != "12345" {
		t.Errorf("Extra[pmid] = %q", ref.Extra["pmid"])
	}
	if _, ok := ref.Extra["authors"]; ok {
		t.Error("authors should not be stored in Extra")
	}
}

func TestCiteKey(t *testing.T) {
	tests := []struct {
		name string
		ref  *Reference
		want string
	}{
		{"explicit key", &Reference{Extra: map[string]string{"key": "Smith2020-ab"}}, "Smith2020-ab"},
		{"author and year", &Reference{Authors: "Smith, J.", PubDate: Date{2020, 1, 5}}, "Smith2020"},
		{"year attribute", &Reference{Authors: "O'Brien K", Extra: map[string]string{"year": "1999"}}, "OBrien1999"},
		{"nothing", &Reference{}, "ref"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.CiteKey(); got != tt.want {
				t.Errorf("CiteKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAuthors(t *testing.T) {
	tests := []struct {
		input string
		want  []Author
	}{
		{"Smith, J.", []Author{{First: "J.", Last: "Smith"}}},
		{"Smith, J.; Doe, A.", []Author{{First: "J.", Last: "Smith"}, {First: "A.", Last: "Doe"}}},
		{"John Smith and Jane Doe", []Author{{First: "John", Last: "Smith"}, {First: "Jane", Last: "Doe"}}},
		{"Smith JA, van der Berg A", []Author{{First: "JA", Last: "Smith"}, {First: "A", Last: "van der Berg"}}},
		{"Plato", []Author{{Last: "Plato"}}},
		{"  ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseAuthors(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseAuthors(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}
