package author

import (
	"testing"

	"github.com/matsen/bibreview/internal/reference"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		input string
		want  Query
	}{
		{"Felsenstein", Query{Last: "Felsenstein"}},
		{"Joe Felsenstein", Query{First: "Joe", Last: "Felsenstein"}},
		{"Frederick A Matsen", Query{First: "Frederick A", Last: "Matsen"}},
		{"Matsen, Erick", Query{First: "Erick", Last: "Matsen"}},
		{"Matsen,   F. A. ", Query{First: "F. A.", Last: "Matsen"}},
		{"  Minin\t", Query{Last: "Minin"}},
		{"", Query{}},
		{"   ", Query{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseQuery(tt.input); got != tt.want {
				t.Errorf("ParseQuery(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseQueries(t *testing.T) {
	got := ParseQueries([]string{"Matsen", " ", "", "Minin, V"})
	want := []Query{{Last: "Matsen"}, {First: "V", Last: "Minin"}}
	if len(got) != len(want) {
		t.Fatalf("ParseQueries() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseQueries()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// The authors fields below use the layouts found in BibReview exports:
// semicolon lists, BibTeX "and" lists and PubMed "Last Initials".
func TestMatchesField(t *testing.T) {
	const (
		semicolons = "Felsenstein, Joseph; Matsen, Frederick A.; Minin, Vladimir N."
		bibtex     = "Joseph Felsenstein and Frederick A Matsen"
		pubmed     = "Matsen FA, Minin VN, Suchard MA"
		single     = "Ronquist, F."
	)

	tests := []struct {
		name    string
		filters []string
		field   string
		want    bool
	}{
		{"last name in semicolon list", []string{"Minin"}, semicolons, true},
		{"last name is case insensitive", []string{"matsen"}, semicolons, true},
		{"first name prefix", []string{"Fred Matsen"}, semicolons, true},
		{"last, first query", []string{"Felsenstein, Jo"}, semicolons, true},
		{"wrong first name", []string{"Erick Matsen"}, semicolons, false},
		{"partial last name does not match", []string{"Mats"}, semicolons, false},
		{"given name is not a last name", []string{"Joseph"}, semicolons, false},

		{"bibtex style", []string{"Frederick Matsen"}, bibtex, true},
		{"bibtex style missing author", []string{"Minin"}, bibtex, false},

		{"pubmed initials", []string{"Matsen"}, pubmed, true},
		{"pubmed initials against full first name", []string{"Frederick Matsen"}, pubmed, true},
		{"pubmed initials against two given names", []string{"Frederick A Matsen"}, pubmed, true},
		{"pubmed initials mismatch", []string{"Marc Minin"}, pubmed, false},

		{"single author with initial", []string{"Fredrik Ronquist"}, single, true},

		{"all filters must match", []string{"Matsen", "Suchard"}, pubmed, true},
		{"one filter missing", []string{"Matsen", "Suchard"}, semicolons, false},
		{"no filters match everything", nil, semicolons, true},
		{"empty field", []string{"Matsen"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchesField(ParseQueries(tt.filters), tt.field)
			if got != tt.want {
				t.Errorf("MatchesField(%q, %q) = %v, want %v", tt.filters, tt.field, got, tt.want)
			}
		})
	}
}

func TestQueryMatches_Initials(t *testing.T) {
	tests := []struct {
		query  string
		author reference.Author
		want   bool
	}{
		{"Vlad Minin", reference.Author{First: "V. N.", Last: "Minin"}, true},
		{"Vladimir N Minin", reference.Author{First: "VN", Last: "Minin"}, true},
		{"Minin, V", reference.Author{First: "V.", Last: "Minin"}, true},
		{"Marc Minin", reference.Author{First: "V. N.", Last: "Minin"}, false},
		{"Vladimir Nikolai Minin", reference.Author{First: "V.", Last: "Minin"}, false},
		// a full given name is not treated as an initial
		{"Vera Minin", reference.Author{First: "Vladimir", Last: "Minin"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := ParseQuery(tt.query).Matches(tt.author); got != tt.want {
				t.Errorf("ParseQuery(%q).Matches(%+v) = %v, want %v", tt.query, tt.author, got, tt.want)
			}
		})
	}
}
