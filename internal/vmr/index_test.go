package vmr

import (
	"errors"
	"testing"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
)

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in   string
		want Index
		str  string
	}{
		{"Acts", Index{Book: "Acts"}, "Acts"},
		{"Acts.1", Index{Book: "Acts", Chapter: 1, ChapterTo: 1}, "Acts.1"},
		{"Acts.1-5", Index{Book: "Acts", Chapter: 1, ChapterTo: 5}, "Acts.1-5"},
		{"Acts.1.1", Index{Book: "Acts", Chapter: 1, ChapterTo: 1, Verse: 1, VerseTo: 1}, "Acts.1.1"},
		{"Acts.1.1-5", Index{Book: "Acts", Chapter: 1, ChapterTo: 1, Verse: 1, VerseTo: 5}, "Acts.1.1-5"},
		{" 1John.3.16 ", Index{Book: "1John", Chapter: 3, ChapterTo: 3, Verse: 16, VerseTo: 16}, "1John.3.16"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndex(tt.in)
			if err != nil {
				t.Fatalf("ParseIndex error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseIndex = %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.str {
				t.Errorf("String = %q, want %q", got.String(), tt.str)
			}
		})
	}
}

func TestParseIndexErrors(t *testing.T) {
	for _, in := range []string{"", "Acts.", "Acts.0", "Acts.5-1", "Acts.1-2.3", "Acts.1.3-2", "Acts/1"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseIndex(in)
			if !errors.Is(err, cerrors.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestIndexTitle(t *testing.T) {
	idx, err := ParseIndex("Rom.9")
	if err != nil {
		t.Fatal(err)
	}
	if idx.Title() != "A collation of Rom" {
		t.Errorf("Title = %q", idx.Title())
	}
}
