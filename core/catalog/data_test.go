package catalog

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
)

const sample = `
[groups]
primary = ["P75", "GA 01", "03"]

[byzantine]
Acts = ["014", "020", "025"]

[[defects]]
witness = "05"
from = "Acts.8.29"
to = "Acts.10.14"

[[defects]]
witness = "P74"
from = "Acts.1.3"
`

func anchor(t *testing.T, s string) ir.Anchor {
	t.Helper()
	a, err := ir.ParseAnchor(s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestDecodeSnapshot(t *testing.T) {
	data, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	snap, err := data.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	if got := snap.Groups["primary"]; !reflect.DeepEqual(got, []string{"P75", "01", "03"}) {
		t.Errorf("primary = %v", got)
	}
	if got := snap.Byzantine["Acts"]; !reflect.DeepEqual(got, []string{"014", "020", "025"}) {
		t.Errorf("Acts = %v", got)
	}
	if len(snap.Defects) != 2 {
		t.Fatalf("defects = %+v", snap.Defects)
	}
}

func TestDefective(t *testing.T) {
	data, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	snap, err := data.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		siglum string
		at     string
		want   bool
	}{
		{"05", "Acts.8.29/4", true},
		{"05", "Acts.9.1", true},
		{"05", "Acts.10.14/2-6", true},
		{"05", "Acts.8.28/4", false},
		{"05", "Acts.10.15", false},
		{"05", "Rom.9.1", false},
		{"P74", "Acts.1.3/2", true},
		{"P74", "Acts.1.4/2", false},
		{"03", "Acts.9.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.siglum+" "+tt.at, func(t *testing.T) {
			if got := snap.Defective(tt.siglum, anchor(t, tt.at)); got != tt.want {
				t.Errorf("Defective = %v, want %v", got, tt.want)
			}
		})
	}

	var none *Snapshot
	if none.Defective("05", anchor(t, "Acts.9.1")) {
		t.Error("nil snapshot reports a defect")
	}
}

func TestSnapshotValidation(t *testing.T) {
	tests := []struct {
		name  string
		entry DefectEntry
	}{
		{"empty witness", DefectEntry{From: "Acts.1.1"}},
		{"bad anchor", DefectEntry{Witness: "05", From: "nowhere"}},
		{"crosses books", DefectEntry{Witness: "05", From: "Acts.28.31", To: "Rom.1.1"}},
		{"reversed", DefectEntry{Witness: "05", From: "Acts.2.1", To: "Acts.1.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Data{Defects: []DefectEntry{tt.entry}}
			_, err := d.Snapshot()
			var ve *cerrors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if ve.Field != "defects[0]" {
				t.Errorf("field = %q", ve.Field)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(strings.NewReader("[groups\nprimary = 1"))
	if !errors.Is(err, cerrors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestMerge(t *testing.T) {
	a := &Data{
		Groups:    map[string][]string{"primary": {"01"}, "western": {"05"}},
		Byzantine: map[string][]string{"Acts": {"014"}},
		Defects:   []DefectEntry{{Witness: "05", From: "Acts.9.1"}},
	}
	b := &Data{
		Groups:  map[string][]string{"primary": {"03"}},
		Defects: []DefectEntry{{Witness: "03", From: "Acts.2.1"}},
	}
	sa, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	sb, err := b.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	m := Merge(sa, nil, sb)
	if got := m.Groups["primary"]; !reflect.DeepEqual(got, []string{"03"}) {
		t.Errorf("primary = %v", got)
	}
	if got := m.Groups["western"]; !reflect.DeepEqual(got, []string{"05"}) {
		t.Errorf("western = %v", got)
	}
	if got := m.Byzantine["Acts"]; !reflect.DeepEqual(got, []string{"014"}) {
		t.Errorf("Acts = %v", got)
	}
	if !m.Defective("05", anchor(t, "Acts.9.1")) || !m.Defective("03", anchor(t, "Acts.2.1")) {
		t.Error("merged defects lost")
	}
}
