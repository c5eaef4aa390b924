package apparatus

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
	"github.com/FocuswithJustin/vmr2tei/core/witness"
)

func collated(t *testing.T, index int, anchor string, readings ...*ir.Reading) *ir.VariationUnit {
	t.Helper()
	a, err := ir.ParseAnchor(anchor)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range readings {
		r.Seq = i
		if r.Kind == ir.KindUnspecified {
			r.Kind = ir.KindSubstantive
		}
	}
	return &ir.VariationUnit{Anchor: a, Readings: readings, Index: index}
}

func lem(label, text string, sigla ...string) *ir.Reading {
	r := rdg(label, text, sigla...)
	r.Lemma = true
	return r
}

func rdg(label, text string, sigla ...string) *ir.Reading {
	r := &ir.Reading{Label: label, Text: text}
	for _, s := range sigla {
		r.Witnesses = append(r.Witnesses, ir.Attestation{Siglum: s})
	}
	return r
}

func registry(t *testing.T, raws ...string) *witness.Registry {
	t.Helper()
	reg := witness.NewRegistry()
	for _, raw := range raws {
		if _, err := reg.Resolve(raw, ""); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func TestBuildNesting(t *testing.T) {
	reg := registry(t, "01", "03", "05", "1739")
	units := []*ir.VariationUnit{
		collated(t, 0, "Acts.1.3/2", lem("a", "καὶ", "01", "03"), rdg("b", "", "05")),
		collated(t, 1, "Acts.1.3/1-5", lem("a", "x", "01", "03", "05"), rdg("b", "y", "1739")),
	}
	doc, err := New(Config{}, reg).Build(units)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(doc.Books) != 1 || len(doc.Books[0].Chapters) != 1 {
		t.Fatalf("divisions = %+v", doc.Books)
	}
	verse := doc.Books[0].Chapters[0].Verses[0]
	if verse.Ref != "Acts.1.3" || len(verse.Entries) != 1 {
		t.Fatalf("verse = %+v", verse)
	}
	parent := verse.Entries[0]
	if parent.Anchor().String() != "Acts.1.3/1-5" {
		t.Errorf("parent = %s", parent.Anchor())
	}
	if len(parent.Children) != 1 || parent.Children[0].Anchor().String() != "Acts.1.3/2" {
		t.Errorf("children = %+v", parent.Children)
	}
	if doc.EntryCount() != 2 {
		t.Errorf("EntryCount = %d", doc.EntryCount())
	}
	if err := ir.Validate(doc); err != nil {
		t.Errorf("built document fails validation: %v", err)
	}
}

func TestBuildOverlapConflict(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"partial overlap", "Acts.1.3/1-3", "Acts.1.3/2-4"},
		{"identical spans", "Acts.1.3/2-4", "Acts.1.3/2-4"},
		{"nested partial", "Acts.1.3/1-10", "Acts.1.3/4-12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units := []*ir.VariationUnit{
				collated(t, 0, tt.a, lem("a", "x", "A")),
				collated(t, 1, tt.b, lem("a", "y", "B")),
			}
			_, err := New(Config{}, nil).Build(units)
			var oc *cerrors.OverlapConflictError
			if !errors.As(err, &oc) {
				t.Fatalf("error = %v, want OverlapConflictError", err)
			}
			if oc.First != tt.a || oc.Second != tt.b {
				t.Errorf("conflict names %s and %s", oc.First, oc.Second)
			}
		})
	}

	t.Run("conflict below a common parent", func(t *testing.T) {
		units := []*ir.VariationUnit{
			collated(t, 0, "Acts.1.3", lem("a", "x", "A")),
			collated(t, 1, "Acts.1.3/1-3", lem("a", "x", "A")),
			collated(t, 2, "Acts.1.3/3-4", lem("a", "x", "A")),
		}
		if _, err := New(Config{}, nil).Build(units); !errors.Is(err, cerrors.ErrOverlapConflict) {
			t.Errorf("error = %v", err)
		}
	})
}

func TestBuildOrderAndDivisions(t *testing.T) {
	units := []*ir.VariationUnit{
		collated(t, 0, "Rom.1.1/1", lem("a", "x", "A")),
		collated(t, 1, "Acts.2.1/3", lem("a", "x", "A")),
		collated(t, 2, "Acts.1.3/4", lem("a", "x", "A")),
		collated(t, 3, "Acts.1.3/1", lem("a", "x", "A")),
		collated(t, 4, "Acts.1.4/1", lem("a", "x", "A")),
	}
	doc, err := New(Config{}, nil).Build(units)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	doc.Walk(func(e *ir.ApparatusEntry) { got = append(got, e.Anchor().String()) })
	want := []string{"Acts.1.3/1", "Acts.1.3/4", "Acts.1.4/1", "Acts.2.1/3", "Rom.1.1/1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v", got)
	}
	if len(doc.Books) != 2 || len(doc.Books[0].Chapters) != 2 || len(doc.Books[0].Chapters[0].Verses) != 2 {
		t.Errorf("unexpected division shape")
	}
	if doc.Title != "A collation of Acts, Rom" || doc.Language != "grc" {
		t.Errorf("title %q language %q", doc.Title, doc.Language)
	}
}

func TestBuildDoesNotModifyUnits(t *testing.T) {
	reg := registry(t, "01", "03", "1739")
	u := collated(t, 0, "Acts.1.3/2", lem("a", "x", "1739", "03", "01"))
	if _, err := New(Config{Concise: true}, reg).Build([]*ir.VariationUnit{u}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(u.Readings[0].Sigla(), []string{"1739", "03", "01"}) {
		t.Errorf("unit witnesses reordered: %v", u.Readings[0].Sigla())
	}
}

func TestBuildCanonicalWitnessOrder(t *testing.T) {
	reg := registry(t, "1739", "03", "01", "P74")
	u := collated(t, 0, "Acts.1.3/2", lem("a", "x", "1739", "03", "01", "P74"))
	doc, err := New(Config{}, reg).Build([]*ir.VariationUnit{u})
	if err != nil {
		t.Fatal(err)
	}
	entry := doc.Books[0].Chapters[0].Verses[0].Entries[0]
	if got := entry.Readings[0].Sigla(); !reflect.DeepEqual(got, []string{"P74", "01", "03", "1739"}) {
		t.Errorf("witnesses = %v", got)
	}
	var listed []string
	for _, w := range doc.Witnesses {
		listed = append(listed, w.Siglum)
	}
	if !reflect.DeepEqual(listed, []string{"P74", "01", "03", "1739"}) {
		t.Errorf("listWit = %v", listed)
	}
}

func TestConciseFolding(t *testing.T) {
	orth := rdg("ao", "καί", "614")
	orth.Kind, orth.Parent = ir.KindOrthographic, "a"
	def := rdg("bf", "ουκ", "33", "05")
	def.Kind, def.Parent = ir.KindOrthographic, "b"
	stray := rdg("c", "κε", "2464")
	stray.Kind = ir.KindOrthographic

	units := []*ir.VariationUnit{collated(t, 0, "Acts.1.3/2",
		lem("a", "καὶ", "01", "03"), rdg("b", "οὐκ", "05", "1739"), orth, def, stray)}

	full, err := New(Config{}, nil).Build(units)
	if err != nil {
		t.Fatal(err)
	}
	concise, err := New(Config{Concise: true}, nil).Build(units)
	if err != nil {
		t.Fatal(err)
	}

	fullEntry := full.Books[0].Chapters[0].Verses[0].Entries[0]
	if len(fullEntry.Readings) != 5 {
		t.Errorf("full view has %d readings, want 5", len(fullEntry.Readings))
	}

	entry := concise.Books[0].Chapters[0].Verses[0].Entries[0]
	var labels []string
	for _, r := range entry.Readings {
		labels = append(labels, r.Label)
	}
	if !reflect.DeepEqual(labels, []string{"a", "b"}) {
		t.Fatalf("concise readings = %v", labels)
	}
	if got := sorted(entry.Readings[0].Sigla()); !reflect.DeepEqual(got, []string{"01", "03", "2464", "614"}) {
		t.Errorf("lemma witnesses = %v", got)
	}
	if got := sorted(entry.Readings[1].Sigla()); !reflect.DeepEqual(got, []string{"05", "1739", "33"}) {
		t.Errorf("b witnesses = %v", got)
	}

	// Witness conservation: the concise view cites the same sigla.
	count := func(e *ir.ApparatusEntry) map[string]bool {
		m := map[string]bool{}
		for _, r := range e.Readings {
			for _, s := range r.Sigla() {
				m[s] = true
			}
		}
		return m
	}
	if !reflect.DeepEqual(count(fullEntry), count(entry)) {
		t.Error("concise folding lost or added witnesses")
	}
}

func TestConciseFoldingClearsSplit(t *testing.T) {
	a := lem("a", "λόγος", "01", "03", "05")
	ao := rdg("ao", "λογος", "05", "1739")
	ao.Kind, ao.Parent = ir.KindOrthographic, "a"
	b := rdg("b", "λόγον", "1739", "33")
	for _, r := range []*ir.Reading{a, ao, b} {
		for i := range r.Witnesses {
			if s := r.Witnesses[i].Siglum; s == "05" || s == "1739" {
				r.Witnesses[i].Split = true
			}
		}
	}
	units := []*ir.VariationUnit{collated(t, 0, "Acts.1.3/2", a, ao, b)}

	doc, err := New(Config{Concise: true}, nil).Build(units)
	if err != nil {
		t.Fatal(err)
	}
	entry := doc.Books[0].Chapters[0].Verses[0].Entries[0]
	split := map[string]bool{}
	for _, r := range entry.Readings {
		for _, at := range r.Witnesses {
			if at.Split {
				split[r.Label+":"+at.Siglum] = true
			}
		}
	}
	want := map[string]bool{"a:1739": true, "b:1739": true}
	if !reflect.DeepEqual(split, want) {
		t.Errorf("split attestations = %v, want %v", split, want)
	}
	if got := sorted(entry.Readings[0].Sigla()); !reflect.DeepEqual(got, []string{"01", "03", "05", "1739"}) {
		t.Errorf("lemma witnesses = %v", got)
	}
	if !ao.Witnesses[0].Split {
		t.Error("input reading was modified")
	}
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
