package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
	"github.com/FocuswithJustin/vmr2tei/core/record"
	"github.com/FocuswithJustin/vmr2tei/core/witness"
)

func reading(label, text string, witnesses any) record.Map {
	return record.Map{"label": label, "text": text, "witnesses": witnesses}
}

func unitRecord(anchor string, readings ...record.Map) record.Map {
	items := make([]any, len(readings))
	for i, r := range readings {
		items[i] = map[string]any(r)
	}
	return record.Map{"anchor": anchor, "readings": items}
}

func TestCleanWitnesses(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"01 03 1739", []string{"01", "03", "1739"}},
		{"01(*,C1) 03", []string{"01*", "01C1", "03"}},
		{"[P74] 05. 33>", []string{"P74", "05", "33"}},
		{"02 L: V AU S:PH K:SB", []string{"02", "L:V", "L:AU", "S:P", "S:H", "K:S", "K:B"}},
		{"1739 Sl:ChE Chrysostom", []string{"1739", "Sl:Ch", "Sl:E", "Sl:Chrysostom"}},
		{"03&nbsp;  04", []string{"03", "04"}},
		{"GA 01 03", []string{"GA 01", "03"}},
		{"Papyrus 46 lect 60 GA", []string{"Papyrus 46", "lect 60", "GA"}},
		{"", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := CleanWitnesses(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CleanWitnesses(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	p := New(witness.NewRegistry(), Options{})
	rec := unitRecord("Acts.1.3/2-4",
		reading("a", "καὶ ἐγένετο", []any{"01", "03", "01*"}),
		record.Map{"label": "b", "text": "om.", "witnesses": "05 1739", "lemma": true},
		reading("bf", "κα", "614"),
		reading("zz", "", "P74"),
	)

	u, err := p.Parse(rec, 7)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if u.Anchor.String() != "Acts.1.3/2-4" || u.Index != 7 {
		t.Errorf("anchor/index = %s/%d", u.Anchor, u.Index)
	}
	if len(u.Readings) != 4 {
		t.Fatalf("got %d readings", len(u.Readings))
	}

	a := u.Readings[0]
	if a.Text != "καὶ ἐγένετο" {
		t.Errorf("text altered: %q", a.Text)
	}
	if got := a.Sigla(); !reflect.DeepEqual(got, []string{"01", "03"}) {
		t.Errorf("a witnesses = %v (repeated hands of one witness collapse)", got)
	}
	if a.Kind != ir.KindUnspecified || a.Lemma {
		t.Errorf("a defaults = %v, lemma %v", a.Kind, a.Lemma)
	}

	b := u.Readings[1]
	if b.Text != "" || !b.Lemma {
		t.Errorf("b = %q lemma %v", b.Text, b.Lemma)
	}

	bf := u.Readings[2]
	if bf.Kind != ir.KindOrthographic || bf.Parent != "b" {
		t.Errorf("bf kind %v parent %q", bf.Kind, bf.Parent)
	}

	zz := u.Readings[3]
	if zz.Kind != ir.KindLacuna || zz.Seq != 3 {
		t.Errorf("zz kind %v seq %d", zz.Kind, zz.Seq)
	}
}

func TestParseAnchorFields(t *testing.T) {
	p := New(witness.NewRegistry(), Options{})
	tests := []struct {
		name string
		rec  record.Map
		want string
	}{
		{"index with span", record.Map{"index": "B05K1V3", "from": 2, "to": 8}, "Acts.1.3/2-8"},
		{"verse field", record.Map{"verse": "Acts.1.3", "from": 4}, "Acts.1.3/4"},
		{"anchor with span fields", record.Map{"anchor": "Acts.1.3", "from": 1, "to": 5}, "Acts.1.3/1-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rec["readings"] = []any{map[string]any{"text": "x", "witnesses": "01"}}
			u, err := p.Parse(tt.rec, 0)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if u.Anchor.String() != tt.want {
				t.Errorf("anchor = %s, want %s", u.Anchor, tt.want)
			}
			if u.Readings[0].Label != "a" {
				t.Errorf("default label = %q", u.Readings[0].Label)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		rec      record.Map
		sentinel error
	}{
		{"no anchor", record.Map{"readings": []any{map[string]any{"witnesses": "01"}}}, cerrors.ErrInvalidInput},
		{"bad anchor", unitRecord("Acts.x.3", reading("a", "x", "01")), cerrors.ErrInvalidInput},
		{"no readings", record.Map{"anchor": "Acts.1.3"}, cerrors.ErrEmptyUnit},
		{"no witnesses", unitRecord("Acts.1.3", reading("a", "x", []any{}), reading("b", "y", "")), cerrors.ErrEmptyUnit},
		{"duplicate label", unitRecord("Acts.1.3", reading("a", "x", "01"), reading("a", "y", "03")), cerrors.ErrInvalidInput},
		{"unknown kind", unitRecord("Acts.1.3", record.Map{"label": "a", "kind": "marginal", "witnesses": "01"}), cerrors.ErrInvalidInput},
		{"ambiguous without targets", unitRecord("Acts.1.3", reading("a", "x", "01"), reading("zw", "", "03")), cerrors.ErrInvalidInput},
		{"ambiguous with unknown target", unitRecord("Acts.1.3",
			reading("a", "x", "01"),
			record.Map{"label": "zw", "reading": "a/q", "witnesses": "03"},
		), cerrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(witness.NewRegistry(), Options{}).Parse(tt.rec, 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestParseEmptyUnitNamesAnchor(t *testing.T) {
	_, err := New(witness.NewRegistry(), Options{}).Parse(record.Map{"anchor": "Acts.2.1/3"}, 0)
	var eu *cerrors.EmptyUnitError
	if !errors.As(err, &eu) || eu.Anchor != "Acts.2.1/3" {
		t.Errorf("error = %v", err)
	}
}

func TestParseAmbiguous(t *testing.T) {
	p := New(witness.NewRegistry(), Options{})
	rec := unitRecord("Acts.1.3/2",
		reading("a", "x", "01"),
		reading("b", "y", "03"),
		record.Map{"label": "zw", "reading": "a/b_f", "witnesses": "04 05"},
	)
	u, err := p.Parse(rec, 0)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(u.Readings) != 2 {
		t.Errorf("ambiguous label should not become a reading, got %d readings", len(u.Readings))
	}
	want := []ir.AmbiguousAttestation{
		{Siglum: "04", Targets: []string{"a", "b"}},
		{Siglum: "05", Targets: []string{"a", "b"}},
	}
	if !reflect.DeepEqual(u.Ambiguous, want) {
		t.Errorf("Ambiguous = %+v", u.Ambiguous)
	}
}

func TestParseWitnessRecords(t *testing.T) {
	reg := witness.NewRegistry()
	p := New(reg, Options{})
	rec := unitRecord("Acts.1.3",
		record.Map{"label": "a", "text": "x", "witnesses": []any{
			map[string]any{"id": "01"},
			map[string]any{"id": "Augustine", "category": "patristic"},
			map[string]any{"id": "NA28", "category": "edition"},
		}},
	)
	u, err := p.Parse(rec, 0)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := u.Readings[0].Sigla(); !reflect.DeepEqual(got, []string{"01", "Augustine", "NA28"}) {
		t.Errorf("sigla = %v", got)
	}
	if w, _ := reg.Lookup("NA28"); w == nil || w.Category != ir.CategoryEdition {
		t.Errorf("NA28 = %+v", w)
	}
}

func TestParseLongFormWitnessRecord(t *testing.T) {
	reg := witness.NewRegistry()
	p := New(reg, Options{})
	rec := unitRecord("Acts.1.3",
		record.Map{"label": "a", "text": "x", "witnesses": []any{
			map[string]any{"id": "GA  01"},
			map[string]any{"id": "Papyrus 74", "category": "manuscript"},
		}},
	)
	u, err := p.Parse(rec, 0)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := u.Readings[0].Sigla(); !reflect.DeepEqual(got, []string{"01", "P74"}) {
		t.Errorf("sigla = %v", got)
	}
	if reg.Len() != 2 {
		t.Errorf("registered %d witnesses, want 2", reg.Len())
	}
}

func TestParseLongAndShortFormCollide(t *testing.T) {
	tests := []struct {
		name  string
		first any
		other any
	}{
		{"strings", "GA 01", "01"},
		{"records", []any{map[string]any{"id": "GA 01"}}, []any{map[string]any{"id": "01"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(witness.NewRegistry(), Options{})
			_, err := p.Parse(unitRecord("Acts.1.3",
				reading("a", "x", tt.first),
				reading("b", "y", tt.other),
			), 0)
			if !errors.Is(err, cerrors.ErrSiglumCollision) {
				t.Fatalf("err = %v, want siglum collision", err)
			}
		})
	}
}

func TestParseByzExpansion(t *testing.T) {
	p := New(witness.NewRegistry(), Options{
		Byzantine: map[string][]string{"Acts": {"014", "020", "1739", "L156"}},
	})
	rec := unitRecord("Acts.1.3",
		reading("a", "x", "01 1739* Byz"),
		reading("b", "y", "020"),
	)
	u, err := p.Parse(rec, 0)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := strings.Join(u.Readings[0].Sigla(), " "); got != "01 1739 014 L156" {
		t.Errorf("expanded = %q", got)
	}

	noList := New(witness.NewRegistry(), Options{})
	u, err = noList.Parse(unitRecord("Rom.1.1", reading("a", "x", "Byz 01")), 0)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := u.Readings[0].Sigla(); !reflect.DeepEqual(got, []string{"Byz", "01"}) {
		t.Errorf("unexpanded Byz = %v", got)
	}
}

func TestParseSingularToSubreading(t *testing.T) {
	p := New(witness.NewRegistry(), Options{SingularToSubreading: true})
	u, err := p.Parse(unitRecord("Acts.1.3",
		reading("a", "x", "01 03"),
		reading("b", "y", "1739"),
		reading("zz", "", "P74"),
	), 0)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if u.Readings[0].Subreading || !u.Readings[1].Subreading || u.Readings[2].Subreading {
		t.Errorf("subreading flags = %v %v %v",
			u.Readings[0].Subreading, u.Readings[1].Subreading, u.Readings[2].Subreading)
	}
}

func TestParseWitnessOrderIndependent(t *testing.T) {
	a, err := New(witness.NewRegistry(), Options{}).Parse(unitRecord("Acts.1.3", reading("a", "x", "01 03 1739")), 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(witness.NewRegistry(), Options{}).Parse(unitRecord("Acts.1.3", reading("a", "x", "1739 01 03")), 0)
	if err != nil {
		t.Fatal(err)
	}
	set := func(u *ir.VariationUnit) map[string]bool {
		m := map[string]bool{}
		for _, s := range u.Readings[0].Sigla() {
			m[s] = true
		}
		return m
	}
	if !reflect.DeepEqual(set(a), set(b)) {
		t.Error("witness order changed the resolved siglum set")
	}
}

func TestDefaultLabel(t *testing.T) {
	tests := map[int]string{0: "a", 25: "z", 26: "aa", 27: "ab", 51: "az", 52: "ba"}
	for pos, want := range tests {
		if got := defaultLabel(pos); got != want {
			t.Errorf("defaultLabel(%d) = %q, want %q", pos, got, want)
		}
	}
}
