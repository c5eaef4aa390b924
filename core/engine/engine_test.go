package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
	"github.com/FocuswithJustin/vmr2tei/core/record"
)

func reading(label, text, witnesses string) any {
	return map[string]any{"label": label, "text": text, "witnesses": witnesses}
}

func unit(anchor string, readings ...any) record.Record {
	return record.Map{"anchor": anchor, "readings": readings}
}

func TestConvert(t *testing.T) {
	records := []record.Record{
		unit("Acts.1.3/2",
			reading("a", "ὁ", "01 03 1739"),
			reading("zz", "", "05"),
		),
		unit("Acts.1.3/1-5",
			reading("a", "καὶ ἐγένετο", "01 03 05"),
			reading("b", "ἐγένετο δὲ", "1739"),
		),
	}

	res, err := New(DefaultConfig()).Convert(context.Background(), records)
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}
	if res.Units != 2 || len(res.Errors) != 0 {
		t.Errorf("units = %d errors = %v", res.Units, res.Errors)
	}
	if res.Document.EntryCount() != 2 {
		t.Errorf("EntryCount = %d", res.Document.EntryCount())
	}
	out := string(res.Output)
	for _, want := range []string{
		`<lem n="a" wit="01 03 1739">ὁ</lem>`,
		`<rdg n="zz" type="lac" wit="05"/>`,
		`<title>A collation of Acts</title>`,
		`<witness n="1739" type="minuscule"/>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %s", want)
		}
	}
	if strings.Index(out, `<app n="Acts.1.3/1-5">`) > strings.Index(out, `<app n="Acts.1.3/2">`) {
		t.Error("containing unit must enclose the nested one")
	}
	if len(res.Witnesses) != 4 {
		t.Errorf("witnesses = %d, want 4", len(res.Witnesses))
	}
}

func TestConvertModes(t *testing.T) {
	records := []record.Record{
		unit("Acts.1.3/2", reading("a", "x", "01"), reading("b", "y", "03 05")),
		unit("Acts.1.3/4"),
		unit("Acts.1.4/1", reading("a", "x", "01")),
	}

	t.Run("strict", func(t *testing.T) {
		_, err := New(DefaultConfig()).Convert(context.Background(), records)
		if !errors.Is(err, cerrors.ErrEmptyUnit) {
			t.Fatalf("error = %v, want empty unit", err)
		}
		var ue *cerrors.UnitError
		if !errors.As(err, &ue) || ue.Index != 1 || ue.Anchor != "Acts.1.3/4" {
			t.Errorf("unit error = %+v", ue)
		}
	})

	t.Run("collect", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Mode = Collect
		res, err := New(cfg).Convert(context.Background(), records)
		if err != nil {
			t.Fatalf("Convert error: %v", err)
		}
		if res.Units != 2 || len(res.Errors) != 1 || res.Errors[0].Index != 1 {
			t.Errorf("units = %d report = %v", res.Units, res.Errors)
		}
		if !errors.Is(res.Errors, cerrors.ErrEmptyUnit) {
			t.Error("report does not match ErrEmptyUnit")
		}
	})

	t.Run("collect with nothing healthy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Mode = Collect
		res, err := New(cfg).Convert(context.Background(), records[1:2])
		if err == nil || res == nil || len(res.Errors) != 1 {
			t.Fatalf("res = %+v err = %v", res, err)
		}
	})
}

func TestConvertNoRecords(t *testing.T) {
	if _, err := New(DefaultConfig()).Convert(context.Background(), nil); !errors.Is(err, cerrors.ErrEmptyUnit) {
		t.Errorf("error = %v", err)
	}
}

func TestConvertOverlapAborts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = Collect
	records := []record.Record{
		unit("Acts.1.3/1-3", reading("a", "x", "01")),
		unit("Acts.1.3/2-4", reading("a", "y", "01")),
	}
	if _, err := New(cfg).Convert(context.Background(), records); !errors.Is(err, cerrors.ErrOverlapConflict) {
		t.Errorf("error = %v, want overlap conflict", err)
	}
}

func manyRecords(n int) []record.Record {
	out := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		verse := i/3 + 1
		word := i%3*2 + 1
		out = append(out, unit(fmt.Sprintf("Rom.1.%d/%d", verse, word),
			reading("a", "καὶ", "01 03 1739"),
			reading("b", "και", "33"),
			reading("c", "δὲ", "05 P46"),
		))
	}
	// Out of order on purpose.
	out[0], out[n-1] = out[n-1], out[0]
	return out
}

func TestConvertParallelMatchesSequential(t *testing.T) {
	records := manyRecords(30)

	seq, err := New(DefaultConfig()).Convert(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Workers = 4
	par, err := New(cfg).Convert(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(seq.Output, par.Output) {
		t.Error("parallel output differs from sequential output")
	}
}

func TestConvertParallelStrictReportsFirstFailure(t *testing.T) {
	records := manyRecords(12)
	records[4] = unit("Rom.9.1/1")
	records[9] = unit("Rom.9.2/1")

	cfg := DefaultConfig()
	cfg.Workers = 3
	_, err := New(cfg).Convert(context.Background(), records)
	var ue *cerrors.UnitError
	if !errors.As(err, &ue) || ue.Index != 4 {
		t.Errorf("error = %v, want failure of record 4", err)
	}
}

// hintedRecords cites 01 in every record with a category hint that
// alternates between records.
func hintedRecords(n int) []record.Record {
	out := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		cat := "patristic"
		if i%2 == 1 {
			cat = "manuscript"
		}
		out = append(out, unit(fmt.Sprintf("Rom.2.%d/1", i+1),
			map[string]any{"label": "a", "text": "καὶ", "witnesses": []any{
				map[string]any{"id": "01", "category": cat},
				map[string]any{"id": "03"},
			}},
			reading("b", "δὲ", "1739"),
		))
	}
	return out
}

func TestConvertParallelRegistersInRecordOrder(t *testing.T) {
	records := hintedRecords(40)

	seq, err := New(DefaultConfig()).Convert(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if w, ok := findWitness(seq.Witnesses, "01"); !ok || w.Category != ir.CategoryPatristic {
		t.Fatalf("01 = %+v, want the category of the first record", w)
	}

	cfg := DefaultConfig()
	cfg.Workers = 8
	for run := 0; run < 20; run++ {
		par, err := New(cfg).Convert(context.Background(), records)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(seq.Output, par.Output) {
			t.Fatalf("run %d: parallel output differs from sequential output", run)
		}
	}
}

func TestConvertLongFormCollision(t *testing.T) {
	records := []record.Record{
		unit("Acts.1.3/2", reading("a", "x", "GA 01 03"), reading("b", "y", "01")),
	}
	for _, mode := range []Mode{Strict, Collect} {
		t.Run(mode.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Mode = mode
			_, err := New(cfg).Convert(context.Background(), records)
			if !errors.Is(err, cerrors.ErrSiglumCollision) {
				t.Fatalf("error = %v, want siglum collision", err)
			}
			var ce *cerrors.SiglumCollisionError
			if errors.As(err, &ce) && (ce.Siglum != "01" || ce.Existing != "GA 01") {
				t.Errorf("collision = %+v", ce)
			}
		})
	}
}

func TestConvertOverrideNotation(t *testing.T) {
	records := []record.Record{
		unit("Acts.1.3/2-4", reading("a", "x", "01 03"), reading("b", "y", "05")),
		unit("Acts.1.4/1", reading("a", "x", "01"), reading("b", "y", "03 05")),
	}
	tests := []struct {
		name      string
		overrides map[string]string
		wantErr   error
		lemma     string
	}{
		{"canonical", map[string]string{"Acts.1.3/2-4": "b"}, nil, "b"},
		{"INTF", map[string]string{"B05K1V3U2-4": "b"}, nil, "b"},
		{"zero padded", map[string]string{"Acts.1.3/02-04": "b"}, nil, "b"},
		{"no such unit", map[string]string{"Acts.9.9/1": "a"}, cerrors.ErrInvalidInput, ""},
		{"not an anchor", map[string]string{"Acts 1": "a"}, cerrors.ErrInvalidInput, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Overrides = tt.overrides
			res, err := New(cfg).Convert(context.Background(), records)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			e := res.Document.Books[0].Chapters[0].Verses[0].Entries[0]
			if lemma := e.Unit.Lemma(); lemma == nil || lemma.Label != tt.lemma {
				t.Errorf("lemma = %+v, want %s", lemma, tt.lemma)
			}
		})
	}
}

func TestConvertConciseDropsResolvedSplit(t *testing.T) {
	records := []record.Record{
		unit("Acts.1.3/2",
			reading("a", "λόγος", "01 03 05"),
			reading("ao", "λογος", "05 1739"),
		),
	}
	cfg := DefaultConfig()
	cfg.Concise = true
	res, err := New(cfg).Convert(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	out := string(res.Output)
	if strings.Contains(out, "witDetail") {
		t.Errorf("folded unit still reports a split attestation:\n%s", out)
	}
	if !strings.Contains(out, `wit="01 03 05 1739"`) {
		t.Errorf("lemma does not carry the folded witnesses:\n%s", out)
	}
}

func TestConvertCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, workers := range []int{1, 4} {
		cfg := DefaultConfig()
		cfg.Workers = workers
		if _, err := New(cfg).Convert(ctx, manyRecords(6)); !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: error = %v, want context.Canceled", workers, err)
		}
	}
}

func TestConvertProgress(t *testing.T) {
	var collated atomic.Int32
	var stages []string
	cfg := DefaultConfig()
	cfg.Progress = func(p Progress) {
		if p.Stage == StageCollate {
			collated.Add(1)
			return
		}
		if p.Done == p.Total {
			stages = append(stages, p.Stage)
		}
	}
	if _, err := New(cfg).Convert(context.Background(), manyRecords(5)); err != nil {
		t.Fatal(err)
	}
	if collated.Load() != 5 {
		t.Errorf("collate progress called %d times, want 5", collated.Load())
	}
	if strings.Join(stages, ",") != "build,serialize" {
		t.Errorf("stages = %v", stages)
	}
}

func TestPrimaryGroupBreaksTies(t *testing.T) {
	records := []record.Record{unit("Acts.1.3/2", reading("a", "x", "01"), reading("b", "y", "03"))}

	cfg := DefaultConfig()
	cfg.Groups = map[string][]string{"primary": {"03"}}
	cfg.PrimaryGroup = "primary"
	res, err := New(cfg).Convert(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	e := res.Document.Books[0].Chapters[0].Verses[0].Entries[0]
	if lemma := e.Unit.Lemma(); lemma == nil || lemma.Label != "b" {
		t.Errorf("lemma = %+v, want b", lemma)
	}
	if w, ok := findWitness(res.Witnesses, "03"); !ok || !w.InGroup("primary") {
		t.Errorf("03 not in primary group: %+v", w)
	}
}

func TestCheck(t *testing.T) {
	records := []record.Record{
		unit("Acts.1.3/2", reading("a", "x", "01")),
		unit("Acts.1.3/4"),
		record.Map{"readings": []any{reading("a", "x", "01")}},
	}
	cfg := DefaultConfig()
	cfg.Mode = Strict
	units, report, err := New(cfg).Check(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || len(report) != 2 {
		t.Fatalf("units = %d report = %v", len(units), report)
	}
	if report[0].Index != 1 || report[1].Index != 2 {
		t.Errorf("report order = %v", report)
	}
	if !errors.Is(report[1], cerrors.ErrInvalidInput) {
		t.Errorf("missing anchor error = %v", report[1])
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": Strict, "strict": Strict, "Collect": Collect} {
		if got, err := ParseMode(in); err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("lenient"); !errors.Is(err, cerrors.ErrInvalidInput) {
		t.Errorf("ParseMode(lenient) = %v", err)
	}
}

func findWitness(ws []*ir.Witness, siglum string) (*ir.Witness, bool) {
	for _, w := range ws {
		if w.Siglum == siglum {
			return w, true
		}
	}
	return nil, false
}
