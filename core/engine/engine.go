// Package engine runs the conversion pipeline: records are parsed into
// variation units, collated, assembled into a document and serialized as
// TEI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/vmr2tei/core/apparatus"
	"github.com/FocuswithJustin/vmr2tei/core/collate"
	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
	"github.com/FocuswithJustin/vmr2tei/core/parser"
	"github.com/FocuswithJustin/vmr2tei/core/record"
	"github.com/FocuswithJustin/vmr2tei/core/tei"
	"github.com/FocuswithJustin/vmr2tei/core/witness"
)

// Mode decides what happens when a unit fails to parse or collate.
type Mode int

const (
	// Strict aborts the run on the first failing unit.
	Strict Mode = iota
	// Collect skips failing units, reports them and builds the document from
	// the rest.
	Collect
)

func (m Mode) String() string {
	if m == Collect {
		return "collect"
	}
	return "strict"
}

// ParseMode maps a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "collect":
		return Collect, nil
	}
	return Strict, cerrors.NewValidation("mode", fmt.Sprintf("unknown error mode %q", s))
}

// Stage names reported to Progress.
const (
	StageCollate   = "collate"
	StageBuild     = "build"
	StageSerialize = "serialize"
)

// Progress describes how far a run has got.
type Progress struct {
	Stage string
	Done  int
	Total int
}

// Config holds every setting of a run.
type Config struct {
	// Primary lists sigla that break ties between equally supported lemma
	// candidates.
	Primary []string
	// PrimaryGroup names a witness group whose members are added to Primary.
	PrimaryGroup string
	// Equivalent is the orthographic equivalence policy. Nil means the Greek
	// policy.
	Equivalent collate.Policy
	// Concise folds orthographic variants into their parent reading.
	Concise bool
	// Overrides maps an anchor to the label or text of its lemma. Keys may
	// use any anchor notation. A key that is not an anchor, or that names no
	// unit of the run, fails the run with a ValidationError.
	Overrides map[string]string
	// Split decides how ambiguous attestations are attached.
	Split collate.SplitPolicy
	// FirstAppearance breaks remaining lemma ties by reading order.
	FirstAppearance bool
	// Mode is the error mode.
	Mode Mode
	// Workers above 1 collate units in parallel. Parsing is always
	// sequential.
	Workers int
	// Groups maps a group name to member sigla.
	Groups map[string][]string
	// Byzantine maps a book to the witnesses the Byz siglum stands for.
	Byzantine map[string][]string
	// SingularToSubreading marks weakly attested untyped readings as
	// subreadings.
	SingularToSubreading bool
	// Defects lists known physical defects in witnesses.
	Defects collate.DefectCatalog
	// Title and Language override the document defaults.
	Title    string
	Language string
	// Progress, if set, is called as units are processed. It may be called
	// from several goroutines when Workers > 1.
	Progress func(Progress)
}

// DefaultConfig returns the conventional settings.
func DefaultConfig() Config {
	c := collate.DefaultConfig()
	return Config{
		Equivalent:      c.Equivalent,
		Split:           c.Split,
		FirstAppearance: c.FirstAppearance,
		Workers:         1,
	}
}

// Result is the outcome of a run.
type Result struct {
	Document *ir.Document
	Output   []byte
	// Units is the number of units that made it into the document.
	Units int
	// Errors holds the failed units in Collect mode, sorted by record index.
	Errors cerrors.UnitErrors
	// Witnesses lists every registered witness in canonical order.
	Witnesses []*ir.Witness
}

// Engine converts records into a TEI apparatus. An Engine is not tied to one
// run; each call to Convert uses a fresh witness registry.
type Engine struct {
	cfg Config
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.Equivalent == nil {
		cfg.Equivalent = collate.Normalized(collate.FoldGreek)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Convert runs the whole pipeline over records. In Strict mode the first
// unit error aborts the run. In Collect mode the result is returned with the
// report in Result.Errors and a nil error, unless every unit failed.
// Registry, builder and serializer errors always abort.
func (e *Engine) Convert(ctx context.Context, records []record.Record) (*Result, error) {
	units, reg, report, err := e.collate(ctx, records)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		if len(report) > 0 {
			return &Result{Errors: report, Witnesses: reg.Witnesses()}, report
		}
		return nil, &cerrors.EmptyUnitError{Reason: "no records to convert"}
	}

	e.progress(StageBuild, 0, 1)
	doc, err := apparatus.New(apparatus.Config{
		Concise:  e.cfg.Concise,
		Title:    e.cfg.Title,
		Language: e.cfg.Language,
	}, reg).Build(units)
	if err != nil {
		return nil, err
	}
	e.progress(StageBuild, 1, 1)

	e.progress(StageSerialize, 0, 1)
	out, err := tei.Serialize(doc)
	if err != nil {
		return nil, err
	}
	e.progress(StageSerialize, 1, 1)

	return &Result{
		Document:  doc,
		Output:    out,
		Units:     len(units),
		Errors:    report,
		Witnesses: reg.Witnesses(),
	}, nil
}

// Check parses and collates records without building a document. It returns
// every unit error regardless of the mode.
func (e *Engine) Check(ctx context.Context, records []record.Record) ([]*ir.VariationUnit, cerrors.UnitErrors, error) {
	cfg := e.cfg
	cfg.Mode = Collect
	units, _, report, err := (&Engine{cfg: cfg}).collate(ctx, records)
	return units, report, err
}

// collate parses and collates every record. The returned units are in
// record order with failed units left out.
//
// Records are parsed one after another so witnesses register in record
// order and the first registration of an identifier is the same on every
// run. Collation touches no shared state and runs on Workers goroutines.
func (e *Engine) collate(ctx context.Context, records []record.Record) ([]*ir.VariationUnit, *witness.Registry, cerrors.UnitErrors, error) {
	overrides, err := collate.NormalizeOverrides(e.cfg.Overrides)
	if err != nil {
		return nil, nil, nil, err
	}
	reg := witness.NewRegistry(witness.WithGroups(e.cfg.Groups))
	p := parser.New(reg, parser.Options{
		Byzantine:            e.cfg.Byzantine,
		SingularToSubreading: e.cfg.SingularToSubreading,
	})
	c := collate.New(collate.Config{
		Primary:         e.primary(),
		Equivalent:      e.cfg.Equivalent,
		Overrides:       overrides,
		Split:           e.cfg.Split,
		FirstAppearance: e.cfg.FirstAppearance,
		Defects:         e.cfg.Defects,
	}, reg)

	total := len(records)
	parsed := make([]*ir.VariationUnit, total)
	slots := make([]*ir.VariationUnit, total)
	errs := make([]error, total)

	// In Strict mode parsing stops at the first failure; the units before
	// it are still collated so the lowest failing index is reported.
	stop := total
	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}
		u, err := p.Parse(records[i], i)
		if err != nil {
			if errors.Is(err, cerrors.ErrSiglumCollision) {
				return nil, nil, nil, err
			}
			errs[i] = &cerrors.UnitError{Index: i, Anchor: anchorOf(records[i], nil), Err: err}
			if e.cfg.Mode == Strict {
				stop = i
				break
			}
			continue
		}
		parsed[i] = u
	}

	process := func(i int) error {
		if parsed[i] == nil {
			return nil
		}
		u, err := c.Collate(parsed[i])
		if err != nil {
			if errors.Is(err, cerrors.ErrSiglumCollision) {
				return err
			}
			errs[i] = &cerrors.UnitError{Index: i, Anchor: parsed[i].Anchor.String(), Err: err}
			return nil
		}
		slots[i] = u
		return nil
	}

	if e.cfg.Workers <= 1 {
		for i := 0; i < stop; i++ {
			if err := ctx.Err(); err != nil {
				return nil, nil, nil, err
			}
			if err := process(i); err != nil {
				return nil, nil, nil, err
			}
			if errs[i] != nil && e.cfg.Mode == Strict {
				return nil, nil, nil, errs[i]
			}
			e.progress(StageCollate, i+1, total)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(e.cfg.Workers, max(stop, 1)))
		done := make(chan struct{}, total)
		for i := 0; i < stop; i++ {
			i := i
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				if err := process(i); err != nil {
					return err
				}
				done <- struct{}{}
				e.progress(StageCollate, len(done), total)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, nil, err
		}
	}
	if e.cfg.Mode == Strict {
		for _, err := range errs {
			if err != nil {
				return nil, nil, nil, err
			}
		}
	}

	if err := checkOverrides(overrides, records, parsed); err != nil {
		return nil, nil, nil, err
	}

	var report cerrors.UnitErrors
	units := make([]*ir.VariationUnit, 0, total)
	for i, u := range slots {
		if errs[i] != nil {
			report = append(report, errs[i].(*cerrors.UnitError))
			continue
		}
		units = append(units, u)
	}
	report.Sort()
	return units, reg, report, nil
}

// checkOverrides fails when a lemma override names no record of the run.
// Records that did not parse still count when their anchor field does.
func checkOverrides(overrides map[string]string, records []record.Record, parsed []*ir.VariationUnit) error {
	if len(overrides) == 0 {
		return nil
	}
	anchors := make([]ir.Anchor, 0, len(records))
	for i, u := range parsed {
		if u != nil {
			anchors = append(anchors, u.Anchor)
			continue
		}
		if a, err := ir.ParseAnchor(anchorOf(records[i], nil)); err == nil {
			anchors = append(anchors, a)
		}
	}
	missing := collate.UnmatchedOverrides(overrides, anchors)
	if len(missing) == 0 {
		return nil
	}
	return cerrors.NewValidation("overrides",
		fmt.Sprintf("lemma override for %s matches no variation unit", strings.Join(missing, ", ")))
}

func (e *Engine) primary() map[string]bool {
	set := make(map[string]bool)
	for _, s := range e.cfg.Primary {
		set[witness.Canonical(s)] = true
	}
	if e.cfg.PrimaryGroup != "" {
		for _, s := range e.cfg.Groups[e.cfg.PrimaryGroup] {
			set[witness.Canonical(s)] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func (e *Engine) progress(stage string, done, total int) {
	if e.cfg.Progress != nil {
		e.cfg.Progress(Progress{Stage: stage, Done: done, Total: total})
	}
}

// anchorOf names the unit for the error report, falling back to the
// record's own fields when parsing did not get as far as the anchor.
func anchorOf(rec record.Record, u *ir.VariationUnit) string {
	if u != nil {
		return u.Anchor.String()
	}
	for _, key := range []string{"anchor", "index", "verse"} {
		if s, ok := rec.String(key); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
