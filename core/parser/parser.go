// Package parser turns raw variation-unit records into normalized units.
//
// Every optional record field has an explicit default: a missing kind is
// left unspecified for the collator, a missing lemma mark is false, a
// missing lemma_free flag is false and a missing category hint lets the
// registry infer the category.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
	"github.com/FocuswithJustin/vmr2tei/core/record"
	"github.com/FocuswithJustin/vmr2tei/core/witness"
)

// Reading labels with a fixed meaning in NTVMR apparatus data.
const (
	LacunaLabel    = "zz"
	AmbiguousLabel = "zw"
	OverlapLabel   = "zu"

	// OmissionText marks a reading that omits the passage.
	OmissionText = "om."
)

var (
	defectiveLabel    = regexp.MustCompile(`^([a-z]+)f\d*$`)
	orthographicLabel = regexp.MustCompile(`^([a-z]+)o\d*$`)
)

// Options controls parsing.
type Options struct {
	// Byzantine maps a book to the witnesses the Byz siglum stands for.
	Byzantine map[string][]string
	// SingularToSubreading marks readings without a kind and with at most one
	// witness as subreadings.
	SingularToSubreading bool
}

// Parser converts records into variation units, resolving witnesses through
// a shared registry.
type Parser struct {
	reg  *witness.Registry
	opts Options
}

// New creates a parser bound to a registry.
func New(reg *witness.Registry, opts Options) *Parser {
	return &Parser{reg: reg, opts: opts}
}

// rawReading is a reading record after field extraction, before witness
// resolution.
type rawReading struct {
	label      string
	text       string
	kind       ir.Kind
	parent     string
	lemma      bool
	conjecture bool
	ambiguous  bool
	targets    []string
	hint       string
	tokens     []string
	hints      map[string]string
}

// Parse converts one record into a variation unit. index is the record's
// position in the input and is kept on the unit.
func (p *Parser) Parse(rec record.Record, index int) (*ir.VariationUnit, error) {
	anchor, err := parseAnchor(rec)
	if err != nil {
		return nil, err
	}
	unit := &ir.VariationUnit{Anchor: anchor, Index: index}
	unit.LemmaFree, _ = rec.Bool("lemma_free")

	recs := rec.Records("readings")
	if len(recs) == 0 {
		return nil, &cerrors.EmptyUnitError{Anchor: anchor.String(), Reason: "record has no readings"}
	}

	raws := make([]*rawReading, len(recs))
	lists := make([][]string, len(recs))
	for i, r := range recs {
		raw, err := readReading(r, i, anchor)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
		lists[i] = raw.tokens
	}
	lists = expandByz(lists, p.opts.Byzantine[anchor.Book])

	labels := make(map[string]bool, len(raws))
	seq := 0
	for i, raw := range raws {
		sigla, err := p.resolve(lists[i], raw)
		if err != nil {
			return nil, err
		}
		if raw.ambiguous {
			for _, s := range sigla {
				unit.Ambiguous = append(unit.Ambiguous, ir.AmbiguousAttestation{
					Siglum:  s,
					Targets: append([]string(nil), raw.targets...),
				})
			}
			continue
		}
		if labels[raw.label] {
			return nil, cerrors.NewParse("unit", anchor.String(), fmt.Sprintf("duplicate reading label %q", raw.label))
		}
		labels[raw.label] = true

		rd := &ir.Reading{
			Label:      raw.label,
			Text:       raw.text,
			Kind:       raw.kind,
			Lemma:      raw.lemma,
			Seq:        seq,
			Parent:     raw.parent,
			Conjecture: raw.conjecture,
		}
		seq++
		for _, s := range sigla {
			rd.Witnesses = append(rd.Witnesses, ir.Attestation{Siglum: s})
		}
		if p.opts.SingularToSubreading && rd.Kind == ir.KindUnspecified && len(rd.Witnesses) <= 1 {
			rd.Subreading = true
		}
		unit.Readings = append(unit.Readings, rd)
	}

	if len(unit.Readings) == 0 {
		return nil, &cerrors.EmptyUnitError{Anchor: anchor.String(), Reason: "record has only ambiguous attestations"}
	}
	if unit.WitnessCount()+len(unit.Ambiguous) == 0 {
		return nil, &cerrors.EmptyUnitError{Anchor: anchor.String(), Reason: "no witnesses cited"}
	}
	for _, amb := range unit.Ambiguous {
		for _, t := range amb.Targets {
			if !labels[t] {
				return nil, cerrors.NewParse("unit", anchor.String(),
					fmt.Sprintf("witness %s is ambiguous with unknown reading %q", amb.Siglum, t))
			}
		}
	}
	return unit, nil
}

// resolve maps the tokens of one reading to sigla, dropping repeats of the
// same witness.
func (p *Parser) resolve(tokens []string, raw *rawReading) ([]string, error) {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		hint := raw.hint
		if h, ok := raw.hints[tok]; ok {
			hint = h
		}
		if tok == ByzSiglum && hint == "" {
			hint = ir.CategoryEdition.String()
		}
		s, err := p.reg.Siglum(tok, hint)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}

func readReading(r record.Record, pos int, anchor ir.Anchor) (*rawReading, error) {
	raw := &rawReading{}
	label, _ := r.String("label")
	raw.label = strings.TrimSpace(strings.ReplaceAll(label, "♦", ""))
	if raw.label == "" {
		raw.label = defaultLabel(pos)
	}
	raw.text, _ = r.String("text")
	if raw.text == OmissionText {
		raw.text = ""
	}
	raw.lemma, _ = r.Bool("lemma")
	raw.conjecture, _ = r.Bool("conjecture")
	raw.hint, _ = r.String("category")

	kindName, hasKind := r.String("kind")
	switch {
	case hasKind && strings.EqualFold(strings.TrimSpace(kindName), "ambiguous"):
		raw.ambiguous = true
	case hasKind && strings.TrimSpace(kindName) != "":
		k, err := ir.ParseKind(kindName)
		if err != nil {
			return nil, &cerrors.ParseError{Format: "unit", Path: anchor.String(), Message: err.Error(), Err: cerrors.ErrInvalidInput}
		}
		raw.kind = k
	default:
		applyLabelConvention(raw)
	}
	if raw.kind == ir.KindLacuna || raw.kind == ir.KindOverlap {
		raw.text = ""
	}
	if m := defectiveLabel.FindStringSubmatch(raw.label); m != nil && raw.parent == "" && raw.kind == ir.KindOrthographic {
		raw.parent = m[1]
	}
	if m := orthographicLabel.FindStringSubmatch(raw.label); m != nil && raw.parent == "" && raw.kind == ir.KindOrthographic {
		raw.parent = m[1]
	}
	if parent, ok := r.String("parent"); ok && parent != "" {
		raw.parent = parent
	}

	if raw.ambiguous {
		raw.targets = readTargets(r)
		if len(raw.targets) == 0 {
			return nil, cerrors.NewParse("unit", anchor.String(), "ambiguous reading lists no target readings")
		}
	}

	raw.hints = make(map[string]string)
	if list, ok := r.Strings("witnesses"); ok {
		raw.tokens = CleanWitnesses(strings.Join(list, " "))
	} else {
		for _, w := range r.Records("witnesses") {
			id, ok := w.String("id")
			if !ok {
				continue
			}
			// A structured record names exactly one witness.
			tok := strings.Join(strings.Fields(id), " ")
			if tok == "" {
				continue
			}
			if hint, ok := w.String("category"); ok {
				raw.hints[tok] = hint
			}
			raw.tokens = append(raw.tokens, tok)
		}
	}
	return raw, nil
}

// applyLabelConvention derives the kind from NTVMR label conventions.
func applyLabelConvention(raw *rawReading) {
	switch {
	case raw.label == LacunaLabel:
		raw.kind = ir.KindLacuna
	case raw.label == OverlapLabel:
		raw.kind = ir.KindOverlap
	case raw.label == AmbiguousLabel:
		raw.ambiguous = true
	case defectiveLabel.MatchString(raw.label), orthographicLabel.MatchString(raw.label):
		raw.kind = ir.KindOrthographic
	}
}

func readTargets(r record.Record) []string {
	var targets []string
	if list, ok := r.Strings("targets"); ok {
		for _, t := range list {
			targets = append(targets, strings.Fields(t)...)
		}
	}
	if len(targets) == 0 {
		if s, ok := r.String("reading"); ok {
			for _, t := range strings.Split(strings.ReplaceAll(s, "_f", ""), "/") {
				if t = strings.TrimSpace(t); t != "" {
					targets = append(targets, t)
				}
			}
		}
	}
	return targets
}

// defaultLabel names the reading at pos "a", "b", ..., "z", "aa", ...
func defaultLabel(pos int) string {
	label := ""
	for n := pos + 1; n > 0; n = (n - 1) / 26 {
		label = string(rune('a'+(n-1)%26)) + label
	}
	return label
}

func parseAnchor(rec record.Record) (ir.Anchor, error) {
	from, _ := rec.Int("from")
	to, _ := rec.Int("to")
	if s, ok := rec.String("anchor"); ok && strings.TrimSpace(s) != "" {
		if from == 0 && to == 0 {
			return ir.ParseAnchor(s)
		}
		return ir.NewAnchor(s, from, to)
	}
	for _, key := range []string{"index", "verse"} {
		if s, ok := rec.String(key); ok && strings.TrimSpace(s) != "" {
			return ir.NewAnchor(s, from, to)
		}
	}
	return ir.Anchor{}, cerrors.NewParse("unit", "", "record has no anchor, index or verse field")
}
