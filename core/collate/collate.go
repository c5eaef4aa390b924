// Package collate selects lemmas, classifies readings and orders them
// within a variation unit.
//
// Collation is a pure function of the unit and the configuration: the
// input unit is never modified and collating a collated unit returns an
// equal unit.
package collate

import (
	"fmt"
	"sort"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
)

// SplitPolicy decides how a witness cited as ambiguous between readings is
// attached. It governs only attestations marked ambiguous (the "zw"
// reading). A witness cited plainly under two readings stays on both and is
// flagged as a split attestation under either policy.
type SplitPolicy int

const (
	// AttachAll attaches the witness to every target reading, flagged as a
	// split attestation on each.
	AttachAll SplitPolicy = iota
	// FirstTarget attaches the witness to its first target only.
	FirstTarget
)

func (p SplitPolicy) String() string {
	if p == FirstTarget {
		return "first-target"
	}
	return "attach-all"
}

// ParseSplitPolicy maps a policy name to a SplitPolicy.
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch s {
	case "", "attach-all":
		return AttachAll, nil
	case "first-target":
		return FirstTarget, nil
	}
	return AttachAll, fmt.Errorf("unknown split-attestation policy %q", s)
}

// WitnessLookup resolves canonical sigla to registered witnesses.
type WitnessLookup interface {
	Lookup(siglum string) (*ir.Witness, bool)
}

// DefectCatalog reports witnesses known to be physically defective at an
// anchor.
type DefectCatalog interface {
	Defective(siglum string, at ir.Anchor) bool
}

// Config holds the collation policies.
type Config struct {
	// Primary is the set of sigla that breaks ties between equally
	// supported lemma candidates.
	Primary map[string]bool
	// Equivalent is the orthographic equivalence policy. Nil means Strict.
	Equivalent Policy
	// Overrides maps an anchor to the label or exact text of the reading to
	// use as lemma. Keys may use any anchor notation; New rekeys them with
	// NormalizeOverrides and leaves the map as is if that fails.
	Overrides map[string]string
	// Split decides how ambiguous attestations are attached.
	Split SplitPolicy
	// FirstAppearance breaks remaining lemma ties by reading order. When
	// false such ties fail with AmbiguousLemmaError.
	FirstAppearance bool
	// Defects lists known physical defects. Nil means none are known.
	Defects DefectCatalog
}

// DefaultConfig returns the conventional policies: Greek orthography,
// attach-all split attestation and first-appearance tie-breaking.
func DefaultConfig() Config {
	return Config{
		Equivalent:      Normalized(FoldGreek),
		Split:           AttachAll,
		FirstAppearance: true,
	}
}

// Collator collates variation units.
type Collator struct {
	cfg       Config
	witnesses WitnessLookup
}

// New creates a collator. witnesses may be nil, in which case no reading is
// recognized as correction-only. Callers that need invalid override keys
// reported should run NormalizeOverrides first.
func New(cfg Config, witnesses WitnessLookup) *Collator {
	if cfg.Equivalent == nil {
		cfg.Equivalent = Strict
	}
	if norm, err := NormalizeOverrides(cfg.Overrides); err == nil {
		cfg.Overrides = norm
	}
	return &Collator{cfg: cfg, witnesses: witnesses}
}

// Collate returns a collated copy of u.
func (c *Collator) Collate(u *ir.VariationUnit) (*ir.VariationUnit, error) {
	out := u.Clone()
	anchor := out.Anchor.String()

	c.attachAmbiguous(out)
	for _, r := range out.Readings {
		c.preclassify(out.Anchor, r)
		if len(r.Witnesses) == 0 && r.Kind != ir.KindConjecture {
			return nil, &cerrors.EmptyUnitError{Anchor: anchor, Reason: fmt.Sprintf("reading %s has no witnesses", r.Label)}
		}
	}

	var lemma *ir.Reading
	if out.LemmaFree {
		for _, r := range out.Readings {
			if r.Lemma {
				return nil, &cerrors.AmbiguousLemmaError{Anchor: anchor, Candidates: []string{r.Label},
					Reason: "lemma-free unit marks a lemma"}
			}
		}
	} else {
		var err error
		if lemma, err = c.selectLemma(out); err != nil {
			return nil, err
		}
		for _, r := range out.Readings {
			r.Lemma = r == lemma
		}
	}

	c.classify(out, lemma)
	order(out.Readings)
	return out, nil
}

// attachAmbiguous resolves pending ambiguous attestations and flags every
// witness cited for more than one reading.
func (c *Collator) attachAmbiguous(u *ir.VariationUnit) {
	for _, amb := range u.Ambiguous {
		targets := amb.Targets
		if c.cfg.Split == FirstTarget && len(targets) > 1 {
			targets = targets[:1]
		}
		for _, label := range targets {
			r := u.Reading(label)
			if r == nil || r.HasWitness(amb.Siglum) {
				continue
			}
			r.Witnesses = append(r.Witnesses, ir.Attestation{Siglum: amb.Siglum})
		}
	}
	u.Ambiguous = nil

	count := make(map[string]int)
	for _, r := range u.Readings {
		for _, a := range r.Witnesses {
			count[a.Siglum]++
		}
	}
	for _, r := range u.Readings {
		for i := range r.Witnesses {
			if count[r.Witnesses[i].Siglum] > 1 {
				r.Witnesses[i].Split = true
			}
		}
	}
}

// preclassify assigns the kinds that do not depend on the lemma. Explicit
// kinds are kept.
func (c *Collator) preclassify(at ir.Anchor, r *ir.Reading) {
	if r.Kind != ir.KindUnspecified {
		return
	}
	switch {
	case r.Conjecture:
		r.Kind = ir.KindConjecture
	case r.Text == "" && len(r.Witnesses) > 0 && c.allDefective(at, r):
		r.Kind = ir.KindLacuna
	case len(r.Witnesses) > 0 && c.allCorrectors(r):
		r.Kind = ir.KindCorrection
	}
}

func (c *Collator) allDefective(at ir.Anchor, r *ir.Reading) bool {
	if c.cfg.Defects == nil {
		return false
	}
	for _, a := range r.Witnesses {
		if !c.cfg.Defects.Defective(a.Siglum, at) {
			return false
		}
	}
	return true
}

func (c *Collator) allCorrectors(r *ir.Reading) bool {
	if c.witnesses == nil {
		return false
	}
	for _, a := range r.Witnesses {
		w, ok := c.witnesses.Lookup(a.Siglum)
		if !ok || !w.Corrector {
			return false
		}
	}
	return true
}

// candidate reports whether a reading may serve as lemma.
func candidate(r *ir.Reading) bool {
	return r.Kind != ir.KindLacuna && r.Kind != ir.KindOverlap
}

func (c *Collator) selectLemma(u *ir.VariationUnit) (*ir.Reading, error) {
	anchor := u.Anchor.String()

	if choice, ok := c.cfg.Overrides[anchor]; ok {
		r := u.Reading(choice)
		if r == nil {
			for _, cand := range u.Readings {
				if cand.Text == choice {
					r = cand
					break
				}
			}
		}
		if r == nil {
			return nil, &cerrors.AmbiguousLemmaError{Anchor: anchor, Candidates: labels(u.Readings),
				Reason: fmt.Sprintf("override %q matches no reading", choice)}
		}
		if !candidate(r) {
			return nil, &cerrors.AmbiguousLemmaError{Anchor: anchor, Candidates: []string{r.Label},
				Reason: fmt.Sprintf("override selects a %s reading", r.Kind)}
		}
		return r, nil
	}

	var marked []*ir.Reading
	for _, r := range u.Readings {
		if r.Lemma {
			marked = append(marked, r)
		}
	}
	switch {
	case len(marked) > 1:
		return nil, &cerrors.AmbiguousLemmaError{Anchor: anchor, Candidates: labels(marked),
			Reason: "source marks more than one lemma"}
	case len(marked) == 1 && !candidate(marked[0]):
		return nil, &cerrors.AmbiguousLemmaError{Anchor: anchor, Candidates: labels(marked),
			Reason: fmt.Sprintf("source marks a %s reading as lemma", marked[0].Kind)}
	case len(marked) == 1:
		return marked[0], nil
	}

	var tied []*ir.Reading
	for _, r := range u.Readings {
		if candidate(r) {
			tied = append(tied, r)
		}
	}
	if len(tied) == 0 {
		return nil, &cerrors.AmbiguousLemmaError{Anchor: anchor, Reason: "no reading can serve as lemma"}
	}

	tied = maxBy(tied, func(r *ir.Reading) int { return len(r.Witnesses) })
	if len(tied) > 1 && len(c.cfg.Primary) > 0 {
		tied = maxBy(tied, c.primarySupport)
	}
	if len(tied) == 1 {
		return tied[0], nil
	}
	if !c.cfg.FirstAppearance {
		return nil, &cerrors.AmbiguousLemmaError{Anchor: anchor, Candidates: labels(tied),
			Reason: "tie between equally supported readings"}
	}
	first := tied[0]
	for _, r := range tied[1:] {
		if r.Seq < first.Seq {
			first = r
		}
	}
	return first, nil
}

func (c *Collator) primarySupport(r *ir.Reading) int {
	n := 0
	for _, a := range r.Witnesses {
		if c.cfg.Primary[a.Siglum] {
			n++
		}
	}
	return n
}

// maxBy returns the readings with the highest score, in input order.
func maxBy(rs []*ir.Reading, score func(*ir.Reading) int) []*ir.Reading {
	best := -1
	var out []*ir.Reading
	for _, r := range rs {
		switch s := score(r); {
		case s > best:
			best = s
			out = []*ir.Reading{r}
		case s == best:
			out = append(out, r)
		}
	}
	return out
}

// classify settles the remaining kinds against the lemma.
func (c *Collator) classify(u *ir.VariationUnit, lemma *ir.Reading) {
	for _, r := range u.Readings {
		if r.Kind != ir.KindUnspecified {
			continue
		}
		if lemma != nil && r != lemma && c.cfg.Equivalent(r.Text, lemma.Text) {
			r.Kind = ir.KindOrthographic
			if r.Parent == "" {
				r.Parent = lemma.Label
			}
			continue
		}
		r.Kind = ir.KindSubstantive
	}
}

// order sorts readings lemma first, then by descending witness count, then
// by first appearance.
func order(rs []*ir.Reading) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Lemma != b.Lemma {
			return a.Lemma
		}
		if len(a.Witnesses) != len(b.Witnesses) {
			return len(a.Witnesses) > len(b.Witnesses)
		}
		return a.Seq < b.Seq
	})
}

func labels(rs []*ir.Reading) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Label
	}
	return out
}
