package ir

import (
	"fmt"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
)

// Validate checks the apparatus invariants of a document: one lemma per
// entry unless lemma-free, witnesses on every non-conjectural reading,
// children strictly inside their parent, and non-decreasing anchor order.
// The first violation is returned as a *errors.StructuralIntegrityError.
func Validate(doc *Document) error {
	if doc == nil {
		return &cerrors.StructuralIntegrityError{Anchor: "document", Reason: "nil document"}
	}
	var prev *Anchor
	for _, b := range doc.Books {
		for _, c := range b.Chapters {
			for _, v := range c.Verses {
				for _, e := range v.Entries {
					a := e.Anchor()
					if a.VerseRef() != v.Ref {
						return integrity(a, fmt.Sprintf("entry placed in verse division %s", v.Ref))
					}
					if prev != nil && prev.Compare(a) > 0 {
						return integrity(a, fmt.Sprintf("entry follows %s out of order", prev))
					}
					if err := validateEntry(e); err != nil {
						return err
					}
					prev = &a
				}
			}
		}
	}
	return nil
}

func validateEntry(e *ApparatusEntry) error {
	if e.Unit == nil {
		return &cerrors.StructuralIntegrityError{Anchor: "?", Reason: "entry without unit"}
	}
	a := e.Anchor()
	if len(e.Readings) == 0 {
		return integrity(a, "entry has no readings")
	}
	lemmas := 0
	for _, r := range e.Readings {
		if r.Lemma {
			lemmas++
		}
		if r.Kind == KindUnspecified {
			return integrity(a, fmt.Sprintf("reading %s was not classified", r.Label))
		}
		if len(r.Witnesses) == 0 && r.Kind != KindConjecture {
			return integrity(a, fmt.Sprintf("reading %s has no witnesses", r.Label))
		}
	}
	switch {
	case e.Unit.LemmaFree && lemmas != 0:
		return integrity(a, fmt.Sprintf("lemma-free entry marks %d lemmas", lemmas))
	case !e.Unit.LemmaFree && lemmas != 1:
		return integrity(a, fmt.Sprintf("entry marks %d lemmas, want exactly 1", lemmas))
	}

	var prev *Anchor
	for _, c := range e.Children {
		ca := c.Anchor()
		if !a.StrictlyContains(ca) {
			return integrity(ca, fmt.Sprintf("nested entry is not contained in %s", a))
		}
		if prev != nil && prev.Compare(ca) > 0 {
			return integrity(ca, fmt.Sprintf("nested entry follows %s out of order", prev))
		}
		if err := validateEntry(c); err != nil {
			return err
		}
		prev = &ca
	}
	return nil
}

func integrity(a Anchor, reason string) error {
	return &cerrors.StructuralIntegrityError{Anchor: a.String(), Reason: reason}
}
