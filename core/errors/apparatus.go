package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Apparatus sentinels. Each typed error below unwraps to exactly one of them.
var (
	ErrSiglumCollision     = errors.New("siglum collision")
	ErrEmptyUnit           = errors.New("empty variation unit")
	ErrAmbiguousLemma      = errors.New("ambiguous lemma")
	ErrOverlapConflict     = errors.New("overlap conflict")
	ErrStructuralIntegrity = errors.New("structural integrity violation")
)

// SiglumCollisionError reports two distinct raw witness identifiers that
// abbreviate to the same canonical siglum.
type SiglumCollisionError struct {
	Siglum   string
	Existing string // raw identifier registered first
	Incoming string // raw identifier that collided with it
}

func (e *SiglumCollisionError) Error() string {
	return fmt.Sprintf("siglum %q claimed by both %q and %q", e.Siglum, e.Existing, e.Incoming)
}

func (e *SiglumCollisionError) Unwrap() error { return ErrSiglumCollision }

// EmptyUnitError reports a variation unit without readings or witnesses.
type EmptyUnitError struct {
	Anchor string
	Reason string
}

func (e *EmptyUnitError) Error() string {
	if e.Anchor == "" {
		return fmt.Sprintf("empty variation unit: %s", e.Reason)
	}
	return fmt.Sprintf("empty variation unit at %s: %s", e.Anchor, e.Reason)
}

func (e *EmptyUnitError) Unwrap() error { return ErrEmptyUnit }

// AmbiguousLemmaError reports a unit whose lemma could not be chosen
// deterministically. Candidates lists the unresolved reading labels.
type AmbiguousLemmaError struct {
	Anchor     string
	Candidates []string
	Reason     string
}

func (e *AmbiguousLemmaError) Error() string {
	msg := fmt.Sprintf("ambiguous lemma at %s", e.Anchor)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Candidates) > 0 {
		msg += " (candidates: " + strings.Join(e.Candidates, ", ") + ")"
	}
	return msg
}

func (e *AmbiguousLemmaError) Unwrap() error { return ErrAmbiguousLemma }

// OverlapConflictError reports two units whose spans intersect without one
// containing the other.
type OverlapConflictError struct {
	First  string
	Second string
}

func (e *OverlapConflictError) Error() string {
	return fmt.Sprintf("variation units %s and %s overlap without containment", e.First, e.Second)
}

func (e *OverlapConflictError) Unwrap() error { return ErrOverlapConflict }

// StructuralIntegrityError reports a document that would violate the
// apparatus invariants if emitted.
type StructuralIntegrityError struct {
	Anchor string
	Reason string
}

func (e *StructuralIntegrityError) Error() string {
	return fmt.Sprintf("structural integrity violated at %s: %s", e.Anchor, e.Reason)
}

func (e *StructuralIntegrityError) Unwrap() error { return ErrStructuralIntegrity }

// UnitError attributes a parse or collation failure to one input record.
type UnitError struct {
	Index  int    // position of the record in the input sequence
	Anchor string // anchor, when it could be read
	Err    error
}

func (e *UnitError) Error() string {
	if e.Anchor != "" {
		return fmt.Sprintf("record %d (%s): %v", e.Index, e.Anchor, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// UnitErrors is the per-unit report produced when errors are collected
// instead of aborting the run.
type UnitErrors []*UnitError

func (u UnitErrors) Error() string {
	switch len(u) {
	case 0:
		return "no unit errors"
	case 1:
		return u[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d units failed:", len(u))
	for _, e := range u {
		sb.WriteString("\n  ")
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (u UnitErrors) Unwrap() []error {
	out := make([]error, len(u))
	for i, e := range u {
		out[i] = e
	}
	return out
}

// Sort orders the report by record index.
func (u UnitErrors) Sort() {
	sort.SliceStable(u, func(i, j int) bool { return u[i].Index < u[j].Index })
}

// ErrOrNil returns nil for an empty report so callers can return it directly.
func (u UnitErrors) ErrOrNil() error {
	if len(u) == 0 {
		return nil
	}
	return u
}
