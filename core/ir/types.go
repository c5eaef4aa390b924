package ir

import (
	"fmt"
	"strings"
)

// Category is the broad kind of evidence a witness represents.
type Category int

const (
	CategoryManuscript Category = iota
	CategoryVersional
	CategoryPatristic
	CategoryEdition
)

var categoryNames = [...]string{"manuscript", "versional", "patristic", "edition"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory maps a category hint to a Category. The second result is
// false for an unknown hint; callers decide the fallback.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manuscript", "ms", "greek":
		return CategoryManuscript, true
	case "versional", "version", "versions":
		return CategoryVersional, true
	case "patristic", "father", "fathers":
		return CategoryPatristic, true
	case "edition", "editions", "printed":
		return CategoryEdition, true
	}
	return CategoryManuscript, false
}

// Class refines a witness for canonical ordering and the listWit type.
type Class int

const (
	ClassPapyrus Class = iota
	ClassMajuscule
	ClassMinuscule
	ClassLectionary
	ClassVersion
	ClassFather
	ClassEdition
	ClassOther
)

var classNames = [...]string{
	"papyrus", "majuscule", "minuscule", "lectionary",
	"version", "father", "edition", "other",
}

func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return classNames[c]
}

// Witness is a registered source of evidence. Witnesses are created by the
// registry and never modified afterwards.
type Witness struct {
	ID        string   `json:"id"`     // raw identifier as first seen
	Key       string   `json:"key"`    // identity key with marker suffixes removed
	Siglum    string   `json:"siglum"` // canonical siglum used in output
	Category  Category `json:"category"`
	Class     Class    `json:"class"`
	Groups    []string `json:"groups,omitempty"`
	Corrector bool     `json:"corrector,omitempty"`
}

// InGroup reports whether the witness belongs to the named group.
func (w *Witness) InGroup(group string) bool {
	for _, g := range w.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// TEIType returns the value of the witness type attribute in listWit.
func (w *Witness) TEIType() string {
	if w.Corrector {
		return "corrector"
	}
	return w.Class.String()
}

// Kind classifies a reading. Every reading ends collation with a kind other
// than KindUnspecified.
type Kind int

const (
	KindUnspecified Kind = iota
	KindSubstantive
	KindOrthographic
	KindLacuna
	KindCorrection
	KindConjecture
	KindOverlap
)

var kindNames = [...]string{
	"", "substantive", "orthographic-variant", "lacuna",
	"correction-layer", "conjecture", "overlap",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	if k == KindUnspecified {
		return "unspecified"
	}
	return kindNames[k]
}

// ParseKind maps a kind name to a Kind. Short forms used by source data
// ("orthographic", "lac", "correction", "defective") are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unspecified":
		return KindUnspecified, nil
	case "substantive":
		return KindSubstantive, nil
	case "orthographic-variant", "orthographic", "defective":
		return KindOrthographic, nil
	case "lacuna", "lac":
		return KindLacuna, nil
	case "correction-layer", "correction":
		return KindCorrection, nil
	case "conjecture":
		return KindConjecture, nil
	case "overlap":
		return KindOverlap, nil
	}
	return KindUnspecified, fmt.Errorf("unknown reading kind %q", s)
}

// TEIType returns the reading type attribute. Substantive readings carry none.
func (k Kind) TEIType() string {
	switch k {
	case KindOrthographic:
		return "orthographic"
	case KindLacuna:
		return "lac"
	case KindCorrection:
		return "correction"
	case KindConjecture:
		return "conjecture"
	case KindOverlap:
		return "overlap"
	}
	return ""
}

// Attestation is one witness cited for a reading.
type Attestation struct {
	Siglum string `json:"siglum"`
	Split  bool   `json:"split,omitempty"` // witness is cited for more than one reading
}

// Reading is one attested form at a variation unit.
type Reading struct {
	Label      string        `json:"label"`
	Text       string        `json:"text"` // empty denotes an omission
	Kind       Kind          `json:"kind"`
	Witnesses  []Attestation `json:"witnesses"`
	Lemma      bool          `json:"lemma,omitempty"`
	Seq        int           `json:"seq"`              // first-appearance position in the record
	Parent     string        `json:"parent,omitempty"` // label of the reading an orthographic variant belongs to
	Subreading bool          `json:"subreading,omitempty"`
	Conjecture bool          `json:"conjecture,omitempty"` // source marks the reading as conjectural
}

// Sigla returns the sigla of the reading's witnesses in order.
func (r *Reading) Sigla() []string {
	out := make([]string, len(r.Witnesses))
	for i, a := range r.Witnesses {
		out[i] = a.Siglum
	}
	return out
}

// HasWitness reports whether siglum is cited for the reading.
func (r *Reading) HasWitness(siglum string) bool {
	for _, a := range r.Witnesses {
		if a.Siglum == siglum {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the reading.
func (r *Reading) Clone() *Reading {
	c := *r
	c.Witnesses = append([]Attestation(nil), r.Witnesses...)
	return &c
}

// AmbiguousAttestation records a witness whose support is divided between
// several readings. The collator resolves it into split attestations.
type AmbiguousAttestation struct {
	Siglum  string   `json:"siglum"`
	Targets []string `json:"targets"` // reading labels
}

// VariationUnit is the set of readings found at one anchor.
type VariationUnit struct {
	Anchor    Anchor                 `json:"anchor"`
	Readings  []*Reading             `json:"readings"`
	LemmaFree bool                   `json:"lemma_free,omitempty"`
	Ambiguous []AmbiguousAttestation `json:"ambiguous,omitempty"`
	Index     int                    `json:"index"` // position of the source record
}

// Clone returns a deep copy of the unit.
func (u *VariationUnit) Clone() *VariationUnit {
	c := *u
	c.Readings = make([]*Reading, len(u.Readings))
	for i, r := range u.Readings {
		c.Readings[i] = r.Clone()
	}
	c.Ambiguous = make([]AmbiguousAttestation, len(u.Ambiguous))
	for i, a := range u.Ambiguous {
		c.Ambiguous[i] = AmbiguousAttestation{Siglum: a.Siglum, Targets: append([]string(nil), a.Targets...)}
	}
	if len(u.Ambiguous) == 0 {
		c.Ambiguous = nil
	}
	return &c
}

// Lemma returns the lemma reading, or nil.
func (u *VariationUnit) Lemma() *Reading {
	for _, r := range u.Readings {
		if r.Lemma {
			return r
		}
	}
	return nil
}

// Reading returns the reading with the given label, or nil.
func (u *VariationUnit) Reading(label string) *Reading {
	for _, r := range u.Readings {
		if r.Label == label {
			return r
		}
	}
	return nil
}

// WitnessCount returns the number of attestations across all readings.
func (u *VariationUnit) WitnessCount() int {
	n := 0
	for _, r := range u.Readings {
		n += len(r.Witnesses)
	}
	return n
}

// ApparatusEntry is a collated unit ready for serialization. Children are
// units strictly contained in this one.
type ApparatusEntry struct {
	Unit     *VariationUnit    `json:"unit"`
	Readings []*Reading        `json:"readings"`
	Children []*ApparatusEntry `json:"children,omitempty"`
}

// Anchor returns the entry's anchor.
func (e *ApparatusEntry) Anchor() Anchor {
	return e.Unit.Anchor
}

// Walk visits the entry and its descendants depth-first.
func (e *ApparatusEntry) Walk(fn func(*ApparatusEntry)) {
	fn(e)
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// VerseDiv groups the top-level entries of one verse.
type VerseDiv struct {
	Ref     string            `json:"ref"`
	Verse   int               `json:"verse"`
	Entries []*ApparatusEntry `json:"entries"`
}

// ChapterDiv groups the verses of one chapter.
type ChapterDiv struct {
	Ref     string      `json:"ref"`
	Chapter int         `json:"chapter"`
	Verses  []*VerseDiv `json:"verses"`
}

// BookDiv groups the chapters of one book.
type BookDiv struct {
	Book     string        `json:"book"`
	Chapters []*ChapterDiv `json:"chapters"`
}

// Document is the assembled apparatus tree.
type Document struct {
	Title     string     `json:"title"`
	Language  string     `json:"language"`
	Witnesses []*Witness `json:"witnesses"`
	Books     []*BookDiv `json:"books"`
}

// Walk visits every entry in document order.
func (d *Document) Walk(fn func(*ApparatusEntry)) {
	for _, b := range d.Books {
		for _, c := range b.Chapters {
			for _, v := range c.Verses {
				for _, e := range v.Entries {
					e.Walk(fn)
				}
			}
		}
	}
}

// EntryCount returns the number of entries, nested ones included.
func (d *Document) EntryCount() int {
	n := 0
	d.Walk(func(*ApparatusEntry) { n++ })
	return n
}
