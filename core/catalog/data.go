// Package catalog keeps the witness reference data a run draws on: named
// witness groups, known physical defects and the per-book witnesses the
// Byz siglum stands for. The data is imported from TOML and stored in
// SQLite.
package catalog

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
	"github.com/FocuswithJustin/vmr2tei/core/witness"
)

// Data is the TOML form of a catalog:
//
//	[groups]
//	primary = ["P75", "01", "03"]
//
//	[byzantine]
//	Acts = ["014", "020", "025"]
//
//	[[defects]]
//	witness = "05"
//	from = "Acts.8.29"
//	to = "Acts.10.14"
type Data struct {
	Groups    map[string][]string `toml:"groups"`
	Byzantine map[string][]string `toml:"byzantine"`
	Defects   []DefectEntry       `toml:"defects"`
}

// DefectEntry names a witness and the inclusive verse range it has lost.
// To may be empty for a single verse.
type DefectEntry struct {
	Witness string `toml:"witness"`
	From    string `toml:"from"`
	To      string `toml:"to"`
}

// Defect is a resolved defect range.
type Defect struct {
	Siglum string
	Book   string
	From   VersePos
	To     VersePos
}

// VersePos is a chapter and verse within a book.
type VersePos struct {
	Chapter int
	Verse   int
}

func (p VersePos) less(q VersePos) bool {
	if p.Chapter != q.Chapter {
		return p.Chapter < q.Chapter
	}
	return p.Verse < q.Verse
}

// Covers reports whether the defect includes the verse of an anchor.
func (d Defect) Covers(at ir.Anchor) bool {
	if at.Book != d.Book {
		return false
	}
	p := VersePos{at.Chapter, at.Verse}
	return !p.less(d.From) && !d.To.less(p)
}

// Decode reads catalog data from TOML.
func Decode(r io.Reader) (*Data, error) {
	var d Data
	if _, err := toml.NewDecoder(r).Decode(&d); err != nil {
		return nil, &cerrors.ParseError{Format: "TOML", Message: err.Error(), Err: err}
	}
	return &d, nil
}

// DecodeFile reads catalog data from a TOML file.
func DecodeFile(path string) (*Data, error) {
	var d Data
	if _, err := toml.DecodeFile(path, &d); err != nil {
		return nil, &cerrors.ParseError{Format: "TOML", Path: path, Message: err.Error(), Err: err}
	}
	return &d, nil
}

// Snapshot resolves the data: sigla are canonicalized and defect ranges
// parsed. Invalid entries fail with a ValidationError.
func (d *Data) Snapshot() (*Snapshot, error) {
	s := &Snapshot{
		Groups:    make(map[string][]string, len(d.Groups)),
		Byzantine: make(map[string][]string, len(d.Byzantine)),
	}
	for name, members := range d.Groups {
		if strings.TrimSpace(name) == "" {
			return nil, cerrors.NewValidation("groups", "group name is empty")
		}
		s.Groups[name] = canonicalList(members)
	}
	for book, members := range d.Byzantine {
		if strings.TrimSpace(book) == "" {
			return nil, cerrors.NewValidation("byzantine", "book name is empty")
		}
		s.Byzantine[book] = canonicalList(members)
	}
	for i, e := range d.Defects {
		def, err := e.resolve()
		if err != nil {
			return nil, &cerrors.ValidationError{
				Field:   fmt.Sprintf("defects[%d]", i),
				Value:   e.Witness,
				Message: err.Error(),
			}
		}
		s.Defects = append(s.Defects, def)
	}
	s.index()
	return s, nil
}

func (e DefectEntry) resolve() (Defect, error) {
	siglum := witness.Canonical(e.Witness)
	if siglum == "" {
		return Defect{}, fmt.Errorf("witness is empty")
	}
	from, err := ir.ParseAnchor(e.From)
	if err != nil {
		return Defect{}, err
	}
	to := from
	if e.To != "" {
		if to, err = ir.ParseAnchor(e.To); err != nil {
			return Defect{}, err
		}
	}
	if from.Book != to.Book {
		return Defect{}, fmt.Errorf("range %s to %s crosses books", e.From, e.To)
	}
	d := Defect{
		Siglum: siglum,
		Book:   from.Book,
		From:   VersePos{from.Chapter, from.Verse},
		To:     VersePos{to.Chapter, to.Verse},
	}
	if d.To.less(d.From) {
		return Defect{}, fmt.Errorf("range %s to %s is reversed", e.From, e.To)
	}
	return d, nil
}

func canonicalList(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if c := witness.Canonical(s); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot is a loaded catalog. It satisfies the collator's defect catalog.
type Snapshot struct {
	Groups    map[string][]string
	Byzantine map[string][]string
	Defects   []Defect

	bySiglum map[string][]Defect
}

func (s *Snapshot) index() {
	sort.SliceStable(s.Defects, func(i, j int) bool {
		a, b := s.Defects[i], s.Defects[j]
		if a.Siglum != b.Siglum {
			return a.Siglum < b.Siglum
		}
		if a.Book != b.Book {
			return a.Book < b.Book
		}
		return a.From.less(b.From)
	})
	s.bySiglum = make(map[string][]Defect)
	for _, d := range s.Defects {
		s.bySiglum[d.Siglum] = append(s.bySiglum[d.Siglum], d)
	}
}

// Defective reports whether the witness is known to be physically missing
// at the anchor's verse.
func (s *Snapshot) Defective(siglum string, at ir.Anchor) bool {
	if s == nil {
		return false
	}
	for _, d := range s.bySiglum[siglum] {
		if d.Covers(at) {
			return true
		}
	}
	return false
}

// Merge combines snapshots. Groups and Byzantine lists of later snapshots
// replace earlier lists of the same name; defects accumulate.
func Merge(snaps ...*Snapshot) *Snapshot {
	out := &Snapshot{
		Groups:    make(map[string][]string),
		Byzantine: make(map[string][]string),
	}
	for _, s := range snaps {
		if s == nil {
			continue
		}
		for name, members := range s.Groups {
			out.Groups[name] = members
		}
		for book, members := range s.Byzantine {
			out.Byzantine[book] = members
		}
		out.Defects = append(out.Defects, s.Defects...)
	}
	out.index()
	return out
}
