// Package apparatus assembles collated variation units into the document
// tree: book, chapter and verse divisions holding apparatus entries, with
// units nested inside the units that contain them.
package apparatus

import (
	"sort"
	"strings"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
)

// DefaultLanguage is the language of the base text.
const DefaultLanguage = "grc"

// WitnessSource supplies registered witnesses and their canonical order.
type WitnessSource interface {
	Subset(sigla []string) []*ir.Witness
	Less(a, b string) bool
}

// Config controls assembly.
type Config struct {
	// Concise folds orthographic variants into the reading they spell.
	Concise bool
	// Title overrides the default "A collation of <book>" title.
	Title string
	// Language is the xml:lang of the text. Empty means DefaultLanguage.
	Language string
}

// Builder assembles documents.
type Builder struct {
	cfg       Config
	witnesses WitnessSource
}

// New creates a builder.
func New(cfg Config, witnesses WitnessSource) *Builder {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	return &Builder{cfg: cfg, witnesses: witnesses}
}

// Build orders the units by anchor and assembles the document. A unit
// strictly inside another becomes its child; units with partially
// overlapping or identical spans fail with *errors.OverlapConflictError.
// The units are not modified.
func (b *Builder) Build(units []*ir.VariationUnit) (*ir.Document, error) {
	sorted := append([]*ir.VariationUnit(nil), units...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].Anchor.Compare(sorted[j].Anchor); c != 0 {
			return c < 0
		}
		return sorted[i].Index < sorted[j].Index
	})

	var top []*ir.ApparatusEntry
	var stack []*ir.ApparatusEntry
	for _, u := range sorted {
		for len(stack) > 0 {
			open := stack[len(stack)-1].Anchor()
			if open.StrictlyContains(u.Anchor) {
				break
			}
			if open.Overlaps(u.Anchor) {
				return nil, &cerrors.OverlapConflictError{First: open.String(), Second: u.Anchor.String()}
			}
			stack = stack[:len(stack)-1]
		}

		entry := &ir.ApparatusEntry{Unit: u, Readings: b.prepare(u)}
		if len(stack) == 0 {
			top = append(top, entry)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, entry)
		}
		stack = append(stack, entry)
	}

	doc := &ir.Document{
		Title:    b.cfg.Title,
		Language: b.cfg.Language,
		Books:    divide(top),
	}
	if doc.Title == "" {
		doc.Title = defaultTitle(doc.Books)
	}

	var sigla []string
	doc.Walk(func(e *ir.ApparatusEntry) {
		for _, r := range e.Readings {
			sigla = append(sigla, r.Sigla()...)
		}
	})
	if b.witnesses != nil {
		doc.Witnesses = b.witnesses.Subset(sigla)
	}
	return doc, nil
}

// prepare copies the unit's readings for output, folding orthographic
// variants in concise mode and putting each witness list in canonical order.
func (b *Builder) prepare(u *ir.VariationUnit) []*ir.Reading {
	readings := make([]*ir.Reading, len(u.Readings))
	for i, r := range u.Readings {
		readings[i] = r.Clone()
	}
	if b.cfg.Concise {
		readings = fold(readings)
	}
	if b.witnesses != nil {
		for _, r := range readings {
			sort.SliceStable(r.Witnesses, func(i, j int) bool {
				return b.witnesses.Less(r.Witnesses[i].Siglum, r.Witnesses[j].Siglum)
			})
		}
	}
	return readings
}

// fold moves the witnesses of orthographic variants to the reading named as
// their parent, or to the lemma, and drops the variants. A variant with
// nowhere to go is kept.
func fold(readings []*ir.Reading) []*ir.Reading {
	byLabel := make(map[string]*ir.Reading, len(readings))
	var lemma *ir.Reading
	for _, r := range readings {
		byLabel[r.Label] = r
		if r.Lemma {
			lemma = r
		}
	}

	target := func(r *ir.Reading) *ir.Reading {
		seen := map[string]bool{r.Label: true}
		for cur := r; ; {
			p, ok := byLabel[cur.Parent]
			if !ok || seen[p.Label] {
				break
			}
			if p.Kind != ir.KindOrthographic {
				return p
			}
			seen[p.Label] = true
			cur = p
		}
		if lemma != nil && lemma != r {
			return lemma
		}
		return nil
	}

	kept := make([]*ir.Reading, 0, len(readings))
	for _, r := range readings {
		if r.Kind != ir.KindOrthographic {
			kept = append(kept, r)
			continue
		}
		t := target(r)
		if t == nil {
			kept = append(kept, r)
			continue
		}
		for _, a := range r.Witnesses {
			merge(t, a)
		}
	}
	resplit(kept)
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Lemma != b.Lemma {
			return a.Lemma
		}
		if len(a.Witnesses) != len(b.Witnesses) {
			return len(a.Witnesses) > len(b.Witnesses)
		}
		return a.Seq < b.Seq
	})
	return kept
}

func merge(r *ir.Reading, a ir.Attestation) {
	if !r.HasWitness(a.Siglum) {
		r.Witnesses = append(r.Witnesses, a)
	}
}

// resplit recomputes the split flags after folding: a witness is split only
// while it is still cited by more than one reading.
func resplit(readings []*ir.Reading) {
	count := make(map[string]int)
	for _, r := range readings {
		for _, a := range r.Witnesses {
			count[a.Siglum]++
		}
	}
	for _, r := range readings {
		for i := range r.Witnesses {
			r.Witnesses[i].Split = count[r.Witnesses[i].Siglum] > 1
		}
	}
}

// divide groups sorted top-level entries into book, chapter and verse
// divisions.
func divide(entries []*ir.ApparatusEntry) []*ir.BookDiv {
	var books []*ir.BookDiv
	var book *ir.BookDiv
	var chapter *ir.ChapterDiv
	var verse *ir.VerseDiv
	for _, e := range entries {
		a := e.Anchor()
		if book == nil || book.Book != a.Book {
			book = &ir.BookDiv{Book: a.Book}
			books = append(books, book)
			chapter, verse = nil, nil
		}
		if chapter == nil || chapter.Chapter != a.Chapter {
			chapter = &ir.ChapterDiv{Ref: a.ChapterRef(), Chapter: a.Chapter}
			book.Chapters = append(book.Chapters, chapter)
			verse = nil
		}
		if verse == nil || verse.Verse != a.Verse {
			verse = &ir.VerseDiv{Ref: a.VerseRef(), Verse: a.Verse}
			chapter.Verses = append(chapter.Verses, verse)
		}
		verse.Entries = append(verse.Entries, e)
	}
	return books
}

func defaultTitle(books []*ir.BookDiv) string {
	if len(books) == 0 {
		return "A collation"
	}
	names := make([]string, len(books))
	for i, b := range books {
		names[i] = b.Book
	}
	return "A collation of " + strings.Join(names, ", ")
}
