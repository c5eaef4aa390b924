// Package vmr fetches collation data from the New Testament Virtual
// Manuscript Room.
package vmr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
)

// Index is an NTVMR content index: a whole book, one or more chapters, or
// one or more verses of a chapter.
type Index struct {
	Book      string
	Chapter   int
	ChapterTo int
	Verse     int
	VerseTo   int
}

// indexGrammar accepts "Acts", "Acts.1", "Acts.1-5", "Acts.1.1" and
// "Acts.1.1-5".
type indexGrammar struct {
	BookPrefix string          `parser:"@Int?"`
	BookName   string          `parser:"@Ident"`
	Chapter    *chapterGrammar `parser:"( \".\" @@ )?"`
}

type chapterGrammar struct {
	Span  spanGrammar  `parser:"@@"`
	Verse *spanGrammar `parser:"( \".\" @@ )?"`
}

type spanGrammar struct {
	From string  `parser:"@Int"`
	To   *string `parser:"( \"-\" @Int )?"`
}

var indexLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z]+`},
	{Name: "Punct", Pattern: `[.\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var indexParser = participle.MustBuild[indexGrammar](
	participle.Lexer(indexLexer),
	participle.Elide("Whitespace"),
)

// ParseIndex parses a content index.
func ParseIndex(s string) (Index, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Index{}, cerrors.NewParse("index", "", "empty content index")
	}
	g, err := indexParser.ParseString("", s)
	if err != nil {
		return Index{}, &cerrors.ParseError{Format: "index", Path: s, Message: err.Error(), Err: err}
	}

	idx := Index{Book: g.BookPrefix + g.BookName}
	if g.Chapter == nil {
		return idx, nil
	}
	if idx.Chapter, idx.ChapterTo, err = span(s, &g.Chapter.Span); err != nil {
		return Index{}, err
	}
	if g.Chapter.Verse == nil {
		return idx, nil
	}
	if idx.ChapterTo != idx.Chapter {
		return Index{}, cerrors.NewParse("index", s, "a verse range needs a single chapter")
	}
	if idx.Verse, idx.VerseTo, err = span(s, g.Chapter.Verse); err != nil {
		return Index{}, err
	}
	return idx, nil
}

func span(s string, g *spanGrammar) (int, int, error) {
	from, err := strconv.Atoi(g.From)
	if err != nil || from < 1 {
		return 0, 0, cerrors.NewParse("index", s, fmt.Sprintf("invalid number %q", g.From))
	}
	to := from
	if g.To != nil {
		if to, err = strconv.Atoi(*g.To); err != nil || to < from {
			return 0, 0, cerrors.NewParse("index", s, fmt.Sprintf("invalid range %s-%s", g.From, *g.To))
		}
	}
	return from, to, nil
}

// String renders the index in NTVMR notation.
func (i Index) String() string {
	var b strings.Builder
	b.WriteString(i.Book)
	if i.Chapter == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, ".%d", i.Chapter)
	if i.Verse == 0 {
		if i.ChapterTo > i.Chapter {
			fmt.Fprintf(&b, "-%d", i.ChapterTo)
		}
		return b.String()
	}
	fmt.Fprintf(&b, ".%d", i.Verse)
	if i.VerseTo > i.Verse {
		fmt.Fprintf(&b, "-%d", i.VerseTo)
	}
	return b.String()
}

// Title is the default document title for the index.
func (i Index) Title() string {
	return "A collation of " + i.Book
}
