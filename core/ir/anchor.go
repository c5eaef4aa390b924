package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
)

// Anchor locates a variation unit in the base text: a verse, optionally
// narrowed to a span of word positions. From and To are both zero when the
// anchor covers the whole verse.
type Anchor struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	From    int    `json:"from,omitempty"`
	To      int    `json:"to,omitempty"`
}

// osisGrammar is the participle grammar for OSIS-style anchors.
// Examples: "Acts.1.3", "Acts.1.3/2", "Acts.1.3/2-8", "1John.3.16/4"
//
// Numbers are captured as strings: participle parses integers with base 0,
// which would reject zero-padded values such as "08".
type osisGrammar struct {
	BookPrefix string       `parser:"@Int?"`
	BookName   string       `parser:"@Ident"`
	Chapter    string       `parser:"\".\" @Int"`
	Verse      string       `parser:"\".\" @Int"`
	Words      *wordGrammar `parser:"( \"/\" @@ )?"`
}

// intfGrammar is the participle grammar for INTF index anchors.
// Examples: "B05K1V3", "B05K1V3U2", "B05K1V3U2-8"
type intfGrammar struct {
	Book    string       `parser:"\"B\" @Int"`
	Chapter string       `parser:"\"K\" @Int"`
	Verse   string       `parser:"\"V\" @Int"`
	Words   *wordGrammar `parser:"( \"U\" @@ )?"`
}

type wordGrammar struct {
	From string  `parser:"@Int"`
	To   *string `parser:"( \"-\" @Int )?"`
}

var osisLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Z][A-Za-z]*`},
	{Name: "Punct", Pattern: `[./\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var intfLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Marker", Pattern: `[BKVU]`},
	{Name: "Punct", Pattern: `-`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var osisParser = participle.MustBuild[osisGrammar](
	participle.Lexer(osisLexer),
	participle.Elide("Whitespace"),
)

var intfParser = participle.MustBuild[intfGrammar](
	participle.Lexer(intfLexer),
	participle.Elide("Whitespace"),
)

// ParseAnchor parses an anchor in any supported notation.
// Supported formats:
//   - "Acts.1.3" (whole verse)
//   - "Acts.1.3/2" (single word position)
//   - "Acts.1.3/2-8" (word range)
//   - "B05K1V3", "B05K1V3U2", "B05K1V3U2-8" (INTF index)
func ParseAnchor(s string) (Anchor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Anchor{}, cerrors.NewParse("anchor", "", "empty anchor string")
	}
	if isINTFIndex(s) {
		return parseINTF(s)
	}
	return parseOSIS(s)
}

// NewAnchor builds an anchor from a verse notation and explicit word bounds,
// the shape used by records that keep the index and word span in separate
// fields. A zero from keeps the whole-verse anchor.
func NewAnchor(verse string, from, to int) (Anchor, error) {
	a, err := ParseAnchor(verse)
	if err != nil {
		return Anchor{}, err
	}
	if !a.WholeVerse() {
		return Anchor{}, cerrors.NewParse("anchor", verse, "index already carries a word span")
	}
	if from == 0 && to == 0 {
		return a, nil
	}
	if to == 0 {
		to = from
	}
	if err := checkSpan(verse, from, to); err != nil {
		return Anchor{}, err
	}
	a.From, a.To = from, to
	return a, nil
}

func isINTFIndex(s string) bool {
	return len(s) > 1 && s[0] == 'B' && s[1] >= '0' && s[1] <= '9'
}

func parseOSIS(s string) (Anchor, error) {
	parsed, err := osisParser.ParseString("", s)
	if err != nil {
		return Anchor{}, &cerrors.ParseError{Format: "anchor", Path: s, Message: "invalid OSIS anchor", Err: err}
	}
	a := Anchor{Book: parsed.BookPrefix + parsed.BookName}
	if a.Chapter, err = positive(s, "chapter", parsed.Chapter); err != nil {
		return Anchor{}, err
	}
	if a.Verse, err = positive(s, "verse", parsed.Verse); err != nil {
		return Anchor{}, err
	}
	return withWords(a, s, parsed.Words)
}

func parseINTF(s string) (Anchor, error) {
	parsed, err := intfParser.ParseString("", s)
	if err != nil {
		return Anchor{}, &cerrors.ParseError{Format: "anchor", Path: s, Message: "invalid INTF index", Err: err}
	}
	n, err := positive(s, "book", parsed.Book)
	if err != nil {
		return Anchor{}, err
	}
	book, ok := BookByNumber(n)
	if !ok {
		return Anchor{}, cerrors.NewParse("anchor", s, fmt.Sprintf("unknown INTF book number %d", n))
	}
	a := Anchor{Book: book}
	if a.Chapter, err = positive(s, "chapter", parsed.Chapter); err != nil {
		return Anchor{}, err
	}
	if a.Verse, err = positive(s, "verse", parsed.Verse); err != nil {
		return Anchor{}, err
	}
	return withWords(a, s, parsed.Words)
}

func withWords(a Anchor, s string, w *wordGrammar) (Anchor, error) {
	if w == nil {
		return a, nil
	}
	from, err := positive(s, "word", w.From)
	if err != nil {
		return Anchor{}, err
	}
	to := from
	if w.To != nil {
		if to, err = positive(s, "word", *w.To); err != nil {
			return Anchor{}, err
		}
	}
	if err := checkSpan(s, from, to); err != nil {
		return Anchor{}, err
	}
	a.From, a.To = from, to
	return a, nil
}

func positive(s, field, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, cerrors.NewParse("anchor", s, fmt.Sprintf("%s must be a positive integer, got %q", field, v))
	}
	return n, nil
}

func checkSpan(s string, from, to int) error {
	if from < 1 {
		return cerrors.NewParse("anchor", s, "word positions start at 1")
	}
	if to < from {
		return cerrors.NewParse("anchor", s, fmt.Sprintf("word range %d-%d is reversed", from, to))
	}
	return nil
}

// String returns the canonical OSIS form of the anchor.
func (a Anchor) String() string {
	var sb strings.Builder
	sb.WriteString(a.Book)
	sb.WriteString(".")
	sb.WriteString(strconv.Itoa(a.Chapter))
	sb.WriteString(".")
	sb.WriteString(strconv.Itoa(a.Verse))
	if !a.WholeVerse() {
		sb.WriteString("/")
		sb.WriteString(strconv.Itoa(a.From))
		if a.To != a.From {
			sb.WriteString("-")
			sb.WriteString(strconv.Itoa(a.To))
		}
	}
	return sb.String()
}

// VerseRef returns the OSIS ID of the anchor's verse.
func (a Anchor) VerseRef() string {
	return fmt.Sprintf("%s.%d.%d", a.Book, a.Chapter, a.Verse)
}

// ChapterRef returns the OSIS ID of the anchor's chapter.
func (a Anchor) ChapterRef() string {
	return fmt.Sprintf("%s.%d", a.Book, a.Chapter)
}

// WholeVerse reports whether the anchor covers its entire verse.
func (a Anchor) WholeVerse() bool {
	return a.From == 0 && a.To == 0
}

func (a Anchor) start() int {
	if a.WholeVerse() {
		return 0
	}
	return a.From
}

func (a Anchor) end() int {
	if a.WholeVerse() {
		return math.MaxInt
	}
	return a.To
}

// SameVerse reports whether both anchors fall in the same verse.
func (a Anchor) SameVerse(b Anchor) bool {
	return a.Book == b.Book && a.Chapter == b.Chapter && a.Verse == b.Verse
}

// Compare orders anchors by book, chapter, verse, span start ascending and
// span end descending, so a containing span sorts before what it contains.
func (a Anchor) Compare(b Anchor) int {
	if c := cmpInt(BookOrder(a.Book), BookOrder(b.Book)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Book, b.Book); c != 0 {
		return c
	}
	if c := cmpInt(a.Chapter, b.Chapter); c != 0 {
		return c
	}
	if c := cmpInt(a.Verse, b.Verse); c != 0 {
		return c
	}
	if c := cmpInt(a.start(), b.start()); c != 0 {
		return c
	}
	return cmpInt(b.end(), a.end())
}

// Contains reports whether b lies within a (equal spans contain each other).
func (a Anchor) Contains(b Anchor) bool {
	return a.SameVerse(b) && a.start() <= b.start() && b.end() <= a.end()
}

// StrictlyContains reports whether b lies within a and the spans differ.
func (a Anchor) StrictlyContains(b Anchor) bool {
	return a.Contains(b) && a != b
}

// Overlaps reports whether the spans share at least one word position.
func (a Anchor) Overlaps(b Anchor) bool {
	return a.SameVerse(b) && a.start() <= b.end() && b.start() <= a.end()
}

func cmpInt(x, y int) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
