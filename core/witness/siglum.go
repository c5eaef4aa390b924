package witness

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/vmr2tei/core/ir"
)

// VersionPrefixes lists the versional evidence prefixes in canonical order:
// Latin, Syriac, Coptic, Ethiopic, Armenian, Georgian, Slavonic.
var VersionPrefixes = []string{"L", "S", "K", "Ä", "A", "G", "Sl"}

var (
	manuscriptPattern   = regexp.MustCompile(`^(P|L)?\d+`)
	papyrusPattern      = regexp.MustCompile(`^P\d+`)
	majusculePattern    = regexp.MustCompile(`^0\d+`)
	minusculePattern    = regexp.MustCompile(`^[1-9]\d*`)
	lectionaryPattern   = regexp.MustCompile(`^L\d+`)
	versionStartPattern = regexp.MustCompile(`^(Sl|L|S|K|Ä|A|G)(:|>|$)`)
	correctorPattern    = regexp.MustCompile(`[CAK]\d*`)
	ignoredSuffix       = regexp.MustCompile(`(\*|T|V|f\d*)$`)

	gaPrefix       = regexp.MustCompile(`^(?i:GA)\s+`)
	papyrusLong    = regexp.MustCompile(`^(?i:papyrus|P)\s+(\d+)`)
	lectionaryLong = regexp.MustCompile(`^(?i:lectionary|lect|L)\s+(\d+)`)
)

// identityKey returns the key under which a raw identifier is registered.
// Whitespace is collapsed and manuscript marker suffixes that do not change
// the hand (first hand "*", text "T", variant "V", defect "f") are removed,
// so "01*" and "01" name the same witness.
func identityKey(raw string) string {
	key := strings.Join(strings.Fields(raw), " ")
	if !isManuscriptForm(key) {
		return key
	}
	for {
		loc := ignoredSuffix.FindStringIndex(key)
		if loc == nil || loc[0] == 0 || !isManuscriptForm(key[:loc[0]]) {
			return key
		}
		key = key[:loc[0]]
	}
}

// manuscriptForm rewrites the long manuscript notations ("GA 01",
// "Papyrus 45", "Lect 156") to their short forms.
func manuscriptForm(s string) string {
	s = gaPrefix.ReplaceAllString(s, "")
	s = papyrusLong.ReplaceAllString(s, "P$1")
	return lectionaryLong.ReplaceAllString(s, "L$1")
}

func isManuscriptForm(s string) bool {
	s = manuscriptForm(s)
	return manuscriptPattern.MatchString(s) && !versionStartPattern.MatchString(s)
}

// inferCategory guesses the category of an identifier without a hint.
func inferCategory(key string) ir.Category {
	switch {
	case versionStartPattern.MatchString(key):
		return ir.CategoryVersional
	case isManuscriptForm(key):
		return ir.CategoryManuscript
	}
	return ir.CategoryPatristic
}

// Abbreviate derives the canonical siglum from an identity key and category.
// It is a pure function: the same key and category always give the same
// siglum.
func Abbreviate(key string, cat ir.Category) string {
	s := strings.Join(strings.Fields(key), " ")
	switch cat {
	case ir.CategoryManuscript:
		s = manuscriptForm(s)
	case ir.CategoryVersional:
		s = strings.ReplaceAll(s, ": ", ":")
	}
	return strings.ReplaceAll(s, " ", "_")
}

// classify assigns the ordering class and corrector flag for a siglum.
func classify(siglum string, cat ir.Category) (ir.Class, bool) {
	switch cat {
	case ir.CategoryVersional:
		return ir.ClassVersion, false
	case ir.CategoryPatristic:
		return ir.ClassFather, false
	case ir.CategoryEdition:
		return ir.ClassEdition, false
	}

	num := manuscriptPattern.FindString(siglum)
	corrector := num != "" && correctorPattern.MatchString(siglum[len(num):])
	switch {
	case papyrusPattern.MatchString(siglum):
		return ir.ClassPapyrus, corrector
	case majusculePattern.MatchString(siglum):
		return ir.ClassMajuscule, corrector
	case minusculePattern.MatchString(siglum):
		return ir.ClassMinuscule, corrector
	case lectionaryPattern.MatchString(siglum):
		return ir.ClassLectionary, corrector
	}
	return ir.ClassOther, false
}

// sortKey orders witnesses canonically: papyri, majuscules, minuscules,
// lectionaries, the versions in prefix order, fathers, editions, then
// anything else. Within a class witnesses sort by number, then by suffix.
type sortKey struct {
	rank   int
	number int
	rest   string
}

const unnumbered = 1 << 30

func keyFor(w *ir.Witness) sortKey {
	s := w.Siglum
	k := sortKey{number: unnumbered}
	switch w.Class {
	case ir.ClassPapyrus, ir.ClassLectionary:
		k.rank = int(w.Class) + 1
		s = s[1:]
	case ir.ClassMajuscule, ir.ClassMinuscule:
		k.rank = int(w.Class) + 1
	case ir.ClassVersion:
		prefix, rest, _ := strings.Cut(s, ":")
		k.rank = 5 + versionIndex(prefix)
		s = rest
	case ir.ClassFather:
		k.rank = 5 + len(VersionPrefixes)
	case ir.ClassEdition:
		k.rank = 6 + len(VersionPrefixes)
	default:
		k.rank = 7 + len(VersionPrefixes)
	}
	if digits := leadingDigits(s); digits != "" {
		k.number, _ = strconv.Atoi(digits)
		s = s[len(digits):]
	}
	k.rest = s
	return k
}

func (a sortKey) less(b sortKey) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if a.number != b.number {
		return a.number < b.number
	}
	return a.rest < b.rest
}

func versionIndex(prefix string) int {
	for i, p := range VersionPrefixes {
		if p == prefix {
			return i
		}
	}
	return len(VersionPrefixes) - 1
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// Key returns the identity key of a raw identifier, the form under which
// Resolve registers it.
func Key(raw string) string {
	return identityKey(raw)
}

// Canonical returns the siglum Resolve would assign to raw with an empty
// category hint, without registering anything.
func Canonical(raw string) string {
	key := identityKey(raw)
	return Abbreviate(key, inferCategory(key))
}

// IsManuscript reports whether a raw identifier has manuscript form.
func IsManuscript(raw string) bool {
	return isManuscriptForm(strings.TrimSpace(raw))
}

// IsCorrectorHand reports whether a raw manuscript identifier names a
// corrector rather than the first hand.
func IsCorrectorHand(raw string) bool {
	s := manuscriptForm(strings.TrimSpace(raw))
	num := manuscriptPattern.FindString(s)
	return num != "" && !versionStartPattern.MatchString(s) && correctorPattern.MatchString(s[len(num):])
}

// IsVersionStart reports whether a token opens a block of versional evidence.
func IsVersionStart(token string) bool {
	return versionStartPattern.MatchString(token)
}
