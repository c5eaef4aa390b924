package collate

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Policy decides whether two reading texts differ only in orthography.
type Policy func(a, b string) bool

// Named orthographic policies.
const (
	PolicyStrict     = "strict"
	PolicyDiacritics = "diacritics"
	PolicyGreek      = "greek"
)

// PolicyNames lists the names accepted by PolicyByName.
var PolicyNames = []string{PolicyStrict, PolicyDiacritics, PolicyGreek}

// PolicyByName returns a named policy. An empty name selects the Greek
// policy.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyStrict:
		return Strict, nil
	case PolicyDiacritics:
		return Normalized(FoldDiacritics), nil
	case PolicyGreek, "":
		return Normalized(FoldGreek), nil
	}
	return nil, fmt.Errorf("unknown orthographic policy %q (want one of %s)", name, strings.Join(PolicyNames, ", "))
}

// Strict treats only identical texts as equivalent.
func Strict(a, b string) bool {
	return a == b
}

// Normalized builds a policy that compares texts after applying fn. Empty
// texts are only equivalent to each other, so an omission is never an
// orthographic variant.
func Normalized(fn func(string) string) Policy {
	return func(a, b string) bool {
		if a == "" || b == "" {
			return a == b
		}
		return fn(a) == fn(b)
	}
}

// FoldDiacritics decomposes the text, drops combining marks, folds case and
// collapses whitespace. The transformers are built per call because they
// carry state and must not be shared between goroutines.
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = cases.Fold().String(out)
	return strings.Join(strings.Fields(out), " ")
}

// FoldGreek extends FoldDiacritics with Greek spelling conventions: final
// sigma is written medially, lunate sigma as sigma, and a movable nu after
// epsilon or iota at the end of a word is dropped.
func FoldGreek(s string) string {
	s = FoldDiacritics(s)
	s = strings.NewReplacer("ς", "σ", "ϲ", "σ", "ϐ", "β", "ϑ", "θ").Replace(s)
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = dropMovableNu(w)
	}
	return strings.Join(words, " ")
}

func dropMovableNu(w string) string {
	r := []rune(w)
	n := len(r)
	if n > 2 && r[n-1] == 'ν' && (r[n-2] == 'ε' || r[n-2] == 'ι') {
		return string(r[:n-1])
	}
	return w
}
