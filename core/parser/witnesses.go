package parser

import (
	"regexp"
	"strings"

	"github.com/FocuswithJustin/vmr2tei/core/witness"
)

// ByzSiglum stands for the Byzantine witnesses of a book that are not cited
// elsewhere in the unit.
const ByzSiglum = "Byz"

var (
	parenthetical = regexp.MustCompile(`(\S+)\(([^()]*)\)`)
	longPrefix    = regexp.MustCompile(`^(?i:GA|papyrus|lect|lectionary)$`)

	versionSplitters = map[string]*regexp.Regexp{
		"L":  regexp.MustCompile(`^(V|AU|HIL|QU|\d+)`),
		"S":  regexp.MustCompile(`^(A|P|HT|HM|HA|H)(mss|ms)*`),
		"K":  regexp.MustCompile(`^(S|B|M|F)(mss|ms)*`),
		"Sl": regexp.MustCompile(`^(Ch|E|M|O|Si|St|V)`),
	}
)

// CleanWitnesses normalizes an apparatus witness string into a list of
// individual witness tokens:
//
//   - periods become separators and brackets, ">" and "&nbsp;" are dropped
//   - "X: Y" is joined to "X:Y"
//   - parenthetical hands expand: "01(*,C1)" becomes "01* 01C1"
//   - long manuscript forms stay whole: "GA 01" is one token
//   - versional blocks are prefixed: "L:V AU" becomes "L:V L:AU"
func CleanWitnesses(s string) []string {
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.NewReplacer("[", "", "]", "", ">", "").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, ": ", ":")
	s = expandParenthetical(s)
	return normalizeVersional(joinLongForms(strings.Fields(s)))
}

// joinLongForms rejoins a long-form prefix with the number that follows it.
func joinLongForms(tokens []string) []string {
	out := tokens[:0]
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if longPrefix.MatchString(tok) && i+1 < len(tokens) && startsWithDigit(tokens[i+1]) {
			tok += " " + tokens[i+1]
			i++
		}
		out = append(out, tok)
	}
	return out
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func expandParenthetical(s string) string {
	return parenthetical.ReplaceAllStringFunc(s, func(m string) string {
		sub := parenthetical.FindStringSubmatch(m)
		base, suffixes := sub[1], strings.Split(strings.ReplaceAll(sub[2], " ", ""), ",")
		out := make([]string, len(suffixes))
		for i, suffix := range suffixes {
			out[i] = base + suffix
		}
		return strings.Join(out, " ")
	})
}

// normalizeVersional prefixes every token after the start of a versional
// block with the block's version. Concatenated sigla such as "L:VAU" are
// split with the version's own siglum grammar.
func normalizeVersional(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	prefix := ""
	for _, tok := range tokens {
		switch {
		case witness.IsVersionStart(tok):
			version, suffix, hasColon := strings.Cut(tok, ":")
			prefix = version
			if !hasColon || suffix == "" {
				out = append(out, version)
				continue
			}
			for _, s := range splitVersional(version, suffix) {
				out = append(out, version+":"+s)
			}
		case prefix != "" && tok != ByzSiglum:
			out = append(out, prefix+":"+tok)
		default:
			out = append(out, tok)
		}
	}
	return out
}

func splitVersional(version, suffix string) []string {
	re, ok := versionSplitters[version]
	if !ok {
		return []string{suffix}
	}
	var parts []string
	rest := suffix
	for rest != "" {
		m := re.FindString(rest)
		if m == "" {
			break
		}
		parts = append(parts, m)
		rest = rest[len(m):]
	}
	if rest != "" || len(parts) == 0 {
		return []string{suffix}
	}
	return parts
}

// expandByz replaces the Byz token in each reading's list with the book's
// Byzantine witnesses not cited anywhere else in the unit. Lists without a
// Byz token are returned unchanged.
func expandByz(lists [][]string, byz []string) [][]string {
	if len(byz) == 0 {
		return lists
	}
	covered := make(map[string]bool)
	for _, list := range lists {
		for _, tok := range list {
			if tok != ByzSiglum && witness.IsManuscript(tok) && !witness.IsCorrectorHand(tok) {
				covered[witness.Key(tok)] = true
			}
		}
	}
	var remaining []string
	for _, w := range byz {
		if !covered[witness.Key(w)] {
			remaining = append(remaining, w)
		}
	}

	out := make([][]string, len(lists))
	for i, list := range lists {
		expanded := make([]string, 0, len(list))
		for _, tok := range list {
			if tok == ByzSiglum {
				expanded = append(expanded, remaining...)
				continue
			}
			expanded = append(expanded, tok)
		}
		out[i] = expanded
	}
	return out
}
