package encoding

import "unicode"

// Language codes for the scripts found in versional evidence.
const (
	LangGreek  = "grc"
	LangLatin  = "lat"
	LangSyriac = "syr"
	LangCoptic = "cop"
)

var scripts = []struct {
	table *unicode.RangeTable
	lang  string
}{
	{unicode.Greek, LangGreek},
	{unicode.Latin, LangLatin},
	{unicode.Syriac, LangSyriac},
	{unicode.Coptic, LangCoptic},
}

// ScriptLanguage returns the language code of the first letter in s whose
// script is recognized, or "" when there is none. Coptic letters encoded in
// the Greek block are reported as Greek.
func ScriptLanguage(s string) string {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		for _, sc := range scripts {
			if unicode.Is(sc.table, r) {
				return sc.lang
			}
		}
	}
	return ""
}
