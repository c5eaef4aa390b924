// Package encoding provides the text escaping and script detection used when
// writing TEI.
package encoding

import (
	"strings"
)

// EscapeXMLText escapes the basic XML entities for element content and drops
// characters XML 1.0 cannot carry.
func EscapeXMLText(s string) string {
	s = StripInvalid(s)
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// EscapeXMLAttr escapes text for use in double-quoted XML attributes.
func EscapeXMLAttr(s string) string {
	s = EscapeXMLText(s)
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "\t", "&#9;")
	s = strings.ReplaceAll(s, "\n", "&#10;")
	return s
}

// StripInvalid removes runes outside the XML 1.0 Char production.
func StripInvalid(s string) string {
	if strings.IndexFunc(s, invalidChar) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if invalidChar(r) {
			return -1
		}
		return r
	}, s)
}

func invalidChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r < 0x20:
		return true
	case r >= 0xD800 && r <= 0xDFFF:
		return true
	case r == 0xFFFE || r == 0xFFFF:
		return true
	}
	return false
}
