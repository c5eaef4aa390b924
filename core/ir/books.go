package ir

// ntBooks lists the New Testament books by OSIS ID in INTF numbering order,
// so ntBooks[n-1] is the book addressed by INTF index "B<n>".
var ntBooks = []string{
	"Matt", "Mark", "Luke", "John", "Acts",
	"Rom", "1Cor", "2Cor", "Gal", "Eph", "Phil", "Col",
	"1Thess", "2Thess", "1Tim", "2Tim", "Titus", "Phlm", "Heb",
	"Jas", "1Pet", "2Pet", "1John", "2John", "3John", "Jude",
	"Rev",
}

// unknownBookOrder sorts books outside the table after every known book.
const unknownBookOrder = 1000

var bookOrder = func() map[string]int {
	m := make(map[string]int, len(ntBooks))
	for i, b := range ntBooks {
		m[b] = i + 1
	}
	return m
}()

// BookOrder returns the canonical position of an OSIS book ID. Unknown books
// share a position after all known ones and are ordered by name.
func BookOrder(book string) int {
	if n, ok := bookOrder[book]; ok {
		return n
	}
	return unknownBookOrder
}

// BookByNumber returns the OSIS ID for an INTF book number.
func BookByNumber(n int) (string, bool) {
	if n < 1 || n > len(ntBooks) {
		return "", false
	}
	return ntBooks[n-1], true
}
