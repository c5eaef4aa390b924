package xml

import (
	"io"
	"strings"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/record"
)

// fieldAttrs names the attributes, in order of preference, that supply one
// record field.
type fieldAttrs struct {
	field string
	attrs []string
}

// segment attributes copied into the unit record.
var segmentFields = []fieldAttrs{
	{"anchor", []string{"anchor", "n"}},
	{"verse", []string{"verse", "osisID"}},
	{"index", []string{"index"}},
	{"from", []string{"wordStart", "from"}},
	{"to", []string{"wordEnd", "to"}},
	{"lemma_free", []string{"lemmaFree", "lemma_free"}},
}

// segmentReading attributes copied into the reading record.
var readingFields = []fieldAttrs{
	{"label", []string{"label"}},
	{"witnesses", []string{"witnesses", "wit"}},
	{"reading", []string{"reading"}},
	{"kind", []string{"type", "kind"}},
	{"lemma", []string{"lemma"}},
	{"parent", []string{"parent"}},
	{"conjecture", []string{"conjecture"}},
}

// Records reads an NTVMR collation export. Every segment element becomes a
// unit record and each of its segmentReading elements a reading record; the
// reading text is the element's character content. Book and title
// attributes on the root element become batch metadata.
func Records(data []byte) (*record.Batch, error) {
	if err := WellFormed(data); err != nil {
		return nil, &cerrors.ParseError{Format: "XML", Message: err.Error(), Err: cerrors.ErrInvalidInput}
	}
	doc, err := Load(data)
	if err != nil {
		return nil, &cerrors.ParseError{Format: "XML", Message: "invalid collation export", Err: err}
	}

	batch := &record.Batch{}
	top := doc.Top()
	batch.Book, _ = top.Attr("book")
	batch.Title, _ = top.Attr("title")

	segments, err := doc.Select("//segment")
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, cerrors.NewParse("XML", "", "no segment elements found")
	}
	for _, seg := range segments {
		unit := record.Map{}
		copyAttrs(unit, seg, segmentFields)

		readings, err := seg.Select(".//segmentReading")
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, len(readings))
		for _, r := range readings {
			m := record.Map{"text": r.Text()}
			copyAttrs(m, r, readingFields)
			list = append(list, m)
		}
		unit["readings"] = list
		batch.Records = append(batch.Records, unit)
	}
	return batch, nil
}

// RecordsFrom reads an NTVMR collation export from r.
func RecordsFrom(r io.Reader) (*record.Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, cerrors.NewIO("read", "", err)
	}
	return Records(data)
}

func copyAttrs(dst record.Map, n Element, fields []fieldAttrs) {
	for _, f := range fields {
		for _, name := range f.attrs {
			if v, ok := n.Attr(name); ok && strings.TrimSpace(v) != "" {
				dst[f.field] = v
				break
			}
		}
	}
}
