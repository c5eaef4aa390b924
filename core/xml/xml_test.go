package xml

import (
	"errors"
	"strings"
	"testing"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
)

const export = `<?xml version="1.0" encoding="UTF-8"?>
<apparatus book="Acts" title="Acts 1">
  <segment verse="Acts.1.3" wordStart="2" wordEnd="4">
    <segmentReading label="a" witnesses="01 03 1739">καὶ ἐγένετο</segmentReading>
    <segmentReading label="b" witnesses="05">om.</segmentReading>
    <segmentReading label="zw" reading="a/b_f" witnesses="614"/>
  </segment>
  <segment index="B05K1V4U2">
    <segmentReading label="♦a" witnesses="P74 01">λόγον &amp; ἔργον</segmentReading>
    <segmentReading label="zz" witnesses="P45"/>
  </segment>
</apparatus>`

func TestLoadInvalidXML(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"unclosed tag", "<root><element></root>"},
		{"mismatched tags", "<root></other>"},
		{"invalid chars", "<root>\x00</root>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.xml)); err == nil {
				t.Error("Load accepted malformed XML")
			}
		})
	}
}

func TestWellFormed(t *testing.T) {
	if err := WellFormed([]byte(export)); err != nil {
		t.Errorf("well-formed export rejected: %v", err)
	}

	err := WellFormed([]byte("<root>\n<a></b>\n</root>"))
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SyntaxError", err)
	}
	if se.Line != 2 || !strings.HasPrefix(se.Error(), "line 2: ") {
		t.Errorf("error = %q", se.Error())
	}
}

func TestWellFormedRejectsEntities(t *testing.T) {
	data := `<?xml version="1.0"?>
<!DOCTYPE root [<!ENTITY xxe SYSTEM "file:///etc/passwd">]>
<root>&xxe;</root>`
	if err := WellFormed([]byte(data)); err == nil {
		t.Error("custom entity reference accepted")
	}
	if err := WellFormed([]byte("<root>&lt;&amp;</root>")); err != nil {
		t.Errorf("predefined entities rejected: %v", err)
	}
}

func TestSelect(t *testing.T) {
	doc, err := Load([]byte(export))
	if err != nil {
		t.Fatal(err)
	}

	segs, err := doc.Select("//segment")
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Fatalf("found %d segments, want 2", len(segs))
	}
	readings, err := segs[0].Select("./segmentReading")
	if err != nil {
		t.Fatal(err)
	}
	if len(readings) != 3 {
		t.Errorf("first segment has %d readings, want 3", len(readings))
	}

	b, ok, err := doc.One("//segmentReading[@label='b']")
	if err != nil || !ok {
		t.Fatalf("One: %v %v", ok, err)
	}
	if b.Text() != "om." {
		t.Errorf("text = %q", b.Text())
	}
	if _, ok, err := doc.One("//nothing"); ok || err != nil {
		t.Errorf("One(//nothing) = %v, %v", ok, err)
	}

	if _, err := doc.Select("[invalid"); err == nil {
		t.Error("invalid expression accepted")
	}

	if top := doc.Top(); top.Name() != "apparatus" || len(top.Elements()) != 2 {
		t.Errorf("top = %q with %d children", top.Name(), len(top.Elements()))
	}
}

func TestZeroElement(t *testing.T) {
	var e Element
	if e.Name() != "" || e.Text() != "" || e.Elements() != nil {
		t.Error("zero element has content")
	}
	if _, ok := e.Attr("n"); ok {
		t.Error("zero element has attributes")
	}
	if got, err := e.Select("*"); got != nil || err != nil {
		t.Errorf("Select on zero element = %v, %v", got, err)
	}
}

func TestAttrLocalName(t *testing.T) {
	doc, err := Load([]byte(`<TEI xmlns="http://www.tei-c.org/ns/1.0"><rdg xml:lang="lat" wit="L:V">et</rdg></TEI>`))
	if err != nil {
		t.Fatal(err)
	}
	rdgs, err := doc.Select("//*[local-name()='rdg']")
	if err != nil || len(rdgs) != 1 {
		t.Fatalf("rdg query: %d %v", len(rdgs), err)
	}
	if v, ok := rdgs[0].Attr("lang"); !ok || v != "lat" {
		t.Errorf("lang = %q %v", v, ok)
	}
	if _, ok := rdgs[0].Attr("type"); ok {
		t.Error("absent attribute reported present")
	}
}

func TestRecords(t *testing.T) {
	batch, err := Records([]byte(export))
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if batch.Book != "Acts" || batch.Title != "Acts 1" {
		t.Errorf("metadata = %q %q", batch.Book, batch.Title)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(batch.Records))
	}

	first := batch.Records[0]
	if v, _ := first.String("verse"); v != "Acts.1.3" {
		t.Errorf("verse = %q", v)
	}
	if from, ok := first.Int("from"); !ok || from != 2 {
		t.Errorf("from = %d %v", from, ok)
	}
	if to, ok := first.Int("to"); !ok || to != 4 {
		t.Errorf("to = %d %v", to, ok)
	}

	readings := first.Records("readings")
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}
	tests := []struct {
		field string
		idx   int
		want  string
	}{
		{"label", 0, "a"},
		{"text", 0, "καὶ ἐγένετο"},
		{"witnesses", 0, "01 03 1739"},
		{"text", 1, "om."},
		{"reading", 2, "a/b_f"},
		{"text", 2, ""},
	}
	for _, tt := range tests {
		if got, _ := readings[tt.idx].String(tt.field); got != tt.want {
			t.Errorf("reading %d %s = %q, want %q", tt.idx, tt.field, got, tt.want)
		}
	}

	second := batch.Records[1]
	if v, _ := second.String("index"); v != "B05K1V4U2" {
		t.Errorf("index = %q", v)
	}
	if got, _ := second.Records("readings")[0].String("text"); got != "λόγον & ἔργον" {
		t.Errorf("entity not decoded: %q", got)
	}
}

func TestRecordsErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", "<apparatus><segment></apparatus>"},
		{"no segments", "<apparatus/>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecordsFrom(strings.NewReader(tt.data))
			var pe *cerrors.ParseError
			if !errors.As(err, &pe) || pe.Format != "XML" {
				t.Fatalf("error = %v, want XML ParseError", err)
			}
			if !errors.Is(err, cerrors.ErrInvalidInput) {
				t.Error("error does not match ErrInvalidInput")
			}
		})
	}
}
