// Package tei writes an assembled apparatus document as a TEI critical
// apparatus.
//
// Output is fully determined by the document: elements and attributes are
// written in a fixed order with two-space indentation, so identical input
// always produces identical bytes.
package tei

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/FocuswithJustin/vmr2tei/core/encoding"
	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
	"github.com/FocuswithJustin/vmr2tei/core/xml"
)

// Namespace is the TEI namespace URI.
const Namespace = "http://www.tei-c.org/ns/1.0"

// MediaType is the content type of a serialized document.
const MediaType = "application/tei+xml; charset=utf-8"

// SplitAttestation is the witDetail type marking a witness cited for more
// than one reading.
const SplitAttestation = "split-attestation"

const indent = "  "

var idUnsafe = regexp.MustCompile(`[^\p{L}\p{N}._-]`)

// Serialize checks the document's structure and writes it as TEI. The
// emitted bytes are re-parsed and checked before they are returned.
func Serialize(doc *ir.Document) ([]byte, error) {
	if err := ir.Validate(doc); err != nil {
		return nil, err
	}

	lang := doc.Language
	if lang == "" {
		lang = encoding.LangGreek
	}

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString("<!DOCTYPE TEI>\n")
	fmt.Fprintf(&buf, "<TEI xmlns=\"%s\">\n", Namespace)
	writeHeader(&buf, doc, lang)
	fmt.Fprintf(&buf, "  <text xml:lang=\"%s\">\n", encoding.EscapeXMLAttr(lang))
	buf.WriteString("    <body>\n")
	for _, b := range doc.Books {
		fmt.Fprintf(&buf, "      <div type=\"book\" n=\"%s\">\n", encoding.EscapeXMLAttr(b.Book))
		for _, c := range b.Chapters {
			fmt.Fprintf(&buf, "        <div type=\"chapter\" n=\"%s\">\n", encoding.EscapeXMLAttr(c.Ref))
			for _, v := range c.Verses {
				fmt.Fprintf(&buf, "          <ab n=\"%s\">\n", encoding.EscapeXMLAttr(v.Ref))
				for _, e := range v.Entries {
					writeApp(&buf, e, 6, lang)
				}
				buf.WriteString("          </ab>\n")
			}
			buf.WriteString("        </div>\n")
		}
		buf.WriteString("      </div>\n")
	}
	buf.WriteString("    </body>\n")
	buf.WriteString("  </text>\n")
	buf.WriteString("</TEI>\n")

	out := buf.Bytes()
	if err := Check(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Write serializes the document to w.
func Write(w io.Writer, doc *ir.Document) error {
	data, err := Serialize(doc)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return cerrors.NewIO("write", "", err)
	}
	return nil
}

func writeHeader(buf *bytes.Buffer, doc *ir.Document, lang string) {
	buf.WriteString("  <teiHeader>\n")
	buf.WriteString("    <fileDesc>\n")
	buf.WriteString("      <titleStmt>\n")
	fmt.Fprintf(buf, "        <title>%s</title>\n", encoding.EscapeXMLText(doc.Title))
	buf.WriteString("      </titleStmt>\n")
	buf.WriteString("      <publicationStmt>\n")
	buf.WriteString("        <p>Generated by vmr2tei from NTVMR collation data.</p>\n")
	buf.WriteString("      </publicationStmt>\n")
	buf.WriteString("      <sourceDesc>\n")
	if len(doc.Witnesses) == 0 {
		buf.WriteString("        <p>No witnesses cited.</p>\n")
	} else {
		buf.WriteString("        <listWit>\n")
		for _, w := range doc.Witnesses {
			fmt.Fprintf(buf, "          <witness n=\"%s\" type=\"%s\"/>\n",
				encoding.EscapeXMLAttr(w.Siglum), w.TEIType())
		}
		buf.WriteString("        </listWit>\n")
	}
	buf.WriteString("      </sourceDesc>\n")
	buf.WriteString("    </fileDesc>\n")
	buf.WriteString("    <profileDesc>\n")
	buf.WriteString("      <langUsage>\n")
	for _, l := range languages(doc, lang) {
		fmt.Fprintf(buf, "        <language ident=\"%s\"/>\n", encoding.EscapeXMLAttr(l))
	}
	buf.WriteString("      </langUsage>\n")
	buf.WriteString("    </profileDesc>\n")
	buf.WriteString("  </teiHeader>\n")
}

// languages lists the document language followed by the other reading
// languages in sorted order.
func languages(doc *ir.Document, base string) []string {
	seen := map[string]bool{base: true}
	var extra []string
	doc.Walk(func(e *ir.ApparatusEntry) {
		for _, r := range e.Readings {
			if lang := readingLanguage(r.Text, base); lang != "" && !seen[lang] {
				seen[lang] = true
				extra = append(extra, lang)
			}
		}
	})
	sort.Strings(extra)
	return append([]string{base}, extra...)
}

// readingLanguage returns the xml:lang of a reading, or "" when the reading
// is in the document language.
func readingLanguage(text, base string) string {
	lang := encoding.ScriptLanguage(text)
	if lang == "" || lang == encoding.LangGreek || lang == base {
		return ""
	}
	return lang
}

type attr struct {
	name, value string
}

func writeStart(buf *bytes.Buffer, depth int, name string, attrs []attr, selfClose bool) {
	buf.WriteString(strings.Repeat(indent, depth))
	buf.WriteString("<")
	buf.WriteString(name)
	for _, a := range attrs {
		if a.value == "" {
			continue
		}
		fmt.Fprintf(buf, " %s=\"%s\"", a.name, encoding.EscapeXMLAttr(a.value))
	}
	if selfClose {
		buf.WriteString("/")
	}
	buf.WriteString(">")
}

func writeApp(buf *bytes.Buffer, e *ir.ApparatusEntry, depth int, base string) {
	anchor := e.Anchor().String()
	writeStart(buf, depth, "app", []attr{{"n", anchor}}, false)
	buf.WriteString("\n")

	split := splitWitnesses(e.Readings)
	ids := readingIDs(anchor, e.Readings, split)

	host := hostReading(e)
	for _, r := range e.Readings {
		name := "rdg"
		if r.Lemma {
			name = "lem"
		}
		attrs := []attr{
			{"xml:id", ids[r.Label]},
			{"n", r.Label},
			{"type", readingType(r)},
			{"wit", strings.Join(r.Sigla(), " ")},
			{"xml:lang", readingLanguage(r.Text, base)},
		}

		children := r == host && len(e.Children) > 0
		text := encoding.EscapeXMLText(r.Text)
		switch {
		case !children && text == "":
			writeStart(buf, depth+1, name, attrs, true)
			buf.WriteString("\n")
		case !children:
			writeStart(buf, depth+1, name, attrs, false)
			fmt.Fprintf(buf, "%s</%s>\n", text, name)
		default:
			writeStart(buf, depth+1, name, attrs, false)
			buf.WriteString(text)
			buf.WriteString("\n")
			for _, c := range e.Children {
				writeApp(buf, c, depth+2, base)
			}
			fmt.Fprintf(buf, "%s</%s>\n", strings.Repeat(indent, depth+1), name)
		}
	}

	for _, s := range split {
		targets := make([]string, len(s.labels))
		for i, label := range s.labels {
			targets[i] = "#" + ids[label]
		}
		writeStart(buf, depth+1, "witDetail", []attr{
			{"type", SplitAttestation},
			{"wit", s.siglum},
			{"target", strings.Join(targets, " ")},
		}, true)
		buf.WriteString("\n")
	}

	fmt.Fprintf(buf, "%s</app>\n", strings.Repeat(indent, depth))
}

// hostReading returns the reading that holds nested apps: the lemma, or the
// first reading of a lemma-free entry.
func hostReading(e *ir.ApparatusEntry) *ir.Reading {
	for _, r := range e.Readings {
		if r.Lemma {
			return r
		}
	}
	if len(e.Readings) > 0 {
		return e.Readings[0]
	}
	return nil
}

func readingType(r *ir.Reading) string {
	if t := r.Kind.TEIType(); t != "" {
		return t
	}
	if r.Subreading {
		return "subreading"
	}
	return ""
}

type splitWitness struct {
	siglum string
	labels []string
}

// splitWitnesses lists the split-attested witnesses of an entry in order of
// first citation, each with the readings it is cited for.
func splitWitnesses(readings []*ir.Reading) []splitWitness {
	var out []splitWitness
	index := make(map[string]int)
	for _, r := range readings {
		for _, a := range r.Witnesses {
			if !a.Split {
				continue
			}
			i, ok := index[a.Siglum]
			if !ok {
				i = len(out)
				index[a.Siglum] = i
				out = append(out, splitWitness{siglum: a.Siglum})
			}
			out[i].labels = append(out[i].labels, r.Label)
		}
	}
	return out
}

// readingIDs assigns an xml:id to every reading a witDetail points at.
// Labels that sanitize to the same id get a numeric suffix.
func readingIDs(anchor string, readings []*ir.Reading, split []splitWitness) map[string]string {
	ids := make(map[string]string)
	if len(split) == 0 {
		return ids
	}
	targeted := make(map[string]bool)
	for _, s := range split {
		for _, label := range s.labels {
			targeted[label] = true
		}
	}
	used := make(map[string]bool)
	for _, r := range readings {
		if !targeted[r.Label] {
			continue
		}
		base := readingID(anchor, r.Label)
		id := base
		for n := 2; used[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		used[id] = true
		ids[r.Label] = id
	}
	return ids
}

// readingID builds an xml:id for a reading from its unit anchor and label.
// Anchors may start with a digit ("1Cor.1.1"), so the id is prefixed.
// Characters an XML name cannot hold become "_".
func readingID(anchor, label string) string {
	return "rdg-" + idUnsafe.ReplaceAllString(anchor, "_") + "-" + idUnsafe.ReplaceAllString(label, "_")
}

// Check re-parses emitted TEI and verifies that it is well-formed and that no
// app holds more than one lem.
func Check(data []byte) error {
	if err := xml.WellFormed(data); err != nil {
		return &cerrors.StructuralIntegrityError{Anchor: "document",
			Reason: "emitted XML is not well-formed: " + err.Error()}
	}
	doc, err := xml.Load(data)
	if err != nil {
		return &cerrors.StructuralIntegrityError{Anchor: "document", Reason: err.Error()}
	}
	apps, err := doc.Select("//*[local-name()='app']")
	if err != nil {
		return err
	}
	for _, app := range apps {
		lemmas := 0
		for _, c := range app.Elements() {
			if c.Name() == "lem" {
				lemmas++
			}
		}
		if lemmas > 1 {
			n, _ := app.Attr("n")
			return &cerrors.StructuralIntegrityError{Anchor: n, Reason: fmt.Sprintf("app holds %d lem elements", lemmas)}
		}
	}
	return nil
}
