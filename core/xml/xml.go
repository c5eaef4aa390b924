// Package xml reads XML with xmlquery and XPath: the NTVMR collation export
// on the way in and the emitted TEI on the way out.
//
// Neither reader resolves external entities. WellFormed also refuses to
// expand any entity beyond the five predefined ones.
package xml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// SyntaxError reports where a document stops being well-formed.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// WellFormed tokenizes data and returns the first syntax error, if any.
func WellFormed(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	for {
		_, err := dec.Token()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			var se *xml.SyntaxError
			if errors.As(err, &se) {
				return &SyntaxError{Line: se.Line, Msg: se.Msg}
			}
			line, _ := dec.InputPos()
			return &SyntaxError{Line: line, Msg: err.Error()}
		}
	}
}

// Tree is a parsed document.
type Tree struct {
	doc *xmlquery.Node
}

// Element is one element of a Tree. The zero Element has no name, text,
// attributes or children.
type Element struct {
	n *xmlquery.Node
}

// Load parses data into a Tree.
func Load(data []byte) (*Tree, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Tree{doc: doc}, nil
}

// Top returns the document element.
func (t *Tree) Top() Element {
	return firstElement(t.doc)
}

// Select returns the elements matching an XPath expression.
func (t *Tree) Select(expr string) ([]Element, error) {
	return selectFrom(t.doc, expr)
}

// One returns the first element matching expr and whether there was one.
func (t *Tree) One(expr string) (Element, bool, error) {
	found, err := selectFrom(t.doc, expr)
	if err != nil || len(found) == 0 {
		return Element{}, false, err
	}
	return found[0], true, nil
}

// Select evaluates expr relative to e.
func (e Element) Select(expr string) ([]Element, error) {
	return selectFrom(e.n, expr)
}

func selectFrom(n *xmlquery.Node, expr string) ([]Element, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	if n == nil {
		return nil, nil
	}
	var out []Element
	for _, m := range xmlquery.QuerySelectorAll(n, compiled) {
		if m.Type == xmlquery.ElementNode {
			out = append(out, Element{n: m})
		}
	}
	return out, nil
}

func firstElement(n *xmlquery.Node) Element {
	if n != nil {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode {
				return Element{n: c}
			}
		}
	}
	return Element{}
}

// Name returns the local name.
func (e Element) Name() string {
	if e.n == nil {
		return ""
	}
	return e.n.Data
}

// Text returns the character content of e and its descendants.
func (e Element) Text() string {
	if e.n == nil {
		return ""
	}
	return e.n.InnerText()
}

// Elements returns the child elements of e.
func (e Element) Elements() []Element {
	if e.n == nil {
		return nil
	}
	var out []Element
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, Element{n: c})
		}
	}
	return out
}

// Attr looks an attribute up by local name.
func (e Element) Attr(name string) (string, bool) {
	if e.n == nil {
		return "", false
	}
	for _, a := range e.n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
