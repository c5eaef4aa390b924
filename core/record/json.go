package record

import (
	"bytes"
	"encoding/json"
	"io"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
)

// Batch is a decoded input: the unit records plus any document metadata
// found next to them.
type Batch struct {
	Title   string
	Book    string
	Records []Record
}

// FromJSON decodes a batch from JSON. The input is either an array of unit
// records or an object with a "units" array and optional "title" and "book"
// fields. Numbers are kept exact.
func FromJSON(r io.Reader) (*Batch, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &cerrors.ParseError{Format: "JSON", Message: "invalid unit records", Err: err}
	}

	switch v := raw.(type) {
	case []any:
		return &Batch{Records: Map{"units": v}.Records("units")}, nil
	case map[string]any:
		m := Map(v)
		if _, ok := m["units"]; !ok {
			return nil, cerrors.NewParse("JSON", "", `object input needs a "units" array`)
		}
		b := &Batch{Records: m.Records("units")}
		b.Title, _ = m.String("title")
		b.Book, _ = m.String("book")
		return b, nil
	}
	return nil, cerrors.NewParse("JSON", "", "input must be an array or an object")
}

// FromJSONBytes decodes a batch from a JSON document in memory.
func FromJSONBytes(data []byte) (*Batch, error) {
	return FromJSON(bytes.NewReader(data))
}
