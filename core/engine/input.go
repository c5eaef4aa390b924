package engine

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/record"
	"github.com/FocuswithJustin/vmr2tei/core/xml"
)

// Input formats.
const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// FormatOf returns the input format named by a file extension, or "" when
// the extension says nothing.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".xml":
		return FormatXML
	}
	return ""
}

// DecodeRecords decodes unit records. An empty format is guessed from the
// first non-space byte: '<' means NTVMR XML, anything else JSON.
func DecodeRecords(data []byte, format string) (*record.Batch, error) {
	if format == "" {
		format = FormatJSON
		if t := bytes.TrimLeft(data, " \t\r\n\uFEFF"); len(t) > 0 && t[0] == '<' {
			format = FormatXML
		}
	}
	switch strings.ToLower(format) {
	case FormatJSON:
		return record.FromJSONBytes(data)
	case FormatXML:
		return xml.Records(data)
	}
	return nil, cerrors.NewValidation("format", fmt.Sprintf("unknown input format %q", format))
}

// ConvertBatch converts a decoded batch. The batch title is used when the
// configuration sets none.
func (e *Engine) ConvertBatch(ctx context.Context, b *record.Batch) (*Result, error) {
	eng := e
	if e.cfg.Title == "" && b.Title != "" {
		cfg := e.cfg
		cfg.Title = b.Title
		eng = &Engine{cfg: cfg}
	}
	return eng.Convert(ctx, b.Records)
}
