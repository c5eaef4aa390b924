package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
)

const jsonInput = `{"title": "Acts 1:3", "book": "Acts", "units": [
  {"anchor": "Acts.1.3/2", "readings": [
    {"label": "a", "text": "ὁ", "witnesses": "01 03"},
    {"label": "b", "text": "", "witnesses": "05"}
  ]}
]}`

const xmlInput = `<?xml version="1.0" encoding="UTF-8"?>
<apparatus book="Acts">
  <segment verse="Acts.1.3" wordStart="2" wordEnd="2">
    <segmentReading label="a" witnesses="01 03">ὁ</segmentReading>
    <segmentReading label="b" witnesses="05"/>
  </segment>
</apparatus>`

func TestFormatOf(t *testing.T) {
	tests := map[string]string{
		"acts.json": FormatJSON,
		"ACTS.XML":  FormatXML,
		"acts.txt":  "",
		"acts":      "",
	}
	for in, want := range tests {
		if got := FormatOf(in); got != want {
			t.Errorf("FormatOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeRecords(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
		units  int
	}{
		{"json named", jsonInput, FormatJSON, 1},
		{"json guessed", jsonInput, "", 1},
		{"xml named", xmlInput, FormatXML, 1},
		{"xml guessed", "\n  " + xmlInput, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := DecodeRecords([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("DecodeRecords error: %v", err)
			}
			if len(b.Records) != tt.units || b.Book != "Acts" {
				t.Errorf("batch = %+v", b)
			}
		})
	}

	if _, err := DecodeRecords([]byte(jsonInput), "yaml"); !errors.Is(err, cerrors.ErrInvalidInput) {
		t.Errorf("unknown format: %v", err)
	}
	if _, err := DecodeRecords([]byte(xmlInput), FormatJSON); !errors.Is(err, cerrors.ErrInvalidInput) {
		t.Errorf("xml as json: %v", err)
	}
}

func TestConvertBatchTitle(t *testing.T) {
	b, err := DecodeRecords([]byte(jsonInput), "")
	if err != nil {
		t.Fatal(err)
	}

	res, err := New(DefaultConfig()).ConvertBatch(context.Background(), b)
	if err != nil {
		t.Fatalf("ConvertBatch error: %v", err)
	}
	if !strings.Contains(string(res.Output), "<title>Acts 1:3</title>") {
		t.Error("batch title not used")
	}

	cfg := DefaultConfig()
	cfg.Title = "Configured"
	res, err = New(cfg).ConvertBatch(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(res.Output), "<title>Configured</title>") {
		t.Error("configured title overridden by the batch")
	}
}
