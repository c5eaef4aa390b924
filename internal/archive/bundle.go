package archive

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/FocuswithJustin/vmr2tei/core/cas"
	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
)

// Bundle member names.
const (
	DocumentName = "apparatus.xml"
	ManifestName = "manifest.json"
	ReportName   = "report.json"
)

// BundleVersion is the manifest format version.
const BundleVersion = "1"

// Manifest describes a converted document.
type Manifest struct {
	Version   string `json:"version"`
	Title     string `json:"title"`
	Source    string `json:"source,omitempty"`
	Digest    string `json:"blake3"`
	Size      int    `json:"size"`
	Units     int    `json:"units"`
	Failed    int    `json:"failed"`
	Witnesses int    `json:"witnesses"`
}

// Failure is one skipped unit in a bundle report.
type Failure struct {
	Index  int    `json:"index"`
	Anchor string `json:"anchor,omitempty"`
	Error  string `json:"error"`
}

// Failures converts a unit report into report entries.
func Failures(report cerrors.UnitErrors) []Failure {
	if len(report) == 0 {
		return nil
	}
	out := make([]Failure, len(report))
	for i, e := range report {
		out[i] = Failure{Index: e.Index, Anchor: e.Anchor}
		if e.Err != nil {
			out[i].Error = e.Err.Error()
		}
	}
	return out
}

// Bundle is a converted document with its manifest and unit report.
type Bundle struct {
	Manifest Manifest
	Document []byte
	Failures []Failure
}

// WriteResultBundle writes b to path. The manifest's digest, size, version
// and failure count are filled in from the contents.
func WriteResultBundle(path string, b *Bundle) error {
	m := b.Manifest
	m.Version = BundleVersion
	m.Digest = cas.Digest(b.Document)
	m.Size = len(b.Document)
	m.Failed = len(b.Failures)

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	entries := []Entry{
		{Name: DocumentName, Data: b.Document},
		{Name: ManifestName, Data: append(manifest, '\n')},
	}
	if len(b.Failures) > 0 {
		report, err := json.MarshalIndent(b.Failures, "", "  ")
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Name: ReportName, Data: append(report, '\n')})
	}
	return WriteBundle(path, entries)
}

// ReadResultBundle reads a bundle written by WriteResultBundle and checks
// the document against the manifest digest.
func ReadResultBundle(p string) (*Bundle, error) {
	var b Bundle
	var haveDoc, haveManifest bool
	members, err := ReadBundle(p)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		switch path.Base(m.Name) {
		case DocumentName:
			b.Document, haveDoc = m.Data, true
		case ManifestName:
			if err := json.Unmarshal(m.Data, &b.Manifest); err != nil {
				return nil, fmt.Errorf("manifest: %w", err)
			}
			haveManifest = true
		case ReportName:
			if err := json.Unmarshal(m.Data, &b.Failures); err != nil {
				return nil, fmt.Errorf("report: %w", err)
			}
		}
	}
	if !haveDoc || !haveManifest {
		return nil, fmt.Errorf("%s is not a result bundle", p)
	}
	if got := cas.Digest(b.Document); got != b.Manifest.Digest {
		return nil, fmt.Errorf("%s: document digest %s does not match manifest %s", p, got, b.Manifest.Digest)
	}
	return &b, nil
}
