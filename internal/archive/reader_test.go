package archive

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ulikunitz/xz"
)

const records = `{"book":"Acts","records":[]}`

func TestCompressionOf(t *testing.T) {
	tests := []struct {
		path    string
		want    Compression
		trimmed string
		bundle  bool
	}{
		{"acts.json", None, "acts.json", false},
		{"acts.json.gz", Gzip, "acts.json", false},
		{"acts.xml.xz", XZ, "acts.xml", false},
		{"out.tar.xz", XZ, "out.tar", true},
		{"out.tar.gz", Gzip, "out.tar", true},
		{"out.tar", None, "out.tar", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := CompressionOf(tt.path); got != tt.want {
				t.Errorf("CompressionOf = %v, want %v", got, tt.want)
			}
			if got := TrimCompression(tt.path); got != tt.trimmed {
				t.Errorf("TrimCompression = %q, want %q", got, tt.trimmed)
			}
			if got := IsBundle(tt.path); got != tt.bundle {
				t.Errorf("IsBundle = %v, want %v", got, tt.bundle)
			}
		})
	}
}

func TestReadFileCompressed(t *testing.T) {
	dir := t.TempDir()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write([]byte(records))
	gw.Close()

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatal(err)
	}
	xw.Write([]byte(records))
	xw.Close()

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"plain", "acts.json", []byte(records)},
		{"gzip suffix", "acts.json.gz", gz.Bytes()},
		{"xz suffix", "acts.json.xz", xzBuf.Bytes()},
		{"xz sniffed", "acts.json", xzBuf.Bytes()},
		{"gzip sniffed", "acts.dat", gz.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+"-"+tt.file)
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile error: %v", err)
			}
			if string(got) != records {
				t.Errorf("ReadFile = %q", got)
			}
		})
	}
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing file read")
	}
	bad := filepath.Join(dir, "bad.json.xz")
	if err := os.WriteFile(bad, []byte("not xz"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(bad); err == nil {
		t.Error("corrupt xz read")
	}
}

func TestReadFileFromBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.tar.gz")
	if err := WriteBundle(path, []Entry{
		{Name: "README", Data: []byte("notes")},
		{Name: "acts.json", Data: []byte(records)},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(got) != records {
		t.Errorf("ReadFile = %q", got)
	}
}

func TestReadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tar.xz")
	if err := WriteBundle(path, []Entry{
		{Name: "a.txt", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
	}); err != nil {
		t.Fatal(err)
	}

	members, err := ReadBundle(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []Member{{Name: "out/a.txt", Data: []byte("a")}, {Name: "out/b.txt", Data: []byte("b")}}
	if !reflect.DeepEqual(members, want) {
		t.Errorf("members = %+v", members)
	}
}

func TestReadBundleRejects(t *testing.T) {
	dir := t.TempDir()
	zip := filepath.Join(dir, "out.zip")
	if err := os.WriteFile(zip, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.tar.gz")
	if err := WriteBundle(empty, []Entry{{Name: "notes.txt", Data: []byte("x")}}); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadBundle(zip); err == nil {
		t.Error("zip accepted as a bundle")
	}
	if _, err := ReadFile(empty); err == nil {
		t.Error("bundle without records read as records")
	}
}
