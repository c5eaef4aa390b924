// Package archive reads and writes the files vmr2tei consumes and produces:
// plain or compressed (.gz, .xz) record files, and .tar.gz / .tar.xz
// bundles holding a converted document with its manifest.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Compression identifies a stream compression.
type Compression int

const (
	None Compression = iota
	Gzip
	XZ
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case XZ:
		return "xz"
	}
	return "none"
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// CompressionOf returns the compression named by a path's suffix.
func CompressionOf(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".xz"):
		return XZ
	case strings.HasSuffix(path, ".gz"):
		return Gzip
	}
	return None
}

// Sniff returns the compression whose magic number starts data.
func Sniff(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, xzMagic):
		return XZ
	case bytes.HasPrefix(data, gzipMagic):
		return Gzip
	}
	return None
}

// TrimCompression strips a compression suffix, so "acts.json.xz" becomes
// "acts.json".
func TrimCompression(path string) string {
	for _, ext := range []string{".xz", ".gz"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// IsBundle reports whether a path names a tar bundle.
func IsBundle(path string) bool {
	p := TrimCompression(path)
	return strings.HasSuffix(p, ".tar") && p != path
}

// Decompress reads data compressed with c.
func Decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case XZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return io.ReadAll(r)
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return data, nil
}

// ReadFile reads a record file, decompressing it when its suffix or its
// leading bytes say it is compressed. A bundle yields its first .json or
// .xml member.
func ReadFile(path string) ([]byte, error) {
	if IsBundle(path) {
		members, err := ReadBundle(path)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if strings.HasSuffix(m.Name, ".json") || strings.HasSuffix(m.Name, ".xml") {
				return m.Data, nil
			}
		}
		return nil, fmt.Errorf("%s holds no .json or .xml records", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := CompressionOf(path)
	if c == None {
		c = Sniff(data)
	}
	return Decompress(data, c)
}

// Member is a regular file read from a bundle.
type Member struct {
	Name string
	Data []byte
}

// ReadBundle returns the regular files of a .tar, .tar.gz or .tar.xz
// bundle in archive order.
func ReadBundle(path string) ([]Member, error) {
	if !strings.HasSuffix(TrimCompression(path), ".tar") {
		return nil, fmt.Errorf("%s is not a tar bundle", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := Decompress(raw, CompressionOf(path))
	if err != nil {
		return nil, err
	}

	var members []Member
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return members, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", h.Name, err)
		}
		members = append(members, Member{Name: h.Name, Data: body})
	}
}
