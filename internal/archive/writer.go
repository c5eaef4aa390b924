package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// Compress compresses data with c.
func Compress(data []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	w, err := compressor(&buf, c)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case XZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return xw, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	}
	return nopCloser{w}, nil
}

// WriteFile writes data to path, compressing it when the suffix asks for
// it. The file is written to a temporary name and renamed into place.
func WriteFile(path string, data []byte) error {
	out, err := Compress(data, CompressionOf(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vmr2tei-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Entry is a file in a bundle.
type Entry struct {
	Name string
	Data []byte
}

// bundleTime is the modification time of every bundle entry, so equal
// contents give byte-identical bundles.
var bundleTime = time.Unix(0, 0).UTC()

// WriteBundle writes entries into a .tar.gz or .tar.xz bundle under a
// directory named after the bundle.
func WriteBundle(path string, entries []Entry) error {
	if !IsBundle(path) {
		return fmt.Errorf("unsupported archive format: %s", path)
	}
	baseDir := BundleName(path)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name:     baseDir + "/",
		Mode:     0755,
		Typeflag: tar.TypeDir,
		ModTime:  bundleTime,
	}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Name:     baseDir + "/" + e.Name,
			Mode:     0644,
			Size:     int64(len(e.Data)),
			Typeflag: tar.TypeReg,
			ModTime:  bundleTime,
		}); err != nil {
			return err
		}
		if _, err := tw.Write(e.Data); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return WriteFile(path, buf.Bytes())
}

// BundleName derives a bundle's directory name from its path by removing
// the archive suffixes.
func BundleName(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".tar.xz", ".tar.gz", ".tar", ".tei"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}
