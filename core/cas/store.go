// Package cas stores emitted documents by the BLAKE3 digest of their bytes
// and keeps golden digests for regression checks.
package cas

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
)

// ErrBadDigest is returned for a digest that is not 64 lowercase hex digits.
var ErrBadDigest = errors.New("malformed digest")

// DigestSize is the length of a hex digest.
const DigestSize = 2 * 32

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidDigest reports whether s has the form of a digest.
func ValidDigest(s string) bool {
	if len(s) != DigestSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Store is a directory of documents addressed by digest, fanned out by the
// first two digits: <root>/documents/ab/abcd….xml.
type Store struct {
	dir string
}

// NewStore opens or creates a store under root.
func NewStore(root string) (*Store, error) {
	dir := filepath.Join(root, "documents")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cerrors.NewIO("create document store", dir, err)
	}
	return &Store{dir: dir}, nil
}

// rename moves a finished temp file into place.
var rename = os.Rename

// Put stores data and returns its digest. Storing the same bytes twice
// leaves the first copy alone.
func (s *Store) Put(data []byte) (string, error) {
	digest := Digest(data)
	dst := s.path(digest)
	if _, err := os.Stat(dst); err == nil {
		return digest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", cerrors.NewIO("store document", dst, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", cerrors.NewIO("store document", dst, err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return "", cerrors.NewIO("store document", dst, err)
	}
	if err := rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", cerrors.NewIO("store document", dst, err)
	}
	return digest, nil
}

// Get returns the document stored under digest. A well-formed digest with
// nothing stored under it yields a NotFoundError.
func (s *Store) Get(digest string) ([]byte, error) {
	if !ValidDigest(digest) {
		return nil, fmt.Errorf("%w: %q", ErrBadDigest, digest)
	}
	data, err := os.ReadFile(s.path(digest))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, cerrors.NewNotFound("document", digest)
	case err != nil:
		return nil, cerrors.NewIO("read document", s.path(digest), err)
	}
	return data, nil
}

func (s *Store) path(digest string) string {
	return filepath.Join(s.dir, digest[:2], digest+".xml")
}
