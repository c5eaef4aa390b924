// Package record defines the abstract raw record consumed by the unit parser.
//
// A record is a loosely typed tree: every field is optional and accessors
// report presence separately from value, so callers apply their own default
// policy. Adapters turn JSON (this package) and NTVMR XML (core/xml) into
// records; the parser never sees the original serialization.
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Record is one node of a raw source tree.
type Record interface {
	// String returns a scalar field rendered as text.
	String(key string) (string, bool)
	// Int returns a numeric field. Numeric strings are accepted.
	Int(key string) (int, bool)
	// Bool returns a boolean field. "true", "yes" and "1" are accepted.
	Bool(key string) (bool, bool)
	// Strings returns a list field. A scalar is returned as a one-element list.
	Strings(key string) ([]string, bool)
	// Records returns the child records stored under key.
	Records(key string) []Record
	// Keys returns the field names in sorted order.
	Keys() []string
}

// Map is a Record backed by a generic map, the shape produced by decoding
// JSON into interface values.
type Map map[string]any

var _ Record = Map(nil)

func (m Map) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	return scalarString(v)
}

func (m Map) Int(key string) (int, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func (m Map) Bool(key string) (bool, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0", "":
			return false, true
		}
	case json.Number:
		return b.String() != "0", true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	}
	return false, false
}

func (m Map) Strings(key string) ([]string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := scalarString(item)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	s, ok := scalarString(v)
	if !ok {
		return nil, false
	}
	return []string{s}, true
}

func (m Map) Records(key string) []Record {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []Record:
		return list
	case []Map:
		out := make([]Record, len(list))
		for i, r := range list {
			out[i] = r
		}
		return out
	case []any:
		out := make([]Record, 0, len(list))
		for _, item := range list {
			if r, ok := asMap(item); ok {
				out = append(out, r)
			}
		}
		return out
	}
	if r, ok := asMap(v); ok {
		return []Record{r}
	}
	return nil
}

func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asMap(v any) (Map, bool) {
	switch r := v.(type) {
	case Map:
		return r, true
	case map[string]any:
		return Map(r), true
	}
	return nil, false
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case bool:
		return strconv.FormatBool(s), true
	case int:
		return strconv.Itoa(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}
