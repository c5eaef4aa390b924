// Package witness maps raw witness identifiers to canonical sigla.
//
// A Registry is created per run and passed explicitly to the stages that
// need it. It is append-only: a witness, once registered, never changes.
package witness

import (
	"sort"
	"strings"
	"sync"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
)

// Registry owns the identifier-to-siglum table for one run. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byKey    map[string]*ir.Witness
	bySiglum map[string]*ir.Witness
	groups   map[string][]string // siglum -> group names
}

// Option configures a Registry.
type Option func(*Registry)

// WithGroups assigns group membership by siglum. The map is keyed by group
// name, for example {"primary": {"01", "03"}}. Member sigla are normalized
// with Canonical.
func WithGroups(groups map[string][]string) Option {
	return func(r *Registry) {
		for name, sigla := range groups {
			for _, s := range sigla {
				s = Canonical(s)
				r.groups[s] = append(r.groups[s], name)
			}
		}
		for s := range r.groups {
			sort.Strings(r.groups[s])
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byKey:    make(map[string]*ir.Witness),
		bySiglum: make(map[string]*ir.Witness),
		groups:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the witness for a raw identifier, registering it on first
// sight. An empty hint infers the category from the identifier; an
// unrecognized hint falls back to manuscript. The category of the first
// registration wins for later lookups of the same identifier, so callers
// that need reproducible output resolve in a fixed order.
//
// Two different identifiers that abbreviate to one siglum fail with
// *errors.SiglumCollisionError.
func (r *Registry) Resolve(raw, categoryHint string) (*ir.Witness, error) {
	key := identityKey(raw)
	if key == "" {
		return nil, &cerrors.ValidationError{Field: "witness", Value: raw, Message: "empty witness identifier"}
	}

	r.mu.RLock()
	w, ok := r.byKey[key]
	r.mu.RUnlock()
	if ok {
		return w, nil
	}

	cat := categoryFor(key, categoryHint)
	siglum := Abbreviate(key, cat)
	class, corrector := classify(siglum, cat)

	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.byKey[key]; ok {
		return w, nil
	}
	if existing, ok := r.bySiglum[siglum]; ok {
		return nil, &cerrors.SiglumCollisionError{Siglum: siglum, Existing: existing.ID, Incoming: raw}
	}

	w = &ir.Witness{
		ID:        strings.TrimSpace(raw),
		Key:       key,
		Siglum:    siglum,
		Category:  cat,
		Class:     class,
		Groups:    append([]string(nil), r.groups[siglum]...),
		Corrector: corrector,
	}
	r.byKey[key] = w
	r.bySiglum[siglum] = w
	return w, nil
}

// Siglum is a convenience wrapper around Resolve returning only the siglum.
func (r *Registry) Siglum(raw, categoryHint string) (string, error) {
	w, err := r.Resolve(raw, categoryHint)
	if err != nil {
		return "", err
	}
	return w.Siglum, nil
}

// Lookup returns the witness registered under a canonical siglum.
func (r *Registry) Lookup(siglum string) (*ir.Witness, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.bySiglum[siglum]
	return w, ok
}

// InGroup reports whether the witness with the given siglum belongs to group.
func (r *Registry) InGroup(siglum, group string) bool {
	w, ok := r.Lookup(siglum)
	return ok && w.InGroup(group)
}

// Len returns the number of registered witnesses.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Witnesses returns every registered witness in canonical order.
func (r *Registry) Witnesses() []*ir.Witness {
	r.mu.RLock()
	out := make([]*ir.Witness, 0, len(r.byKey))
	for _, w := range r.byKey {
		out = append(out, w)
	}
	r.mu.RUnlock()
	sortWitnesses(out)
	return out
}

// Subset returns the registered witnesses with the given sigla in canonical
// order. Unknown sigla are skipped.
func (r *Registry) Subset(sigla []string) []*ir.Witness {
	seen := make(map[string]bool, len(sigla))
	out := make([]*ir.Witness, 0, len(sigla))
	for _, s := range sigla {
		if seen[s] {
			continue
		}
		seen[s] = true
		if w, ok := r.Lookup(s); ok {
			out = append(out, w)
		}
	}
	sortWitnesses(out)
	return out
}

// Less orders two sigla canonically. Unregistered sigla sort last by name.
func (r *Registry) Less(a, b string) bool {
	wa, okA := r.Lookup(a)
	wb, okB := r.Lookup(b)
	switch {
	case okA && okB:
		ka, kb := keyFor(wa), keyFor(wb)
		if ka != kb {
			return ka.less(kb)
		}
		return wa.Siglum < wb.Siglum
	case okA:
		return true
	case okB:
		return false
	}
	return a < b
}

func sortWitnesses(ws []*ir.Witness) {
	sort.SliceStable(ws, func(i, j int) bool {
		ki, kj := keyFor(ws[i]), keyFor(ws[j])
		if ki != kj {
			return ki.less(kj)
		}
		return ws[i].Siglum < ws[j].Siglum
	})
}

func categoryFor(key, hint string) ir.Category {
	if strings.TrimSpace(hint) == "" {
		return inferCategory(key)
	}
	cat, _ := ir.ParseCategory(hint)
	return cat
}
