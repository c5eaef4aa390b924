package collate

import (
	"fmt"
	"sort"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/ir"
)

// NormalizeOverrides rekeys lemma overrides by canonical anchor, so
// "B05K1V3U2-4", "Acts.1.3/02-04" and "Acts.1.3/2-4" select the same unit.
// A key that is not an anchor, or two keys naming the same anchor with
// different choices, is a *errors.ValidationError.
func NormalizeOverrides(overrides map[string]string) (map[string]string, error) {
	if len(overrides) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(overrides))
	from := make(map[string]string, len(overrides))
	for _, k := range keys {
		a, err := ir.ParseAnchor(k)
		if err != nil {
			return nil, cerrors.NewValidation("overrides", fmt.Sprintf("override key %q is not an anchor: %v", k, err))
		}
		canon, choice := a.String(), overrides[k]
		if prev, ok := out[canon]; ok && prev != choice {
			return nil, cerrors.NewValidation("overrides",
				fmt.Sprintf("overrides %q and %q both name %s with different lemmas", from[canon], k, canon))
		}
		out[canon] = choice
		from[canon] = k
	}
	return out, nil
}

// UnmatchedOverrides returns, sorted, the override anchors that name none of
// the given anchors. Keys are compared in canonical form.
func UnmatchedOverrides(overrides map[string]string, anchors []ir.Anchor) []string {
	if len(overrides) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(anchors))
	for _, a := range anchors {
		seen[a.String()] = true
	}
	var missing []string
	for k := range overrides {
		canon := k
		if a, err := ir.ParseAnchor(k); err == nil {
			canon = a.String()
		}
		if !seen[canon] {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}
