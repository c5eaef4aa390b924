package cas

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrGoldenMismatch is returned when output no longer matches its golden
// digest.
var ErrGoldenMismatch = errors.New("golden digest mismatch")

// GoldenEntry records the expected output for one input.
type GoldenEntry struct {
	Digest string `json:"blake3"`
	Size   int    `json:"size"`
	Units  int    `json:"units,omitempty"`
}

// Golden maps input names to their expected output.
type Golden struct {
	Entries map[string]GoldenEntry `json:"entries"`
}

// MismatchError reports which input drifted.
type MismatchError struct {
	Name string
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	if e.Want == "" {
		return fmt.Sprintf("%s: no golden digest recorded", e.Name)
	}
	return fmt.Sprintf("%s: digest %s, golden %s", e.Name, e.Got, e.Want)
}

func (e *MismatchError) Unwrap() error { return ErrGoldenMismatch }

// LoadGolden reads a golden file. A missing file yields an empty set.
func LoadGolden(path string) (*Golden, error) {
	g := &Golden{Entries: make(map[string]GoldenEntry)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, fmt.Errorf("failed to read golden file: %w", err)
	}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("failed to parse golden file: %w", err)
	}
	if g.Entries == nil {
		g.Entries = make(map[string]GoldenEntry)
	}
	return g, nil
}

// Record sets the golden entry for name from output.
func (g *Golden) Record(name string, output []byte, units int) GoldenEntry {
	e := GoldenEntry{Digest: Digest(output), Size: len(output), Units: units}
	g.Entries[name] = e
	return e
}

// Check compares output against the golden entry for name.
func (g *Golden) Check(name string, output []byte) error {
	got := Digest(output)
	want, ok := g.Entries[name]
	if !ok || want.Digest != got {
		return &MismatchError{Name: name, Want: want.Digest, Got: got}
	}
	return nil
}

// Names returns the recorded input names in sorted order.
func (g *Golden) Names() []string {
	names := make([]string, 0, len(g.Entries))
	for n := range g.Entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Save writes the golden file with sorted keys.
func (g *Golden) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal golden file: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}
