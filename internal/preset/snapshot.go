package preset

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/settings"
)

// Snapshot is a portable copy of one preset's own values.
type Snapshot struct {
	Preset string                   `yaml:"preset"`
	Values map[string]SnapshotEntry `yaml:"values"`
}

// SnapshotEntry is a typed value in a Snapshot. Scalars are kept as text in
// Value; string sets use Items.
type SnapshotEntry struct {
	Type  string   `yaml:"type"`
	Value string   `yaml:"value,omitempty"`
	Items []string `yaml:"items,omitempty"`
}

// TakeSnapshot copies the values stored under v's own prefix.
// On a registry using the JSON set encoding, strings holding a JSON array
// of strings are exported as sets, so the snapshot restores into a store
// with native sets as well.
func TakeSnapshot(v *View) (Snapshot, error) {
	own, err := v.All()
	if err != nil {
		return Snapshot{}, err
	}
	jsonSets := v.registry.SetEncoding() == settings.EncodingJSON
	snap := Snapshot{Preset: v.name, Values: make(map[string]SnapshotEntry, len(own))}
	for key, val := range own {
		if jsonSets {
			if set, ok := decodeJSONSet(val); ok {
				val = set
			}
		}
		snap.Values[key] = entryFor(val)
	}
	return snap, nil
}

// decodeJSONSet reads a JSON-encoded string set out of a string value.
func decodeJSONSet(val kv.Value) (kv.Value, bool) {
	if val.Kind != kv.KindString || !strings.HasPrefix(strings.TrimSpace(val.Str), "[") {
		return kv.Value{}, false
	}
	var items []string
	if err := json.Unmarshal([]byte(val.Str), &items); err != nil {
		return kv.Value{}, false
	}
	return kv.StringSet(items), true
}

func entryFor(val kv.Value) SnapshotEntry {
	if val.Kind == kv.KindStringSet {
		return SnapshotEntry{Type: val.Kind.String(), Items: kv.NormalizeSet(val.Set)}
	}
	return SnapshotEntry{Type: val.Kind.String(), Value: val.Format()}
}

// ToValue converts the entry back into a typed value.
func (e SnapshotEntry) ToValue() (kv.Value, error) {
	kind, err := kv.ParseKind(e.Type)
	if err != nil {
		return kv.Value{}, err
	}
	if kind == kv.KindStringSet {
		return kv.StringSet(e.Items), nil
	}
	return kv.ParseValue(kind, e.Value)
}

// Restore replaces the contents of v with the snapshot's values in a single
// commit.
func (s Snapshot) Restore(v *View) error {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ed := v.edit()
	ed.Clear()
	for _, key := range keys {
		val, err := s.Values[key].ToValue()
		if err != nil {
			return fmt.Errorf("snapshot key %q: %w", key, err)
		}
		ed.Put(key, val)
	}
	return ed.Commit()
}

// WriteYAML encodes the snapshot as YAML.
func (s Snapshot) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return enc.Close()
}

// ReadSnapshot decodes a YAML snapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if s.Values == nil {
		s.Values = make(map[string]SnapshotEntry)
	}
	return s, nil
}
