// Package kv defines the flat key-value model shared by every physical
// settings backend: typed values, buffered change sets and raw change
// subscriptions.
package kv

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnsupportedKind is returned by Commit when a store cannot hold a
	// value of the requested kind (string sets on scalar-only stores).
	ErrUnsupportedKind = errors.New("unsupported value kind")
)

// KindError reports a key that holds a different kind than was requested.
type KindError struct {
	Key  string
	Want Kind
	Got  Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("key %q holds a %s value, not %s", e.Key, e.Got, e.Want)
}

// Listener receives the raw key of every entry touched by a commit.
type Listener func(key string)

// Store is a flat key-value settings store.
type Store interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (Value, bool, error)
	// All returns a snapshot of every stored entry.
	All() (map[string]Value, error)
	// Commit applies a change set. Clear runs before the mutations.
	Commit(cs ChangeSet) error
	// SupportsStringSets reports whether KindStringSet values can be stored
	// as-is.
	SupportsStringSets() bool
	// Subscribe registers fn for change events and returns a func that
	// removes it.
	Subscribe(fn Listener) (cancel func())
}

// Mutation is a pending put or delete of a single key.
type Mutation struct {
	Value  Value
	Delete bool
}

// ChangeSet is a batch of edits committed together.
type ChangeSet struct {
	Clear     bool
	Mutations map[string]Mutation
}

// Keys returns the mutated keys in sorted order.
func (cs ChangeSet) Keys() []string {
	keys := make([]string, 0, len(cs.Mutations))
	for k := range cs.Mutations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Touched returns the keys a commit of cs changes, sorted. When cs clears
// the store, every key in existing is included along with the mutated ones.
func (cs ChangeSet) Touched(existing []string) []string {
	if !cs.Clear {
		return cs.Keys()
	}
	seen := make(map[string]bool, len(existing)+len(cs.Mutations))
	keys := make([]string, 0, len(existing)+len(cs.Mutations))
	for _, k := range existing {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range cs.Mutations {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Empty reports whether committing cs would change nothing.
func (cs ChangeSet) Empty() bool {
	return !cs.Clear && len(cs.Mutations) == 0
}

// CheckKinds returns ErrUnsupportedKind when cs puts a string set into a store
// without native set support.
func CheckKinds(s Store, cs ChangeSet) error {
	if s.SupportsStringSets() {
		return nil
	}
	for key, m := range cs.Mutations {
		if !m.Delete && m.Value.Kind == KindStringSet {
			return fmt.Errorf("key %q: %w: %s", key, ErrUnsupportedKind, KindStringSet)
		}
	}
	return nil
}
