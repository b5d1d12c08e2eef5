package settings

import (
	"fmt"

	"github.com/kalambet/prefsets/internal/kv"
)

// lookup reads key from s and extracts a value of the wanted kind, or
// returns def when the key is absent.
func lookup[T any](s kv.Store, key string, want kv.Kind, def T, extract func(kv.Value) T) (T, error) {
	v, ok, err := s.Get(key)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("reading %q: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	if v.Kind != want {
		var zero T
		return zero, &kv.KindError{Key: key, Want: want, Got: v.Kind}
	}
	return extract(v), nil
}

// GetString reads a string value from a physical store.
func GetString(s kv.Store, key, def string) (string, error) {
	return lookup(s, key, kv.KindString, def, func(v kv.Value) string { return v.Str })
}

// GetInt reads an int value from a physical store.
func GetInt(s kv.Store, key string, def int) (int, error) {
	return lookup(s, key, kv.KindInt, def, func(v kv.Value) int { return int(v.Num) })
}

// GetLong reads a long value from a physical store.
func GetLong(s kv.Store, key string, def int64) (int64, error) {
	return lookup(s, key, kv.KindLong, def, func(v kv.Value) int64 { return v.Num })
}

// GetFloat reads a float value from a physical store.
func GetFloat(s kv.Store, key string, def float32) (float32, error) {
	return lookup(s, key, kv.KindFloat, def, func(v kv.Value) float32 { return v.Float })
}

// GetBool reads a bool value from a physical store.
func GetBool(s kv.Store, key string, def bool) (bool, error) {
	return lookup(s, key, kv.KindBool, def, func(v kv.Value) bool { return v.Bool })
}
