package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/prefsets/internal/kv"
)

// ErrNativeSetsUnsupported is returned when native set encoding is requested
// for a store that cannot hold string sets.
var ErrNativeSetsUnsupported = errors.New("store has no native string set support")

// SetEncoding selects how string sets are persisted.
type SetEncoding string

const (
	// EncodingAuto uses native sets when the store supports them.
	EncodingAuto SetEncoding = "auto"
	// EncodingNative stores sets as KindStringSet values.
	EncodingNative SetEncoding = "native"
	// EncodingJSON stores sets as a JSON array in a string value.
	EncodingJSON SetEncoding = "json"
)

// ParseSetEncoding validates a configured encoding name. Empty means auto.
func ParseSetEncoding(s string) (SetEncoding, error) {
	switch SetEncoding(s) {
	case "", EncodingAuto:
		return EncodingAuto, nil
	case EncodingNative, EncodingJSON:
		return SetEncoding(s), nil
	}
	return "", fmt.Errorf("unknown set encoding %q (want auto, native or json)", s)
}

// SetCodec reads and writes string sets on a physical store.
type SetCodec interface {
	// GetStringSet returns the set stored under key, or def when the key is
	// absent. Malformed encoded data also yields def.
	GetStringSet(s kv.Store, key string, def []string) ([]string, error)
	// PutStringSet buffers a write of values under key.
	PutStringSet(e *kv.Editor, key string, values []string)
	Encoding() SetEncoding
}

// NewSetCodec picks the codec for s once. Callers keep the result for the
// life of the store.
func NewSetCodec(s kv.Store, enc SetEncoding, logger *slog.Logger) (SetCodec, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch enc {
	case "", EncodingAuto:
		if s.SupportsStringSets() {
			return nativeSets{}, nil
		}
		return jsonSets{logger: logger}, nil
	case EncodingNative:
		if !s.SupportsStringSets() {
			return nil, ErrNativeSetsUnsupported
		}
		return nativeSets{}, nil
	case EncodingJSON:
		return jsonSets{logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown set encoding %q", enc)
}

type nativeSets struct{}

func (nativeSets) Encoding() SetEncoding { return EncodingNative }

func (nativeSets) GetStringSet(s kv.Store, key string, def []string) ([]string, error) {
	v, ok, err := s.Get(key)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	if v.Kind != kv.KindStringSet {
		return nil, &kv.KindError{Key: key, Want: kv.KindStringSet, Got: v.Kind}
	}
	return kv.NormalizeSet(v.Set), nil
}

func (nativeSets) PutStringSet(e *kv.Editor, key string, values []string) {
	e.Put(key, kv.StringSet(values))
}

type jsonSets struct {
	logger *slog.Logger
}

func (jsonSets) Encoding() SetEncoding { return EncodingJSON }

func (c jsonSets) GetStringSet(s kv.Store, key string, def []string) ([]string, error) {
	v, ok, err := s.Get(key)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	switch v.Kind {
	case kv.KindStringSet:
		// Written natively before the store was switched to JSON encoding.
		return kv.NormalizeSet(v.Set), nil
	case kv.KindString:
	default:
		return nil, &kv.KindError{Key: key, Want: kv.KindStringSet, Got: v.Kind}
	}
	if v.Str == "" {
		return def, nil
	}

	var items []any
	if err := json.Unmarshal([]byte(v.Str), &items); err != nil {
		c.logger.Warn("invalid string set encoding, using default", "key", key, "error", err)
		return def, nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case nil:
		case string:
			out = append(out, it)
		default:
			out = append(out, fmt.Sprint(it))
		}
	}
	return kv.NormalizeSet(out), nil
}

func (jsonSets) PutStringSet(e *kv.Editor, key string, values []string) {
	b, _ := json.Marshal(kv.NormalizeSet(values))
	e.Put(key, kv.String(string(b)))
}
