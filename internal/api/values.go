package api

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/kalambet/prefsets/internal/kv"
)

// Value is the wire form of a setting.
type Value struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Setting is a single resolved key.
type Setting struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     any    `json:"value"`
	Inherited bool   `json:"inherited"`
}

func toWire(v kv.Value) Value {
	return Value{Type: v.Kind.String(), Value: v.Interface()}
}

func toWireMap(m map[string]kv.Value) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = toWire(v)
	}
	return out
}

// PutRequest is the body of PUT /presets/{name}/settings/{key}. Type may be
// omitted, in which case it is inferred from the JSON value.
type PutRequest struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// decodeValue converts a JSON value into a typed value, honouring typ when
// set.
func decodeValue(typ string, raw json.RawMessage) (kv.Value, error) {
	if len(raw) == 0 {
		return kv.Value{}, fmt.Errorf("value is required")
	}
	if typ == "" {
		return inferValue(raw)
	}
	kind, err := kv.ParseKind(typ)
	if err != nil {
		return kv.Value{}, err
	}

	switch kind {
	case kv.KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return kv.Value{}, fmt.Errorf("value must be a string: %w", err)
		}
		return kv.String(s), nil
	case kv.KindStringSet:
		var ss []string
		if err := json.Unmarshal(raw, &ss); err != nil {
			return kv.Value{}, fmt.Errorf("value must be an array of strings: %w", err)
		}
		return kv.StringSet(ss), nil
	}

	// Scalars may arrive as JSON literals or as their text form.
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	return kv.ParseValue(kind, text)
}

func inferValue(raw json.RawMessage) (kv.Value, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return kv.Value{}, fmt.Errorf("invalid value: %w", err)
	}
	switch x := v.(type) {
	case string:
		return kv.String(x), nil
	case bool:
		return kv.Bool(x), nil
	case float64:
		if x == math.Trunc(x) {
			if x >= math.MinInt32 && x <= math.MaxInt32 {
				return kv.Int(int(x)), nil
			}
			if x >= math.MinInt64 && x < math.MaxInt64 {
				return kv.Long(int64(x)), nil
			}
		}
		return kv.Float(float32(x)), nil
	case []any:
		ss := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return kv.Value{}, fmt.Errorf("string set items must be strings, got %T", item)
			}
			ss = append(ss, s)
		}
		return kv.StringSet(ss), nil
	}
	return kv.Value{}, fmt.Errorf("unsupported value %s", raw)
}
