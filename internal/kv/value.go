package kv

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Kind identifies the type of a stored value.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindLong
	KindFloat
	KindBool
	KindStringSet
)

var kindNames = map[Kind]string{
	KindString:    "string",
	KindInt:       "int",
	KindLong:      "long",
	KindFloat:     "float",
	KindBool:      "bool",
	KindStringSet: "string_set",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a kind name ("string", "int", ...) back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	if s == "set" {
		return KindStringSet, nil
	}
	return 0, fmt.Errorf("unknown value type %q", s)
}

// Value is a single typed entry of a physical store.
// Int and Long both live in Num; Kind tells them apart.
type Value struct {
	Kind  Kind
	Str   string
	Num   int64
	Float float32
	Bool  bool
	Set   []string
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Int(i int) Value { return Value{Kind: KindInt, Num: int64(i)} }
func Long(i int64) Value { return Value{Kind: KindLong, Num: i} }
func Float(f float32) Value { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func StringSet(ss []string) Value { return Value{Kind: KindStringSet, Set: NormalizeSet(ss)} }

// NormalizeSet returns a sorted copy of ss without duplicates.
// A nil input yields an empty, non-nil slice.
func NormalizeSet(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	slices.Sort(out)
	return slices.Compact(out)
}

// Interface returns the Go value carried by v, for JSON and YAML rendering.
func (v Value) Interface() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt, KindLong:
		return v.Num
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindStringSet:
		return NormalizeSet(v.Set)
	}
	return nil
}

// Format renders v as text. Sets are rendered as a JSON array.
// ParseValue(v.Kind, v.Format()) round-trips.
func (v Value) Format() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt, KindLong:
		return strconv.FormatInt(v.Num, 10)
	case KindFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 32)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindStringSet:
		b, _ := json.Marshal(NormalizeSet(v.Set))
		return string(b)
	}
	return ""
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == KindStringSet {
		return slices.Equal(NormalizeSet(v.Set), NormalizeSet(o.Set))
	}
	return v.Str == o.Str && v.Num == o.Num && v.Float == o.Float && v.Bool == o.Bool
}

// ParseValue converts raw text into a value of the given kind.
// String sets are read as a JSON array of strings.
func ParseValue(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindString:
		return String(raw), nil
	case KindInt:
		i, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid int %q: %w", raw, err)
		}
		return Int(int(i)), nil
	case KindLong:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid long %q: %w", raw, err)
		}
		return Long(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid float %q: %w", raw, err)
		}
		return Float(float32(f)), nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("invalid bool %q: %w", raw, err)
		}
		return Bool(b), nil
	case KindStringSet:
		var ss []string
		if err := json.Unmarshal([]byte(raw), &ss); err != nil {
			return Value{}, fmt.Errorf("invalid string set %q: %w", raw, err)
		}
		return StringSet(ss), nil
	}
	return Value{}, fmt.Errorf("unsupported kind %v", kind)
}
