package api

import (
	"encoding/json"
	"testing"

	"github.com/kalambet/prefsets/internal/kv"
)

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		typ  string
		raw  string
		want kv.Value
	}{
		{"", `"dark"`, kv.String("dark")},
		{"", `true`, kv.Bool(true)},
		{"", `14`, kv.Int(14)},
		{"", `1099511627776`, kv.Long(1 << 40)},
		{"", `0.5`, kv.Float(0.5)},
		{"", `["b","a"]`, kv.StringSet([]string{"a", "b"})},
		{"long", `7`, kv.Long(7)},
		{"int", `"7"`, kv.Int(7)},
		{"float", `2`, kv.Float(2)},
		{"bool", `"false"`, kv.Bool(false)},
		{"string", `"14"`, kv.String("14")},
		{"string_set", `[]`, kv.StringSet(nil)},
	}
	for _, tt := range tests {
		got, err := decodeValue(tt.typ, json.RawMessage(tt.raw))
		if err != nil {
			t.Errorf("decodeValue(%q, %s): %v", tt.typ, tt.raw, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("decodeValue(%q, %s) = %#v, want %#v", tt.typ, tt.raw, got, tt.want)
		}
	}
}

func TestDecodeValueErrors(t *testing.T) {
	tests := []struct {
		typ string
		raw string
	}{
		{"", ``},
		{"", `null`},
		{"", `{"a":1}`},
		{"", `[1,2]`},
		{"string", `5`},
		{"string_set", `"a"`},
		{"int", `"x"`},
		{"int", `99999999999`},
	}
	for _, tt := range tests {
		if _, err := decodeValue(tt.typ, json.RawMessage(tt.raw)); err == nil {
			t.Errorf("decodeValue(%q, %s) succeeded, want error", tt.typ, tt.raw)
		}
	}
}
