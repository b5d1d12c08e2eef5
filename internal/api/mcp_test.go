package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/preset"
)

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	reg, err := preset.New(kv.NewMemory())
	if err != nil {
		t.Fatalf("preset.New: %v", err)
	}
	if err := reg.Add("WORK"); err != nil {
		t.Fatal(err)
	}
	return MCPDeps{Registry: reg}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty result content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(newTestMCPDeps(t)); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_ListPresets(t *testing.T) {
	deps := newTestMCPDeps(t)
	result, err := mcpListPresets(deps)(context.Background(), makeCallToolRequest("list_presets", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	var got PresetList
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if strings.Join(got.Presets, ",") != "DEFAULT,WORK" || got.Active != "DEFAULT" {
		t.Errorf("got %+v", got)
	}
}

func TestMCPTool_SetAndGetSetting(t *testing.T) {
	deps := newTestMCPDeps(t)
	ctx := context.Background()

	set := mcpSetSetting(deps)
	result, err := set(ctx, makeCallToolRequest("set_setting", map[string]interface{}{
		"key": "fontSize", "value": "14", "type": "int", "preset": "WORK",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
	if got, _ := deps.Registry.Preset("WORK").GetInt("fontSize", 0); got != 14 {
		t.Errorf("fontSize = %d, want 14", got)
	}

	result, _ = set(ctx, makeCallToolRequest("set_setting", map[string]interface{}{
		"key": "tags", "value": `["b","a"]`, "type": "string_set",
	}))
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	get := mcpGetSetting(deps)
	result, _ = get(ctx, makeCallToolRequest("get_setting", map[string]interface{}{
		"key": "tags", "preset": "WORK",
	}))
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
	var s Setting
	if err := json.Unmarshal([]byte(resultText(t, result)), &s); err != nil {
		t.Fatal(err)
	}
	if !s.Inherited || s.Type != "string_set" {
		t.Errorf("tags = %+v, want inherited string_set", s)
	}
}

func TestMCPTool_Errors(t *testing.T) {
	deps := newTestMCPDeps(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() (*mcp.CallToolResult, error)
	}{
		{"get missing key arg", func() (*mcp.CallToolResult, error) {
			return mcpGetSetting(deps)(ctx, makeCallToolRequest("get_setting", map[string]interface{}{}))
		}},
		{"get unset key", func() (*mcp.CallToolResult, error) {
			return mcpGetSetting(deps)(ctx, makeCallToolRequest("get_setting", map[string]interface{}{"key": "nope"}))
		}},
		{"get unknown preset", func() (*mcp.CallToolResult, error) {
			return mcpGetSetting(deps)(ctx, makeCallToolRequest("get_setting", map[string]interface{}{"key": "k", "preset": "GHOST"}))
		}},
		{"set bad int", func() (*mcp.CallToolResult, error) {
			return mcpSetSetting(deps)(ctx, makeCallToolRequest("set_setting", map[string]interface{}{"key": "k", "value": "x", "type": "int"}))
		}},
		{"use unknown preset", func() (*mcp.CallToolResult, error) {
			return mcpUsePreset(deps)(ctx, makeCallToolRequest("use_preset", map[string]interface{}{"name": "GHOST"}))
		}},
	}
	for _, tt := range tests {
		result, err := tt.call()
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if !result.IsError {
			t.Errorf("%s: expected tool error, got %q", tt.name, resultText(t, result))
		}
	}
}

func TestMCPTool_UsePresetAndResource(t *testing.T) {
	deps := newTestMCPDeps(t)
	ctx := context.Background()
	deps.Registry.Default().Edit().PutString("theme", "light").Commit()
	deps.Registry.Preset("WORK").Edit().PutInt("fontSize", 14).Commit()

	result, err := mcpUsePreset(deps)(ctx, makeCallToolRequest("use_preset", map[string]interface{}{"name": "WORK"}))
	if err != nil || result.IsError {
		t.Fatalf("use_preset failed: %v %v", err, result)
	}

	contents, err := mcpResourceActive(deps)(ctx, makeReadResourceRequest("presets://active"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("len(contents) = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var body struct {
		Name     string           `json:"name"`
		Settings map[string]Value `json:"settings"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &body); err != nil {
		t.Fatal(err)
	}
	if body.Name != "WORK" {
		t.Errorf("name = %q, want WORK", body.Name)
	}
	if len(body.Settings) != 2 || body.Settings["theme"].Value != "light" {
		t.Errorf("settings = %v", body.Settings)
	}
}
