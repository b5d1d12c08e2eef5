package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/prefsets/internal/preset"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Registry *preset.Registry
	Version  string
}

// NewMCPServer creates an MCP server exposing presets as tools and the active
// preset as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"prefsets",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("prefsets: named settings presets with DEFAULT fallback. Read and change settings of the active or a named preset."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_presets",
			mcp.WithDescription("List every preset and report which one is active."),
		),
		mcpListPresets(deps),
	)

	s.AddTool(
		mcp.NewTool("get_setting",
			mcp.WithDescription("Read a setting. Values not set in the preset fall back to DEFAULT."),
			mcp.WithString("key", mcp.Description("Setting key"), mcp.Required()),
			mcp.WithString("preset", mcp.Description("Preset name (default: the active preset)")),
		),
		mcpGetSetting(deps),
	)

	s.AddTool(
		mcp.NewTool("set_setting",
			mcp.WithDescription("Write a setting into a preset."),
			mcp.WithString("key", mcp.Description("Setting key"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value as text; string sets as a JSON array"), mcp.Required()),
			mcp.WithString("type", mcp.Description("string, int, long, float, bool or string_set (default: string)")),
			mcp.WithString("preset", mcp.Description("Preset name (default: the active preset)")),
		),
		mcpSetSetting(deps),
	)

	s.AddTool(
		mcp.NewTool("use_preset",
			mcp.WithDescription("Make a preset the active one."),
			mcp.WithString("name", mcp.Description("Preset name"), mcp.Required()),
		),
		mcpUsePreset(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"presets://active",
			"Active Preset",
			mcp.WithResourceDescription("Name and effective settings of the active preset as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceActive(deps),
	)

	return s
}

// mcpView resolves the optional preset argument; an unknown name is an error.
func mcpView(deps MCPDeps, name string) (*preset.View, error) {
	if name == "" {
		return deps.Registry.RestoreActive()
	}
	ok, err := deps.Registry.Has(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("preset %q not found", name)
	}
	return deps.Registry.Preset(name), nil
}

func mcpListPresets(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := deps.Registry.Presets()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list presets: %v", err)), nil
		}
		active, err := deps.Registry.ActiveName()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read active preset: %v", err)), nil
		}
		b, err := json.Marshal(PresetList{Presets: names, Active: active})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal presets: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetSetting(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		v, err := mcpView(deps, req.GetString("preset", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		res, err := v.Resolve(key)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read %s: %v", key, err)), nil
		}
		if !res.Found {
			return mcpError(fmt.Sprintf("%s is not set in preset %s", key, v.Name())), nil
		}
		b, err := json.Marshal(Setting{
			Key:       key,
			Type:      res.Value.Kind.String(),
			Value:     res.Value.Interface(),
			Inherited: res.Inherited,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal setting: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetSetting(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		raw, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}
		v, err := mcpView(deps, req.GetString("preset", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		typ := req.GetString("type", "string")
		encoded, err := json.Marshal(raw)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid value: %v", err)), nil
		}
		if typ == "string_set" || typ == "set" {
			encoded = json.RawMessage(raw)
		}
		val, err := decodeValue(typ, encoded)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid value: %v", err)), nil
		}

		if err := v.Edit().Put(key, val).Commit(); err != nil {
			return mcpError(fmt.Sprintf("failed to set %s: %v", key, err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s in preset %s", key, val.Format(), v.Name())), nil
	}
}

func mcpUsePreset(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		v, err := mcpView(deps, name)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if err := v.SaveAsActive(); err != nil {
			return mcpError(fmt.Sprintf("failed to activate %s: %v", name, err)), nil
		}
		return mcpText(fmt.Sprintf("Active preset is now %s", name)), nil
	}
}

func mcpResourceActive(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		v, err := deps.Registry.RestoreActive()
		if err != nil {
			return nil, fmt.Errorf("failed to read active preset: %w", err)
		}
		eff, err := preset.Effective(v)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}

		b, err := json.Marshal(map[string]any{
			"name":     v.Name(),
			"settings": toWireMap(eff),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal active preset: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
