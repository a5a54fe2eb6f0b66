package pagelens

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/kit"
)

// RegisterMCPTools exposes the engine on an MCP server so agent hosts can
// read snapshots and drive highlights as tools.
//
// Tools: page_snapshot, page_history, page_refresh, page_highlight,
// overlay_toggle.
func (e *Engine) RegisterMCPTools(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "page_snapshot",
		Description: "Current structured snapshot of the observed page: viewport, significant elements, recent interactions.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, e.endpointSnapshot, decodeNone)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "page_history",
		Description: "Past snapshots of the observed page, oldest first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, e.endpointHistory, decodeNone)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "page_refresh",
		Description: "Force an immediate snapshot re-extraction.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, e.endpointRefresh, decodeNone)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "page_highlight",
		Description: "Replace the highlight set.",
		InputSchema: inputSchema(map[string]any{
			"instructions": map[string]any{
				"type":        "array",
				"description": "Highlight instructions to apply",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"selector": map[string]any{"type": "string", "description": "CSS selector of the target element"},
						"style":    map[string]any{"type": "string", "description": "Visual style: outline, glow or underline"},
						"reason":   map[string]any{"type": "string", "description": "Tooltip text shown with the highlight"},
						"priority": map[string]any{"type": "string", "description": "Render priority: low, normal or high"},
					},
					"required": []string{"selector"},
				},
			},
		}, []string{"instructions"}),
	}, e.endpointHighlight, decodeHighlight)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "overlay_toggle",
		Description: "Advance the overlay one state: hidden, highlights-only, chat.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, e.endpointToggle, decodeNone)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type highlightArgs struct {
	Instructions []capture.HighlightInstruction `json:"instructions"`
}

func decodeNone(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{}, nil
}

func decodeHighlight(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var args highlightArgs
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, fmt.Errorf("parse instructions: %w", err)
		}
	}
	return &kit.MCPDecodeResult{Request: args}, nil
}

func (e *Engine) endpointSnapshot(_ context.Context, _ any) (any, error) {
	return e.Snapshot().Clone(), nil
}

func (e *Engine) endpointHistory(_ context.Context, _ any) (any, error) {
	return e.History(), nil
}

func (e *Engine) endpointRefresh(_ context.Context, _ any) (any, error) {
	e.Refresh()
	return map[string]string{"status": "refreshed"}, nil
}

func (e *Engine) endpointHighlight(_ context.Context, req any) (any, error) {
	args, ok := req.(highlightArgs)
	if !ok {
		return nil, fmt.Errorf("pagelens: unexpected request type %T", req)
	}
	e.ApplyGuide(args.Instructions)
	return map[string]any{"applied": len(args.Instructions)}, nil
}

func (e *Engine) endpointToggle(_ context.Context, _ any) (any, error) {
	return map[string]string{"mode": string(e.Toggle())}, nil
}
