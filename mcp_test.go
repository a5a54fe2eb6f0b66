package pagelens

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagelens/capture"
)

var testMCPImpl = &mcp.Implementation{Name: "pagelens-test", Version: "0.1.0"}

func mcpSession(t *testing.T, p *testPipeline) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	p.eng.RegisterMCPTools(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_ToolsCarryInputSchemas(t *testing.T) {
	p := newPipeline(t, nil)
	session := mcpSession(t, p)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	want := map[string]bool{
		"page_snapshot": false, "page_history": false, "page_refresh": false,
		"page_highlight": false, "overlay_toggle": false,
	}
	for _, tool := range res.Tools {
		if _, ok := want[tool.Name]; !ok {
			t.Errorf("unexpected tool %q", tool.Name)
			continue
		}
		want[tool.Name] = true
		if tool.InputSchema == nil {
			t.Errorf("%s: no input schema", tool.Name)
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %q not listed", name)
		}
	}
}

func TestMCP_PageSnapshot(t *testing.T) {
	p := newPipeline(t, nil)
	session := mcpSession(t, p)

	text := mcpCallTool(t, session, "page_snapshot", map[string]any{})
	var snap capture.Snapshot
	if err := json.Unmarshal([]byte(text), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.URL != testURL {
		t.Errorf("url: got %q", snap.URL)
	}
	if len(snap.Elements) == 0 {
		t.Error("no elements in snapshot")
	}
}

func TestMCP_PageRefreshAndHistory(t *testing.T) {
	p := newPipeline(t, nil)
	session := mcpSession(t, p)

	mcpCallTool(t, session, "page_refresh", map[string]any{})

	text := mcpCallTool(t, session, "page_history", map[string]any{})
	var hist []capture.Snapshot
	if err := json.Unmarshal([]byte(text), &hist); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("history: got %d entries, want 2", len(hist))
	}
}

func TestMCP_PageHighlight(t *testing.T) {
	p := newPipeline(t, nil)
	session := mcpSession(t, p)

	text := mcpCallTool(t, session, "page_highlight", map[string]any{
		"instructions": []map[string]any{
			{"selector": "#go", "style": "glow", "reason": "continue here"},
		},
	})
	var resp struct {
		Applied int `json:"applied"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Applied != 1 {
		t.Errorf("applied: got %d", resp.Applied)
	}

	hls := p.eng.Highlights()
	if len(hls) != 1 || hls[0] != "#go" {
		t.Errorf("highlights: got %v", hls)
	}
}

func TestMCP_PageHighlight_BadArguments(t *testing.T) {
	p := newPipeline(t, nil)
	session := mcpSession(t, p)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "page_highlight",
		Arguments: json.RawMessage(`{"instructions": "not a list"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	// GetError always returns nil on clients; the wire-level flag is IsError.
	if !result.IsError {
		t.Error("malformed arguments accepted")
	}
}

func TestMCP_OverlayToggle(t *testing.T) {
	p := newPipeline(t, nil)
	session := mcpSession(t, p)

	text := mcpCallTool(t, session, "overlay_toggle", map[string]any{})
	var resp struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Mounted at start in highlights-only, so one toggle lands on chat.
	if resp.Mode != "chat" {
		t.Errorf("mode: got %q", resp.Mode)
	}
}
