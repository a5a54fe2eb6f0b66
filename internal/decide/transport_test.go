package decide

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/bridge"
)

func bridgePair(t *testing.T) (*bridge.Bridge, *bridge.Bridge) {
	t.Helper()
	a, b := bridge.Loopback(0)
	near := bridge.New(bridge.Config{Channel: a, Origin: "s", Timeout: time.Second})
	far := bridge.New(bridge.Config{Channel: b, Origin: "s", Timeout: time.Second})
	near.Start()
	far.Start()
	t.Cleanup(func() {
		near.Close()
		far.Close()
	})
	return near, far
}

func TestDirect_Success(t *testing.T) {
	var gotReq Request
	p := ProviderFunc(func(_ context.Context, req Request) ([]capture.HighlightInstruction, error) {
		gotReq = req
		return []capture.HighlightInstruction{{Selector: "#cta"}}, nil
	})

	tr := Direct(p, nil)
	res, err := tr(context.Background(), &capture.Snapshot{URL: "https://example.test/"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != capture.SourceProvider {
		t.Errorf("source: got %s", res.Source)
	}
	if len(res.Instructions) != 1 || res.Instructions[0].Selector != "#cta" {
		t.Errorf("instructions: got %+v", res.Instructions)
	}
	if gotReq.URL != "https://example.test/" {
		t.Errorf("request url: got %q", gotReq.URL)
	}
}

func TestDirect_ErrorWrapped(t *testing.T) {
	p := ProviderFunc(func(context.Context, Request) ([]capture.HighlightInstruction, error) {
		return nil, errors.New("no quota")
	})

	_, err := Direct(p, nil)(context.Background(), &capture.Snapshot{})
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(err.Error(), "decide: provider") {
		t.Errorf("error: got %q", err)
	}
}

func TestBridged_Roundtrip(t *testing.T) {
	near, far := bridgePair(t)

	HandleProvider(far, ProviderFunc(func(_ context.Context, req Request) ([]capture.HighlightInstruction, error) {
		return []capture.HighlightInstruction{
			{Selector: "#a", Priority: "high"},
			{Selector: "#b"},
		}, nil
	}), nil)

	tr := Bridged(near, nil)
	res, err := tr(context.Background(), &capture.Snapshot{URL: "https://example.test/"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != capture.SourceProvider {
		t.Fatalf("source: got %s, want provider", res.Source)
	}
	if len(res.Instructions) != 2 {
		t.Fatalf("instructions: got %d, want 2", len(res.Instructions))
	}
	// Defaults are normalized on the way in.
	if res.Instructions[1].Priority != capture.PriorityNormal {
		t.Errorf("priority default: got %q", res.Instructions[1].Priority)
	}
	if res.Instructions[1].Style != capture.StyleOutline {
		t.Errorf("style default: got %q", res.Instructions[1].Style)
	}
}

func TestBridged_ProviderFailureDegradesNotErrors(t *testing.T) {
	near, far := bridgePair(t)

	HandleProvider(far, ProviderFunc(func(context.Context, Request) ([]capture.HighlightInstruction, error) {
		return nil, errors.New("upstream 503")
	}), nil)

	res, err := Bridged(near, nil)(context.Background(), &capture.Snapshot{})
	if err != nil {
		t.Fatalf("degradation surfaced as error: %v", err)
	}
	if res.Source != capture.SourceTimeout {
		t.Errorf("source: got %s, want timeout", res.Source)
	}
	if len(res.Instructions) != 0 {
		t.Errorf("instructions: got %d, want none", len(res.Instructions))
	}
	if !strings.Contains(res.Reason, "503") {
		t.Errorf("reason: got %q", res.Reason)
	}
}

func TestBridged_MalformedResponseDegrades(t *testing.T) {
	near, far := bridgePair(t)

	far.Handle(RequestType, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{not json`), nil
	})

	res, err := Bridged(near, nil)(context.Background(), &capture.Snapshot{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != capture.SourceTimeout || !strings.Contains(res.Reason, "malformed") {
		t.Errorf("got %+v", res)
	}
}

func TestBuildRequest_Markdown(t *testing.T) {
	snap := &capture.Snapshot{
		URL:      "https://example.test/",
		Elements: []capture.ObservedElement{{ID: 1, Selector: "#x"}},
	}
	req := BuildRequest(snap, "find checkout", `<h1>Store</h1><p>Buy things.</p>`)
	if req.Intent != "find checkout" {
		t.Errorf("intent: got %q", req.Intent)
	}
	if !strings.Contains(req.PageMarkdown, "Store") {
		t.Errorf("markdown: got %q", req.PageMarkdown)
	}
	if len(req.Elements) != 1 {
		t.Errorf("elements: got %d", len(req.Elements))
	}

	// Empty markup leaves the markdown out entirely.
	if got := BuildRequest(snap, "", "").PageMarkdown; got != "" {
		t.Errorf("markdown for empty markup: got %q", got)
	}
}
