package pagelens

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/clock"
	"github.com/hazyhaar/pagelens/internal/config"
	"github.com/hazyhaar/pagelens/internal/decide"
	"github.com/hazyhaar/pagelens/internal/overlay"
	"github.com/hazyhaar/pagelens/internal/page"
	"github.com/hazyhaar/pagelens/internal/sink"
)

const testURL = "https://example.test/"

const testMarkup = `<body>
	<h1 id="title">Getting started</h1>
	<button id="go">Continue</button>
	<p>Some explanatory copy for the page.</p>
</body>`

// recordingSink collects emissions in memory.
type recordingSink struct {
	mu        sync.Mutex
	snapshots []capture.Snapshot
	decisions []capture.DecisionResult
}

func (r *recordingSink) SendSnapshot(_ context.Context, snap *capture.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap.Clone())
	return nil
}

func (r *recordingSink) SendDecision(_ context.Context, dec capture.DecisionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, dec)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) snapshotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recordingSink) decisionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.decisions)
}

type testPipeline struct {
	eng     *Engine
	pg      *page.Memory
	surface *overlay.Memory
	clk     *clock.Fake
	rec     *recordingSink
}

func newPipeline(t *testing.T, provider decide.Provider) *testPipeline {
	t.Helper()
	pg, err := page.NewMemory(testURL, testMarkup,
		capture.Viewport{Width: 1280, Height: 800})
	if err != nil {
		t.Fatal(err)
	}

	surface := overlay.NewMemory()
	clk := clock.NewFake()
	rec := &recordingSink{}

	cfg := &config.Config{Page: config.PageConfig{URL: testURL, Intent: "guide the user"}}
	eng, err := New(Options{
		Config:   cfg,
		Page:     pg,
		Surface:  surface,
		Provider: provider,
		Clock:    clk,
		Sinks:    []sink.Sink{rec},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(eng.Stop)

	return &testPipeline{eng: eng, pg: pg, surface: surface, clk: clk, rec: rec}
}

// settle yields to the observer and bridge goroutines between fake-clock
// steps.
func settle() { time.Sleep(20 * time.Millisecond) }

func TestEngine_StartCapturesAndHighlights(t *testing.T) {
	p := newPipeline(t, nil)

	snap := p.eng.Snapshot()
	if snap.URL != testURL {
		t.Errorf("url: got %q", snap.URL)
	}
	if len(snap.Elements) == 0 {
		t.Fatal("no elements captured")
	}

	if !p.surface.Mounted() {
		t.Error("surface not mounted")
	}
	if got := p.eng.Mode(); got != overlay.ModeHighlights {
		t.Errorf("mode: got %s", got)
	}

	// Fallback policy highlights the heading and the button.
	if got := len(p.eng.Highlights()); got != 2 {
		t.Errorf("highlights: got %d, want 2", got)
	}
	if p.rec.snapshotCount() != 1 {
		t.Errorf("emitted snapshots: got %d, want 1", p.rec.snapshotCount())
	}
	if p.eng.LastDecision() != nil {
		t.Error("decision present without a provider")
	}
}

func TestEngine_ProviderRoundtrip(t *testing.T) {
	var gotReq decide.Request
	provider := decide.ProviderFunc(func(_ context.Context, req decide.Request) ([]capture.HighlightInstruction, error) {
		gotReq = req
		return []capture.HighlightInstruction{
			{Selector: "#go", Style: capture.StyleGlow, Reason: "continue here"},
		}, nil
	})
	p := newPipeline(t, provider)

	// The initial decision request rides the debounce window.
	p.clk.Advance(200 * time.Millisecond)
	settle()

	dec := p.eng.LastDecision()
	if dec == nil {
		t.Fatal("no decision after the round-trip")
	}
	if dec.Source != capture.SourceProvider {
		t.Errorf("source: got %s", dec.Source)
	}

	hls := p.eng.Highlights()
	if len(hls) != 1 || hls[0] != "#go" {
		t.Errorf("highlights: got %v, want [#go]", hls)
	}
	if p.surface.Status() != overlay.StatusIdle {
		t.Errorf("status: got %s, want idle after completion", p.surface.Status())
	}
	if p.rec.decisionCount() != 1 {
		t.Errorf("emitted decisions: got %d, want 1", p.rec.decisionCount())
	}

	if gotReq.URL != testURL || gotReq.Intent != "guide the user" {
		t.Errorf("provider request: got url %q intent %q", gotReq.URL, gotReq.Intent)
	}
	if gotReq.PageMarkdown == "" {
		t.Error("provider request missing page markdown")
	}
}

func TestEngine_EmptyDecisionFallsBack(t *testing.T) {
	provider := decide.ProviderFunc(func(context.Context, decide.Request) ([]capture.HighlightInstruction, error) {
		return nil, nil
	})
	p := newPipeline(t, provider)

	p.clk.Advance(200 * time.Millisecond)
	settle()

	// The provider chose nothing, so the local rule keeps the page
	// annotated.
	if got := len(p.eng.Highlights()); got != 2 {
		t.Errorf("highlights: got %d, want fallback pair", got)
	}
}

func TestEngine_ScrollTriggersRefreshAndEmit(t *testing.T) {
	p := newPipeline(t, nil)

	p.pg.Scroll(0, 150)
	settle()
	p.clk.Advance(200 * time.Millisecond)
	settle()

	if p.rec.snapshotCount() != 2 {
		t.Errorf("emitted snapshots: got %d, want 2", p.rec.snapshotCount())
	}
	if got := p.eng.Snapshot().Viewport.ScrollY; got != 150 {
		t.Errorf("scroll_y: got %v", got)
	}
	if len(p.eng.History()) != 2 {
		t.Errorf("history: got %d entries", len(p.eng.History()))
	}
}

func TestEngine_ApplyGuideAndToggle(t *testing.T) {
	p := newPipeline(t, nil)

	p.eng.ApplyGuide([]capture.HighlightInstruction{{Selector: "#title"}})
	hls := p.eng.Highlights()
	if len(hls) != 1 || hls[0] != "#title" {
		t.Errorf("highlights: got %v", hls)
	}

	if got := p.eng.Toggle(); got != overlay.ModeChat {
		t.Errorf("toggle: got %s, want chat", got)
	}
	if !p.surface.Suppressing() {
		t.Error("keys not suppressed in chat")
	}
	if got := p.eng.Toggle(); got != overlay.ModeHidden {
		t.Errorf("toggle: got %s, want hidden", got)
	}
}

func TestEngine_StartIdempotent(t *testing.T) {
	p := newPipeline(t, nil)

	history := len(p.eng.History())
	nodes := p.surface.NodeCount()
	mode := p.eng.Mode()

	// A second Start leaves the running pipeline untouched.
	if err := p.eng.Start(context.Background()); err != nil {
		t.Fatalf("repeat start: %v", err)
	}
	settle()
	if got := len(p.eng.History()); got != history {
		t.Errorf("history: got %d entries, want %d", got, history)
	}
	if got := p.surface.NodeCount(); got != nodes {
		t.Errorf("nodes: got %d, want %d", got, nodes)
	}
	if got := p.eng.Mode(); got != mode {
		t.Errorf("mode: got %s, want %s", got, mode)
	}
}

func TestEngine_StopUnmounts(t *testing.T) {
	p := newPipeline(t, nil)

	p.eng.Stop()
	if p.surface.Mounted() {
		t.Error("surface still mounted after stop")
	}
	// A second Stop is a no-op.
	p.eng.Stop()
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("nil config accepted")
	}

	pg, err := page.NewMemory(testURL, testMarkup, capture.Viewport{Width: 800, Height: 600})
	if err != nil {
		t.Fatal(err)
	}
	defer pg.Close()

	_, err = New(Options{
		Config: &config.Config{Page: config.PageConfig{URL: testURL}},
		Page:   pg,
	})
	if err == nil {
		t.Error("injected page without surface accepted")
	}

	_, err = New(Options{Config: &config.Config{}})
	if err == nil {
		t.Error("config without page.url accepted")
	}
}
