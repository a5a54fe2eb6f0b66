package decide

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/clock"
)

type captureTransport struct {
	mu    sync.Mutex
	calls []*capture.Snapshot
	next  func() (capture.DecisionResult, error)
}

func (ct *captureTransport) transport(_ context.Context, snap *capture.Snapshot) (capture.DecisionResult, error) {
	ct.mu.Lock()
	ct.calls = append(ct.calls, snap)
	next := ct.next
	ct.mu.Unlock()
	if next != nil {
		return next()
	}
	return capture.DecisionResult{Source: capture.SourceProvider}, nil
}

func (ct *captureTransport) count() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.calls)
}

func snapAt(ts int64) *capture.Snapshot {
	return &capture.Snapshot{URL: "https://example.test/", Timestamp: ts}
}

func TestCoordinator_BurstCollapsesToOneSend(t *testing.T) {
	clk := clock.NewFake()
	ct := &captureTransport{}
	c := New(Config{Transport: ct.transport, Clock: clk})
	t.Cleanup(c.Close)

	c.RequestDecision(snapAt(1))
	c.RequestDecision(snapAt(2))
	c.RequestDecision(snapAt(3))

	if ct.count() != 0 {
		t.Fatalf("sent before debounce window: %d", ct.count())
	}

	clk.Advance(DefaultDebounce)
	if ct.count() != 1 {
		t.Fatalf("sends: got %d, want 1", ct.count())
	}
	if ct.calls[0].Timestamp != 3 {
		t.Errorf("sent snapshot: got ts %d, want the latest (3)", ct.calls[0].Timestamp)
	}
}

func TestCoordinator_ThrottleFloorDefersSecondSend(t *testing.T) {
	clk := clock.NewFake()
	ct := &captureTransport{}
	c := New(Config{Transport: ct.transport, Clock: clk})
	t.Cleanup(c.Close)

	c.RequestDecision(snapAt(1))
	clk.Advance(DefaultDebounce)
	if ct.count() != 1 {
		t.Fatalf("first send: got %d", ct.count())
	}

	// A second request right after: the debounce window elapses inside
	// the throttle floor, so the send waits for the remaining floor.
	c.RequestDecision(snapAt(2))
	clk.Advance(DefaultDebounce)
	if ct.count() != 1 {
		t.Fatalf("sent within the throttle floor: %d", ct.count())
	}

	clk.Advance(DefaultThrottle)
	if ct.count() != 2 {
		t.Fatalf("sends after floor: got %d, want 2", ct.count())
	}
	if ct.calls[1].Timestamp != 2 {
		t.Errorf("second send: got ts %d", ct.calls[1].Timestamp)
	}
}

func TestCoordinator_SupersedeMidFlight(t *testing.T) {
	clk := clock.NewFake()
	ct := &captureTransport{}
	var c *Coordinator

	// While the first transport call is "in flight", two more snapshots
	// arrive; only the newest is dispatched afterwards.
	first := true
	ct.next = func() (capture.DecisionResult, error) {
		if first {
			first = false
			c.RequestDecision(snapAt(10))
			c.RequestDecision(snapAt(11))
		}
		return capture.DecisionResult{Source: capture.SourceProvider}, nil
	}

	c = New(Config{Transport: ct.transport, Clock: clk})
	t.Cleanup(c.Close)

	c.RequestDecision(snapAt(1))
	clk.Advance(DefaultDebounce)
	if ct.count() != 1 {
		t.Fatalf("first send: got %d", ct.count())
	}

	// The rearmed send still honours the throttle floor.
	clk.Advance(DefaultThrottle)
	if ct.count() != 2 {
		t.Fatalf("sends: got %d, want 2 (initial + rearm)", ct.count())
	}
	if ct.calls[1].Timestamp != 11 {
		t.Errorf("rearmed send: got ts %d, want 11", ct.calls[1].Timestamp)
	}
}

func TestCoordinator_ResultAndCallbacks(t *testing.T) {
	clk := clock.NewFake()
	var sends int
	var results []capture.DecisionResult
	ct := &captureTransport{next: func() (capture.DecisionResult, error) {
		return capture.DecisionResult{
			Source: capture.SourceProvider,
			Instructions: []capture.HighlightInstruction{
				{Selector: "#cta", Style: capture.StyleGlow},
			},
		}, nil
	}}
	c := New(Config{
		Transport: ct.transport,
		Clock:     clk,
		OnSend:    func() { sends++ },
		OnResult:  func(r capture.DecisionResult) { results = append(results, r) },
	})
	t.Cleanup(c.Close)

	c.RequestDecision(snapAt(1))
	clk.Advance(DefaultDebounce)

	if sends != 1 || len(results) != 1 {
		t.Fatalf("sends=%d results=%d, want 1/1", sends, len(results))
	}
	last := c.LastResult()
	if last == nil || len(last.Instructions) != 1 || last.Instructions[0].Selector != "#cta" {
		t.Errorf("last result: got %+v", last)
	}
}

func TestCoordinator_ErrorKeepsLastResult(t *testing.T) {
	clk := clock.NewFake()
	var gotErr error
	fail := false
	ct := &captureTransport{next: func() (capture.DecisionResult, error) {
		if fail {
			return capture.DecisionResult{}, errors.New("transport down")
		}
		return capture.DecisionResult{Source: capture.SourceProvider, Reason: "ok"}, nil
	}}
	c := New(Config{
		Transport: ct.transport,
		Clock:     clk,
		Throttle:  time.Nanosecond,
		OnError:   func(err error) { gotErr = err },
	})
	t.Cleanup(c.Close)

	c.RequestDecision(snapAt(1))
	clk.Advance(DefaultDebounce)
	if c.LastResult() == nil {
		t.Fatal("no result after first send")
	}

	fail = true
	c.RequestDecision(snapAt(2))
	clk.Advance(DefaultDebounce)

	if gotErr == nil {
		t.Fatal("OnError not called")
	}
	// Stale-but-valid: the failed call must not clear the last result.
	if last := c.LastResult(); last == nil || last.Reason != "ok" {
		t.Errorf("last result after failure: got %+v", last)
	}
}

func TestCoordinator_CloseDropsPending(t *testing.T) {
	clk := clock.NewFake()
	ct := &captureTransport{}
	c := New(Config{Transport: ct.transport, Clock: clk})

	c.RequestDecision(snapAt(1))
	c.Close()
	clk.Advance(10 * DefaultDebounce)

	if ct.count() != 0 {
		t.Errorf("sends after close: got %d, want 0", ct.count())
	}
	c.RequestDecision(snapAt(2))
	clk.Advance(10 * DefaultDebounce)
	if ct.count() != 0 {
		t.Errorf("request after close dispatched: %d", ct.count())
	}
}
