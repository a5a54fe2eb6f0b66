// Package decide bounds the rate of outbound highlight-decision requests
// driven by snapshot churn, and adapts decision providers into the
// coordinator's transport seam, directly or relayed across the message
// bridge.
package decide

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/clock"
)

const (
	// DefaultDebounce coalesces a burst of snapshot changes into one send.
	DefaultDebounce = 200 * time.Millisecond
	// DefaultThrottle is the hard floor between transport invocations.
	DefaultThrottle = time.Second
)

// Transport performs one decision round-trip. Swappable so the same
// coordinator works whether the call is made directly or relayed through
// the bridge.
type Transport func(ctx context.Context, snap *capture.Snapshot) (capture.DecisionResult, error)

// state is the coordinator's explicit timer state machine. Making the
// supersede-vs-queue policy a named state keeps it testable without
// timing-dependent flakiness.
type state int

const (
	stateIdle state = iota
	stateScheduled
	stateInFlight
)

// Config for creating a Coordinator.
type Config struct {
	Transport Transport
	Debounce  time.Duration
	Throttle  time.Duration
	Clock     clock.Clock
	Logger    *slog.Logger

	// OnSend fires just before the transport is invoked.
	OnSend func()
	// OnResult delivers each successful decision.
	OnResult func(capture.DecisionResult)
	// OnError reports transport failures. No automatic retry; the last
	// result stays as-is, stale-but-valid.
	OnError func(error)
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Throttle <= 0 {
		c.Throttle = DefaultThrottle
	}
	if c.Clock == nil {
		c.Clock = clock.System{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Coordinator debounces and throttles decision requests. At most one
// transport call is in flight per instance; a snapshot arriving mid-flight
// is captured in the single pending slot (newer supersedes older, no
// queue) and dispatched right after the in-flight call resolves.
type Coordinator struct {
	cfg     Config
	limiter *rate.Limiter

	mu      sync.Mutex
	st      state
	pending *capture.Snapshot
	timer   clock.Timer
	last    *capture.DecisionResult
	closed  bool
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	cfg.defaults()
	return &Coordinator{
		cfg: cfg,
		// One token per throttle interval, burst 1: the floor, expressed
		// as a limiter so the remaining wait falls out of a reservation.
		limiter: rate.NewLimiter(rate.Every(cfg.Throttle), 1),
	}
}

// RequestDecision stores snap as the pending snapshot (always the most
// recent wins) and (re)schedules the debounce window.
func (c *Coordinator) RequestDecision(snap *capture.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.pending = snap
	if c.st == stateInFlight {
		// Picked up by the completion path.
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.st = stateScheduled
	c.timer = c.cfg.Clock.AfterFunc(c.cfg.Debounce, c.fire)
}

// LastResult returns the most recent successful decision, nil before the
// first one.
func (c *Coordinator) LastResult() *capture.DecisionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Close cancels the debounce timer and clears pending state, leaving no
// scheduled callback able to mutate state after it returns. An in-flight
// transport call is not awaited; its completion is discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
	c.st = stateIdle
}

// fire is the send step: enforce the throttle floor, then dispatch the
// latest pending snapshot.
func (c *Coordinator) fire() {
	c.mu.Lock()
	if c.closed || c.pending == nil {
		c.st = stateIdle
		c.mu.Unlock()
		return
	}

	now := c.cfg.Clock.Now()
	res := c.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		// Within the floor: hand the token back and come back when the
		// remaining wait has passed, instead of sending.
		res.CancelAt(now)
		c.timer = c.cfg.Clock.AfterFunc(delay, c.fire)
		c.mu.Unlock()
		return
	}

	snap := c.pending
	c.pending = nil
	c.st = stateInFlight
	c.timer = nil
	c.mu.Unlock()

	if c.cfg.OnSend != nil {
		c.cfg.OnSend()
	}

	result, err := c.cfg.Transport(context.Background(), snap)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err == nil {
		c.last = &result
	}
	rearm := c.pending != nil
	if rearm {
		// A newer snapshot arrived mid-flight: re-trigger the send step
		// immediately (the throttle floor inside fire still applies).
		c.st = stateScheduled
	} else {
		c.st = stateIdle
	}
	c.mu.Unlock()

	if err != nil {
		c.cfg.Logger.Warn("decide: transport failed", "error", err)
		if c.cfg.OnError != nil {
			c.cfg.OnError(err)
		}
	} else if c.cfg.OnResult != nil {
		c.cfg.OnResult(result)
	}

	if rearm {
		c.fire()
	}
}
