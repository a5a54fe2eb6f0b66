// Package observe owns the single live snapshot of a page: initial
// capture, debounced refresh on scroll and resize, the interaction log,
// and the bounded history of past captures.
package observe

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/clock"
	"github.com/hazyhaar/pagelens/internal/extract"
	"github.com/hazyhaar/pagelens/internal/page"
)

// DefaultDebounce is the scroll/resize settle window.
const DefaultDebounce = 200 * time.Millisecond

// Config for creating an Observer.
type Config struct {
	Page           page.Page
	Debounce       time.Duration // settle window, default 200ms
	InteractionCap int           // default capture.DefaultInteractionCap
	HistoryCap     int           // default capture.DefaultHistoryCap
	Clock          clock.Clock   // default system clock
	Logger         *slog.Logger

	// OnRefresh fires after each debounced or manual re-extraction, with
	// the live snapshot. Downstream must treat it as a live view.
	OnRefresh func(*capture.Snapshot)
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.InteractionCap <= 0 {
		c.InteractionCap = capture.DefaultInteractionCap
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = capture.DefaultHistoryCap
	}
	if c.Clock == nil {
		c.Clock = clock.System{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Observer maintains exactly one live Snapshot for a page context,
// mutating it in place. External holders of the pointer observe updates
// unless they explicitly copy.
type Observer struct {
	cfg       Config
	extractor *extract.Extractor
	rec       recorder
	history   *History

	mu       sync.Mutex
	snap     *capture.Snapshot
	debounce clock.Timer

	events <-chan page.Event
	unsub  func()
	done   chan struct{}
	once   sync.Once
}

// New captures the initial snapshot and stores it in history. Call Start
// to begin reacting to page events.
func New(cfg Config) (*Observer, error) {
	cfg.defaults()

	o := &Observer{
		cfg:       cfg,
		extractor: extract.New(cfg.Logger),
		rec:       recorder{cap: cfg.InteractionCap},
		history:   NewHistory(cfg.HistoryCap),
		done:      make(chan struct{}),
	}

	vp, err := cfg.Page.Viewport()
	if err != nil {
		return nil, fmt.Errorf("observe: initial viewport: %w", err)
	}
	doc, err := cfg.Page.Document()
	if err != nil {
		return nil, fmt.Errorf("observe: initial document: %w", err)
	}

	o.snap = &capture.Snapshot{
		URL:       cfg.Page.URL(),
		Timestamp: cfg.Clock.Now().UnixMilli(),
		Viewport:  vp,
		Elements:  o.extractor.Extract(doc, vp),
	}
	o.history.Add(o.snap)

	cfg.Logger.Info("observe: initial snapshot captured",
		"url", o.snap.URL, "elements", len(o.snap.Elements))
	return o, nil
}

// Start subscribes to page events and runs the reaction loop.
func (o *Observer) Start() {
	o.events, o.unsub = o.cfg.Page.Subscribe()
	go o.loop()
}

// Snapshot returns the live snapshot. It is a live view, mutated in place
// by the observer and recorder.
func (o *Observer) Snapshot() *capture.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// History returns the bounded ring of past captures.
func (o *Observer) History() *History { return o.history }

// Refresh forces an immediate viewport and element update plus a history
// insertion, cancelling any pending debounce.
func (o *Observer) Refresh() {
	o.mu.Lock()
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.mu.Unlock()
	o.refresh()
}

// Close stops the loop and releases the page subscription. The engine's
// init-once guard releases its reference afterwards so a later init can
// recreate the observer.
func (o *Observer) Close() {
	o.once.Do(func() {
		close(o.done)
		if o.unsub != nil {
			o.unsub()
		}
		o.mu.Lock()
		if o.debounce != nil {
			o.debounce.Stop()
			o.debounce = nil
		}
		o.mu.Unlock()
	})
}

func (o *Observer) loop() {
	for {
		select {
		case <-o.done:
			return
		case ev, ok := <-o.events:
			if !ok {
				return
			}
			o.handle(ev)
		}
	}
}

func (o *Observer) handle(ev page.Event) {
	switch ev.Kind {
	case page.EventScroll, page.EventResize:
		// Viewport updates immediately; element re-extraction and the
		// history insertion wait for the settle window. Each new event
		// fully replaces the pending timer, so at most one callback is
		// ever scheduled.
		o.mu.Lock()
		o.snap.Viewport = ev.Viewport
		if o.debounce != nil {
			o.debounce.Stop()
		}
		o.debounce = o.cfg.Clock.AfterFunc(o.cfg.Debounce, o.refresh)
		o.mu.Unlock()

	case page.EventClick:
		doc, err := o.cfg.Page.Document()
		if err != nil {
			o.cfg.Logger.Warn("observe: document for click", "error", err)
			return
		}
		o.mu.Lock()
		o.rec.record(o.snap, doc, ev, o.cfg.Clock.Now().UnixMilli())
		o.mu.Unlock()
	}
}

// refresh re-extracts elements, replaces the element slice in place, and
// records a history entry.
func (o *Observer) refresh() {
	vp, err := o.cfg.Page.Viewport()
	if err != nil {
		o.cfg.Logger.Warn("observe: refresh viewport", "error", err)
		return
	}
	doc, err := o.cfg.Page.Document()
	if err != nil {
		o.cfg.Logger.Warn("observe: refresh document", "error", err)
		return
	}

	elements := o.extractor.Extract(doc, vp)

	o.mu.Lock()
	o.snap.Viewport = vp
	o.snap.Timestamp = o.cfg.Clock.Now().UnixMilli()
	o.snap.Elements = elements
	o.debounce = nil
	snap := o.snap
	o.mu.Unlock()

	o.history.Add(snap)
	o.cfg.Logger.Debug("observe: snapshot refreshed",
		"elements", len(elements), "scroll_y", vp.ScrollY)

	if o.cfg.OnRefresh != nil {
		o.cfg.OnRefresh(snap)
	}
}
