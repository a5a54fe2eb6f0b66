// Package pagelens observes a live page and keeps visual highlight
// annotations synchronised with it: structured snapshots of the page's
// significant elements, an interaction log, a rate-bounded decision
// round-trip to an external highlight provider, and an animated overlay
// that tracks its targets through scroll and resize.
//
// pagelens observes and annotates, it does not interpret. What deserves
// highlighting comes from a provider (or a deterministic local fallback);
// snapshots and decisions are emitted to sinks for downstream consumers.
package pagelens

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/bridge"
	"github.com/hazyhaar/pagelens/internal/browser"
	"github.com/hazyhaar/pagelens/internal/clock"
	"github.com/hazyhaar/pagelens/internal/config"
	"github.com/hazyhaar/pagelens/internal/decide"
	"github.com/hazyhaar/pagelens/internal/observe"
	"github.com/hazyhaar/pagelens/internal/overlay"
	"github.com/hazyhaar/pagelens/internal/page"
	"github.com/hazyhaar/pagelens/internal/sink"
)

// Options assembles an Engine. Config is required; everything else has a
// production default. Page and Surface are injectable so embedded hosts
// (and tests) can run the whole pipeline against the in-memory backend.
type Options struct {
	Config *config.Config

	// Page overrides the browser attachment. When nil, Start launches or
	// connects Chrome per Config.Browser and opens Config.Page.URL.
	Page page.Page

	// Surface overrides the overlay rendering container. Required when
	// Page is set; ignored otherwise.
	Surface overlay.Surface

	// Provider overrides Config.Decide.ProviderURL. When both are empty
	// the engine runs fallback-only.
	Provider decide.Provider

	Clock  clock.Clock
	Logger *slog.Logger

	// Sinks are delivered to in addition to those built from Config.Sinks.
	Sinks []sink.Sink
}

// Engine is the top-level orchestrator: browser, observer, decision
// coordinator, overlay, and sinks. Create one per observed page.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	clk    clock.Clock

	mgr     *browser.Manager
	pg      page.Page
	surface overlay.Surface

	obs      *observe.Observer
	coord    *decide.Coordinator
	renderer *overlay.Engine
	hmgr     *overlay.Manager
	ctrl     *overlay.Controller
	sinkR    *sink.Router

	near     *bridge.Bridge
	far      *bridge.Bridge
	provider decide.Provider
	db       *sql.DB

	mu      sync.Mutex
	started bool
	stopped bool
}

// New validates options and builds the engine. Nothing runs until Start.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("pagelens: config is required")
	}
	opts.Config.ApplyDefaults()
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Page != nil && opts.Surface == nil {
		return nil, fmt.Errorf("pagelens: injected page requires a surface")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}

	e := &Engine{
		cfg:      opts.Config,
		logger:   opts.Logger,
		clk:      opts.Clock,
		pg:       opts.Page,
		surface:  opts.Surface,
		provider: opts.Provider,
	}

	sinks := append([]sink.Sink(nil), opts.Sinks...)
	built, db, err := BuildSinks(opts.Config.Sinks, opts.Logger)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, built...)
	e.sinkR = sink.NewRouter(opts.Logger, sinks...)
	e.db = db

	if e.provider == nil && opts.Config.Decide.ProviderURL != "" {
		p, err := decide.NewHTTPProvider(opts.Config.Decide.ProviderURL, nil)
		if err != nil {
			return nil, err
		}
		e.provider = p
	}

	return e, nil
}

// Start attaches to the page and brings the pipeline up: overlay mounted
// in highlights-only, initial snapshot captured and emitted, first
// decision requested. Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		e.logger.Debug("pagelens: start called on a running engine")
		return nil
	}
	e.started = true

	if e.pg == nil {
		e.mgr = browser.NewManager(browser.Config{
			Remote:   e.cfg.Browser.Remote,
			Headless: e.cfg.Browser.Headless,
			Logger:   e.logger,
		})
		if _, err := e.mgr.Start(); err != nil {
			return err
		}
		live, err := browser.OpenPage(ctx, e.mgr, browser.PageConfig{
			URL:     e.cfg.Page.URL,
			Stealth: e.cfg.Browser.Stealth,
			Timeout: e.cfg.Browser.Timeout,
			Logger:  e.logger,
		})
		if err != nil {
			e.mgr.Close()
			return err
		}
		e.pg = live
		e.surface = browser.NewSurface(live)
	}

	e.renderer = overlay.NewEngine(e.pg, e.surface, e.clk, e.logger)
	e.hmgr = overlay.NewManager(e.renderer, e.logger)
	e.ctrl = overlay.NewController(e.surface, e.logger)

	if e.provider != nil {
		e.startBridge()
	}

	obs, err := observe.New(observe.Config{
		Page:           e.pg,
		Debounce:       e.cfg.Observe.Debounce,
		InteractionCap: e.cfg.Observe.InteractionCap,
		HistoryCap:     e.cfg.Observe.HistoryCap,
		Clock:          e.clk,
		Logger:         e.logger,
		OnRefresh:      e.onRefresh,
	})
	if err != nil {
		return err
	}
	e.obs = obs

	if err := e.ctrl.Mount(); err != nil {
		return fmt.Errorf("pagelens: mount overlay: %w", err)
	}

	obs.Start()

	snap := obs.Snapshot()
	if err := e.sinkR.SendSnapshot(ctx, snap); err != nil {
		e.logger.Warn("pagelens: initial snapshot emit", "error", err)
	}
	e.hmgr.Update(snap)
	if e.coord != nil {
		e.coord.RequestDecision(snap)
	}

	e.logger.Info("pagelens: started",
		"url", snap.URL, "elements", len(snap.Elements), "provider", e.provider != nil)
	return nil
}

// startBridge wires the decision round-trip: the observation side talks
// to the provider side over a correlated message pair, so a hung or slow
// provider degrades into a timeout result instead of blocking anything.
func (e *Engine) startBridge() {
	origin := uuid.NewString()
	nearCh, farCh := bridge.Loopback(0)

	e.near = bridge.New(bridge.Config{
		Channel: nearCh,
		Origin:  origin,
		Timeout: e.cfg.Decide.BridgeTimeout,
		Clock:   e.clk,
		Logger:  e.logger,
	})
	e.far = bridge.New(bridge.Config{
		Channel: farCh,
		Origin:  origin,
		Timeout: e.cfg.Decide.BridgeTimeout,
		Clock:   e.clk,
		Logger:  e.logger,
	})
	decide.HandleProvider(e.far, e.provider, e.logger)
	e.near.Start()
	e.far.Start()

	intent := e.cfg.Page.Intent
	build := func(snap *capture.Snapshot) decide.Request {
		markup := ""
		if doc, err := e.pg.Document(); err == nil {
			markup = doc.HTML()
		}
		return decide.BuildRequest(snap, intent, markup)
	}

	e.coord = decide.New(decide.Config{
		Transport: decide.Bridged(e.near, build),
		Debounce:  e.cfg.Decide.Debounce,
		Throttle:  e.cfg.Decide.Throttle,
		Clock:     e.clk,
		Logger:    e.logger,
		OnSend:    func() { e.renderer.SetStatus(overlay.StatusLoading) },
		OnResult:  e.onDecision,
		OnError:   e.onDecisionError,
	})
}

// onRefresh runs after every debounced or manual re-extraction.
func (e *Engine) onRefresh(snap *capture.Snapshot) {
	if err := e.sinkR.SendSnapshot(context.Background(), snap); err != nil {
		e.logger.Warn("pagelens: snapshot emit", "error", err)
	}
	if e.coord != nil {
		e.coord.RequestDecision(snap)
		return
	}
	e.hmgr.Update(snap)
}

// onDecision applies a provider result. An empty instruction set (timeout
// or a provider that chose nothing) falls back to the local rule, so the
// overlay never goes silent while the page still has content.
func (e *Engine) onDecision(dec capture.DecisionResult) {
	e.renderer.SetStatus(overlay.StatusIdle)
	if err := e.sinkR.SendDecision(context.Background(), dec); err != nil {
		e.logger.Warn("pagelens: decision emit", "error", err)
	}
	if len(dec.Instructions) > 0 {
		e.hmgr.ApplyGuide(dec.Instructions)
		return
	}
	e.hmgr.Update(e.obs.Snapshot())
}

func (e *Engine) onDecisionError(err error) {
	e.renderer.SetStatus(overlay.StatusError)
	e.logger.Warn("pagelens: decision transport", "error", err)
}

// Snapshot returns the live snapshot, mutated in place by the observer.
func (e *Engine) Snapshot() *capture.Snapshot { return e.obs.Snapshot() }

// History returns past captures, oldest first.
func (e *Engine) History() []capture.Snapshot { return e.obs.History().All() }

// Refresh forces an immediate re-extraction.
func (e *Engine) Refresh() { e.obs.Refresh() }

// LastDecision returns the most recent provider result, nil before the
// first round-trip completes.
func (e *Engine) LastDecision() *capture.DecisionResult {
	if e.coord == nil {
		return nil
	}
	return e.coord.LastResult()
}

// Highlights returns the selectors currently highlighted.
func (e *Engine) Highlights() []string { return e.hmgr.Selectors() }

// ApplyGuide replaces the highlight set wholesale, the host's direct path
// around the provider round-trip.
func (e *Engine) ApplyGuide(instructions []capture.HighlightInstruction) {
	e.hmgr.ApplyGuide(instructions)
}

// Toggle advances the overlay one state around its cycle.
func (e *Engine) Toggle() overlay.Mode { return e.ctrl.Toggle() }

// Mode returns the overlay's current state.
func (e *Engine) Mode() overlay.Mode { return e.ctrl.Mode() }

// Stop tears the pipeline down in dependency order: no new decisions,
// then no new snapshots, then the overlay, then the transport and sinks.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.stopped {
		return
	}
	e.stopped = true

	if e.coord != nil {
		e.coord.Close()
	}
	if e.obs != nil {
		e.obs.Close()
	}
	if e.renderer != nil {
		e.renderer.Close()
	}
	if e.ctrl != nil {
		if err := e.ctrl.Unmount(); err != nil {
			e.logger.Warn("pagelens: unmount overlay", "error", err)
		}
	}
	if e.near != nil {
		e.near.Close()
		e.far.Close()
	}
	e.sinkR.Close()
	if e.db != nil {
		e.db.Close()
	}
	if e.pg != nil {
		e.pg.Close()
	}
	if e.mgr != nil {
		e.mgr.Close()
	}
	e.logger.Info("pagelens: stopped")
}
