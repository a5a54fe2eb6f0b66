package overlay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/clock"
	"github.com/hazyhaar/pagelens/internal/dom"
	"github.com/hazyhaar/pagelens/internal/page"
)

const (
	// PadPx is the outward padding between a target's rect and its
	// highlight box.
	PadPx = 6
	// FadeDuration is how long a cleared entry stays for its fade-out
	// before nodes are detached.
	FadeDuration = 300 * time.Millisecond
	// frameInterval coalesces scroll-driven repositioning, the
	// animation-frame analogue.
	frameInterval = 16 * time.Millisecond
	// entryDelay defers visual entry one tick after node insertion so a
	// transition can observe the state change.
	entryDelay = 16 * time.Millisecond

	tooltipHeight = 28.0
	tooltipGap    = 8.0
	tooltipMinW   = 120.0
	tooltipMaxW   = 320.0
)

// entry is one rendered highlight, keyed by selector in the active map.
// The target is a live reference resolved at render time and re-resolved
// on every reposition, since the document may have moved under it.
type entry struct {
	instruction capture.HighlightInstruction
	target      *dom.Element
	visible     bool
	clearTimer  clock.Timer
}

// Engine owns the active-highlight map exclusively; the manager and
// external callers go through Render/Clear/ClearAll, never direct access.
type Engine struct {
	pg      page.Page
	surface Surface
	clk     clock.Clock
	logger  *slog.Logger

	mu             sync.Mutex
	entries        map[string]*entry
	frameScheduled bool
	started        bool

	events <-chan page.Event
	unsub  func()
	done   chan struct{}
	once   sync.Once
}

// NewEngine creates a render engine. Nothing is mounted or subscribed
// until the first Render call: the public surface is forgiving, it
// self-initialises lazily instead of failing when used early.
func NewEngine(pg page.Page, surface Surface, clk clock.Clock, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		pg:      pg,
		surface: surface,
		clk:     clk,
		logger:  logger,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
}

// Render resolves the instruction's selector and draws or updates its
// highlight. An unresolved selector is logged and skipped: downstream
// instruction sets may reference since-removed elements. A repeat call
// for an already-tracked selector updates the stored instruction in place
// (a changed reason refreshes the tooltip) without rebuilding nodes or
// restarting the entry animation, and cancels any pending clear.
func (e *Engine) Render(instr capture.HighlightInstruction) {
	instr.Normalize()
	e.lazyInit()

	doc, err := e.pg.Document()
	if err != nil {
		e.logger.Warn("overlay: document unavailable", "error", err)
		return
	}
	target, ok := doc.QueryOne(instr.Selector)
	if !ok {
		e.logger.Debug("overlay: selector did not resolve", "selector", instr.Selector)
		return
	}

	e.mu.Lock()
	ent, exists := e.entries[instr.Selector]
	if exists {
		ent.instruction = instr
		ent.target = target
		if ent.clearTimer != nil {
			// Re-render during a pending clear cancels the teardown.
			ent.clearTimer.Stop()
			ent.clearTimer = nil
			ent.visible = true
		}
		e.mu.Unlock()
		e.position(instr.Selector, ent)
		return
	}

	ent = &entry{instruction: instr, target: target}
	e.entries[instr.Selector] = ent
	e.mu.Unlock()

	// Nodes attach hidden; visual entry happens one tick later so the
	// surface transition fires.
	e.position(instr.Selector, ent)
	e.clk.AfterFunc(entryDelay, func() {
		e.mu.Lock()
		cur := e.entries[instr.Selector]
		if cur != ent || ent.clearTimer != nil {
			e.mu.Unlock()
			return
		}
		ent.visible = true
		e.mu.Unlock()
		e.position(instr.Selector, ent)
	})
}

// Clear starts an entry's fade-out and schedules its removal after the
// animation. The delayed removal re-checks that the entry it captured is
// still the active one: a follow-up Render for the same selector must win.
func (e *Engine) Clear(selector string) {
	e.mu.Lock()
	ent, ok := e.entries[selector]
	if !ok {
		e.mu.Unlock()
		return
	}
	ent.visible = false
	if ent.clearTimer != nil {
		ent.clearTimer.Stop()
	}
	ent.clearTimer = e.clk.AfterFunc(FadeDuration, func() {
		e.mu.Lock()
		cur := e.entries[selector]
		if cur != ent || ent.clearTimer == nil {
			e.mu.Unlock()
			return
		}
		delete(e.entries, selector)
		e.mu.Unlock()
		e.surface.Remove(highlightID(selector))
		e.surface.Remove(tooltipID(selector))
	})
	e.mu.Unlock()

	e.position(selector, ent)
}

// ClearAll fades out and removes every active entry.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	selectors := make([]string, 0, len(e.entries))
	for sel := range e.entries {
		selectors = append(selectors, sel)
	}
	e.mu.Unlock()
	for _, sel := range selectors {
		e.Clear(sel)
	}
}

// Active returns the selectors currently tracked, including entries mid
// fade-out.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.entries))
	for sel := range e.entries {
		out = append(out, sel)
	}
	return out
}

// SetStatus forwards the decision round-trip state to the surface.
func (e *Engine) SetStatus(s Status) {
	if err := e.surface.SetStatus(s); err != nil {
		e.logger.Warn("overlay: set status", "error", err)
	}
}

// Close stops position tracking and releases the page subscription.
// Attached nodes are left for the surface's Unmount to sweep.
func (e *Engine) Close() {
	e.once.Do(func() {
		close(e.done)
		e.mu.Lock()
		if e.unsub != nil {
			e.unsub()
		}
		for _, ent := range e.entries {
			if ent.clearTimer != nil {
				ent.clearTimer.Stop()
			}
		}
		e.entries = make(map[string]*entry)
		e.mu.Unlock()
	})
}

// lazyInit mounts the surface and starts the tracking loop on first use.
func (e *Engine) lazyInit() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.events, e.unsub = e.pg.Subscribe()
	e.mu.Unlock()

	if !e.surface.Mounted() {
		if err := e.surface.Mount(); err != nil {
			e.logger.Warn("overlay: mount surface", "error", err)
		}
	}
	go e.loop()
}

// loop keeps every visible entry aligned to its target: capture-phase
// scroll (frame-coalesced), window resize, and per-element size changes.
func (e *Engine) loop() {
	for {
		select {
		case <-e.done:
			return
		case ev, ok := <-e.events:
			if !ok {
				return
			}
			switch ev.Kind {
			case page.EventScroll:
				e.scheduleFrame()
			case page.EventResize:
				e.repositionAll()
			case page.EventElementResize:
				e.mu.Lock()
				ent, ok := e.entries[ev.Selector]
				e.mu.Unlock()
				if ok {
					e.position(ev.Selector, ent)
				}
			}
		}
	}
}

// scheduleFrame coalesces bursts of scroll events into one reposition
// pass per frame, avoiding redundant layout reads.
func (e *Engine) scheduleFrame() {
	e.mu.Lock()
	if e.frameScheduled {
		e.mu.Unlock()
		return
	}
	e.frameScheduled = true
	e.mu.Unlock()

	e.clk.AfterFunc(frameInterval, func() {
		e.mu.Lock()
		e.frameScheduled = false
		e.mu.Unlock()
		e.repositionAll()
	})
}

func (e *Engine) repositionAll() {
	e.mu.Lock()
	type pair struct {
		sel string
		ent *entry
	}
	all := make([]pair, 0, len(e.entries))
	for sel, ent := range e.entries {
		all = append(all, pair{sel, ent})
	}
	e.mu.Unlock()

	for _, p := range all {
		e.position(p.sel, p.ent)
	}
}

// position re-resolves the entry's target against the current document
// and applies highlight and tooltip geometry. Resolution failure leaves
// the previous geometry in place; that is the stale-handle case, not an error.
func (e *Engine) position(selector string, ent *entry) {
	doc, err := e.pg.Document()
	if err != nil {
		return
	}
	vp, err := e.pg.Viewport()
	if err != nil {
		return
	}

	target, ok := doc.QueryOne(selector)
	if !ok {
		e.logger.Debug("overlay: target gone", "selector", selector)
		return
	}

	e.mu.Lock()
	if e.entries[selector] != ent {
		e.mu.Unlock()
		return
	}
	ent.target = target
	instr := ent.instruction
	visible := ent.visible
	e.mu.Unlock()

	box := target.Box()
	padded := capture.BoundingBox{
		X:      box.X - PadPx,
		Y:      box.Y - PadPx,
		Width:  box.Width + 2*PadPx,
		Height: box.Height + 2*PadPx,
	}

	e.apply(Node{
		ID:       highlightID(selector),
		Kind:     NodeHighlight,
		Box:      padded,
		Style:    instr.Style,
		Priority: instr.Priority,
		Visible:  visible,
	})
	e.apply(Node{
		ID:       tooltipID(selector),
		Kind:     NodeTooltip,
		Box:      tooltipBox(padded, vp, instr.Reason),
		Text:     instr.Reason,
		Style:    instr.Style,
		Priority: instr.Priority,
		Visible:  visible && instr.Reason != "",
	})
}

// tooltipBox places the tooltip above the highlight unless there is not
// enough room above the viewport top, then below; the horizontal position
// is clamped so it never leaves the viewport to the left.
func tooltipBox(padded capture.BoundingBox, vp capture.Viewport, reason string) capture.BoundingBox {
	width := tooltipMinW + float64(len(reason))*6
	if width > tooltipMaxW {
		width = tooltipMaxW
	}

	y := padded.Y - tooltipHeight - tooltipGap
	if y < vp.ScrollY {
		y = padded.Bottom() + tooltipGap
	}

	x := padded.X
	if x < vp.ScrollX {
		x = vp.ScrollX
	}

	return capture.BoundingBox{X: x, Y: y, Width: width, Height: tooltipHeight}
}

func (e *Engine) apply(n Node) {
	if err := e.surface.Apply(n); err != nil {
		e.logger.Warn("overlay: apply node", "id", n.ID, "error", err)
	}
}

func highlightID(selector string) string { return "hl:" + selector }
func tooltipID(selector string) string   { return "tt:" + selector }
