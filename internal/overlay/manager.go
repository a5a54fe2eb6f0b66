package overlay

import (
	"log/slog"
	"sync"

	"github.com/hazyhaar/pagelens/capture"
)

// Manager is a pure coordinator over the render engine: it holds only the
// current selector set, no surface or document references, so the diff
// logic stays independent of rendering internals.
type Manager struct {
	engine *Engine
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewManager creates a Manager over an engine.
func NewManager(engine *Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		engine: engine,
		logger: logger,
		active: make(map[string]struct{}),
	}
}

// Update applies the local fallback policy to a snapshot: the first
// visible heading and the first visible button or link. Used whenever no
// external decision is available, so highlighting never goes fully silent.
func (m *Manager) Update(snap *capture.Snapshot) {
	m.apply(Fallback(snap))
}

// ApplyGuide is the authoritative path: the instruction set replaces the
// current selectors wholesale.
func (m *Manager) ApplyGuide(instructions []capture.HighlightInstruction) {
	m.apply(instructions)
}

// Clear tears down every active highlight.
func (m *Manager) Clear() {
	m.apply(nil)
}

// Selectors returns the manager's current selector set.
func (m *Manager) Selectors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for sel := range m.active {
		out = append(out, sel)
	}
	return out
}

// apply is the shared diff: clear every active selector absent from the
// new set, then render every instruction; existing entries update in
// place rather than re-create.
func (m *Manager) apply(instructions []capture.HighlightInstruction) {
	next := make(map[string]struct{}, len(instructions))
	for _, instr := range instructions {
		if instr.Selector != "" {
			next[instr.Selector] = struct{}{}
		}
	}

	m.mu.Lock()
	var stale []string
	for sel := range m.active {
		if _, keep := next[sel]; !keep {
			stale = append(stale, sel)
		}
	}
	m.active = next
	m.mu.Unlock()

	for _, sel := range stale {
		m.engine.Clear(sel)
	}
	for _, instr := range instructions {
		if instr.Selector == "" {
			continue
		}
		m.engine.Render(instr)
	}

	m.logger.Debug("overlay: highlight set applied",
		"rendered", len(next), "cleared", len(stale))
}

// Fallback is the deterministic local selection rule: the first heading
// that is in-viewport or partially visible gets an outline at normal
// priority, and the first button or link under the same visibility
// condition gets a glow at low priority. Zero, one, or two instructions.
func Fallback(snap *capture.Snapshot) []capture.HighlightInstruction {
	var out []capture.HighlightInstruction

	if el, ok := firstOnScreen(snap, capture.ElementHeading); ok {
		out = append(out, capture.HighlightInstruction{
			Selector: el.Selector,
			Style:    capture.StyleOutline,
			Priority: capture.PriorityNormal,
		})
	}
	if el, ok := firstOnScreen(snap, capture.ElementButton, capture.ElementLink); ok {
		out = append(out, capture.HighlightInstruction{
			Selector: el.Selector,
			Style:    capture.StyleGlow,
			Priority: capture.PriorityLow,
		})
	}
	return out
}

func firstOnScreen(snap *capture.Snapshot, types ...capture.ElementType) (capture.ObservedElement, bool) {
	for _, el := range snap.Elements {
		if el.Visibility != capture.InViewport && el.Visibility != capture.PartiallyVisible {
			continue
		}
		for _, t := range types {
			if el.Type == t {
				return el, true
			}
		}
	}
	return capture.ObservedElement{}, false
}
