package browser

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/overlay"
)

//go:embed overlay.js
var overlayJS string

// surfaceNode is the wire form of an overlay node for the injected
// container. Boxes stay document-relative; the container is itself
// positioned at the document origin.
type surfaceNode struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Box     boxJSON `json:"box"`
	Text    string  `json:"text"`
	Style   string  `json:"style"`
	Prio    string  `json:"priority"`
	Visible bool    `json:"visible"`
}

type boxJSON struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Surface drives the injected overlay container on a live page. Node ids
// arrive namespaced ("hl:<selector>", "tt:<selector>"); the container
// uses the highlight id's selector suffix to register element size
// tracking with the events script.
type Surface struct {
	live *Live

	mu      sync.Mutex
	mounted bool
}

// NewSurface creates a Surface over an open live page.
func NewSurface(live *Live) *Surface {
	return &Surface{live: live}
}

func (s *Surface) Mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		return nil
	}
	if _, err := s.live.pg.Eval(overlayJS); err != nil {
		return fmt.Errorf("browser: inject overlay script: %w", err)
	}
	if _, err := s.live.pg.Eval(`() => window.__pagelens_overlay.mount()`); err != nil {
		return fmt.Errorf("browser: mount overlay: %w", err)
	}
	s.mounted = true
	return nil
}

func (s *Surface) Unmount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return nil
	}
	s.mounted = false
	if _, err := s.live.pg.Eval(`() => window.__pagelens_overlay.unmount()`); err != nil {
		return fmt.Errorf("browser: unmount overlay: %w", err)
	}
	return nil
}

func (s *Surface) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func (s *Surface) Apply(n overlay.Node) error {
	wire := surfaceNode{
		ID:   n.ID,
		Kind: string(n.Kind),
		Box: boxJSON{
			X:      n.Box.X,
			Y:      n.Box.Y,
			Width:  n.Box.Width,
			Height: n.Box.Height,
		},
		Text:    n.Text,
		Style:   string(n.Style),
		Prio:    string(n.Priority),
		Visible: n.Visible,
	}
	if wire.Style == "" {
		wire.Style = string(capture.StyleOutline)
	}
	if wire.Prio == "" {
		wire.Prio = string(capture.PriorityNormal)
	}
	if _, err := s.live.pg.Eval(`(n) => window.__pagelens_overlay.apply(n)`, wire); err != nil {
		return fmt.Errorf("browser: apply node %s: %w", n.ID, err)
	}
	return nil
}

func (s *Surface) Remove(id string) error {
	if _, err := s.live.pg.Eval(`(id) => window.__pagelens_overlay.remove(id)`, id); err != nil {
		return fmt.Errorf("browser: remove node %s: %w", id, err)
	}
	return nil
}

func (s *Surface) SetHidden(hidden bool) error {
	if _, err := s.live.pg.Eval(`(h) => window.__pagelens_overlay.setHidden(h)`, hidden); err != nil {
		return fmt.Errorf("browser: set hidden: %w", err)
	}
	return nil
}

func (s *Surface) SetStatus(st overlay.Status) error {
	if _, err := s.live.pg.Eval(`(st) => window.__pagelens_overlay.setStatus(st)`, string(st)); err != nil {
		return fmt.Errorf("browser: set status: %w", err)
	}
	return nil
}

func (s *Surface) SuppressKeys(on bool) error {
	if _, err := s.live.pg.Eval(`(on) => window.__pagelens_overlay.suppressKeys(on)`, on); err != nil {
		return fmt.Errorf("browser: suppress keys: %w", err)
	}
	return nil
}
