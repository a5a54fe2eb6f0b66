package page

import (
	"fmt"
	"sync"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/dom"
)

// subBuffer is each subscriber's channel capacity. Sends never block:
// events beyond the buffer are dropped, mirroring how a browser drops
// frames for a stalled listener.
const subBuffer = 64

// Memory is an in-process Page over a parsed HTML string with flow-layout
// geometry. Tests and embedded callers drive it directly: Scroll, Resize,
// Click and SetHTML emit the same events a live tab would.
type Memory struct {
	url string

	mu      sync.Mutex
	doc     *dom.Document
	vp      capture.Viewport
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// NewMemory parses markup and lays it out in the given viewport.
func NewMemory(url, markup string, vp capture.Viewport) (*Memory, error) {
	doc, err := dom.ParseString(markup)
	if err != nil {
		return nil, fmt.Errorf("page: parse: %w", err)
	}
	doc.Layout(vp)
	return &Memory{
		url:  url,
		doc:  doc,
		vp:   vp,
		subs: make(map[int]chan Event),
	}, nil
}

func (m *Memory) URL() string { return m.url }

func (m *Memory) Document() (*dom.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("page: closed")
	}
	return m.doc, nil
}

func (m *Memory) Viewport() (capture.Viewport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vp, nil
}

func (m *Memory) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	ch := make(chan Event, subBuffer)
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	return nil
}

// SetHTML replaces the document, reflowing geometry. Previously handed-out
// element handles become stale, as after a live DOM mutation.
func (m *Memory) SetHTML(markup string) error {
	doc, err := dom.ParseString(markup)
	if err != nil {
		return fmt.Errorf("page: parse: %w", err)
	}

	m.mu.Lock()
	doc.Layout(m.vp)
	m.doc = doc
	m.mu.Unlock()
	return nil
}

// Scroll moves the scroll offset and emits a scroll event.
func (m *Memory) Scroll(x, y float64) {
	m.mu.Lock()
	m.vp.ScrollX, m.vp.ScrollY = x, y
	vp := m.vp
	m.mu.Unlock()
	m.publish(Event{Kind: EventScroll, Viewport: vp})
}

// Resize changes the viewport size, reflows, and emits a resize event.
func (m *Memory) Resize(w, h float64) {
	m.mu.Lock()
	m.vp.Width, m.vp.Height = w, h
	m.doc.Layout(m.vp)
	vp := m.vp
	m.mu.Unlock()
	m.publish(Event{Kind: EventResize, Viewport: vp})
}

// Click emits a click on el at viewport coordinates (x, y).
func (m *Memory) Click(el *dom.Element, x, y float64) {
	path, ok := el.Path()
	if !ok {
		return
	}
	m.mu.Lock()
	vp := m.vp
	m.mu.Unlock()
	m.publish(Event{Kind: EventClick, Viewport: vp, Path: path, X: x, Y: y})
}

// PinBox overrides one element's geometry without emitting an event,
// letting tests place elements precisely.
func (m *Memory) PinBox(selector string, box capture.BoundingBox) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.doc.QueryOne(selector)
	if !ok {
		return false
	}
	m.doc.SetBox(el, box)
	return true
}

// ResizeElement overrides one element's geometry and emits the
// element-resize event a per-entry observer would deliver.
func (m *Memory) ResizeElement(selector string, box capture.BoundingBox) bool {
	if !m.PinBox(selector, box) {
		return false
	}
	m.mu.Lock()
	vp := m.vp
	m.mu.Unlock()
	m.publish(Event{Kind: EventElementResize, Viewport: vp, Selector: selector})
	return true
}

func (m *Memory) publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
