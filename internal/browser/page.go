package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/dom"
	"github.com/hazyhaar/pagelens/internal/page"
)

//go:embed events.js
var eventsJS string

const eventsBinding = "__pagelens_events"

// subBuffer is each subscriber's channel capacity; sends never block.
const subBuffer = 64

// harvestJS serialises the live DOM together with a geometry array in
// document order, one rect per element. The Go side re-parses the HTML
// and zips the rects back onto the tree in the same traversal order.
const harvestJS = `() => {
	const els = document.querySelectorAll('*');
	const rects = new Array(els.length);
	for (let i = 0; i < els.length; i++) {
		const r = els[i].getBoundingClientRect();
		rects[i] = [r.x + window.scrollX, r.y + window.scrollY, r.width, r.height];
	}
	return { html: document.documentElement.outerHTML, rects: rects };
}`

const viewportJS = `() => ({
	width: window.innerWidth,
	height: window.innerHeight,
	scroll_x: window.scrollX,
	scroll_y: window.scrollY,
})`

// PageConfig configures a live page attachment.
type PageConfig struct {
	URL     string
	Stealth bool
	Timeout time.Duration
	Logger  *slog.Logger
}

// Live is a page.Page over a Rod tab. Viewport activity arrives through
// an injected binding and fans out to subscribers the same way the
// in-memory page does.
type Live struct {
	url    string
	pg     *rod.Page
	logger *slog.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	subs    map[int]chan page.Event
	nextSub int
	closed  bool
}

// OpenPage creates a tab, navigates, installs the event binding, and
// injects the reporting script.
func OpenPage(ctx context.Context, mgr *Manager, cfg PageConfig) (*Live, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var pg *rod.Page
	var err error
	if cfg.Stealth {
		pg, err = stealth.Page(b)
	} else {
		pg, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(ctx, cfg.Timeout)
	defer cancelNav()

	if err := pg.Context(navCtx).Navigate(cfg.URL); err != nil {
		pg.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", cfg.URL, err)
	}
	if err := pg.Context(navCtx).WaitLoad(); err != nil {
		cfg.Logger.Warn("browser: wait load timeout", "url", cfg.URL, "error", err)
	}

	evCtx, cancel := context.WithCancel(ctx)
	l := &Live{
		url:    cfg.URL,
		pg:     pg,
		logger: cfg.Logger,
		cancel: cancel,
		subs:   make(map[int]chan page.Event),
	}

	if err := (proto.RuntimeAddBinding{Name: eventsBinding}).Call(pg); err != nil {
		l.logger.Warn("browser: add binding failed (may already exist)", "error", err)
	}
	go l.listenBinding(evCtx)

	if _, err := pg.Eval(eventsJS); err != nil {
		cancel()
		pg.Close()
		return nil, fmt.Errorf("browser: inject events script: %w", err)
	}

	return l, nil
}

func (l *Live) URL() string { return l.url }

// Document harvests the live DOM with per-element geometry. Each call
// returns a fresh tree; element handles never survive across calls.
func (l *Live) Document() (*dom.Document, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, fmt.Errorf("browser: page closed")
	}
	l.mu.Unlock()

	res, err := l.pg.Eval(harvestJS)
	if err != nil {
		return nil, fmt.Errorf("browser: harvest dom: %w", err)
	}

	var harvest struct {
		HTML  string       `json:"html"`
		Rects [][4]float64 `json:"rects"`
	}
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &harvest); err != nil {
		return nil, fmt.Errorf("browser: parse harvest: %w", err)
	}

	doc, err := dom.ParseString(harvest.HTML)
	if err != nil {
		return nil, fmt.Errorf("browser: parse dom: %w", err)
	}
	l.zipBoxes(doc, harvest.Rects)
	return doc, nil
}

// zipBoxes walks the parsed tree in document order and assigns the
// harvested rects index-for-index. The parser may synthesise elements
// the live DOM did not have (tbody insertion); a count mismatch stops
// assignment at the shorter side rather than misattribute geometry.
func (l *Live) zipBoxes(doc *dom.Document, rects [][4]float64) {
	i := 0
	var walk func(el *dom.Element)
	walk = func(el *dom.Element) {
		if i >= len(rects) {
			return
		}
		r := rects[i]
		i++
		doc.SetBox(el, capture.BoundingBox{X: r[0], Y: r[1], Width: r[2], Height: r[3]})
		for _, c := range el.Children() {
			walk(c)
		}
	}
	if body := doc.Body(); body != nil {
		if htmlEl := body.Parent(); htmlEl != nil {
			walk(htmlEl)
			return
		}
		walk(body)
	}
}

func (l *Live) Viewport() (capture.Viewport, error) {
	res, err := l.pg.Eval(viewportJS)
	if err != nil {
		return capture.Viewport{}, fmt.Errorf("browser: viewport: %w", err)
	}
	var vp struct {
		Width   float64 `json:"width"`
		Height  float64 `json:"height"`
		ScrollX float64 `json:"scroll_x"`
		ScrollY float64 `json:"scroll_y"`
	}
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &vp); err != nil {
		return capture.Viewport{}, fmt.Errorf("browser: parse viewport: %w", err)
	}
	return capture.Viewport{Width: vp.Width, Height: vp.Height, ScrollX: vp.ScrollX, ScrollY: vp.ScrollY}, nil
}

func (l *Live) Subscribe() (<-chan page.Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSub++
	id := l.nextSub
	ch := make(chan page.Event, subBuffer)
	l.subs[id] = ch
	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
}

func (l *Live) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
	l.mu.Unlock()

	l.cancel()
	return l.pg.Close()
}

// listenBinding receives viewport activity from the injected script via
// Runtime.bindingCalled and republishes it as page events.
func (l *Live) listenBinding(ctx context.Context) {
	l.pg.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != eventsBinding {
			return
		}

		var msg struct {
			Kind     string `json:"kind"`
			Viewport struct {
				Width   float64 `json:"width"`
				Height  float64 `json:"height"`
				ScrollX float64 `json:"scroll_x"`
				ScrollY float64 `json:"scroll_y"`
			} `json:"viewport"`
			Path     []int   `json:"path"`
			X        float64 `json:"x"`
			Y        float64 `json:"y"`
			Selector string  `json:"selector"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &msg); err != nil {
			l.logger.Warn("browser: parse binding payload", "error", err)
			return
		}

		ev := page.Event{
			Viewport: capture.Viewport{
				Width:   msg.Viewport.Width,
				Height:  msg.Viewport.Height,
				ScrollX: msg.Viewport.ScrollX,
				ScrollY: msg.Viewport.ScrollY,
			},
			Path:     msg.Path,
			X:        msg.X,
			Y:        msg.Y,
			Selector: msg.Selector,
		}
		switch msg.Kind {
		case "scroll":
			ev.Kind = page.EventScroll
		case "resize":
			ev.Kind = page.EventResize
		case "click":
			ev.Kind = page.EventClick
		case "element-resize":
			ev.Kind = page.EventElementResize
		default:
			return
		}
		l.publish(ev)
	})()
}

func (l *Live) publish(ev page.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
