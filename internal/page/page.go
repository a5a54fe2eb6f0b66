// Package page abstracts the live page a pagelens engine observes. The
// production backend drives a real browser tab; the in-memory backend
// backs tests and embedded use. Both deliver the same event stream:
// scroll, resize, click, and per-element size changes.
package page

import (
	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/dom"
)

// Kind discriminates page events.
type Kind string

const (
	EventScroll        Kind = "scroll"
	EventResize        Kind = "resize"
	EventClick         Kind = "click"
	EventElementResize Kind = "element-resize"
)

// Event is one occurrence on the page. Click events reference their target
// by child-index path so no tree pointers cross the channel; the consumer
// resolves the path against the current document, and a failed resolution
// is a normal stale-handle branch.
type Event struct {
	Kind     Kind
	Viewport capture.Viewport

	// Click fields.
	Path []int
	X, Y float64

	// ElementResize field.
	Selector string
}

// Page is a live document context.
type Page interface {
	// URL returns the page address.
	URL() string
	// Document returns the current parsed tree with geometry attached.
	// Handles taken from a previous call may be stale.
	Document() (*dom.Document, error)
	// Viewport returns current window geometry and scroll offsets.
	Viewport() (capture.Viewport, error)
	// Subscribe registers an event consumer. The cancel func releases it.
	// Slow consumers lose events rather than block the page.
	Subscribe() (<-chan Event, func())
	// Close releases the page.
	Close() error
}
