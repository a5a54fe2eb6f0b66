// Package capture defines the structured types emitted by pagelens.
// These are the public API contract: any consumer (decision providers,
// sinks, custom pipelines) imports this package to receive and process
// page observations and to hand back highlight instructions.
package capture

import "time"

// ElementType classifies an observed element.
type ElementType string

const (
	ElementHeading ElementType = "heading"
	ElementText    ElementType = "text"
	ElementButton  ElementType = "button"
	ElementLink    ElementType = "link"
)

// Visibility is an element's relation to the viewport at extraction time.
type Visibility string

const (
	InViewport       Visibility = "in-viewport"
	PartiallyVisible Visibility = "partially-visible"
	Offscreen        Visibility = "offscreen"
)

// BoundingBox is a document-relative (scroll-inclusive) rectangle.
// Width and Height are never negative.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bottom returns the document-relative bottom edge.
func (b BoundingBox) Bottom() float64 { return b.Y + b.Height }

// Right returns the document-relative right edge.
func (b BoundingBox) Right() float64 { return b.X + b.Width }

// Viewport is the visible window geometry plus the page scroll offset.
type Viewport struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollX float64 `json:"scroll_x"`
	ScrollY float64 `json:"scroll_y"`
}

// ObservedElement is one element captured by the extractor. ID is unique
// only within one snapshot's lifetime: it is a monotonic counter reset on
// every re-extraction. Selector is a best-effort locator, reproducible for
// a fixed DOM but not guaranteed unique or stable across structural
// changes.
type ObservedElement struct {
	ID         int         `json:"id"`
	Type       ElementType `json:"type"`
	Tag        string      `json:"tag"`
	Text       string      `json:"text"` // trimmed, capped at MaxElementText
	Selector   string      `json:"selector"`
	Box        BoundingBox `json:"bounding_box"`
	Visibility Visibility  `json:"visibility"`
	IsVisible  bool        `json:"is_visible"`
}

// Interaction is one recorded user interaction, ordered by occurrence.
// ElementID is the selector of the click target, not an ObservedElement.ID.
type Interaction struct {
	Type        string  `json:"type"` // "click"
	ElementID   string  `json:"element_id"`
	ElementText string  `json:"element_text"` // capped at MaxInteractionText
	Timestamp   int64   `json:"timestamp"`    // epoch milliseconds
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// Snapshot is the single structured capture of a page's visible content,
// viewport, and interaction log. Exactly one live Snapshot exists per page
// context; the observer mutates it in place, so holders of a reference see
// updates unless they copy.
type Snapshot struct {
	URL          string            `json:"url"`
	Timestamp    int64             `json:"timestamp"` // epoch milliseconds
	Viewport     Viewport          `json:"viewport"`
	Elements     []ObservedElement `json:"elements"`
	Interactions []Interaction     `json:"interactions"`
}

// Clone returns a shallow copy: the struct is copied, the Elements and
// Interactions slices still alias the receiver's backing arrays. This is
// the session-scoped tradeoff the history ring accepts; it is not an
// immutable audit log.
func (s *Snapshot) Clone() Snapshot {
	return *s
}

// HighlightStyle selects a highlight's visual treatment.
type HighlightStyle string

const (
	StyleOutline HighlightStyle = "outline"
	StyleGlow    HighlightStyle = "glow"
)

// HighlightPriority orders highlights by importance.
type HighlightPriority string

const (
	PriorityLow    HighlightPriority = "low"
	PriorityNormal HighlightPriority = "normal"
	PriorityHigh   HighlightPriority = "high"
)

// HighlightInstruction is an externally supplied directive naming a
// selector and a visual treatment to apply. The core never fabricates
// selectors not present in the current document; providers may, and the
// render engine treats resolution failure as a normal skip.
type HighlightInstruction struct {
	Selector string            `json:"selector"`
	Style    HighlightStyle    `json:"style,omitempty"`    // default outline
	Reason   string            `json:"reason,omitempty"`   // tooltip text
	Priority HighlightPriority `json:"priority,omitempty"` // default normal
}

// Normalize fills defaulted fields in place.
func (h *HighlightInstruction) Normalize() {
	if h.Style == "" {
		h.Style = StyleOutline
	}
	if h.Priority == "" {
		h.Priority = PriorityNormal
	}
}

// DecisionSource records which path produced a DecisionResult.
type DecisionSource string

const (
	SourceProvider DecisionSource = "provider"
	SourceFallback DecisionSource = "fallback"
	SourceTimeout  DecisionSource = "timeout"
)

// DecisionResult is the outcome of one decision round-trip. On provider
// failure or timeout it is still well-formed: empty instructions plus a
// diagnostic reason, never an exception surfaced to core callers.
type DecisionResult struct {
	Instructions []HighlightInstruction `json:"instructions"`
	Source       DecisionSource         `json:"source"`
	Reason       string                 `json:"reason,omitempty"`
	Timestamp    int64                  `json:"timestamp"` // epoch milliseconds
}

// Caps and windows shared across the pipeline.
const (
	// MaxElementText caps ObservedElement.Text.
	MaxElementText = 500
	// MaxInteractionText caps Interaction.ElementText.
	MaxInteractionText = 100
	// MaxNoiseText is the threshold above which raw node text is treated
	// as noise and the node is skipped entirely.
	MaxNoiseText = 5000
	// DefaultInteractionCap bounds the snapshot interaction FIFO.
	DefaultInteractionCap = 100
	// DefaultHistoryCap bounds the snapshot history ring.
	DefaultHistoryCap = 50
)

// Now returns the epoch-millisecond timestamp used throughout the wire
// types.
func Now() int64 { return time.Now().UnixMilli() }
