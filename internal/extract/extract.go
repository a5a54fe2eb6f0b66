// Package extract walks a page document and produces the deduplicated
// element list that makes up a snapshot. Extraction runs in two passes: a
// structural pattern table first, then a bounded free-text walk for
// meaningful text the patterns missed.
package extract

import (
	"log/slog"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/dom"
)

// maxWalkDepth bounds the pass-2 tree walk against pathological trees.
const maxWalkDepth = 20

// pattern is one structural selector group, tried in order. The order is
// an emission convention, not a priority guarantee.
var patterns = []string{
	"h1, h2, h3, h4, h5, h6",
	"button, [role=button], input[type=button], input[type=submit]",
	"a[href], nav, [role=navigation]",
	"p, article, section, main",
	"input, select, textarea",
	"ul, ol, li",
	"[class*=card], [class*=item], [class*=row]",
}

// semanticTags are element kinds fully captured by pass 1; free text under
// them is skipped in pass 2 to avoid duplicate emission. Derived from the
// same tag set the pattern table names so the two passes cannot drift
// apart.
var semanticTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"button": true, "a": true, "p": true, "li": true,
}

// boilerplateTags structurally own no user-meaningful free text.
var boilerplateTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"meta": true, "link": true, "head": true, "title": true,
}

// Extractor produces ObservedElement lists from a document. It is
// stateless across calls: ids restart at 1 on every extraction.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract runs both passes over doc and returns elements in emission
// order: pattern-table order first, then depth-first document order.
func (x *Extractor) Extract(doc *dom.Document, vp capture.Viewport) []capture.ObservedElement {
	run := &extraction{
		doc:       doc,
		vp:        vp,
		processed: make(map[*html.Node]bool),
	}

	run.structuralPass()
	if body := doc.Body(); body != nil {
		run.textPass(body, 0)
	}

	x.logger.Debug("extract: document extracted",
		"elements", len(run.out), "scroll_y", vp.ScrollY)
	return run.out
}

// extraction holds the per-call state shared by the two passes.
type extraction struct {
	doc       *dom.Document
	vp        capture.Viewport
	processed map[*html.Node]bool
	nextID    int
	out       []capture.ObservedElement
}

func (r *extraction) structuralPass() {
	for _, selector := range patterns {
		for _, n := range r.doc.Find(selector).Nodes {
			el := r.doc.FromNode(n)
			if r.processed[n] {
				continue
			}
			r.emit(el, classify(el))
		}
	}
}

// textPass recursively walks the element tree catching meaningful free
// text inside generic containers pass 1 did not match.
func (r *extraction) textPass(el *dom.Element, depth int) {
	if depth > maxWalkDepth {
		return
	}
	if boilerplateTags[el.Tag()] {
		return
	}

	for c := el.Node().FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			r.emitFreeText(el, c.Data)
		case html.ElementNode:
			r.textPass(r.doc.FromNode(c), depth+1)
		}
	}
}

// emitFreeText emits the owning element of a qualifying free-text node as
// a text element.
func (r *extraction) emitFreeText(owner *dom.Element, raw string) {
	text := CleanText(raw)
	if text == "" || len(raw) > capture.MaxNoiseText {
		return
	}
	if semanticTags[owner.Tag()] {
		return
	}
	if r.covered(owner) {
		return
	}
	r.emit(owner, capture.ElementText)
}

// covered reports whether el or any ancestor was already emitted.
func (r *extraction) covered(el *dom.Element) bool {
	for cur := el; cur != nil; cur = cur.Parent() {
		if r.processed[cur.Node()] {
			return true
		}
	}
	return false
}

// emit appends one observed element if it is visible and carries usable
// text, marking it processed.
func (r *extraction) emit(el *dom.Element, kind capture.ElementType) {
	if !dom.Visible(el, r.vp) {
		return
	}

	raw := el.Text()
	if raw == "" || len(raw) > capture.MaxNoiseText {
		return
	}
	text := Truncate(CleanText(raw), capture.MaxElementText)
	if text == "" {
		return
	}

	box := el.Box()
	r.nextID++
	r.out = append(r.out, capture.ObservedElement{
		ID:         r.nextID,
		Type:       kind,
		Tag:        el.Tag(),
		Text:       text,
		Selector:   dom.Selector(el),
		Box:        box,
		Visibility: dom.Classify(box, r.vp),
		IsVisible:  true,
	})
	r.processed[el.Node()] = true
}

// classify maps tag/role heuristics to an element type. Non-button form
// controls and navigation containers deliberately fold into text.
func classify(el *dom.Element) capture.ElementType {
	tag := el.Tag()
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return capture.ElementHeading
	case "button":
		return capture.ElementButton
	case "input":
		switch el.Attr("type") {
		case "button", "submit":
			return capture.ElementButton
		}
		return capture.ElementText
	case "a":
		if el.Attr("href") != "" {
			return capture.ElementLink
		}
		return capture.ElementText
	}
	if el.Attr("role") == "button" {
		return capture.ElementButton
	}
	return capture.ElementText
}
