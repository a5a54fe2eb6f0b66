package observe

import (
	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/dom"
	"github.com/hazyhaar/pagelens/internal/extract"
	"github.com/hazyhaar/pagelens/internal/page"
)

// recorder appends user interactions to the live snapshot's bounded FIFO.
type recorder struct {
	cap int
}

// record resolves a click event against the current document and appends
// the interaction, evicting the oldest entry past the cap. The element id
// is the selector of the click target itself; the text label may come from
// an ancestor.
func (r recorder) record(snap *capture.Snapshot, doc *dom.Document, ev page.Event, ts int64) bool {
	target, ok := doc.AtPath(ev.Path)
	if !ok {
		// Stale path: the DOM moved under the event. Normal, drop it.
		return false
	}

	snap.Interactions = append(snap.Interactions, capture.Interaction{
		Type:        "click",
		ElementID:   dom.Selector(target),
		ElementText: clickLabel(target),
		Timestamp:   ts,
		X:           ev.X,
		Y:           ev.Y,
	})
	if over := len(snap.Interactions) - r.cap; over > 0 {
		snap.Interactions = snap.Interactions[over:]
	}
	return true
}

// clickLabel walks from the click target up through ancestors, excluding
// the outermost container, until one has non-empty trimmed text. The label
// may be empty when nothing on the path carries text.
func clickLabel(target *dom.Element) string {
	for cur := target; cur != nil && cur.Tag() != "body"; cur = cur.Parent() {
		if text := extract.CleanText(cur.Text()); text != "" {
			return extract.Truncate(text, capture.MaxInteractionText)
		}
	}
	return ""
}
