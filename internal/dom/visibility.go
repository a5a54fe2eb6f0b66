package dom

import "github.com/hazyhaar/pagelens/capture"

// NearViewportBuffer is how far below the viewport bottom an element may
// sit and still count as visible, so upcoming scroll targets are captured
// early.
const NearViewportBuffer = 1000

// Visible reports whether an element is meaningfully visible: not hidden
// by style, non-zero rendered box, and not entirely outside the
// near-viewport band (more than NearViewportBuffer below the viewport
// bottom, or entirely above the viewport top).
func Visible(el *Element, vp capture.Viewport) bool {
	if el == nil {
		return false
	}
	if el.Style().Hidden() {
		return false
	}

	box := el.Box()
	if box.Width == 0 || box.Height == 0 {
		return false
	}

	viewTop := vp.ScrollY
	viewBottom := vp.ScrollY + vp.Height
	if box.Y > viewBottom+NearViewportBuffer {
		return false
	}
	if box.Bottom() < viewTop {
		return false
	}
	return true
}

// Classify places a document-relative box relative to the viewport.
func Classify(box capture.BoundingBox, vp capture.Viewport) capture.Visibility {
	top := box.Y - vp.ScrollY
	bottom := top + box.Height

	switch {
	case bottom < 0 || top > vp.Height:
		return capture.Offscreen
	case top >= 0 && bottom <= vp.Height:
		return capture.InViewport
	default:
		return capture.PartiallyVisible
	}
}
