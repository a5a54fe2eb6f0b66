package dom

import (
	"math"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagelens/capture"
)

// The in-memory flow layout. It is intentionally crude (block-stack every
// element, honour absolute positioning and explicit pixel sizes) because
// its job is to give the extractor and render engine deterministic
// geometry without a browser, not to reproduce CSS. The browser backend
// replaces all of this with harvested rects.

const (
	lineHeight    = 20.0
	lineRuneWidth = 80
)

// Layout assigns a bounding box to every element under body using a
// top-down block flow within the viewport width. Elements styled
// display:none keep a zero box. Absolutely positioned elements are placed
// at their declared left/top and sized from their declared width/height.
func (d *Document) Layout(vp capture.Viewport) {
	body := d.Body()
	if body == nil {
		return
	}
	width := vp.Width
	if width <= 0 {
		width = 1280
	}

	total := d.flow(body.n, 0, 0, width)
	d.boxes[body.n] = capture.BoundingBox{X: 0, Y: 0, Width: width, Height: total}
}

// flow lays out n's children starting at (x, y) within width and returns
// the flowed height of n's content.
func (d *Document) flow(n *html.Node, x, y, width float64) float64 {
	h := 0.0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			h += textHeight(c.Data)

		case html.ElementNode:
			if skipLayout(c.Data) {
				continue
			}
			st := parseStyle(attr(c, "style"))

			if st.Display == "none" {
				d.boxes[c] = capture.BoundingBox{}
				continue
			}

			if st.Position == "absolute" {
				cx, cy := math.Max(st.Left, 0), math.Max(st.Top, 0)
				cw, ch := st.Width, st.Height
				if cw < 0 {
					cw = width
				}
				inner := d.flow(c, cx, cy, cw)
				if ch < 0 {
					ch = inner
				}
				d.boxes[c] = capture.BoundingBox{X: cx, Y: cy, Width: cw, Height: ch}
				continue
			}

			cw := st.Width
			if cw < 0 {
				cw = width
			}
			inner := d.flow(c, x, y+h, cw)
			ch := st.Height
			if ch < 0 {
				ch = inner
			}
			d.boxes[c] = capture.BoundingBox{X: x, Y: y + h, Width: cw, Height: ch}
			h += ch
		}
	}
	return h
}

// textHeight estimates flowed text height in whole lines.
func textHeight(s string) float64 {
	runes := 0
	for _, r := range s {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			runes++
		}
	}
	if runes == 0 {
		return 0
	}
	lines := (runes + lineRuneWidth - 1) / lineRuneWidth
	return float64(lines) * lineHeight
}

// skipLayout names element kinds that occupy no flow space.
func skipLayout(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "template", "meta", "link", "head", "title":
		return true
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
