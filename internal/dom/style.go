package dom

import (
	"strconv"
	"strings"
)

// Style is the subset of computed style the pipeline cares about, parsed
// from inline style declarations. The browser backend resolves real
// computed styles; the in-memory backend only sees what fixtures declare.
type Style struct {
	Display    string
	Visibility string
	Position   string

	// Opacity is the resolved opacity, 1 when unspecified.
	Opacity float64

	// Pixel lengths; negative means unspecified.
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Hidden reports whether the style alone hides the element: display none,
// visibility hidden, or opacity resolving to zero.
func (s Style) Hidden() bool {
	return s.Display == "none" || s.Visibility == "hidden" || s.Opacity == 0
}

func parseStyle(decl string) Style {
	st := Style{Opacity: 1, Left: -1, Top: -1, Width: -1, Height: -1}
	for _, part := range strings.Split(decl, ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.ToLower(strings.TrimSpace(value))
		switch name {
		case "display":
			st.Display = value
		case "visibility":
			st.Visibility = value
		case "position":
			st.Position = value
		case "opacity":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				st.Opacity = f
			}
		case "left":
			st.Left = parsePx(value)
		case "top":
			st.Top = parsePx(value)
		case "width":
			st.Width = parsePx(value)
		case "height":
			st.Height = parsePx(value)
		}
	}
	return st
}

// parsePx parses "123px" (or a bare number) to a pixel length, -1 when the
// value is absent or uses a unit the flow layout does not model.
func parsePx(v string) float64 {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return -1
	}
	return f
}
