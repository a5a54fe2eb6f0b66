// Package dom models the observed page: a parsed HTML tree with per-element
// geometry and computed-style hints. It is the shared substrate for the
// extractor, the render engine, and the page backends. The in-memory
// backend lays out boxes itself, the browser backend harvests them from the
// live page.
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/pagelens/capture"
)

// Document is one parsed page with geometry attached.
type Document struct {
	root  *html.Node
	gq    *goquery.Document
	boxes map[*html.Node]capture.BoundingBox
}

// Parse builds a Document from an HTML stream. Boxes are zero until
// Layout or SetBox is called.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{
		root:  root,
		gq:    goquery.NewDocumentFromNode(root),
		boxes: make(map[*html.Node]capture.BoundingBox),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Body returns the body element, or nil for a degenerate document.
func (d *Document) Body() *Element {
	n := findFirst(d.root, atom.Body)
	if n == nil {
		return nil
	}
	return &Element{d: d, n: n}
}

// HTML serialises the document back to markup.
func (d *Document) HTML() string {
	var sb strings.Builder
	if err := html.Render(&sb, d.root); err != nil {
		return ""
	}
	return sb.String()
}

// Query resolves a CSS selector against the document. Selectors arrive
// from outside (providers, generated locators) and may be malformed or
// reference since-removed elements, so resolution failure is a normal
// control-flow branch: invalid selectors resolve to nothing. cascadia is
// used directly rather than goquery.Find, which panics on a bad selector.
func (d *Document) Query(selector string) []*Element {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil
	}
	nodes := cascadia.QueryAll(d.root, sel)
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{d: d, n: n})
	}
	return out
}

// Find runs a trusted, fixed selector through goquery. The extractor's
// structural pattern table goes through here; untrusted selectors go
// through Query.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.gq.Find(selector)
}

// FromNode wraps a goquery-matched node back into an element handle.
func (d *Document) FromNode(n *html.Node) *Element {
	return &Element{d: d, n: n}
}

// QueryOne resolves a selector to its first match.
func (d *Document) QueryOne(selector string) (*Element, bool) {
	els := d.Query(selector)
	if len(els) == 0 {
		return nil, false
	}
	return els[0], true
}

// SetBox overrides an element's geometry. Live backends use this to attach
// harvested boxes; tests use it to pin exact positions.
func (d *Document) SetBox(el *Element, box capture.BoundingBox) {
	if box.Width < 0 {
		box.Width = 0
	}
	if box.Height < 0 {
		box.Height = 0
	}
	d.boxes[el.n] = box
}

// AtPath resolves a child-index path (element children only, rooted at
// body) back to an element. Paths are how live backends reference a node
// across the event channel without holding tree pointers.
func (d *Document) AtPath(path []int) (*Element, bool) {
	cur := d.Body()
	if cur == nil {
		return nil, false
	}
	for _, idx := range path {
		children := cur.Children()
		if idx < 0 || idx >= len(children) {
			return nil, false
		}
		cur = children[idx]
	}
	return cur, true
}

// Element is a handle on one element node. Handles are cheap and transient;
// identity is the underlying node pointer.
type Element struct {
	d *Document
	n *html.Node
}

// Node exposes the underlying parse node.
func (e *Element) Node() *html.Node { return e.n }

// Same reports whether two handles reference the same node.
func (e *Element) Same(o *Element) bool { return o != nil && e.n == o.n }

// Tag returns the lowercase tag name.
func (e *Element) Tag() string { return e.n.Data }

// Attr returns an attribute value, empty if absent.
func (e *Element) Attr(name string) string {
	for _, a := range e.n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// ID returns the id attribute.
func (e *Element) ID() string { return e.Attr("id") }

// Classes returns the class list in document order.
func (e *Element) Classes() []string {
	return strings.Fields(e.Attr("class"))
}

// Parent returns the parent element, or nil at the root element.
func (e *Element) Parent() *Element {
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return &Element{d: e.d, n: p}
}

// Children returns element children in document order.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, &Element{d: e.d, n: c})
		}
	}
	return out
}

// Path returns the child-index path from body to this element, or false
// when the element is not under body.
func (e *Element) Path() ([]int, bool) {
	body := e.d.Body()
	if body == nil {
		return nil, false
	}
	var rev []int
	cur := e
	for !cur.Same(body) {
		p := cur.Parent()
		if p == nil {
			return nil, false
		}
		idx := -1
		for i, c := range p.Children() {
			if c.Same(cur) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, false
		}
		rev = append(rev, idx)
		cur = p
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev, true
}

// Box returns the element's document-relative geometry, zero if unknown.
func (e *Element) Box() capture.BoundingBox { return e.d.boxes[e.n] }

// Style returns the parsed inline style.
func (e *Element) Style() Style { return parseStyle(e.Attr("style")) }

// Text returns the element's text content with whitespace collapsed.
// Script, style, noscript and template subtrees contribute nothing.
func (e *Element) Text() string {
	var b strings.Builder
	collectText(e.n, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}
