package dom

import (
	"testing"

	"github.com/hazyhaar/pagelens/capture"
)

func mustParse(t *testing.T, markup string) *Document {
	t.Helper()
	doc, err := ParseString(markup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestQuery_InvalidSelectorResolvesToNothing(t *testing.T) {
	doc := mustParse(t, `<body><p>hi</p></body>`)

	if els := doc.Query("p["); els != nil {
		t.Fatalf("invalid selector: got %d elements, want none", len(els))
	}
	if _, ok := doc.QueryOne(":::nope"); ok {
		t.Fatal("invalid selector resolved")
	}
}

func TestQuery_Basic(t *testing.T) {
	doc := mustParse(t, `<body><div id="a"><span class="x">one</span><span>two</span></div></body>`)

	els := doc.Query("span")
	if len(els) != 2 {
		t.Fatalf("span: got %d, want 2", len(els))
	}
	el, ok := doc.QueryOne("#a .x")
	if !ok {
		t.Fatal("#a .x did not resolve")
	}
	if el.Text() != "one" {
		t.Errorf("text: got %q, want %q", el.Text(), "one")
	}
}

func TestSelector_IDWins(t *testing.T) {
	doc := mustParse(t, `<body><h1 id="title" class="big">Welcome</h1></body>`)
	el, _ := doc.QueryOne("h1")
	if got := Selector(el); got != "#title" {
		t.Errorf("selector: got %q, want #title", got)
	}
}

func TestSelector_Classes(t *testing.T) {
	doc := mustParse(t, `<body><div class="card main">x</div></body>`)
	el, _ := doc.QueryOne("div")
	if got := Selector(el); got != "div.card.main" {
		t.Errorf("selector: got %q, want div.card.main", got)
	}
}

func TestSelector_PathWithNthOfType(t *testing.T) {
	doc := mustParse(t, `<body><div><p>first</p><p>second</p></div></body>`)
	els := doc.Query("p")
	if len(els) != 2 {
		t.Fatalf("p: got %d, want 2", len(els))
	}

	sel := Selector(els[1])
	want := "body > div > p:nth-of-type(2)"
	if sel != want {
		t.Fatalf("selector: got %q, want %q", sel, want)
	}

	// The generated locator must resolve back to the same element.
	back, ok := doc.QueryOne(sel)
	if !ok {
		t.Fatal("generated selector did not resolve")
	}
	if !back.Same(els[1]) {
		t.Error("generated selector resolved to a different element")
	}
}

func TestPath_Roundtrip(t *testing.T) {
	doc := mustParse(t, `<body><div><span>a</span><span>b</span></div><p>c</p></body>`)
	els := doc.Query("span")
	path, ok := els[1].Path()
	if !ok {
		t.Fatal("path not derivable")
	}

	got, ok := doc.AtPath(path)
	if !ok {
		t.Fatal("path did not resolve")
	}
	if !got.Same(els[1]) {
		t.Error("path resolved to a different element")
	}

	if _, ok := doc.AtPath([]int{9}); ok {
		t.Error("out-of-range path resolved")
	}
}

func TestVisible(t *testing.T) {
	doc := mustParse(t, `<body>
		<p id="shown">visible text</p>
		<p id="hidden" style="display:none">hidden text</p>
		<p id="far">far below</p>
	</body>`)
	vp := capture.Viewport{Width: 1280, Height: 800}

	shown, _ := doc.QueryOne("#shown")
	doc.SetBox(shown, capture.BoundingBox{X: 0, Y: 100, Width: 600, Height: 20})
	if !Visible(shown, vp) {
		t.Error("shown: want visible")
	}

	hidden, _ := doc.QueryOne("#hidden")
	doc.SetBox(hidden, capture.BoundingBox{X: 0, Y: 100, Width: 600, Height: 20})
	if Visible(hidden, vp) {
		t.Error("display:none: want invisible")
	}

	// Beyond the near-viewport band below the fold.
	far, _ := doc.QueryOne("#far")
	doc.SetBox(far, capture.BoundingBox{X: 0, Y: 2300, Width: 600, Height: 20})
	if Visible(far, vp) {
		t.Error("2300px down in an 800px viewport: want invisible")
	}

	// Within the band.
	doc.SetBox(far, capture.BoundingBox{X: 0, Y: 1500, Width: 600, Height: 20})
	if !Visible(far, vp) {
		t.Error("1500px down: want visible (near-viewport band)")
	}

	// Entirely above after scrolling past it.
	scrolled := capture.Viewport{Width: 1280, Height: 800, ScrollY: 200}
	doc.SetBox(shown, capture.BoundingBox{X: 0, Y: 100, Width: 600, Height: 20})
	if Visible(shown, scrolled) {
		t.Error("scrolled past: want invisible")
	}
}

func TestClassify(t *testing.T) {
	vp := capture.Viewport{Width: 1280, Height: 800, ScrollY: 100}

	cases := []struct {
		name string
		box  capture.BoundingBox
		want capture.Visibility
	}{
		{"fully inside", capture.BoundingBox{Y: 200, Height: 50}, capture.InViewport},
		{"straddles top", capture.BoundingBox{Y: 80, Height: 50}, capture.PartiallyVisible},
		{"straddles bottom", capture.BoundingBox{Y: 880, Height: 50}, capture.PartiallyVisible},
		{"above", capture.BoundingBox{Y: 0, Height: 50}, capture.Offscreen},
		{"below", capture.BoundingBox{Y: 1000, Height: 50}, capture.Offscreen},
	}
	for _, tc := range cases {
		if got := Classify(tc.box, vp); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestLayout_BlockFlow(t *testing.T) {
	doc := mustParse(t, `<body>
		<div id="a" style="height:100px">first</div>
		<div id="b" style="height:50px">second</div>
	</body>`)
	vp := capture.Viewport{Width: 1280, Height: 800}
	doc.Layout(vp)

	a, _ := doc.QueryOne("#a")
	b, _ := doc.QueryOne("#b")

	if box := a.Box(); box.Y != 0 || box.Height != 100 || box.Width != 1280 {
		t.Errorf("a: got %+v", box)
	}
	if box := b.Box(); box.Y != 100 || box.Height != 50 {
		t.Errorf("b: got %+v, want stacked below a", box)
	}
}

func TestLayout_AbsoluteAndHidden(t *testing.T) {
	doc := mustParse(t, `<body>
		<div id="abs" style="position:absolute; left:40px; top:300px; width:200px; height:60px">floating</div>
		<div id="gone" style="display:none">unseen</div>
		<p id="after">text</p>
	</body>`)
	doc.Layout(capture.Viewport{Width: 1280, Height: 800})

	abs, _ := doc.QueryOne("#abs")
	if box := abs.Box(); box.X != 40 || box.Y != 300 || box.Width != 200 || box.Height != 60 {
		t.Errorf("absolute: got %+v", box)
	}

	gone, _ := doc.QueryOne("#gone")
	if box := gone.Box(); box.Width != 0 || box.Height != 0 {
		t.Errorf("display:none: got %+v, want zero box", box)
	}

	// Absolute and hidden elements take no flow space.
	after, _ := doc.QueryOne("#after")
	if box := after.Box(); box.Y != 0 {
		t.Errorf("after: got Y=%v, want 0", box.Y)
	}
}

func TestElementText_SkipsScriptAndCollapses(t *testing.T) {
	doc := mustParse(t, `<body><div id="d">  Hello
		<script>var x = 1;</script>
		world  </div></body>`)
	el, _ := doc.QueryOne("#d")
	if got := el.Text(); got != "Hello world" {
		t.Errorf("text: got %q, want %q", got, "Hello world")
	}
}

func TestParseStyle(t *testing.T) {
	st := parseStyle("display:none; opacity: 0.5; width: 120px; position:absolute")
	if st.Display != "none" {
		t.Errorf("display: got %q", st.Display)
	}
	if st.Opacity != 0.5 {
		t.Errorf("opacity: got %v", st.Opacity)
	}
	if st.Width != 120 {
		t.Errorf("width: got %v", st.Width)
	}
	if !st.Hidden() {
		t.Error("display:none: want hidden")
	}

	if parseStyle("").Hidden() {
		t.Error("empty style: want not hidden")
	}
	if !parseStyle("visibility:hidden").Hidden() {
		t.Error("visibility:hidden: want hidden")
	}
	if !parseStyle("opacity:0").Hidden() {
		t.Error("opacity:0: want hidden")
	}
}

func TestHTML_Roundtrip(t *testing.T) {
	doc := mustParse(t, `<body><p id="x">keep me</p></body>`)
	out := doc.HTML()
	if out == "" {
		t.Fatal("empty serialisation")
	}
	re, err := ParseString(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if _, ok := re.QueryOne("#x"); !ok {
		t.Error("#x lost in serialisation roundtrip")
	}
}
