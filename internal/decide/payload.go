package decide

import (
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/hazyhaar/pagelens/capture"
)

// maxMarkdown caps the rendered page markdown carried in a request.
const maxMarkdown = 20000

// Request is what a decision provider consumes: the snapshot narrowed to
// its useful parts, an optional free-text intent, and the page rendered as
// markdown so language-model providers can read it directly.
type Request struct {
	URL          string                    `json:"url"`
	Intent       string                    `json:"intent,omitempty"`
	Viewport     capture.Viewport          `json:"viewport"`
	Elements     []capture.ObservedElement `json:"elements"`
	Interactions []capture.Interaction     `json:"interactions,omitempty"`
	PageMarkdown string                    `json:"page_markdown,omitempty"`
}

// Response is what a provider returns.
type Response struct {
	Instructions []capture.HighlightInstruction `json:"instructions"`
}

// RequestBuilder assembles a provider request from the live snapshot.
type RequestBuilder func(snap *capture.Snapshot) Request

// BuildRequest narrows a snapshot into a provider request. markup, when
// non-empty, is converted to markdown; conversion failure just leaves the
// markdown out; the element list alone is a valid request.
func BuildRequest(snap *capture.Snapshot, intent, markup string) Request {
	req := Request{
		URL:          snap.URL,
		Intent:       intent,
		Viewport:     snap.Viewport,
		Elements:     snap.Elements,
		Interactions: snap.Interactions,
	}
	if markup != "" {
		if md, err := htmltomarkdown.ConvertString(markup); err == nil {
			if len(md) > maxMarkdown {
				md = md[:maxMarkdown]
			}
			req.PageMarkdown = md
		}
	}
	return req
}
