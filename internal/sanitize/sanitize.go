// Package sanitize strips unsafe markup from user-authored message content
// before it's persisted and broadcast.
package sanitize

import "github.com/microcosm-cc/bluemonday"

// HTMLSanitizer wraps a concurrency-safe bluemonday policy; bluemonday
// policies are immutable after construction and safe for concurrent use
// from every gateway session's reader goroutine.
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

func NewHTMLSanitizer() *HTMLSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "strong", "b", "em", "i", "s", "del",
		"code", "pre", "a", "ul", "ol", "li", "blockquote",
		"h1", "h2", "h3", "h4", "h5", "h6", "hr",
	)
	p.AllowAttrs("href", "rel").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return &HTMLSanitizer{policy: p}
}

func (h *HTMLSanitizer) Sanitize(html string) string {
	return h.policy.Sanitize(html)
}
