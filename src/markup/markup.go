package markup

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Used for generating the final HTML for a post.
var RealMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// Used for generating plain-text teasers of posts.
var PlaintextMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRenderer(plaintextRenderer{}),
)

func ParseMarkdown(source string, md goldmark.Markdown) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		panic(err)
	}

	return buf.String()
}

var sanitizePolicy = makeSanitizePolicy()

func makeSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("span", "div", "pre", "code")
	p.RequireNoFollowOnLinks(true)
	return p
}

// Strips anything from rendered post HTML that we would not want a user to
// have injected. Idempotent.
func SanitizeHTML(html string) string {
	return sanitizePolicy.Sanitize(html)
}

// The full post pipeline: markdown to HTML, then sanitize.
func RenderPost(source string) string {
	return SanitizeHTML(ParseMarkdown(source, RealMarkdown))
}

func RenderPlaintext(source string) string {
	return ParseMarkdown(source, PlaintextMarkdown)
}
