package markup

import (
	"regexp"
	"strings"
)

var (
	tagRegex        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Reduces rendered HTML to collapsed plain text.
func StripTags(html string) string {
	text := tagRegex.ReplaceAllString(html, " ")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

// A short plain-text teaser of a post, truncated at a word boundary. Used
// for inbox rows and email subjects.
func Snippet(html string, maxChars int) string {
	text := StripTags(html)
	if len(text) <= maxChars {
		return text
	}

	cut := maxChars
	if idx := strings.LastIndex(text[:maxChars], " "); idx > 0 {
		cut = idx
	}
	return text[:cut] + "..."
}

// Markup appended to truncated post bodies. The frontend expands the full
// post in place when clicked.
const expanderHTML = ` <span class="js-expander">(<a href="#">more</a>)</span>`

var wordRegex = regexp.MustCompile(`\S+`)

// Elements with no closing tag; they never go on the open stack.
var voidTags = map[string]bool{
	"br": true, "hr": true, "img": true, "wbr": true,
}

// Truncates a post body to maxWords words, keeping the markup intact.
// Short bodies come back unchanged. When anything was cut, the expander
// widget lands inside the innermost open element so it renders inline
// with the trailing text, and every element still open at the cut is
// closed.
func SnippetWithExpander(html string, maxWords int) string {
	var out strings.Builder
	var open []string
	budget := maxWords
	truncated := false
	pos := 0

	emitText := func(text string) {
		if truncated {
			return
		}
		kept, remaining, cut := takeWords(text, budget)
		out.WriteString(kept)
		budget = remaining
		truncated = cut
	}

	for _, loc := range tagRegex.FindAllStringIndex(html, -1) {
		emitText(html[pos:loc[0]])
		if truncated {
			break
		}
		tag := html[loc[0]:loc[1]]
		out.WriteString(tag)
		if strings.HasPrefix(tag, "</") {
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		} else if !strings.HasSuffix(tag, "/>") && !voidTags[tagName(tag)] {
			open = append(open, tagName(tag))
		}
		pos = loc[1]
	}
	if !truncated {
		emitText(html[pos:])
	}
	if !truncated {
		return html
	}

	out.WriteString(expanderHTML)
	for i := len(open) - 1; i >= 0; i-- {
		out.WriteString("</" + open[i] + ">")
	}
	return out.String()
}

// The first budget words of text. Reports the budget left over, or that
// the text had to be cut.
func takeWords(text string, budget int) (string, int, bool) {
	words := wordRegex.FindAllStringIndex(text, -1)
	if len(words) <= budget {
		return text, budget - len(words), false
	}
	if budget == 0 {
		return "", 0, true
	}
	return text[:words[budget-1][1]], 0, true
}

func tagName(tag string) string {
	name := strings.TrimPrefix(tag, "<")
	name = strings.TrimPrefix(name, "/")
	end := strings.IndexAny(name, " \t\n/>")
	if end >= 0 {
		name = name[:end]
	}
	return strings.ToLower(name)
}
