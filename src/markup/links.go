package markup

import "mvdan.cc/xurls/v2"

var linkRegex = xurls.Relaxed()

// All URLs appearing in the raw post text. Moderation uses this to flag
// link-heavy posts from users who are still in the watched state.
func FindLinks(text string) []string {
	return linkRegex.FindAllString(text, -1)
}
