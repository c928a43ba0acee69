package qdata

import (
	"regexp"
	"strings"
	"sync"

	"git.quorum.forum/qf/qf/src/logging"
	"git.quorum.forum/qf/qf/src/markup"
	"git.quorum.forum/qf/qf/src/models"
)

// HTMLModerator is a pluggable content pass applied to rendered post HTML.
// It returns the possibly edited HTML and whether it changed anything; an
// altered result sends the revision to the moderation queue.
type HTMLModerator func(post *models.Post, html string) (edited string, altered bool)

var (
	moderatorsMu sync.RWMutex
	moderators   = map[string]HTMLModerator{
		"strip-links": StripLinksModerator,
	}
)

// RegisterModerator makes a moderator selectable by name in Settings.
// Call from init or startup, before requests flow.
func RegisterModerator(name string, m HTMLModerator) {
	moderatorsMu.Lock()
	defer moderatorsMu.Unlock()
	moderators[name] = m
}

// ModerateHTML runs the named moderator. An unknown name is a config
// mistake, logged and treated as a no-op rather than blocking the save.
func ModerateHTML(name string, post *models.Post, html string) (string, bool) {
	moderatorsMu.RLock()
	m, ok := moderators[name]
	moderatorsMu.RUnlock()
	if !ok {
		logging.Warn().Str("moderator", name).Msg("unknown content moderator configured")
		return html, false
	}
	return m(post, html)
}

var (
	anchorRegex = regexp.MustCompile(`<a\b[^>]*>(.*?)</a>`)
	imgRegex    = regexp.MustCompile(`<img\b[^>]*/?>`)
)

// StripLinksModerator edits out inline links and images: anchors collapse
// to their text, images disappear, and bare URLs left in the text are
// blanked. Meant for content from users who have not earned link
// privileges yet.
func StripLinksModerator(post *models.Post, html string) (string, bool) {
	edited := anchorRegex.ReplaceAllString(html, "$1")
	edited = imgRegex.ReplaceAllString(edited, "")
	for _, link := range markup.FindLinks(edited) {
		edited = strings.ReplaceAll(edited, link, "")
	}
	return edited, edited != html
}
