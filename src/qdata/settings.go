package qdata

import "time"

type ModerationMode string

const (
	// Content goes live immediately; moderators only react to flags.
	ModerationFlags ModerationMode = "flags"
	// Content from watched users is held off-screen until approved.
	ModerationPremoderation ModerationMode = "premoderation"
)

// Settings is an immutable snapshot of forum-wide behavior switches. Every
// domain operation takes one explicitly instead of reading global state, so
// two calls with the same snapshot always behave the same. Construct one at
// the top of a request and pass it by value; never mutate a settings value
// that has already been handed to an operation.
type Settings struct {
	ModerationMode ModerationMode

	EmailAlertsEnabled bool
	GroupsEnabled      bool
	UseWildcardTags    bool

	// Whether users have per-language feeds. When false, language never
	// filters notifications.
	Multilingual bool

	// Word threshold before post teasers get the expander widget.
	SnippetWords int

	// Character cap for plain-text summaries in inbox rows.
	SummaryChars int

	// How long instant notification email waits before sending, so a burst
	// of quick edits collapses into one message.
	NotificationDelay time.Duration

	// How long the (thread, actor) cooldown marker suppresses further
	// instant email after one was sent.
	EmailCooldown time.Duration

	// Name of the HTMLModerator plugin applied to rendered content.
	// Empty means no plugin.
	ContentModerator string
}

func DefaultSettings() Settings {
	return Settings{
		ModerationMode:     ModerationFlags,
		EmailAlertsEnabled: true,
		GroupsEnabled:      false,
		UseWildcardTags:    false,
		Multilingual:       false,
		SnippetWords:       120,
		SummaryChars:       180,
		NotificationDelay:  time.Minute,
		EmailCooldown:      5 * time.Minute,
	}
}

func (s Settings) Premoderation() bool {
	return s.ModerationMode == ModerationPremoderation
}
