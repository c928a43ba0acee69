package models

import "time"

// What slice of forum activity a subscription covers.
type FeedType string

const (
	FeedEntireForum          FeedType = "q_all" // Every question on the site
	FeedAskedByMe            FeedType = "q_ask" // Questions the user asked
	FeedAnsweredByMe         FeedType = "q_ans" // Questions the user answered
	FeedIndividuallyFollowed FeedType = "q_sel" // Questions the user follows explicitly
	FeedMentionsAndComments  FeedType = "m_and_c"
)

type SubscriptionFrequency string

const (
	FrequencyInstant SubscriptionFrequency = "i"
	FrequencyDaily   SubscriptionFrequency = "d"
	FrequencyWeekly  SubscriptionFrequency = "w"
	FrequencyNever   SubscriptionFrequency = "n"
)

// A user's standing choice of how often to hear about one feed. At most one
// rule exists per (subscriber, feed type).
type SubscriptionRule struct {
	ID           int                   `db:"id"`
	SubscriberID int                   `db:"subscriber_id"`
	FeedType     FeedType              `db:"feed_type"`
	Frequency    SubscriptionFrequency `db:"frequency"`

	// When a digest for this rule last went out. Instant rules use it as a
	// cooldown marker so rapid-fire activity sends one email, not five.
	ReportedAt *time.Time `db:"reported_at"`
}
