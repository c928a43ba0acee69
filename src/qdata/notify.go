package qdata

import (
	"context"
	"errors"
	"time"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
	"git.quorum.forum/qf/qf/src/perf"
)

// NotifySets are the recipients of one content mutation. The sets may
// overlap; a user can be both an inbox and an email recipient. They are
// unordered.
type NotifySets struct {
	Inbox    []*models.User
	Mentions []*models.User
	Email    []*models.User
}

// NotifyEnv is everything recipient resolution reads, prefetched so the
// computation itself is pure. Build one with FetchNotifyEnv or by hand in
// tests.
type NotifyEnv struct {
	Settings        Settings
	Snapshot        *ThreadSnapshot
	EveryoneGroupID int

	// Full-membership group ids per user id, for authorization filtering.
	UserGroups map[int][]int

	// Users holding an instant subscription rule, keyed by feed type.
	InstantRules map[models.FeedType][]*models.User

	// Users explicitly following this thread.
	ThreadFollowers []*models.User

	// Exact tag marks per user id, keyed by tag name.
	TagMarks map[int]map[string]models.TagMarkReason
}

// ComputeNotifySets resolves who hears about a mutation of post, per the
// composition rules of the notification pipeline. exclude wins absolutely:
// an excluded user never appears in any of the returned sets.
func ComputeNotifySets(
	env NotifyEnv,
	post *models.Post,
	mentioned []*models.User,
	exclude []*models.User,
) NotifySets {
	excluded := userIDSet(exclude)

	var sets NotifySets
	sets.Mentions = subtract(mentioned, excluded)
	sets.Inbox = env.authorizeForPost(post, subtract(env.responseReceivers(post), excluded))
	sets.Email = subtract(env.instantEmailRecipients(post, mentioned), excluded)
	return sets
}

// The inbox audience, computed per post kind. Answers reach everyone talking
// under the answer and the question plus the other answerers; questions
// reach their own participants and answer authors but not answer
// commenters; comments stay within the immediate parent's conversation.
func (env NotifyEnv) responseReceivers(post *models.Post) []*models.User {
	switch post.Kind {
	case models.PostKindAnswer:
		var users []*models.User
		if node := env.Snapshot.Node(post.ID); node != nil {
			users = append(users, node.Participants(true)...)
		}
		if origin := env.Snapshot.Origin(); origin != nil {
			users = append(users, origin.Participants(true)...)
		}
		for _, answer := range env.Snapshot.Answers {
			if answer.Post.ID != post.ID && answer.Author != nil {
				users = append(users, answer.Author)
			}
		}
		return dedupe(users)

	case models.PostKindQuestion:
		var users []*models.User
		if origin := env.Snapshot.Origin(); origin != nil {
			users = append(users, origin.Participants(true)...)
		}
		for _, answer := range env.Snapshot.Answers {
			if answer.Author != nil {
				users = append(users, answer.Author)
			}
		}
		return dedupe(users)

	case models.PostKindComment:
		if post.ParentID == nil {
			return nil
		}
		parent := env.Snapshot.Node(*post.ParentID)
		if parent == nil {
			return nil
		}
		return parent.Participants(true)
	}

	// Tag wikis and reject reasons notify nobody.
	return nil
}

func (env NotifyEnv) instantEmailRecipients(post *models.Post, mentioned []*models.User) []*models.User {
	if !env.Settings.EmailAlertsEnabled {
		return nil
	}
	if !post.Kind.IsContent() {
		return nil
	}

	var recipients []*models.User

	// Mentioned users who asked to hear about mentions immediately.
	mentionSubs := userIDSet(env.InstantRules[models.FeedMentionsAndComments])
	for _, u := range mentioned {
		if mentionSubs[u.ID] {
			recipients = append(recipients, u)
		}
	}

	// People following this specific thread. Comment traffic additionally
	// respects their tag affinity so a followed thread with a muted tag
	// stays quiet for comments.
	followSubs := userIDSet(env.InstantRules[models.FeedIndividuallyFollowed])
	tags := env.Snapshot.Thread.TagList()
	for _, u := range env.ThreadFollowers {
		if !followSubs[u.ID] {
			continue
		}
		if post.Kind == models.PostKindComment && !env.tagAffinityAllows(u, tags) {
			continue
		}
		recipients = append(recipients, u)
	}

	// Forum-wide subscribers, run through each user's tag filter.
	for _, u := range env.InstantRules[models.FeedEntireForum] {
		if env.tagAffinityAllows(u, tags) {
			recipients = append(recipients, u)
		}
	}

	// Authors tracking their own involvement.
	if post.Kind == models.PostKindQuestion || post.Kind == models.PostKindAnswer {
		askSubs := userIDSet(env.InstantRules[models.FeedAskedByMe])
		ansSubs := userIDSet(env.InstantRules[models.FeedAnsweredByMe])
		if origin := env.Snapshot.Origin(); origin != nil && origin.Author != nil {
			if askSubs[origin.Author.ID] {
				recipients = append(recipients, origin.Author)
			}
		}
		for _, answer := range env.Snapshot.Answers {
			if answer.Author != nil && ansSubs[answer.Author.ID] {
				recipients = append(recipients, answer.Author)
			}
		}
	}

	recipients = env.authorizeForPost(post, dedupe(recipients))

	if env.Settings.Multilingual && post.Language != "" {
		var speaking []*models.User
		for _, u := range recipients {
			if u.SpeaksLanguage(post.Language) {
				speaking = append(speaking, u)
			}
		}
		recipients = speaking
	}

	return recipients
}

// Whether this user's email tag filter lets content with these tags
// through. Wildcard patterns are matched with a linear scan over the
// user's pattern list.
func (env NotifyEnv) tagAffinityAllows(u *models.User, tags []string) bool {
	marks := env.TagMarks[u.ID]

	switch u.EmailTagFilterStrategy {
	case models.TagFilterInteresting:
		for _, tag := range tags {
			reason, ok := marks[tag]
			if ok && (reason == models.TagMarkInteresting || reason == models.TagMarkSubscribed) {
				return true
			}
		}
		if env.Settings.UseWildcardTags {
			if models.MatchesWildcards(splitWildcards(u.InterestingWildcards), tags) ||
				models.MatchesWildcards(splitWildcards(u.SubscribedWildcards), tags) {
				return true
			}
		}
		return false

	case models.TagFilterIgnored:
		for _, tag := range tags {
			if marks[tag] == models.TagMarkIgnored {
				return false
			}
		}
		if env.Settings.UseWildcardTags &&
			models.MatchesWildcards(splitWildcards(u.IgnoredWildcards), tags) {
			return false
		}
		return true
	}

	return true
}

func (env NotifyEnv) authorizeForPost(post *models.Post, users []*models.User) []*models.User {
	if !env.Settings.GroupsEnabled {
		return users
	}
	return FilterAuthorizedUsers(
		context.Background(),
		users,
		env.Snapshot.PostGroups[post.ID],
		env.EveryoneGroupID,
		env.UserGroups,
	)
}

func userIDSet(users []*models.User) map[int]bool {
	set := make(map[int]bool, len(users))
	for _, u := range users {
		set[u.ID] = true
	}
	return set
}

func subtract(users []*models.User, excluded map[int]bool) []*models.User {
	var result []*models.User
	for _, u := range users {
		if !excluded[u.ID] {
			result = append(result, u)
		}
	}
	return result
}

func dedupe(users []*models.User) []*models.User {
	seen := make(map[int]bool, len(users))
	var result []*models.User
	for _, u := range users {
		if !seen[u.ID] {
			seen[u.ID] = true
			result = append(result, u)
		}
	}
	return result
}

func splitWildcards(s string) []string {
	var patterns []string
	start := -1
	for i, c := range s {
		if c == ' ' {
			if start >= 0 {
				patterns = append(patterns, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		patterns = append(patterns, s[start:])
	}
	return patterns
}

// FetchNotifyEnv assembles the inputs for recipient resolution. The
// entire-forum candidate query walks every user holding an instant rule and
// later string-matches their wildcard patterns one by one; known scaling
// hazard, kept deliberately.
func FetchNotifyEnv(
	ctx context.Context,
	dbConn db.ConnOrTx,
	settings Settings,
	snapshot *ThreadSnapshot,
) (NotifyEnv, error) {
	p := perf.ExtractPerf(ctx)
	b := p.StartBlock("SQL", "Fetch notification env")
	defer b.End()

	env := NotifyEnv{
		Settings:     settings,
		Snapshot:     snapshot,
		InstantRules: make(map[models.FeedType][]*models.User),
		TagMarks:     make(map[int]map[string]models.TagMarkReason),
	}

	everyoneID, err := EveryoneGroupID(ctx, dbConn)
	if err != nil {
		return env, err
	}
	env.EveryoneGroupID = everyoneID

	type ruleRow struct {
		FeedType models.FeedType `db:"subscription_rule.feed_type"`
		User     models.User     `db:"qf_user"`
	}
	ruleRows, err := db.Query[ruleRow](ctx, dbConn,
		`
		SELECT $columns
		FROM
			subscription_rule
			JOIN qf_user ON qf_user.id = subscription_rule.subscriber_id
		WHERE subscription_rule.frequency = $1
		`,
		models.FrequencyInstant,
	)
	if err != nil {
		return env, oops.New(err, "failed to fetch instant subscription rules")
	}

	usersByID := make(map[int]*models.User)
	intern := func(u *models.User) *models.User {
		if existing, ok := usersByID[u.ID]; ok {
			return existing
		}
		usersByID[u.ID] = u
		return u
	}
	for _, row := range ruleRows {
		u := intern(&row.User)
		env.InstantRules[row.FeedType] = append(env.InstantRules[row.FeedType], u)
	}

	followers, err := db.Query[models.User](ctx, dbConn,
		`
		SELECT $columns
		FROM
			qf_user
			JOIN thread_follow AS tf ON tf.user_id = qf_user.id
		WHERE tf.thread_id = $1
		`,
		snapshot.Thread.ID,
	)
	if err != nil {
		return env, oops.New(err, "failed to fetch thread followers")
	}
	for _, u := range followers {
		env.ThreadFollowers = append(env.ThreadFollowers, intern(u))
	}

	candidateIDs := make([]int, 0, len(usersByID))
	for id := range usersByID {
		candidateIDs = append(candidateIDs, id)
	}
	for _, u := range snapshot.AllParticipants() {
		candidateIDs = append(candidateIDs, u.ID)
	}

	type markRow struct {
		UserID  int                  `db:"tag_mark.user_id"`
		Reason  models.TagMarkReason `db:"tag_mark.reason"`
		TagName string               `db:"tag.name"`
	}
	markRows, err := db.Query[markRow](ctx, dbConn,
		`
		SELECT $columns
		FROM
			tag_mark
			JOIN tag ON tag.id = tag_mark.tag_id
		WHERE tag_mark.user_id = ANY ($1)
		`,
		candidateIDs,
	)
	if err != nil {
		return env, oops.New(err, "failed to fetch tag marks")
	}
	for _, row := range markRows {
		if env.TagMarks[row.UserID] == nil {
			env.TagMarks[row.UserID] = make(map[string]models.TagMarkReason)
		}
		env.TagMarks[row.UserID][row.TagName] = row.Reason
	}

	if settings.GroupsEnabled {
		env.UserGroups, err = FetchUserGroups(ctx, dbConn, candidateIDs)
		if err != nil {
			return env, err
		}
	}

	if settings.Multilingual {
		type langRow struct {
			UserID   int    `db:"user_id"`
			Language string `db:"language"`
		}
		langRows, err := db.Query[langRow](ctx, dbConn,
			`
			SELECT $columns
			FROM user_language
			WHERE user_id = ANY ($1)
			`,
			candidateIDs,
		)
		if err != nil {
			return env, oops.New(err, "failed to fetch user languages")
		}
		for _, row := range langRows {
			if u, ok := usersByID[row.UserID]; ok {
				u.Languages = append(u.Languages, row.Language)
			}
		}
	}

	return env, nil
}

// AddSubscriptionRule saves a user's standing notification choice for one
// feed. A second rule for the same feed is a conflict, not a merge.
func AddSubscriptionRule(
	ctx context.Context,
	tx db.ConnOrTx,
	subscriber *models.User,
	feedType models.FeedType,
	frequency models.SubscriptionFrequency,
) (*models.SubscriptionRule, error) {
	rule := &models.SubscriptionRule{
		SubscriberID: subscriber.ID,
		FeedType:     feedType,
		Frequency:    frequency,
	}
	id, err := db.QueryOneScalar[int](ctx, tx,
		`
		INSERT INTO subscription_rule (subscriber_id, feed_type, frequency)
		VALUES ($1, $2, $3)
		ON CONFLICT (subscriber_id, feed_type) DO NOTHING
		RETURNING id
		`,
		rule.SubscriberID, rule.FeedType, rule.Frequency,
	)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			// The conflict clause swallowed the insert.
			return nil, ErrDuplicateSubscription
		}
		return nil, oops.New(err, "failed to save subscription rule")
	}
	rule.ID = id
	return rule, nil
}

// UpdateSubscriptionFrequency changes an existing rule in place.
func UpdateSubscriptionFrequency(
	ctx context.Context,
	tx db.ConnOrTx,
	subscriber *models.User,
	feedType models.FeedType,
	frequency models.SubscriptionFrequency,
) error {
	tag, err := tx.Exec(ctx,
		`
		UPDATE subscription_rule
		SET frequency = $1
		WHERE subscriber_id = $2 AND feed_type = $3
		`,
		frequency, subscriber.ID, feedType,
	)
	if err != nil {
		return oops.New(err, "failed to update subscription rule")
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound
	}
	return nil
}

// MarkSubscriptionReported stamps the cooldown marker on a user's instant
// rule after an email goes out.
func MarkSubscriptionReported(
	ctx context.Context,
	tx db.ConnOrTx,
	subscriberID int,
	feedType models.FeedType,
	at time.Time,
) error {
	_, err := tx.Exec(ctx,
		`
		UPDATE subscription_rule
		SET reported_at = $1
		WHERE subscriber_id = $2 AND feed_type = $3
		`,
		at, subscriberID, feedType,
	)
	if err != nil {
		return oops.New(err, "failed to stamp subscription rule")
	}
	return nil
}
