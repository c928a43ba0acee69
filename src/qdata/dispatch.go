package qdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/email"
	"git.quorum.forum/qf/qf/src/jobs"
	"git.quorum.forum/qf/qf/src/logging"
	"git.quorum.forum/qf/qf/src/markup"
	"git.quorum.forum/qf/qf/src/metrics"
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
	"git.quorum.forum/qf/qf/src/perf"
	"git.quorum.forum/qf/qf/src/search"
)

// Dispatcher owns the slow side of notification fan-out: inbox writes
// happen synchronously in the caller's transaction, but email and cleanup
// run through the deferred runner so a save never waits on delivery.
//
// One Dispatcher is built at startup and attached to request contexts; all
// context accessors are nil-safe so tests that do not care can skip it.
type Dispatcher struct {
	Conn      db.ConnOrTx
	Email     email.Sender
	Runner    *jobs.Deferred
	Search    search.IndexPinger
	Collector *metrics.Collector
	Differ    markup.Differ

	cooldowns cooldownStore
}

func NewDispatcher(conn db.ConnOrTx, sender email.Sender, runner *jobs.Deferred) *Dispatcher {
	return &Dispatcher{
		Conn:      conn,
		Email:     sender,
		Runner:    runner,
		Search:    search.LoggingPinger{},
		Collector: metrics.Default,
		Differ:    markup.WordDiffer{},
	}
}

type dispatcherContextKey struct{}

func AttachDispatcher(ctx context.Context, d *Dispatcher) context.Context {
	return context.WithValue(ctx, dispatcherContextKey{}, d)
}

func ExtractDispatcher(ctx context.Context) *Dispatcher {
	d, ok := ctx.Value(dispatcherContextKey{}).(*Dispatcher)
	if !ok {
		return nil
	}
	return d
}

func (d *Dispatcher) Metrics() *metrics.Collector {
	if d == nil || d.Collector == nil {
		return metrics.Default
	}
	return d.Collector
}

func (d *Dispatcher) differ() markup.Differ {
	if d == nil || d.Differ == nil {
		return markup.WordDiffer{}
	}
	return d.Differ
}

// EditSummary describes what an edit changed: a marked-up word diff of
// the two revisions' plain-text renderings. Update notifications carry
// this instead of the post teaser so recipients see the change itself.
func EditSummary(differ markup.Differ, beforeText, afterText string) string {
	return differ.Diff(markup.RenderPlaintext(beforeText), markup.RenderPlaintext(afterText))
}

// PingSearch pokes the search index about changed content. Failures are the
// pinger's to log; a broken index never blocks a save.
func (d *Dispatcher) PingSearch(ctx context.Context, post *models.Post) {
	if d == nil || d.Search == nil {
		return
	}
	d.Search.PingPost(ctx, post.ID)
	if post.ThreadID != nil {
		d.Search.PingThread(ctx, *post.ThreadID)
	}
}

// PublishActivity turns computed notify sets into durable state: an
// activity row with inbox recipients in the caller's transaction, mention
// records, and deferred instant email.
func (d *Dispatcher) PublishActivity(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	snapshot *ThreadSnapshot,
	post *models.Post,
	rev *models.PostRevision,
	actor *models.User,
	sets NotifySets,
) error {
	p := perf.ExtractPerf(ctx)
	b := p.StartBlock("NOTIFY", "Publish activity")
	defer b.End()
	start := time.Now()

	activityType := activityTypeFor(snapshot, post, rev)

	// New posts carry the teaser; edits carry a diff of what changed.
	summary := post.Summary
	if rev.Revision > 1 {
		previous, err := db.QueryOne[models.PostRevision](ctx, tx,
			`
			SELECT $columns
			FROM post_revision
			WHERE post_id = $1 AND revision = $2
			`,
			post.ID, rev.Revision-1,
		)
		if err != nil && !errors.Is(err, db.NotFound) {
			return oops.New(err, "failed to fetch the previous revision for the edit summary")
		}
		if previous != nil {
			summary = EditSummary(d.differ(), previous.Text, rev.Text)
		}
	}

	activity, err := createActivity(ctx, tx, &models.Activity{
		UserID:     actor.ID,
		Type:       activityType,
		ActiveAt:   time.Now(),
		PostID:     &post.ID,
		RevisionID: &rev.ID,
		ThreadID:   post.ThreadID,
		Summary:    summary,
	})
	if err != nil {
		return err
	}

	for _, u := range sets.Inbox {
		_, err := tx.Exec(ctx,
			`
			INSERT INTO activity_recipient (activity_id, recipient_id, seen)
			VALUES ($1, $2, FALSE)
			ON CONFLICT (activity_id, recipient_id) DO NOTHING
			`,
			activity.ID, u.ID,
		)
		if err != nil {
			return oops.New(err, "failed to write inbox entry")
		}
	}

	err = RecordMentions(ctx, tx, post, actor, sets.Mentions)
	if err != nil {
		return err
	}

	d.Metrics().RecordActivity(activityType.Label())
	d.Metrics().RecordRecipients(len(sets.Inbox) + len(sets.Mentions))
	d.Metrics().RecordFanOutLatency(time.Since(start))

	d.deferInstantEmails(ctx, settings, snapshot, post, actor, activityType.Label(), sets.Email)

	return nil
}

func activityTypeFor(snapshot *ThreadSnapshot, post *models.Post, rev *models.PostRevision) models.ActivityType {
	isEdit := rev.Revision > 1
	switch post.Kind {
	case models.PostKindQuestion:
		if isEdit {
			return models.ActivityUpdateQuestion
		}
		return models.ActivityAskQuestion
	case models.PostKindAnswer:
		if isEdit {
			return models.ActivityUpdateAnswer
		}
		return models.ActivityAnswer
	case models.PostKindComment:
		if post.ParentID != nil {
			if parent := snapshot.Node(*post.ParentID); parent != nil && parent.Post.Kind == models.PostKindAnswer {
				return models.ActivityCommentAnswer
			}
		}
		return models.ActivityCommentQuestion
	}
	return models.ActivityPostShared
}

// deferInstantEmails schedules one email per recipient after the
// notification delay. A (thread, actor) cooldown marker suppresses
// follow-up sends so a burst of quick edits produces one message; the
// check-then-set is racy on purpose, best effort is fine here.
func (d *Dispatcher) deferInstantEmails(
	ctx context.Context,
	settings Settings,
	snapshot *ThreadSnapshot,
	post *models.Post,
	actor *models.User,
	actionLabel string,
	recipients []*models.User,
) {
	if d == nil || d.Runner == nil || d.Email == nil || len(recipients) == 0 {
		return
	}

	if !d.cooldowns.allow(cooldownKey{ThreadID: snapshot.Thread.ID, ActorID: actor.ID}, settings.EmailCooldown) {
		d.Metrics().RecordEmailSkipped("cooldown")
		return
	}

	subject := fmt.Sprintf("[%s] %s %s", snapshot.Thread.Title, actor.Username, actionLabel)
	var to []email.Recipient
	for _, u := range recipients {
		if u.Email == "" {
			d.Metrics().RecordEmailSkipped("no_address")
			continue
		}
		to = append(to, email.Recipient{Address: u.Email, Name: u.Username})
	}
	if len(to) == 0 {
		return
	}

	postID := post.ID
	body := post.HTML
	d.Runner.Defer("instant notification email", settings.NotificationDelay, func() {
		taskCtx := context.Background()
		logger := logging.With().Int("postId", postID).Logger()
		taskCtx = logging.AttachLoggerToContext(&logger, taskCtx)

		// The post may be gone by the time we fire; then there is nothing
		// to say.
		current, err := db.QueryOne[models.Post](taskCtx, d.Conn,
			`
			SELECT $columns
			FROM post
			WHERE id = $1 AND NOT deleted
			`,
			postID,
		)
		if err != nil {
			if !errors.Is(err, db.NotFound) {
				logger.Error().Err(err).Msg("failed to re-check post before emailing")
			}
			return
		}
		if !current.Approved {
			return
		}

		err = d.Email.Send(taskCtx, subject, body, to)
		if err != nil {
			d.Metrics().RecordEmailFailed()
			logger.Error().Err(err).Msg("failed to send instant notification email")
			return
		}
		d.Metrics().RecordEmailSent()
	})
}

// AcknowledgeQueued mails an email-gateway author that their post reached
// the moderation queue, since they cannot see the on-site pending banner.
func (d *Dispatcher) AcknowledgeQueued(ctx context.Context, settings Settings, post *models.Post, rev *models.PostRevision) {
	if d == nil || d.Runner == nil || d.Email == nil {
		return
	}
	if rev.EmailAddress == "" {
		d.Metrics().RecordEmailSkipped("no_address")
		return
	}

	to := []email.Recipient{{Address: rev.EmailAddress}}
	d.Runner.Defer("moderation queue acknowledgement", 0, func() {
		err := d.Email.Send(context.Background(),
			"Your post is awaiting moderation",
			"<p>Thank you! Your post has been received and will appear once a moderator approves it.</p>",
			to,
		)
		if err != nil {
			d.Metrics().RecordEmailFailed()
			logging.Error().Err(err).Msg("failed to send moderation acknowledgement")
			return
		}
		d.Metrics().RecordEmailSent()
	})
}

// AcknowledgePublished mails an email-gateway author that their pending
// post went live. Site users see it happen; gateway authors only hear
// back by mail.
func (d *Dispatcher) AcknowledgePublished(ctx context.Context, settings Settings, post *models.Post, rev *models.PostRevision) {
	if d == nil || d.Runner == nil || d.Email == nil {
		return
	}
	if rev.EmailAddress == "" {
		d.Metrics().RecordEmailSkipped("no_address")
		return
	}

	to := []email.Recipient{{Address: rev.EmailAddress}}
	body := post.HTML
	d.Runner.Defer("publication acknowledgement", 0, func() {
		err := d.Email.Send(context.Background(),
			"Your post has been published",
			"<p>Your post was approved and is now live:</p>"+body,
			to,
		)
		if err != nil {
			d.Metrics().RecordEmailFailed()
			logging.Error().Err(err).Msg("failed to send publication acknowledgement")
			return
		}
		d.Metrics().RecordEmailSent()
	})
}

// DeferDeleteUpdateNotifications queues cleanup of edit notifications tied
// to a post that was merged away or deleted.
func (d *Dispatcher) DeferDeleteUpdateNotifications(ctx context.Context, settings Settings, postID int) {
	if d == nil || d.Runner == nil {
		return
	}
	d.Runner.Defer("delete update notifications", settings.NotificationDelay, func() {
		err := DeleteUpdateNotifications(context.Background(), d.Conn, postID)
		if err != nil {
			logging.Error().Err(err).Int("postId", postID).Msg("failed to delete stale update notifications")
		}
	})
}

type cooldownKey struct {
	ThreadID int
	ActorID  int
}

// In-process, best-effort marker store. Entries expire lazily on the next
// check.
type cooldownStore struct {
	mu      sync.Mutex
	markers map[cooldownKey]time.Time
}

func (s *cooldownStore) allow(key cooldownKey, expiry time.Duration) bool {
	if expiry <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markers == nil {
		s.markers = make(map[cooldownKey]time.Time)
	}
	now := time.Now()
	if until, ok := s.markers[key]; ok && now.Before(until) {
		return false
	}
	s.markers[key] = now.Add(expiry)
	return true
}
