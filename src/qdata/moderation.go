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

// EnqueueRevision places a pending revision on the moderation queue. The
// queue entry is a singleton per (activity type, revision): re-entering the
// queue reuses the entry, and recipients are only ever attached once.
func EnqueueRevision(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	post *models.Post,
	rev *models.PostRevision,
) error {
	p := perf.ExtractPerf(ctx)
	b := p.StartBlock("SQL", "Enqueue revision for moderation")
	defer b.End()

	activityType := models.ActivityModeratedPostEdit
	if rev.IsPending() {
		isFirst, err := db.QueryOneScalar[bool](ctx, tx,
			`
			SELECT COUNT(*) = 0
			FROM post_revision
			WHERE post_id = $1 AND id != $2
			`,
			post.ID, rev.ID,
		)
		if err != nil {
			return oops.New(err, "failed to check whether revision is the first")
		}
		if isFirst {
			// A brand new post awaiting its first approval is hidden from
			// the general audience entirely.
			activityType = models.ActivityModeratedNewPost
			err := SetPostApproved(ctx, tx, post, false)
			if err != nil {
				return err
			}
		}
	}

	activity, err := db.QueryOne[models.Activity](ctx, tx,
		`
		SELECT $columns
		FROM activity
		WHERE activity_type = $1 AND revision_id = $2
		`,
		activityType, rev.ID,
	)
	if errors.Is(err, db.NotFound) {
		activity, err = createActivity(ctx, tx, &models.Activity{
			UserID:     rev.AuthorID,
			Type:       activityType,
			ActiveAt:   time.Now(),
			PostID:     &post.ID,
			RevisionID: &rev.ID,
			ThreadID:   post.ThreadID,
			Summary:    rev.Summary,
		})
	}
	if err != nil {
		return oops.New(err, "failed to get or create the moderation queue entry")
	}

	_, err = tx.Exec(ctx,
		`
		INSERT INTO activity_recipient (activity_id, recipient_id, seen)
		SELECT $1, id, FALSE
		FROM qf_user
		WHERE is_moderator OR is_administrator
		ON CONFLICT (activity_id, recipient_id) DO NOTHING
		`,
		activity.ID,
	)
	if err != nil {
		return oops.New(err, "failed to attach moderators to the queue entry")
	}

	dispatcher := ExtractDispatcher(ctx)
	dispatcher.Metrics().RecordModerationQueued()

	if settings.Premoderation() && rev.ByEmail {
		// The author mailed this in and cannot see the site's pending
		// banner, so acknowledge receipt by mail.
		dispatcher.AcknowledgeQueued(ctx, settings, post, rev)
	} else {
		_, err = tx.Exec(ctx,
			`
			INSERT INTO activity_recipient (activity_id, recipient_id, seen)
			VALUES ($1, $2, FALSE)
			ON CONFLICT (activity_id, recipient_id) DO NOTHING
			`,
			activity.ID, rev.AuthorID,
		)
		if err != nil {
			return oops.New(err, "failed to record the author's pending notice")
		}
	}

	return nil
}

// Ordinal-0 revisions are drafts: only moderators, admins, and the author
// may see them. Everything else is public record.
func RevisionVisibleTo(rev *models.PostRevision, viewer *models.User) bool {
	if !rev.IsPending() {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.IsAdminOrMod() || viewer.ID == rev.AuthorID
}

// SetPostApproved flips the post's approval flag. Questions keep their
// thread's flag in sync: the two are denormalized views of the same fact
// and must never disagree.
func SetPostApproved(ctx context.Context, tx db.ConnOrTx, post *models.Post, approved bool) error {
	_, err := tx.Exec(ctx,
		`
		UPDATE post
		SET approved = $1
		WHERE id = $2
		`,
		approved, post.ID,
	)
	if err != nil {
		return oops.New(err, "failed to update post approval")
	}
	post.Approved = approved

	if post.Kind == models.PostKindQuestion && post.ThreadID != nil {
		_, err := tx.Exec(ctx,
			`
			UPDATE thread
			SET approved = $1
			WHERE id = $2
			`,
			approved, *post.ThreadID,
		)
		if err != nil {
			return oops.New(err, "failed to sync thread approval")
		}
	}

	return nil
}

// ApproveRevision publishes a pending revision: it gets the next real
// ordinal, the post goes live, and the queue entry is resolved.
func ApproveRevision(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	post *models.Post,
	rev *models.PostRevision,
	moderator *models.User,
) error {
	if !rev.IsPending() {
		return validationErr("revision", "only a pending revision can be approved")
	}

	ordinal, err := db.QueryOneScalar[int](ctx, tx,
		`
		SELECT COALESCE(MAX(revision), 0) + 1
		FROM post_revision
		WHERE post_id = $1
		`,
		post.ID,
	)
	if err != nil {
		return oops.New(err, "failed to compute the published ordinal")
	}

	now := time.Now()
	_, err = tx.Exec(ctx,
		`
		UPDATE post_revision
		SET revision = $1, approved = TRUE, approved_at = $2, approved_by_id = $3
		WHERE id = $4
		`,
		ordinal, now, moderator.ID, rev.ID,
	)
	if err != nil {
		return oops.New(err, "failed to publish the revision")
	}
	rev.Revision = ordinal
	rev.Approved = true
	rev.ApprovedAt = &now
	rev.ApprovedByID = &moderator.ID

	err = SetPostApproved(ctx, tx, post, true)
	if err != nil {
		return err
	}

	err = setCurrentRevision(ctx, tx, settings, post, rev)
	if err != nil {
		return err
	}

	err = resolveQueueEntries(ctx, tx, rev.ID)
	if err != nil {
		return err
	}

	ExtractRequestCache(ctx).SetLatestRevision(rev)

	if ShouldNotifyAuthorAboutPublishing(rev) {
		ExtractDispatcher(ctx).AcknowledgePublished(ctx, settings, post, rev)
	}

	return nil
}

// RejectRevision drops a pending revision. If nothing published remains,
// the post itself is soft-deleted; a draft that never went live leaves no
// visible trace.
func RejectRevision(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	post *models.Post,
	rev *models.PostRevision,
) error {
	if !rev.IsPending() {
		return validationErr("revision", "only a pending revision can be rejected")
	}

	err := resolveQueueEntries(ctx, tx, rev.ID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`
		DELETE FROM post_revision
		WHERE id = $1
		`,
		rev.ID,
	)
	if err != nil {
		return oops.New(err, "failed to delete the rejected revision")
	}

	remaining, err := db.QueryOneScalar[int](ctx, tx,
		`
		SELECT COUNT(*)
		FROM post_revision
		WHERE post_id = $1 AND revision > 0
		`,
		post.ID,
	)
	if err != nil {
		return oops.New(err, "failed to count remaining revisions")
	}
	if remaining == 0 {
		return DeletePost(ctx, tx, settings, post)
	}

	return nil
}

// Deletes the moderation queue entries pointing at a revision, recipients
// included.
func resolveQueueEntries(ctx context.Context, tx db.ConnOrTx, revisionID int) error {
	_, err := tx.Exec(ctx,
		`
		DELETE FROM activity_recipient
		WHERE activity_id IN (
			SELECT id FROM activity
			WHERE revision_id = $1 AND activity_type = ANY ($2)
		)
		`,
		revisionID,
		[]models.ActivityType{models.ActivityModeratedNewPost, models.ActivityModeratedPostEdit},
	)
	if err != nil {
		return oops.New(err, "failed to clear queue entry recipients")
	}
	_, err = tx.Exec(ctx,
		`
		DELETE FROM activity
		WHERE revision_id = $1 AND activity_type = ANY ($2)
		`,
		revisionID,
		[]models.ActivityType{models.ActivityModeratedNewPost, models.ActivityModeratedPostEdit},
	)
	if err != nil {
		return oops.New(err, "failed to clear queue entries")
	}
	return nil
}

func createActivity(ctx context.Context, tx db.ConnOrTx, activity *models.Activity) (*models.Activity, error) {
	id, err := db.QueryOneScalar[int](ctx, tx,
		`
		INSERT INTO activity (user_id, activity_type, active_at, post_id, revision_id, thread_id, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
		`,
		activity.UserID, activity.Type, activity.ActiveAt,
		activity.PostID, activity.RevisionID, activity.ThreadID, activity.Summary,
	)
	if err != nil {
		return nil, oops.New(err, "failed to create activity")
	}
	activity.ID = id
	return activity, nil
}
