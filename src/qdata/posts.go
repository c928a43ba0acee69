package qdata

import (
	"context"
	"time"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/markup"
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
	"git.quorum.forum/qf/qf/src/perf"
)

type CreatePostInput struct {
	Kind     models.PostKind
	ThreadID *int
	Parent   *models.Post // The question or answer a new comment hangs off of
	Author   *models.User
	Text     string
	Summary  string
	Language string
	Meta     RevisionMeta

	// Group scoping overrides. Default is to inherit: comments copy the
	// parent's groups, thread posts copy the thread's groups.
	GroupIDs    []int
	MakePrivate bool
}

// CreatePost writes a new post row and its first revision in one go. The
// post might come out unapproved if the author is under premoderation; the
// returned revision tells you which way it went.
func CreatePost(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	input CreatePostInput,
) (*models.Post, *models.PostRevision, error) {
	p := perf.ExtractPerf(ctx)
	b := p.StartBlock("SQL", "Create post")
	defer b.End()

	if input.Author == nil {
		return nil, nil, validationErr("author", "a post requires an author")
	}
	if !input.Author.CanPost() {
		return nil, nil, validationErr("author", "this user may not post")
	}
	if input.Kind == models.PostKindComment && input.Parent == nil {
		return nil, nil, validationErr("parent", "a comment requires a parent post")
	}
	if input.Kind.IsContent() && input.ThreadID == nil {
		return nil, nil, validationErr("thread", "content posts belong to a thread")
	}

	var parentID *int
	if input.Parent != nil {
		parentID = &input.Parent.ID
	}

	post := &models.Post{
		Kind:     input.Kind,
		ThreadID: input.ThreadID,
		ParentID: parentID,
		AuthorID: input.Author.ID,
		AddedAt:  time.Now(),
		Approved: true,
		Language: input.Language,
	}
	id, err := db.QueryOneScalar[int](ctx, tx,
		`
		INSERT INTO post (kind, thread_id, parent_id, author_id, added_at, approved, language)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
		`,
		post.Kind, post.ThreadID, post.ParentID, post.AuthorID,
		post.AddedAt, post.Approved, post.Language,
	)
	if err != nil {
		return nil, nil, oops.New(err, "failed to insert post")
	}
	post.ID = id

	err = assignInitialGroups(ctx, tx, settings, post, input)
	if err != nil {
		return nil, nil, err
	}

	rev, err := CreateRevision(ctx, tx, settings, post, input.Author, input.Text, input.Summary, input.Meta)
	if err != nil {
		return nil, nil, err
	}

	if input.Kind == models.PostKindComment {
		_, err := RecountComments(ctx, tx, input.Parent)
		if err != nil {
			return nil, nil, err
		}
	}
	if input.Kind == models.PostKindAnswer {
		err := recountThreadAnswers(ctx, tx, *input.ThreadID)
		if err != nil {
			return nil, nil, err
		}
	}

	return post, rev, nil
}

// setCurrentRevision advances the post's current-revision pointer. The
// denormalized text/html/summary mirror the current revision, so this is
// the only place any of them change; callers never write those columns
// directly.
func setCurrentRevision(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	post *models.Post,
	rev *models.PostRevision,
) error {
	html := markup.RenderPost(rev.Text)

	if settings.ContentModerator != "" {
		moderated, altered := ModerateHTML(settings.ContentModerator, post, html)
		if altered {
			html = moderated
			err := EnqueueRevision(ctx, tx, settings, post, rev)
			if err != nil {
				return oops.New(err, "failed to enqueue revision after content moderation")
			}
		}
	}

	summary := markup.Snippet(html, settings.SummaryChars)

	post.CurrentRevisionID = &rev.ID
	post.Text = rev.Text
	post.HTML = html
	post.Summary = summary
	now := time.Now()
	post.LastEditedAt = &now
	post.LastEditedByID = &rev.AuthorID

	_, err := tx.Exec(ctx,
		`
		UPDATE post
		SET current_revision_id = $1, text = $2, html = $3, summary = $4,
			last_edited_at = $5, last_edited_by_id = $6
		WHERE id = $7
		`,
		rev.ID, post.Text, post.HTML, post.Summary,
		post.LastEditedAt, post.LastEditedByID, post.ID,
	)
	if err != nil {
		return oops.New(err, "failed to update the post's current revision")
	}

	if post.Kind == models.PostKindQuestion && post.ThreadID != nil {
		_, err := tx.Exec(ctx,
			`
			UPDATE thread
			SET title = $1, tagnames = $2, last_activity_at = $3, last_activity_by_id = $4
			WHERE id = $5
			`,
			rev.Title, rev.Tagnames, now, rev.AuthorID, *post.ThreadID,
		)
		if err != nil {
			return oops.New(err, "failed to sync thread title and tags")
		}
	} else if post.ThreadID != nil {
		_, err := tx.Exec(ctx,
			`
			UPDATE thread
			SET last_activity_at = $1, last_activity_by_id = $2
			WHERE id = $3
			`,
			now, rev.AuthorID, *post.ThreadID,
		)
		if err != nil {
			return oops.New(err, "failed to bump thread activity")
		}
	}

	ExtractDispatcher(ctx).PingSearch(ctx, post)

	return nil
}

// RefreshPostDerived recomputes the denormalized content columns from the
// current revision. Use it after anything that might have touched the
// revision out of band, e.g. a merge.
func RefreshPostDerived(ctx context.Context, tx db.ConnOrTx, settings Settings, post *models.Post) error {
	if post.CurrentRevisionID == nil {
		return nil
	}
	rev, err := db.QueryOne[models.PostRevision](ctx, tx,
		`
		SELECT $columns
		FROM post_revision
		WHERE id = $1
		`,
		*post.CurrentRevisionID,
	)
	if err != nil {
		return oops.New(err, "failed to fetch the current revision")
	}
	return setCurrentRevision(ctx, tx, settings, post, rev)
}

// DeletePost soft-deletes a post. The row stays so activity history keeps
// its referents; mention records and update notifications tied to it are
// cleaned up, and parent counters are recomputed after the removal, not
// before.
func DeletePost(ctx context.Context, tx db.ConnOrTx, settings Settings, post *models.Post) error {
	p := perf.ExtractPerf(ctx)
	b := p.StartBlock("SQL", "Delete post")
	defer b.End()

	_, err := tx.Exec(ctx,
		`
		UPDATE post
		SET deleted = TRUE
		WHERE id = $1
		`,
		post.ID,
	)
	if err != nil {
		return oops.New(err, "failed to mark post as deleted")
	}
	post.Deleted = true

	err = DeleteMentionsIn(ctx, tx, post.ID)
	if err != nil {
		return err
	}

	switch post.Kind {
	case models.PostKindQuestion:
		if post.ThreadID != nil {
			_, err := tx.Exec(ctx,
				`
				UPDATE thread
				SET deleted = TRUE
				WHERE id = $1
				`,
				*post.ThreadID,
			)
			if err != nil {
				return oops.New(err, "failed to mark thread as deleted")
			}
		}
	case models.PostKindAnswer:
		if post.ThreadID != nil {
			err := recountThreadAnswers(ctx, tx, *post.ThreadID)
			if err != nil {
				return err
			}
		}
	case models.PostKindComment:
		if post.ParentID != nil {
			parent, err := db.QueryOne[models.Post](ctx, tx,
				`
				SELECT $columns
				FROM post
				WHERE id = $1
				`,
				*post.ParentID,
			)
			if err != nil {
				return oops.New(err, "failed to fetch comment parent")
			}
			_, err = RecountComments(ctx, tx, parent)
			if err != nil {
				return err
			}
			ExtractRequestCache(ctx).InvalidateComments(*post.ParentID)
		}
	}

	ExtractDispatcher(ctx).DeferDeleteUpdateNotifications(ctx, settings, post.ID)

	return nil
}

// MergePosts folds source into target: source's revisions replay onto
// target as sequential edits, source's comments reparent, counters recount,
// and source is soft-deleted. Stale update notifications for the source are
// cleaned up asynchronously.
func MergePosts(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	target *models.Post,
	source *models.Post,
) error {
	if target.Kind != source.Kind {
		return validationErr("post", "cannot merge posts of different kinds")
	}
	if target.ID == source.ID {
		return validationErr("post", "cannot merge a post into itself")
	}

	revs, err := db.Query[models.PostRevision](ctx, tx,
		`
		SELECT $columns
		FROM post_revision
		WHERE post_id = $1 AND revision > 0
		ORDER BY revision
		`,
		source.ID,
	)
	if err != nil {
		return oops.New(err, "failed to fetch source revisions")
	}

	var lastRev *models.PostRevision
	for _, srcRev := range revs {
		ordinal, err := db.QueryOneScalar[int](ctx, tx,
			`
			SELECT COALESCE(MAX(revision), 0) + 1
			FROM post_revision
			WHERE post_id = $1
			`,
			target.ID,
		)
		if err != nil {
			return oops.New(err, "failed to compute merged ordinal")
		}
		_, err = tx.Exec(ctx,
			`
			UPDATE post_revision
			SET post_id = $1, revision = $2
			WHERE id = $3
			`,
			target.ID, ordinal, srcRev.ID,
		)
		if err != nil {
			return oops.New(err, "failed to move revision to merge target")
		}
		srcRev.PostID = target.ID
		srcRev.Revision = ordinal
		lastRev = srcRev
	}

	_, err = tx.Exec(ctx,
		`
		UPDATE post
		SET parent_id = $1
		WHERE parent_id = $2 AND kind = $3
		`,
		target.ID, source.ID, models.PostKindComment,
	)
	if err != nil {
		return oops.New(err, "failed to reparent comments onto merge target")
	}
	ExtractRequestCache(ctx).InvalidateComments(target.ID)
	ExtractRequestCache(ctx).InvalidateComments(source.ID)

	if lastRev != nil {
		err = setCurrentRevision(ctx, tx, settings, target, lastRev)
		if err != nil {
			return err
		}
	}
	_, err = RecountComments(ctx, tx, target)
	if err != nil {
		return err
	}

	// DeletePost also schedules the stale-notification cleanup for source.
	err = DeletePost(ctx, tx, settings, source)
	if err != nil {
		return err
	}

	return nil
}

// DeleteUpdateNotifications removes edit/update activity records pointing
// at a post. It runs from deferred tasks after merges and deletes, so it
// tolerates the post being long gone.
func DeleteUpdateNotifications(ctx context.Context, dbConn db.ConnOrTx, postID int) error {
	updateTypes := []models.ActivityType{
		models.ActivityUpdateQuestion,
		models.ActivityUpdateAnswer,
	}
	_, err := dbConn.Exec(ctx,
		`
		DELETE FROM activity_recipient
		WHERE activity_id IN (
			SELECT id FROM activity
			WHERE post_id = $1 AND activity_type = ANY ($2)
		)
		`,
		postID, updateTypes,
	)
	if err != nil {
		return oops.New(err, "failed to delete update notification recipients")
	}
	_, err = dbConn.Exec(ctx,
		`
		DELETE FROM activity
		WHERE post_id = $1 AND activity_type = ANY ($2)
		`,
		postID, updateTypes,
	)
	if err != nil {
		return oops.New(err, "failed to delete update notifications")
	}
	return nil
}

// Whether the author should get a "your post is live" email once a revision
// publishes. Site users watch it happen; email-gateway authors cannot.
func ShouldNotifyAuthorAboutPublishing(rev *models.PostRevision) bool {
	return rev.ByEmail
}

// PostTeaser is the collapsed body shown in thread listings and digests.
// Short posts come back whole; longer ones are cut at the word limit with
// the expander widget inside the markup.
func PostTeaser(settings Settings, post *models.Post) string {
	return markup.SnippetWithExpander(post.HTML, settings.SnippetWords)
}

func recountThreadAnswers(ctx context.Context, tx db.ConnOrTx, threadID int) error {
	_, err := tx.Exec(ctx,
		`
		UPDATE thread
		SET answer_count = (
			SELECT COUNT(*)
			FROM post
			WHERE thread_id = $1 AND kind = $2 AND NOT deleted AND approved
		)
		WHERE id = $1
		`,
		threadID, models.PostKindAnswer,
	)
	if err != nil {
		return oops.New(err, "failed to recount thread answers")
	}
	return nil
}
