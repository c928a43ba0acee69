package qdata

import (
	"context"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
)

// RecountComments recomputes a post's comment count from its non-deleted,
// approved child comments and stores it. Recount-on-demand beats trying to
// keep a counter consistent across every delete/approve/merge path.
func RecountComments(ctx context.Context, tx db.ConnOrTx, parent *models.Post) (int, error) {
	count, err := db.QueryOneScalar[int](ctx, tx,
		`
		SELECT COUNT(*)
		FROM post
		WHERE
			parent_id = $1
			AND kind = $2
			AND NOT deleted
			AND approved
		`,
		parent.ID, models.PostKindComment,
	)
	if err != nil {
		return 0, oops.New(err, "failed to recount comments")
	}

	_, err = tx.Exec(ctx,
		`
		UPDATE post
		SET comment_count = $1
		WHERE id = $2
		`,
		count, parent.ID,
	)
	if err != nil {
		return 0, oops.New(err, "failed to store comment count")
	}
	parent.CommentCount = count

	ExtractRequestCache(ctx).InvalidateComments(parent.ID)

	return count, nil
}

// FetchComments loads a post's live comments in posting order, memoized on
// the request cache.
func FetchComments(ctx context.Context, dbConn db.ConnOrTx, parentID int) ([]*models.Post, error) {
	if comments, ok := ExtractRequestCache(ctx).Comments(parentID); ok {
		return comments, nil
	}

	comments, err := db.Query[models.Post](ctx, dbConn,
		`
		SELECT $columns
		FROM post
		WHERE
			parent_id = $1
			AND kind = $2
			AND NOT deleted
		ORDER BY added_at
		`,
		parentID, models.PostKindComment,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch comments")
	}

	ExtractRequestCache(ctx).SetComments(parentID, comments)
	return comments, nil
}

// CommentOrderNumber is the 1-based position of a comment under its parent.
// Panics when called on anything but a comment.
func CommentOrderNumber(ctx context.Context, dbConn db.ConnOrTx, post *models.Post) (int, error) {
	if post.Kind != models.PostKindComment {
		panic(oops.New(nil, "order number requested for a %s post", post.Kind))
	}
	earlier, err := db.QueryOneScalar[int](ctx, dbConn,
		`
		SELECT COUNT(*)
		FROM post
		WHERE
			parent_id = $1
			AND kind = $2
			AND added_at < $3
		`,
		*post.ParentID, models.PostKindComment, post.AddedAt,
	)
	if err != nil {
		return 0, oops.New(err, "failed to count earlier comments")
	}
	return earlier + 1, nil
}

// IsLastComment reports whether no newer comments exist under the same
// parent. Panics when called on anything but a comment.
func IsLastComment(ctx context.Context, dbConn db.ConnOrTx, post *models.Post) (bool, error) {
	if post.Kind != models.PostKindComment {
		panic(oops.New(nil, "is-last requested for a %s post", post.Kind))
	}
	newer, err := db.QueryOneScalar[int](ctx, dbConn,
		`
		SELECT COUNT(*)
		FROM post
		WHERE
			parent_id = $1
			AND kind = $2
			AND added_at > $3
		`,
		*post.ParentID, models.PostKindComment, post.AddedAt,
	)
	if err != nil {
		return false, oops.New(err, "failed to count newer comments")
	}
	return newer == 0, nil
}

// GetPreviousAnswer finds the answer posted most recently before this one
// in the same thread. Panics when called on anything but an answer.
//
// The trailing timestamp guard looks redundant next to the added_at filter
// above it, and it is, but its observable effect is that a same-timestamp
// sibling never comes back. Callers rely on that, so it stays.
func GetPreviousAnswer(snapshot *ThreadSnapshot, post *models.Post) *models.Post {
	if post.Kind != models.PostKindAnswer {
		panic(oops.New(nil, "previous answer requested for a %s post", post.Kind))
	}

	var best *models.Post
	for _, node := range snapshot.Answers {
		answer := node.Post
		if answer.Deleted || !answer.AddedAt.Before(post.AddedAt) {
			continue
		}
		if best == nil || answer.AddedAt.After(best.AddedAt) {
			best = answer
		}
	}

	if best == nil {
		return nil
	}
	if best.ID == post.ID {
		return nil
	}
	if best.AddedAt.After(post.AddedAt) {
		return nil
	}

	return best
}
