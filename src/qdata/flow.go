package qdata

import (
	"context"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
)

// HandlePostSaved runs the post-save pipeline: mention extraction and
// reconciliation, recipient resolution, and fan-out. Call it after
// CreatePost or CreateRevision, in the same transaction.
//
// Pending revisions skip fan-out entirely; the moderation queue already
// told the people who need to know, and the audience hears when the post
// publishes.
func HandlePostSaved(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	post *models.Post,
	rev *models.PostRevision,
	actor *models.User,
	makeProfileLink func(u *models.User) string,
) (NotifySets, error) {
	if !post.Kind.IsContent() || post.ThreadID == nil {
		return NotifySets{}, nil
	}
	if rev.IsPending() || !post.Approved {
		return NotifySets{}, nil
	}

	snapshot, err := FetchThreadSnapshot(ctx, tx, *post.ThreadID)
	if err != nil {
		return NotifySets{}, err
	}

	mentions, err := ParseMentions(ctx, tx, snapshot, post, post.HTML, makeProfileLink)
	if err != nil {
		return NotifySets{}, err
	}
	if mentions.HTML != post.HTML {
		post.HTML = mentions.HTML
		_, err := tx.Exec(ctx,
			`
			UPDATE post
			SET html = $1
			WHERE id = $2
			`,
			post.HTML, post.ID,
		)
		if err != nil {
			return NotifySets{}, oops.New(err, "failed to store linkified html")
		}
	}

	env, err := FetchNotifyEnv(ctx, tx, settings, snapshot)
	if err != nil {
		return NotifySets{}, err
	}

	// Actors never notify themselves.
	sets := ComputeNotifySets(env, post, mentions.NewlyMentioned, []*models.User{actor})

	err = ExtractDispatcher(ctx).PublishActivity(ctx, tx, settings, snapshot, post, rev, actor, sets)
	if err != nil {
		return NotifySets{}, err
	}

	return sets, nil
}
