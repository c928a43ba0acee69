package qdata

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/email"
	"git.quorum.forum/qf/qf/src/logging"
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
	"git.quorum.forum/qf/qf/src/perf"
)

// RevisionMeta carries the optional parts of an edit: provenance, question
// title/tags, and flags from upstream gateways.
type RevisionMeta struct {
	// Only meaningful on question revisions.
	Title    string
	Tagnames string

	IsAnonymous bool

	// Set when the edit arrived through the email gateway.
	ByEmail      bool
	EmailAddress string
	IPAddr       *netip.Addr

	// The gateway or a moderator plugin already decided this edit needs
	// review, regardless of the author's standing.
	FlaggedForModeration bool
}

const maxRevisionTextLength = 200000

// CreateRevision appends one revision to a post and decides whether it
// becomes the current view or sits pending in the moderation queue.
//
// Not safe for concurrent edits to the same post: the pending-revision
// find-or-overwrite below is a read-then-write. Callers must serialize
// writers per post; the web tier does this with a per-post advisory lock.
func CreateRevision(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	post *models.Post,
	author *models.User,
	text string,
	summary string,
	meta RevisionMeta,
) (*models.PostRevision, error) {
	p := perf.ExtractPerf(ctx)
	b := p.StartBlock("SQL", "Create revision")
	defer b.End()

	if author == nil {
		return nil, validationErr("author", "a revision requires an author")
	}
	if text == "" {
		return nil, validationErr("text", "a revision requires text")
	}
	if meta.ByEmail && !email.IsEmail(meta.EmailAddress) {
		return nil, validationErr("email", "the gateway address is not a valid email address")
	}
	if len(text) > maxRevisionTextLength {
		logging.ExtractLogger(ctx).Warn().
			Str("preview", text[:400]).
			Msg("somebody attempted to create an extremely long revision; content was truncated")
		text = text[:maxRevisionTextLength-1]
	}

	isContentPost := post.Kind.IsContent()
	needsModeration := isContentPost && (author.NeedsModeration() || meta.FlaggedForModeration)

	var rev *models.PostRevision
	var err error
	if settings.Premoderation() && needsModeration {
		rev, err = upsertPendingRevision(ctx, tx, post, author, text, summary, meta)
	} else {
		rev, err = appendRevision(ctx, tx, post, author, text, summary, meta, !needsModeration)
	}
	if err != nil {
		return nil, err
	}

	if needsModeration {
		err := EnqueueRevision(ctx, tx, settings, post, rev)
		if err != nil {
			return nil, oops.New(err, "failed to enqueue revision for moderation")
		}
	}

	// Never replace an approved current view with a pending edit.
	advance := true
	if rev.IsPending() {
		hasPublished, err := db.QueryOneScalar[bool](ctx, tx,
			`
			SELECT COUNT(*) > 0
			FROM post_revision
			WHERE post_id = $1 AND revision > 0
			`,
			post.ID,
		)
		if err != nil {
			return nil, oops.New(err, "failed to check for published revisions")
		}
		advance = !hasPublished
	}
	if advance {
		err := setCurrentRevision(ctx, tx, settings, post, rev)
		if err != nil {
			return nil, err
		}
	}

	ExtractRequestCache(ctx).SetLatestRevision(rev)

	return rev, nil
}

// One pending revision per post: overwrite the existing ordinal-0 row if
// there is one, otherwise create it.
func upsertPendingRevision(
	ctx context.Context,
	tx db.ConnOrTx,
	post *models.Post,
	author *models.User,
	text string,
	summary string,
	meta RevisionMeta,
) (*models.PostRevision, error) {
	existing, err := db.QueryOne[models.PostRevision](ctx, tx,
		`
		SELECT $columns
		FROM post_revision
		WHERE post_id = $1 AND revision = 0
		`,
		post.ID,
	)
	if err != nil && !errors.Is(err, db.NotFound) {
		return nil, oops.New(err, "failed to look for a pending revision")
	}

	if existing != nil {
		existing.Text = text
		existing.Summary = summary
		existing.Title = meta.Title
		existing.Tagnames = meta.Tagnames
		existing.RevisedAt = time.Now()
		existing.Approved = false
		_, err := tx.Exec(ctx,
			`
			UPDATE post_revision
			SET text = $1, summary = $2, title = $3, tagnames = $4,
				revised_at = $5, approved = FALSE
			WHERE id = $6
			`,
			existing.Text, existing.Summary, existing.Title, existing.Tagnames,
			existing.RevisedAt, existing.ID,
		)
		if err != nil {
			return nil, oops.New(err, "failed to overwrite the pending revision")
		}
		return existing, nil
	}

	return insertRevision(ctx, tx, post, author, 0, text, summary, meta, false)
}

func appendRevision(
	ctx context.Context,
	tx db.ConnOrTx,
	post *models.Post,
	author *models.User,
	text string,
	summary string,
	meta RevisionMeta,
	approved bool,
) (*models.PostRevision, error) {
	ordinal, err := db.QueryOneScalar[int](ctx, tx,
		`
		SELECT COALESCE(MAX(revision), 0) + 1
		FROM post_revision
		WHERE post_id = $1
		`,
		post.ID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to compute the next revision ordinal")
	}

	if summary == "" {
		summary = RevisionLabel(ordinal)
	}

	rev, err := insertRevision(ctx, tx, post, author, ordinal, text, summary, meta, approved)
	if err != nil {
		return nil, err
	}

	logging.ExtractLogger(ctx).Debug().
		Int("postId", post.ID).
		Int("revision", ordinal).
		Msg("revision published")

	return rev, nil
}

// The generated edit summary when an author supplied none.
func RevisionLabel(ordinal int) string {
	if ordinal == 1 {
		return "initial version"
	}
	return fmt.Sprintf("revision %d", ordinal)
}

func insertRevision(
	ctx context.Context,
	tx db.ConnOrTx,
	post *models.Post,
	author *models.User,
	ordinal int,
	text string,
	summary string,
	meta RevisionMeta,
	approved bool,
) (*models.PostRevision, error) {
	rev := &models.PostRevision{
		PostID:       post.ID,
		Revision:     ordinal,
		AuthorID:     author.ID,
		RevisedAt:    time.Now(),
		Summary:      summary,
		Text:         text,
		Approved:     approved,
		Title:        meta.Title,
		Tagnames:     meta.Tagnames,
		IsAnonymous:  meta.IsAnonymous,
		ByEmail:      meta.ByEmail,
		EmailAddress: meta.EmailAddress,
		IPAddr:       meta.IPAddr,
	}

	id, err := db.QueryOneScalar[int](ctx, tx,
		`
		INSERT INTO post_revision (
			post_id, revision, author_id, revised_at, summary, text, approved,
			title, tagnames, is_anonymous, by_email, email_address, ip_addr
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
		`,
		rev.PostID, rev.Revision, rev.AuthorID, rev.RevisedAt, rev.Summary,
		rev.Text, rev.Approved, rev.Title, rev.Tagnames, rev.IsAnonymous,
		rev.ByEmail, rev.EmailAddress, rev.IPAddr,
	)
	if err != nil {
		return nil, oops.New(err, "failed to insert revision")
	}
	rev.ID = id

	return rev, nil
}

// Fetches the post's latest revision by ordinal, preferring the
// request-scoped cache.
func LatestRevision(ctx context.Context, dbConn db.ConnOrTx, postID int) (*models.PostRevision, error) {
	if rev, ok := ExtractRequestCache(ctx).LatestRevision(postID); ok {
		return rev, nil
	}

	rev, err := db.QueryOne[models.PostRevision](ctx, dbConn,
		`
		SELECT $columns
		FROM post_revision
		WHERE post_id = $1
		ORDER BY revision DESC
		LIMIT 1
		`,
		postID,
	)
	if err != nil {
		return nil, err
	}

	ExtractRequestCache(ctx).SetLatestRevision(rev)
	return rev, nil
}

// The action label shown next to a revision in history views.
func RevisionActionLabel(rev *models.PostRevision) string {
	if rev.IsPending() {
		return "proposed an edit"
	}
	if rev.Revision == 1 {
		return "posted"
	}
	return "updated"
}
