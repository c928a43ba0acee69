package qdata

import (
	"context"
	"strings"
	"time"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/markup"
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
	"git.quorum.forum/qf/qf/src/perf"
)

// MentionResult is what came out of scanning one post body for @-mentions.
type MentionResult struct {
	// The body with recognized mentions turned into profile links.
	HTML string

	// Users mentioned now but not in the previous revision. These drive
	// notification fan-out.
	NewlyMentioned []*models.User

	// Mention records from the previous revision whose mentions were
	// edited out. Already deleted by the time this returns.
	RemovedMentions []*models.Activity
}

// ParseMentions scans a post's rendered body for @-mentions, linkifies
// them, and reconciles the result against the post's existing mention
// records: stale ones are deleted, brand new ones are returned for
// downstream notification.
//
// Candidate users are the participants under the post's origin question,
// in participation order, plus any user whose name starts with a seed
// token from the text. Participants rank first so "@bob" in a thread
// where bob answered beats some other bob.
func ParseMentions(
	ctx context.Context,
	tx db.ConnOrTx,
	snapshot *ThreadSnapshot,
	post *models.Post,
	body string,
	makeProfileLink func(u *models.User) string,
) (MentionResult, error) {
	p := perf.ExtractPerf(ctx)
	b := p.StartBlock("SQL", "Parse mentions")
	defer b.End()

	result := MentionResult{HTML: body}
	if !strings.Contains(body, "@") {
		return result, nil
	}

	var anticipated []*models.User
	if origin := snapshot.Origin(); origin != nil {
		anticipated = origin.Participants(true)
		for _, answer := range snapshot.Answers {
			anticipated = append(anticipated, answer.Participants(true)...)
		}
		anticipated = dedupe(anticipated)
	}

	seeds := markup.ExtractMentionSeeds(body)
	if len(seeds) > 0 {
		extras, err := fetchUsersByNamePrefix(ctx, tx, seeds)
		if err != nil {
			return result, err
		}
		anticipated = dedupe(append(anticipated, extras...))
	}

	mentioned, html := markup.Mentionize(body, anticipated, makeProfileLink)
	result.HTML = html
	mentioned = dedupe(mentioned)

	// Diff against what the previous revision recorded, so an unchanged
	// mention is not reported twice and an edited-out one gets cleaned up.
	prior, err := fetchMentionRecords(ctx, tx, post.ID)
	if err != nil {
		return result, err
	}

	mentionedSet := userIDSet(mentioned)
	priorSet := make(map[int]bool)
	for _, rec := range prior {
		if mentionedSet[rec.mentionedUserID] {
			priorSet[rec.mentionedUserID] = true
		} else {
			err := deleteMentionRecord(ctx, tx, rec.activity.ID)
			if err != nil {
				return result, err
			}
			result.RemovedMentions = append(result.RemovedMentions, rec.activity)
		}
	}

	for _, u := range mentioned {
		if !priorSet[u.ID] && u.ID != post.AuthorID {
			result.NewlyMentioned = append(result.NewlyMentioned, u)
		}
	}

	return result, nil
}

// RecordMentions writes mention records for newly mentioned users. One
// activity per mentioned user, the mentioned user as its sole recipient.
func RecordMentions(
	ctx context.Context,
	tx db.ConnOrTx,
	post *models.Post,
	actor *models.User,
	mentioned []*models.User,
) error {
	for _, u := range mentioned {
		activity, err := createActivity(ctx, tx, &models.Activity{
			UserID:   actor.ID,
			Type:     models.ActivityMention,
			ActiveAt: time.Now(),
			PostID:   &post.ID,
			ThreadID: post.ThreadID,
			Summary:  post.Summary,
		})
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`
			INSERT INTO activity_recipient (activity_id, recipient_id, seen)
			VALUES ($1, $2, FALSE)
			ON CONFLICT (activity_id, recipient_id) DO NOTHING
			`,
			activity.ID, u.ID,
		)
		if err != nil {
			return oops.New(err, "failed to attach mention recipient")
		}
	}
	return nil
}

// DeleteMentionsIn drops all mention records pointing at a post. Used when
// the post is deleted.
func DeleteMentionsIn(ctx context.Context, tx db.ConnOrTx, postID int) error {
	records, err := fetchMentionRecords(ctx, tx, postID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		err := deleteMentionRecord(ctx, tx, rec.activity.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

type mentionRecord struct {
	activity        *models.Activity
	mentionedUserID int
}

func fetchMentionRecords(ctx context.Context, dbConn db.ConnOrTx, postID int) ([]mentionRecord, error) {
	type row struct {
		Activity    models.Activity `db:"activity"`
		RecipientID int             `db:"activity_recipient.recipient_id"`
	}
	rows, err := db.Query[row](ctx, dbConn,
		`
		SELECT $columns
		FROM
			activity
			JOIN activity_recipient ON activity_recipient.activity_id = activity.id
		WHERE
			activity.post_id = $1
			AND activity.activity_type = $2
		`,
		postID, models.ActivityMention,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch mention records")
	}

	records := make([]mentionRecord, len(rows))
	for i, r := range rows {
		records[i] = mentionRecord{activity: &r.Activity, mentionedUserID: r.RecipientID}
	}
	return records, nil
}

func deleteMentionRecord(ctx context.Context, tx db.ConnOrTx, activityID int) error {
	_, err := tx.Exec(ctx,
		`
		DELETE FROM activity_recipient
		WHERE activity_id = $1
		`,
		activityID,
	)
	if err != nil {
		return oops.New(err, "failed to delete mention recipients")
	}
	_, err = tx.Exec(ctx,
		`
		DELETE FROM activity
		WHERE id = $1
		`,
		activityID,
	)
	if err != nil {
		return oops.New(err, "failed to delete mention record")
	}
	return nil
}

func fetchUsersByNamePrefix(ctx context.Context, dbConn db.ConnOrTx, seeds []string) ([]*models.User, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		SELECT $columns
		FROM qf_user
		WHERE FALSE
		`,
	)
	for _, seed := range seeds {
		qb.Add(`OR LOWER(username) LIKE LOWER($?) || '%'`, seed)
	}

	users, err := db.Query[models.User](ctx, dbConn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch mention candidates")
	}
	return users, nil
}
