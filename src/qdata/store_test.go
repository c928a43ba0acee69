package qdata

import (
	"context"
	"os"
	"testing"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/migration/migrations"
	"git.quorum.forum/qf/qf/src/models"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

// The tests below run the real queries against a real database. Point
// QF_DATABASE_URL at an empty Postgres database to run them; without it
// they skip. Each test builds the schema inside a transaction that is
// rolled back afterwards, so the database stays empty.
func beginTestTx(t *testing.T) (context.Context, pgx.Tx) {
	t.Helper()

	url := os.Getenv("QF_DATABASE_URL")
	if url == "" {
		t.Skip("set QF_DATABASE_URL to run database tests")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect to the test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close(context.Background())
	})

	tx, err := conn.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin the test transaction: %v", err)
	}
	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})

	err = migrations.InitialSchema{}.Up(ctx, tx)
	if err != nil {
		t.Fatalf("failed to build the schema: %v", err)
	}

	return ctx, tx
}

func seedUser(t *testing.T, ctx context.Context, tx pgx.Tx, username string, status models.UserStatus) *models.User {
	t.Helper()
	u, err := db.QueryOne[models.User](ctx, tx,
		`
		INSERT INTO qf_user (username, email, status)
		VALUES ($1, $2, $3)
		RETURNING $columns
		`,
		username, username+"@example.com", status,
	)
	if err != nil {
		t.Fatalf("failed to seed user %s: %v", username, err)
	}
	return u
}

func seedThread(t *testing.T, ctx context.Context, tx pgx.Tx, author *models.User, title string) int {
	t.Helper()
	id, err := db.QueryOneScalar[int](ctx, tx,
		`
		INSERT INTO thread (title, last_activity_by_id)
		VALUES ($1, $2)
		RETURNING id
		`,
		title, author.ID,
	)
	if err != nil {
		t.Fatalf("failed to seed thread: %v", err)
	}
	return id
}

func seedQuestion(t *testing.T, ctx context.Context, tx pgx.Tx, settings Settings, author *models.User, text string) (*models.Post, *models.PostRevision, int) {
	t.Helper()
	threadID := seedThread(t, ctx, tx, author, "how do I configure eth0")
	post, rev, err := CreatePost(ctx, tx, settings, CreatePostInput{
		Kind:     models.PostKindQuestion,
		ThreadID: &threadID,
		Author:   author,
		Text:     text,
		Meta:     RevisionMeta{Title: "how do I configure eth0", Tagnames: "linux networking"},
	})
	if err != nil {
		t.Fatalf("failed to seed question: %v", err)
	}
	return post, rev, threadID
}

func profileLink(u *models.User) string {
	return "/users/" + u.Username
}

func TestPendingRevisionLifecycle(t *testing.T) {
	ctx, tx := beginTestTx(t)
	settings := DefaultSettings()

	asker := seedUser(t, ctx, tx, "asker", models.UserStatusApproved)
	watched := seedUser(t, ctx, tx, "newbie", models.UserStatusWatched)

	post, published, _ := seedQuestion(t, ctx, tx, settings, asker, "plug in the cable")
	assert.Equal(t, 1, published.Revision)

	settings.ModerationMode = ModerationPremoderation

	// Repeated edits by a watched user overwrite the one pending slot
	// instead of stacking up.
	for _, text := range []string{"draft one", "draft two", "draft three"} {
		rev, err := CreateRevision(ctx, tx, settings, post, watched, text, "", RevisionMeta{})
		assert.NoError(t, err)
		assert.Equal(t, 0, rev.Revision)
	}

	pendingCount, err := db.QueryOneScalar[int](ctx, tx,
		`SELECT COUNT(*) FROM post_revision WHERE post_id = $1 AND revision = 0`,
		post.ID,
	)
	assert.NoError(t, err)
	assert.Equal(t, 1, pendingCount)

	pendingText, err := db.QueryOneScalar[string](ctx, tx,
		`SELECT text FROM post_revision WHERE post_id = $1 AND revision = 0`,
		post.ID,
	)
	assert.NoError(t, err)
	assert.Equal(t, "draft three", pendingText)

	// The published revision stays the current view; a pending edit never
	// replaces it.
	currentID, err := db.QueryOneScalar[int](ctx, tx,
		`SELECT current_revision_id FROM post WHERE id = $1`,
		post.ID,
	)
	assert.NoError(t, err)
	assert.Equal(t, published.ID, currentID)
}

func TestApproveRevision(t *testing.T) {
	ctx, tx := beginTestTx(t)
	settings := DefaultSettings()

	asker := seedUser(t, ctx, tx, "asker", models.UserStatusApproved)
	watched := seedUser(t, ctx, tx, "newbie", models.UserStatusWatched)
	moderator := seedUser(t, ctx, tx, "mod", models.UserStatusApproved)
	moderator.IsModerator = true

	post, _, _ := seedQuestion(t, ctx, tx, settings, asker, "plug in the cable")

	settings.ModerationMode = ModerationPremoderation
	pending, err := CreateRevision(ctx, tx, settings, post, watched, "plug in the cable firmly", "", RevisionMeta{})
	assert.NoError(t, err)
	assert.True(t, pending.IsPending())

	err = ApproveRevision(ctx, tx, settings, post, pending, moderator)
	assert.NoError(t, err)

	// The pending row takes the next ordinal and becomes the current view.
	assert.Equal(t, 2, pending.Revision)
	assert.True(t, pending.Approved)

	stored, err := db.QueryOne[models.Post](ctx, tx,
		`SELECT $columns FROM post WHERE id = $1`,
		post.ID,
	)
	assert.NoError(t, err)
	if assert.NotNil(t, stored.CurrentRevisionID) {
		assert.Equal(t, pending.ID, *stored.CurrentRevisionID)
	}
	assert.Contains(t, stored.HTML, "firmly")

	queueEntries, err := db.QueryOneScalar[int](ctx, tx,
		`SELECT COUNT(*) FROM activity WHERE revision_id = $1 AND activity_type = ANY ($2)`,
		pending.ID,
		[]models.ActivityType{models.ActivityModeratedNewPost, models.ActivityModeratedPostEdit},
	)
	assert.NoError(t, err)
	assert.Equal(t, 0, queueEntries, "approval resolves the queue entry")
}

func TestRejectRevision(t *testing.T) {
	ctx, tx := beginTestTx(t)
	settings := DefaultSettings()
	settings.ModerationMode = ModerationPremoderation

	watched := seedUser(t, ctx, tx, "newbie", models.UserStatusWatched)

	// A brand new question by a watched author sits entirely pending.
	post, pending, threadID := seedQuestion(t, ctx, tx, settings, watched, "is this thing on")
	assert.True(t, pending.IsPending())
	assert.False(t, post.Approved)

	err := RejectRevision(ctx, tx, settings, post, pending)
	assert.NoError(t, err)

	remaining, err := db.QueryOneScalar[int](ctx, tx,
		`SELECT COUNT(*) FROM post_revision WHERE post_id = $1`,
		post.ID,
	)
	assert.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// Nothing ever published, so the draft leaves no visible trace.
	assert.True(t, post.Deleted)
	threadDeleted, err := db.QueryOneScalar[bool](ctx, tx,
		`SELECT deleted FROM thread WHERE id = $1`,
		threadID,
	)
	assert.NoError(t, err)
	assert.True(t, threadDeleted)
}

func TestPostGroupScoping(t *testing.T) {
	ctx, tx := beginTestTx(t)
	settings := DefaultSettings()
	settings.GroupsEnabled = true

	author := seedUser(t, ctx, tx, "author", models.UserStatusApproved)
	post, _, _ := seedQuestion(t, ctx, tx, settings, author, "plug in the cable")

	everyoneID, err := EveryoneGroupID(ctx, tx)
	assert.NoError(t, err)

	teamID, err := db.QueryOneScalar[int](ctx, tx,
		`INSERT INTO qf_group (name) VALUES ('netops') RETURNING id`,
	)
	assert.NoError(t, err)

	t.Run("sharing twice stores one grant", func(t *testing.T) {
		assert.NoError(t, AddPostToGroups(ctx, tx, post.ID, []int{teamID}))
		assert.NoError(t, AddPostToGroups(ctx, tx, post.ID, []int{teamID}))

		grants, err := db.QueryOneScalar[int](ctx, tx,
			`SELECT COUNT(*) FROM post_to_group WHERE post_id = $1 AND group_id = $2`,
			post.ID, teamID,
		)
		assert.NoError(t, err)
		assert.Equal(t, 1, grants)
	})

	t.Run("private means every group but everyone", func(t *testing.T) {
		for _, groupID := range []int{everyoneID, teamID} {
			_, err := tx.Exec(ctx,
				`INSERT INTO group_membership (group_id, user_id, level) VALUES ($1, $2, $3)`,
				groupID, author.ID, models.GroupMembershipFull,
			)
			assert.NoError(t, err)
		}

		assert.NoError(t, MakePostPrivate(ctx, tx, post.ID, author))

		groupIDs, err := db.QueryScalar[int](ctx, tx,
			`SELECT group_id FROM post_to_group WHERE post_id = $1`,
			post.ID,
		)
		assert.NoError(t, err)
		assert.Equal(t, []int{teamID}, groupIDs)
	})
}

func TestMentionReconciliation(t *testing.T) {
	ctx, tx := beginTestTx(t)
	settings := DefaultSettings()

	asker := seedUser(t, ctx, tx, "asker", models.UserStatusApproved)
	bob := seedUser(t, ctx, tx, "bob", models.UserStatusApproved)

	post, _, threadID := seedQuestion(t, ctx, tx, settings, asker, "plug in the cable")
	_, _, err := CreatePost(ctx, tx, settings, CreatePostInput{
		Kind:     models.PostKindAnswer,
		ThreadID: &threadID,
		Author:   bob,
		Text:     "use ip link",
	})
	assert.NoError(t, err)

	mentionCount := func() int {
		n, err := db.QueryOneScalar[int](ctx, tx,
			`SELECT COUNT(*) FROM activity WHERE post_id = $1 AND activity_type = $2`,
			post.ID, models.ActivityMention,
		)
		assert.NoError(t, err)
		return n
	}

	// Edit the question to thank bob by name.
	_, err = CreateRevision(ctx, tx, settings, post, asker, "@bob thanks, that worked", "", RevisionMeta{})
	assert.NoError(t, err)

	snapshot, err := FetchThreadSnapshot(ctx, tx, threadID)
	assert.NoError(t, err)

	result, err := ParseMentions(ctx, tx, snapshot, post, post.HTML, profileLink)
	assert.NoError(t, err)
	assert.Equal(t, []int{bob.ID}, ids(result.NewlyMentioned))
	assert.Contains(t, result.HTML, `<a href="/users/bob">@bob</a>`)

	assert.NoError(t, RecordMentions(ctx, tx, post, asker, result.NewlyMentioned))
	assert.Equal(t, 1, mentionCount())

	// Editing the mention back out cleans up the record.
	_, err = CreateRevision(ctx, tx, settings, post, asker, "thanks, that worked", "", RevisionMeta{})
	assert.NoError(t, err)

	result, err = ParseMentions(ctx, tx, snapshot, post, post.HTML, profileLink)
	assert.NoError(t, err)
	assert.Empty(t, result.NewlyMentioned)
	assert.Len(t, result.RemovedMentions, 1)
	assert.Equal(t, 0, mentionCount())
}

func TestMergePostsStore(t *testing.T) {
	ctx, tx := beginTestTx(t)
	settings := DefaultSettings()

	asker := seedUser(t, ctx, tx, "asker", models.UserStatusApproved)
	bob := seedUser(t, ctx, tx, "bob", models.UserStatusApproved)

	_, _, threadID := seedQuestion(t, ctx, tx, settings, asker, "plug in the cable")

	target, _, err := CreatePost(ctx, tx, settings, CreatePostInput{
		Kind:     models.PostKindAnswer,
		ThreadID: &threadID,
		Author:   bob,
		Text:     "use ip link",
	})
	assert.NoError(t, err)
	source, _, err := CreatePost(ctx, tx, settings, CreatePostInput{
		Kind:     models.PostKindAnswer,
		ThreadID: &threadID,
		Author:   bob,
		Text:     "and bring the interface up",
	})
	assert.NoError(t, err)
	comment, _, err := CreatePost(ctx, tx, settings, CreatePostInput{
		Kind:     models.PostKindComment,
		ThreadID: &threadID,
		Parent:   source,
		Author:   asker,
		Text:     "which flag?",
	})
	assert.NoError(t, err)

	assert.NoError(t, MergePosts(ctx, tx, settings, target, source))

	ordinals, err := db.QueryScalar[int](ctx, tx,
		`SELECT revision FROM post_revision WHERE post_id = $1 ORDER BY revision`,
		target.ID,
	)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ordinals, "merged revisions replay as sequential edits")
	assert.Contains(t, target.HTML, "bring the interface up")

	commentParent, err := db.QueryOneScalar[int](ctx, tx,
		`SELECT parent_id FROM post WHERE id = $1`,
		comment.ID,
	)
	assert.NoError(t, err)
	assert.Equal(t, target.ID, commentParent, "comments follow the merge target")

	sourceDeleted, err := db.QueryOneScalar[bool](ctx, tx,
		`SELECT deleted FROM post WHERE id = $1`,
		source.ID,
	)
	assert.NoError(t, err)
	assert.True(t, sourceDeleted)
}

func TestHandlePostSaved(t *testing.T) {
	ctx, tx := beginTestTx(t)
	ctx = AttachDispatcher(ctx, &Dispatcher{})
	settings := DefaultSettings()

	asker := seedUser(t, ctx, tx, "asker", models.UserStatusApproved)
	bob := seedUser(t, ctx, tx, "bob", models.UserStatusApproved)
	casey := seedUser(t, ctx, tx, "casey", models.UserStatusApproved)

	_, _, threadID := seedQuestion(t, ctx, tx, settings, asker, "plug in the cable")

	answer, answerRev, err := CreatePost(ctx, tx, settings, CreatePostInput{
		Kind:     models.PostKindAnswer,
		ThreadID: &threadID,
		Author:   bob,
		Text:     "@casey check this",
	})
	assert.NoError(t, err)

	sets, err := HandlePostSaved(ctx, tx, settings, answer, answerRev, bob, profileLink)
	assert.NoError(t, err)

	assert.Contains(t, ids(sets.Inbox), asker.ID, "the question author hears about the answer")
	assert.Equal(t, []int{casey.ID}, ids(sets.Mentions))
	assert.NotContains(t, ids(sets.Inbox), bob.ID, "actors never notify themselves")

	// The mention was linkified and stored back on the post.
	storedHTML, err := db.QueryOneScalar[string](ctx, tx,
		`SELECT html FROM post WHERE id = $1`,
		answer.ID,
	)
	assert.NoError(t, err)
	assert.Contains(t, storedHTML, `<a href="/users/casey">@casey</a>`)

	inboxed, err := db.QueryScalar[int](ctx, tx,
		`
		SELECT ar.recipient_id
		FROM
			activity AS a
			JOIN activity_recipient AS ar ON ar.activity_id = a.id
		WHERE a.post_id = $1 AND a.activity_type = $2
		`,
		answer.ID, models.ActivityAnswer,
	)
	assert.NoError(t, err)
	assert.Contains(t, inboxed, asker.ID)

	mentionRecipients, err := db.QueryScalar[int](ctx, tx,
		`
		SELECT ar.recipient_id
		FROM
			activity AS a
			JOIN activity_recipient AS ar ON ar.activity_id = a.id
		WHERE a.post_id = $1 AND a.activity_type = $2
		`,
		answer.ID, models.ActivityMention,
	)
	assert.NoError(t, err)
	assert.Equal(t, []int{casey.ID}, mentionRecipients)
}
