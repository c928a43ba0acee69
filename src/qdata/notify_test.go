package qdata

import (
	"testing"
	"time"

	"git.quorum.forum/qf/qf/src/models"
	"github.com/stretchr/testify/assert"
)

// A small thread for fan-out tests:
//
//	question (post 1, by asker, tags "linux networking")
//	├── comment on question (post 4, by qCommenter)
//	├── answer (post 2, by answerer)
//	│   └── comment on answer (post 3, by aCommenter)
//	└── answer (post 5, by otherAnswerer)
type fixture struct {
	asker, answerer, aCommenter, qCommenter, otherAnswerer *models.User
	snapshot                                               *ThreadSnapshot
}

func testUser(id int, name string) *models.User {
	return &models.User{ID: id, Username: name, Email: name + "@example.com", Status: models.UserStatusApproved}
}

func testPost(id int, kind models.PostKind, author *models.User, parentID *int) *models.Post {
	threadID := 10
	return &models.Post{
		ID:       id,
		Kind:     kind,
		ThreadID: &threadID,
		ParentID: parentID,
		AuthorID: author.ID,
		Approved: true,
		AddedAt:  time.Date(2024, 3, 1, 12, 0, id, 0, time.UTC),
	}
}

func makeFixture() *fixture {
	f := &fixture{
		asker:         testUser(1, "asker"),
		answerer:      testUser(2, "answerer"),
		aCommenter:    testUser(3, "acommenter"),
		qCommenter:    testUser(4, "qcommenter"),
		otherAnswerer: testUser(5, "otheranswerer"),
	}

	question := &PostNode{Post: testPost(1, models.PostKindQuestion, f.asker, nil), Author: f.asker}
	answer := &PostNode{Post: testPost(2, models.PostKindAnswer, f.answerer, nil), Author: f.answerer}
	other := &PostNode{Post: testPost(5, models.PostKindAnswer, f.otherAnswerer, nil), Author: f.otherAnswerer}

	qComment := &PostNode{Post: testPost(4, models.PostKindComment, f.qCommenter, &question.Post.ID), Author: f.qCommenter}
	aComment := &PostNode{Post: testPost(3, models.PostKindComment, f.aCommenter, &answer.Post.ID), Author: f.aCommenter}
	question.Comments = []*PostNode{qComment}
	answer.Comments = []*PostNode{aComment}

	f.snapshot = &ThreadSnapshot{
		Thread: &models.Thread{
			ID:       10,
			Title:    "how do I configure eth0",
			Tagnames: "linux networking",
		},
		Question:   question,
		Answers:    []*PostNode{answer, other},
		PostGroups: map[int][]int{},
	}
	return f
}

func (f *fixture) env(settings Settings) NotifyEnv {
	return NotifyEnv{
		Settings:     settings,
		Snapshot:     f.snapshot,
		InstantRules: make(map[models.FeedType][]*models.User),
		TagMarks:     make(map[int]map[string]models.TagMarkReason),
	}
}

func ids(users []*models.User) []int {
	var result []int
	for _, u := range users {
		result = append(result, u.ID)
	}
	return result
}

func TestResponseReceivers(t *testing.T) {
	f := makeFixture()
	env := f.env(DefaultSettings())

	t.Run("answer reaches the whole conversation", func(t *testing.T) {
		sets := ComputeNotifySets(env, f.snapshot.Answers[0].Post, nil, []*models.User{f.answerer})
		assert.ElementsMatch(t, []int{1, 3, 4, 5}, ids(sets.Inbox))
	})
	t.Run("question skips answer commenters", func(t *testing.T) {
		sets := ComputeNotifySets(env, f.snapshot.Question.Post, nil, []*models.User{f.asker})
		assert.ElementsMatch(t, []int{2, 4, 5}, ids(sets.Inbox))
		assert.NotContains(t, ids(sets.Inbox), f.aCommenter.ID)
	})
	t.Run("comment stays under its parent", func(t *testing.T) {
		comment := f.snapshot.Answers[0].Comments[0].Post
		sets := ComputeNotifySets(env, comment, nil, []*models.User{f.aCommenter})
		assert.ElementsMatch(t, []int{2}, ids(sets.Inbox))
	})
	t.Run("tag wikis notify nobody", func(t *testing.T) {
		wiki := &models.Post{ID: 99, Kind: models.PostKindTagWiki, AuthorID: 1}
		sets := ComputeNotifySets(env, wiki, nil, nil)
		assert.Empty(t, sets.Inbox)
		assert.Empty(t, sets.Email)
	})
}

func TestExcludeListIsAbsolute(t *testing.T) {
	f := makeFixture()
	settings := DefaultSettings()
	env := f.env(settings)

	// Give everyone every reason to be notified.
	all := []*models.User{f.asker, f.answerer, f.aCommenter, f.qCommenter, f.otherAnswerer}
	env.InstantRules[models.FeedEntireForum] = all
	env.InstantRules[models.FeedMentionsAndComments] = all
	env.InstantRules[models.FeedIndividuallyFollowed] = all
	env.InstantRules[models.FeedAskedByMe] = all
	env.InstantRules[models.FeedAnsweredByMe] = all
	env.ThreadFollowers = all

	exclude := []*models.User{f.asker, f.aCommenter}
	sets := ComputeNotifySets(env, f.snapshot.Answers[0].Post, []*models.User{f.asker, f.qCommenter}, exclude)

	for _, set := range [][]*models.User{sets.Inbox, sets.Mentions, sets.Email} {
		assert.NotContains(t, ids(set), f.asker.ID)
		assert.NotContains(t, ids(set), f.aCommenter.ID)
	}
	assert.Contains(t, ids(sets.Mentions), f.qCommenter.ID)
}

func TestInstantEmailRecipients(t *testing.T) {
	t.Run("disabled globally means nobody", func(t *testing.T) {
		f := makeFixture()
		settings := DefaultSettings()
		settings.EmailAlertsEnabled = false
		env := f.env(settings)
		env.InstantRules[models.FeedEntireForum] = []*models.User{f.qCommenter}

		sets := ComputeNotifySets(env, f.snapshot.Answers[0].Post, nil, nil)
		assert.Empty(t, sets.Email)
	})

	t.Run("mention subscribers", func(t *testing.T) {
		f := makeFixture()
		env := f.env(DefaultSettings())
		env.InstantRules[models.FeedMentionsAndComments] = []*models.User{f.qCommenter}

		sets := ComputeNotifySets(env, f.snapshot.Answers[0].Post,
			[]*models.User{f.qCommenter, f.otherAnswerer}, nil)
		assert.ElementsMatch(t, []int{f.qCommenter.ID}, ids(sets.Email))
	})

	t.Run("thread followers need the matching rule", func(t *testing.T) {
		f := makeFixture()
		env := f.env(DefaultSettings())
		env.ThreadFollowers = []*models.User{f.qCommenter, f.otherAnswerer}
		env.InstantRules[models.FeedIndividuallyFollowed] = []*models.User{f.qCommenter}

		sets := ComputeNotifySets(env, f.snapshot.Answers[0].Post, nil, nil)
		assert.ElementsMatch(t, []int{f.qCommenter.ID}, ids(sets.Email))
	})

	t.Run("comments respect a follower's tag affinity", func(t *testing.T) {
		f := makeFixture()
		env := f.env(DefaultSettings())
		f.qCommenter.EmailTagFilterStrategy = models.TagFilterInteresting
		env.ThreadFollowers = []*models.User{f.qCommenter}
		env.InstantRules[models.FeedIndividuallyFollowed] = []*models.User{f.qCommenter}

		comment := f.snapshot.Answers[0].Comments[0].Post
		sets := ComputeNotifySets(env, comment, nil, nil)
		assert.Empty(t, sets.Email, "no interesting tags marked, comment should stay quiet")

		env.TagMarks[f.qCommenter.ID] = map[string]models.TagMarkReason{"linux": models.TagMarkInteresting}
		sets = ComputeNotifySets(env, comment, nil, nil)
		assert.ElementsMatch(t, []int{f.qCommenter.ID}, ids(sets.Email))

		// Answers are not filtered this way.
		f2 := makeFixture()
		env2 := f2.env(DefaultSettings())
		f2.qCommenter.EmailTagFilterStrategy = models.TagFilterInteresting
		env2.ThreadFollowers = []*models.User{f2.qCommenter}
		env2.InstantRules[models.FeedIndividuallyFollowed] = []*models.User{f2.qCommenter}
		sets = ComputeNotifySets(env2, f2.snapshot.Answers[0].Post, nil, nil)
		assert.ElementsMatch(t, []int{f2.qCommenter.ID}, ids(sets.Email))
	})

	t.Run("forum-wide subscribers run through tag filters", func(t *testing.T) {
		f := makeFixture()
		settings := DefaultSettings()
		settings.UseWildcardTags = true
		env := f.env(settings)

		plain := testUser(20, "plain")
		picky := testUser(21, "picky")
		picky.EmailTagFilterStrategy = models.TagFilterInteresting
		wildcard := testUser(22, "wildcard")
		wildcard.EmailTagFilterStrategy = models.TagFilterInteresting
		wildcard.InterestingWildcards = "lin*"
		hater := testUser(23, "hater")
		hater.EmailTagFilterStrategy = models.TagFilterIgnored
		env.TagMarks[hater.ID] = map[string]models.TagMarkReason{"networking": models.TagMarkIgnored}

		env.InstantRules[models.FeedEntireForum] = []*models.User{plain, picky, wildcard, hater}

		sets := ComputeNotifySets(env, f.snapshot.Answers[0].Post, nil, nil)
		assert.ElementsMatch(t, []int{plain.ID, wildcard.ID}, ids(sets.Email))
	})

	t.Run("asked-by-me and answered-by-me", func(t *testing.T) {
		f := makeFixture()
		env := f.env(DefaultSettings())
		env.InstantRules[models.FeedAskedByMe] = []*models.User{f.asker}
		env.InstantRules[models.FeedAnsweredByMe] = []*models.User{f.otherAnswerer}

		sets := ComputeNotifySets(env, f.snapshot.Answers[0].Post, nil, nil)
		assert.ElementsMatch(t, []int{f.asker.ID, f.otherAnswerer.ID}, ids(sets.Email))

		// Comments do not trigger the self-involvement feeds.
		comment := f.snapshot.Question.Comments[0].Post
		sets = ComputeNotifySets(env, comment, nil, nil)
		assert.Empty(t, sets.Email)
	})

	t.Run("language filter when multilingual", func(t *testing.T) {
		f := makeFixture()
		settings := DefaultSettings()
		settings.Multilingual = true
		env := f.env(settings)

		english := testUser(30, "english")
		english.Languages = []string{"en"}
		german := testUser(31, "german")
		german.Languages = []string{"de"}
		env.InstantRules[models.FeedEntireForum] = []*models.User{english, german}

		post := f.snapshot.Answers[0].Post
		post.Language = "en"
		sets := ComputeNotifySets(env, post, nil, nil)
		assert.ElementsMatch(t, []int{english.ID}, ids(sets.Email))
	})
}

func TestGroupAuthorization(t *testing.T) {
	f := makeFixture()
	settings := DefaultSettings()
	settings.GroupsEnabled = true
	env := f.env(settings)
	env.EveryoneGroupID = 1

	post := f.snapshot.Answers[0].Post

	t.Run("groupless post reaches nobody", func(t *testing.T) {
		sets := ComputeNotifySets(env, post, nil, nil)
		assert.Empty(t, sets.Inbox)
	})

	t.Run("everyone group is public", func(t *testing.T) {
		f.snapshot.PostGroups[post.ID] = []int{1}
		sets := ComputeNotifySets(env, post, nil, []*models.User{f.answerer})
		assert.ElementsMatch(t, []int{1, 3, 4, 5}, ids(sets.Inbox))
	})

	t.Run("private group filters recipients", func(t *testing.T) {
		f.snapshot.PostGroups[post.ID] = []int{7}
		env.UserGroups = map[int][]int{
			f.asker.ID:      {7},
			f.aCommenter.ID: {8},
		}
		sets := ComputeNotifySets(env, post, nil, []*models.User{f.answerer})
		assert.ElementsMatch(t, []int{f.asker.ID}, ids(sets.Inbox))
	})

	t.Run("authorization never re-adds excluded users", func(t *testing.T) {
		f.snapshot.PostGroups[post.ID] = []int{7}
		env.UserGroups = map[int][]int{f.asker.ID: {7}}
		env.InstantRules[models.FeedEntireForum] = []*models.User{f.asker}
		sets := ComputeNotifySets(env, post, nil, []*models.User{f.asker})
		assert.Empty(t, ids(sets.Inbox))
		assert.Empty(t, ids(sets.Email))
	})
}

func TestSplitWildcards(t *testing.T) {
	assert.Equal(t, []string{"linux-*", "net*"}, splitWildcards(" linux-*  net* "))
	assert.Empty(t, splitWildcards(""))
}
