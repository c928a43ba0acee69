package qdata

import (
	"testing"

	"git.quorum.forum/qf/qf/src/models"
	"github.com/stretchr/testify/assert"
)

func TestAssertVisible(t *testing.T) {
	settings := DefaultSettings()
	moderator := testUser(50, "mod")
	moderator.IsModerator = true
	stranger := testUser(51, "stranger")

	t.Run("deleted answer", func(t *testing.T) {
		f := makeFixture()
		answer := f.snapshot.Answers[0].Post
		answer.Deleted = true

		assert.ErrorIs(t, AssertVisible(settings, f.snapshot, answer, nil, nil, 0), ErrAnswerHidden)
		assert.ErrorIs(t, AssertVisible(settings, f.snapshot, answer, stranger, nil, 0), ErrAnswerHidden)
		assert.ErrorIs(t, AssertVisible(settings, f.snapshot, answer, f.answerer, nil, 0), ErrAnswerHidden,
			"authors do not see their own deleted answers")
		assert.NoError(t, AssertVisible(settings, f.snapshot, answer, moderator, nil, 0))
	})

	t.Run("unapproved question", func(t *testing.T) {
		f := makeFixture()
		question := f.snapshot.Question.Post
		question.Approved = false

		assert.ErrorIs(t, AssertVisible(settings, f.snapshot, question, stranger, nil, 0), ErrQuestionHidden)
		assert.NoError(t, AssertVisible(settings, f.snapshot, question, f.asker, nil, 0))
		assert.NoError(t, AssertVisible(settings, f.snapshot, question, moderator, nil, 0))
	})

	t.Run("answer under a hidden question reports the question hidden", func(t *testing.T) {
		f := makeFixture()
		f.snapshot.Question.Post.Approved = false
		answer := f.snapshot.Answers[0].Post

		assert.ErrorIs(t, AssertVisible(settings, f.snapshot, answer, stranger, nil, 0), ErrQuestionHidden)
		assert.NoError(t, AssertVisible(settings, f.snapshot, answer, f.asker, nil, 0),
			"the question author can still read answers")
	})

	t.Run("unapproved answer is visible to its author", func(t *testing.T) {
		f := makeFixture()
		answer := f.snapshot.Answers[0].Post
		answer.Approved = false

		assert.ErrorIs(t, AssertVisible(settings, f.snapshot, answer, stranger, nil, 0), ErrAnswerHidden)
		assert.NoError(t, AssertVisible(settings, f.snapshot, answer, f.answerer, nil, 0))
	})

	t.Run("comments inherit the parent's visibility", func(t *testing.T) {
		f := makeFixture()
		f.snapshot.Answers[0].Post.Deleted = true
		comment := f.snapshot.Answers[0].Comments[0].Post

		assert.ErrorIs(t, AssertVisible(settings, f.snapshot, comment, stranger, nil, 0), ErrAnswerHidden)
		assert.NoError(t, AssertVisible(settings, f.snapshot, comment, moderator, nil, 0))
	})

	t.Run("group gating", func(t *testing.T) {
		grouped := DefaultSettings()
		grouped.GroupsEnabled = true
		everyoneID := 1

		f := makeFixture()
		answer := f.snapshot.Answers[0].Post

		assert.ErrorIs(t, AssertVisible(grouped, f.snapshot, answer, stranger, nil, everyoneID), ErrAnswerHidden,
			"a groupless post is hidden from everybody")

		f.snapshot.PostGroups[answer.ID] = []int{everyoneID}
		assert.NoError(t, AssertVisible(grouped, f.snapshot, answer, nil, nil, everyoneID))

		f.snapshot.PostGroups[answer.ID] = []int{7}
		assert.ErrorIs(t, AssertVisible(grouped, f.snapshot, answer, stranger, []int{8}, everyoneID), ErrAnswerHidden)
		assert.NoError(t, AssertVisible(grouped, f.snapshot, answer, stranger, []int{7}, everyoneID))
	})

	t.Run("comment without a parent is hidden, not a crash", func(t *testing.T) {
		f := makeFixture()
		orphan := &models.Post{ID: 98, Kind: models.PostKindComment, Approved: true}

		assert.NotPanics(t, func() {
			assert.ErrorIs(t, AssertVisible(settings, f.snapshot, orphan, stranger, nil, 0), ErrQuestionHidden)
		})
	})

	t.Run("administrative posts are a programming error", func(t *testing.T) {
		f := makeFixture()
		wiki := &models.Post{ID: 99, Kind: models.PostKindTagWiki}
		assert.Panics(t, func() {
			_ = AssertVisible(settings, f.snapshot, wiki, nil, nil, 0)
		})
	})
}

func TestHiddenErrorIdentity(t *testing.T) {
	assert.ErrorIs(t, ErrQuestionHidden, ErrQuestionHidden)
	assert.NotErrorIs(t, ErrQuestionHidden, ErrAnswerHidden)
}
