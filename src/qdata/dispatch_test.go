package qdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"git.quorum.forum/qf/qf/src/email"
	"git.quorum.forum/qf/qf/src/jobs"
	"git.quorum.forum/qf/qf/src/markup"
	"git.quorum.forum/qf/qf/src/models"
	"github.com/stretchr/testify/assert"
)

type recordedSend struct {
	subject string
	body    string
	to      []email.Recipient
}

type recordingSender struct {
	mu    sync.Mutex
	sends []recordedSend
}

func (s *recordingSender) Send(ctx context.Context, subject string, contentHTML string, recipients []email.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, recordedSend{subject, contentHTML, recipients})
	return nil
}

func TestEditSummary(t *testing.T) {
	summary := EditSummary(markup.WordDiffer{}, "restart the **router**", "restart the **switch**")
	assert.Contains(t, summary, "restart the")
	assert.Contains(t, summary, "<del>router</del>")
	assert.Contains(t, summary, "<ins>switch</ins>")
	assert.NotContains(t, summary, "**", "revisions are diffed as plain text, not source markup")
}

func TestAcknowledgePublished(t *testing.T) {
	t.Run("gateway authors hear about publication", func(t *testing.T) {
		sender := &recordingSender{}
		runner := jobs.NewDeferred()
		d := NewDispatcher(nil, sender, runner)

		post := &models.Post{ID: 1, HTML: "<p>bring eth0 up with ip link</p>"}
		rev := &models.PostRevision{Revision: 1, ByEmail: true, EmailAddress: "author@example.com"}
		d.AcknowledgePublished(context.Background(), DefaultSettings(), post, rev)
		assert.True(t, runner.Shutdown(5*time.Second))

		if assert.Len(t, sender.sends, 1) {
			send := sender.sends[0]
			assert.Equal(t, "Your post has been published", send.subject)
			assert.Contains(t, send.body, post.HTML)
			assert.Equal(t, "author@example.com", send.to[0].Address)
		}
	})

	t.Run("no address means nothing to send", func(t *testing.T) {
		sender := &recordingSender{}
		runner := jobs.NewDeferred()
		d := NewDispatcher(nil, sender, runner)

		rev := &models.PostRevision{Revision: 1, ByEmail: true}
		d.AcknowledgePublished(context.Background(), DefaultSettings(), &models.Post{ID: 1}, rev)
		assert.True(t, runner.Shutdown(5*time.Second))
		assert.Empty(t, sender.sends)
	})
}

func TestCooldownStore(t *testing.T) {
	t.Run("first send passes, repeats wait", func(t *testing.T) {
		var store cooldownStore
		key := cooldownKey{ThreadID: 10, ActorID: 1}
		assert.True(t, store.allow(key, time.Minute))
		assert.False(t, store.allow(key, time.Minute))
		assert.True(t, store.allow(cooldownKey{ThreadID: 10, ActorID: 2}, time.Minute))
		assert.True(t, store.allow(cooldownKey{ThreadID: 11, ActorID: 1}, time.Minute))
	})

	t.Run("markers expire", func(t *testing.T) {
		var store cooldownStore
		key := cooldownKey{ThreadID: 10, ActorID: 1}
		assert.True(t, store.allow(key, 5*time.Millisecond))
		time.Sleep(20 * time.Millisecond)
		assert.True(t, store.allow(key, 5*time.Millisecond))
	})

	t.Run("zero expiry disables the cooldown", func(t *testing.T) {
		var store cooldownStore
		key := cooldownKey{ThreadID: 10, ActorID: 1}
		assert.True(t, store.allow(key, 0))
		assert.True(t, store.allow(key, 0))
	})
}

func TestExtractDispatcherNilSafety(t *testing.T) {
	d := ExtractDispatcher(context.Background())
	assert.Nil(t, d)
	assert.NotNil(t, d.Metrics(), "a missing dispatcher still yields a usable collector")
	assert.NotPanics(t, func() {
		d.PingSearch(context.Background(), nil)
	})
}

func TestRequestCacheNilSafety(t *testing.T) {
	c := ExtractRequestCache(context.Background())
	assert.Nil(t, c)
	assert.NotPanics(t, func() {
		_, ok := c.LatestRevision(1)
		assert.False(t, ok)
		c.SetLatestRevision(nil)
		_, ok = c.Comments(1)
		assert.False(t, ok)
		c.SetComments(1, nil)
		c.InvalidateComments(1)
	})
}
