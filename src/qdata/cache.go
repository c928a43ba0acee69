package qdata

import (
	"context"

	"git.quorum.forum/qf/qf/src/models"
)

// RequestCache memoizes lookups that tend to repeat within one request:
// the latest revision per post and the comment list per post. It lives on
// the request context and dies with it; it is never shared across requests
// or goroutines.
type RequestCache struct {
	latestRevisions map[int]*models.PostRevision
	comments        map[int][]*models.Post
}

type requestCacheContextKey struct{}

func AttachRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheContextKey{}, &RequestCache{
		latestRevisions: make(map[int]*models.PostRevision),
		comments:        make(map[int][]*models.Post),
	})
}

// Returns nil when no cache is attached. All methods are nil-safe, so
// callers do not need to care.
func ExtractRequestCache(ctx context.Context) *RequestCache {
	cache, ok := ctx.Value(requestCacheContextKey{}).(*RequestCache)
	if !ok {
		return nil
	}
	return cache
}

func (c *RequestCache) LatestRevision(postID int) (*models.PostRevision, bool) {
	if c == nil {
		return nil, false
	}
	rev, ok := c.latestRevisions[postID]
	return rev, ok
}

func (c *RequestCache) SetLatestRevision(rev *models.PostRevision) {
	if c == nil {
		return
	}
	c.latestRevisions[rev.PostID] = rev
}

func (c *RequestCache) Comments(postID int) ([]*models.Post, bool) {
	if c == nil {
		return nil, false
	}
	comments, ok := c.comments[postID]
	return comments, ok
}

func (c *RequestCache) SetComments(postID int, comments []*models.Post) {
	if c == nil {
		return
	}
	c.comments[postID] = comments
}

// Drops the memoized comment list for a post. Call whenever a comment is
// added, deleted or reparented within the same request.
func (c *RequestCache) InvalidateComments(postID int) {
	if c == nil {
		return
	}
	delete(c.comments, postID)
}
