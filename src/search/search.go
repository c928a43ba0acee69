package search

import (
	"context"

	"git.quorum.forum/qf/qf/src/logging"
)

// IndexPinger is poked whenever published content changes so an external
// search index can re-crawl. Failures are the pinger's problem; callers never
// let a broken index block a post from saving.
type IndexPinger interface {
	PingPost(ctx context.Context, postID int)
	PingThread(ctx context.Context, threadID int)
}

// LoggingPinger is the default. It records the ping and does nothing else,
// which is the correct behavior until a real index is deployed.
type LoggingPinger struct{}

var _ IndexPinger = LoggingPinger{}

func (LoggingPinger) PingPost(ctx context.Context, postID int) {
	logging.ExtractLogger(ctx).Debug().Int("postId", postID).Msg("search ping for post")
}

func (LoggingPinger) PingThread(ctx context.Context, threadID int) {
	logging.ExtractLogger(ctx).Debug().Int("threadId", threadID).Msg("search ping for thread")
}
