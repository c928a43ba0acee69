package models

import (
	"net/netip"
	"time"
)

type PostKind int

const (
	PostKindQuestion     PostKind = 1
	PostKindAnswer       PostKind = 2
	PostKindComment      PostKind = 3
	PostKindTagWiki      PostKind = 4
	PostKindRejectReason PostKind = 5
)

func (k PostKind) String() string {
	switch k {
	case PostKindQuestion:
		return "question"
	case PostKindAnswer:
		return "answer"
	case PostKindComment:
		return "comment"
	case PostKindTagWiki:
		return "tag wiki"
	case PostKindRejectReason:
		return "reject reason"
	}
	return "unknown"
}

// Question, answer and comment posts hold user conversation and go through
// moderation and notification fan-out. Tag wikis and reject reasons are
// administrative content and skip both.
func (k PostKind) IsContent() bool {
	return k == PostKindQuestion || k == PostKindAnswer || k == PostKindComment
}

type Post struct {
	ID int `db:"id"`

	Kind     PostKind `db:"kind"`
	ThreadID *int     `db:"thread_id"` // Nil for tag wikis and reject reasons
	ParentID *int     `db:"parent_id"` // The answer or question a comment hangs off of
	AuthorID int      `db:"author_id"`

	CurrentRevisionID *int `db:"current_revision_id"`

	AddedAt        time.Time  `db:"added_at"`
	LastEditedAt   *time.Time `db:"last_edited_at"`
	LastEditedByID *int       `db:"last_edited_by_id"`

	Approved bool `db:"approved"`
	Deleted  bool `db:"deleted"`
	Locked   bool `db:"locked"`
	Spam     bool `db:"spam"`

	// Only meaningful for answers.
	Endorsed     bool       `db:"endorsed"`
	EndorsedAt   *time.Time `db:"endorsed_at"`
	EndorsedByID *int       `db:"endorsed_by_id"`

	Text     string `db:"text"`
	HTML     string `db:"html"`
	Summary  string `db:"summary"` // Short plain-text teaser used in notifications
	Language string `db:"language"`

	Points        int `db:"points"`
	VoteUpCount   int `db:"vote_up_count"`
	VoteDownCount int `db:"vote_down_count"`
	CommentCount  int `db:"comment_count"`
}

func (p *Post) IsQuestion() bool {
	return p.Kind == PostKindQuestion
}

func (p *Post) IsAnswer() bool {
	return p.Kind == PostKindAnswer
}

func (p *Post) IsComment() bool {
	return p.Kind == PostKindComment
}

type PostRevision struct {
	ID     int `db:"id"`
	PostID int `db:"post_id"`

	// 1-based ordinal within the post. Ordinal 0 marks a draft sitting in the
	// moderation queue that has not been published yet.
	Revision int `db:"revision"`

	AuthorID     int        `db:"author_id"`
	RevisedAt    time.Time  `db:"revised_at"`
	Summary      string     `db:"summary"` // The author's edit summary, not the post teaser
	Text         string     `db:"text"`
	Approved     bool       `db:"approved"`
	ApprovedAt   *time.Time `db:"approved_at"`
	ApprovedByID *int       `db:"approved_by_id"`

	// Only set on question revisions.
	Title    string `db:"title"`
	Tagnames string `db:"tagnames"`

	IsAnonymous bool `db:"is_anonymous"`

	// Provenance for posts that arrived over the email gateway.
	ByEmail      bool        `db:"by_email"`
	EmailAddress string      `db:"email_address"`
	IPAddr       *netip.Addr `db:"ip_addr"`
}

// Whether this revision is still an unpublished draft in the queue.
func (r *PostRevision) IsPending() bool {
	return r.Revision == 0
}
