package models

import "time"

type ActivityType int

const (
	ActivityAskQuestion       ActivityType = 1
	ActivityAnswer            ActivityType = 2
	ActivityCommentQuestion   ActivityType = 3
	ActivityCommentAnswer     ActivityType = 4
	ActivityUpdateQuestion    ActivityType = 5
	ActivityUpdateAnswer      ActivityType = 6
	ActivityMention           ActivityType = 7
	ActivityPostShared        ActivityType = 8
	ActivityModeratedNewPost  ActivityType = 9
	ActivityModeratedPostEdit ActivityType = 10
)

// Short human labels used in notification subject lines and inbox rows.
var activityLabels = map[ActivityType]string{
	ActivityAskQuestion:       "asked a question",
	ActivityAnswer:            "posted an answer",
	ActivityCommentQuestion:   "commented on a question",
	ActivityCommentAnswer:     "commented on an answer",
	ActivityUpdateQuestion:    "edited a question",
	ActivityUpdateAnswer:      "edited an answer",
	ActivityMention:           "mentioned you",
	ActivityPostShared:        "shared a post",
	ActivityModeratedNewPost:  "new post needs review",
	ActivityModeratedPostEdit: "edited post needs review",
}

func (t ActivityType) Label() string {
	if label, ok := activityLabels[t]; ok {
		return label
	}
	return "did something"
}

// One thing that happened on the site. Recipients hang off of it through
// ActivityRecipient rows, which double as inbox entries.
type Activity struct {
	ID int `db:"id"`

	UserID   int          `db:"user_id"` // The actor
	Type     ActivityType `db:"activity_type"`
	ActiveAt time.Time    `db:"active_at"`

	PostID     *int `db:"post_id"`
	RevisionID *int `db:"revision_id"`
	ThreadID   *int `db:"thread_id"`

	Summary string `db:"summary"`
}

type ActivityRecipient struct {
	ActivityID  int  `db:"activity_id"`
	RecipientID int  `db:"recipient_id"`
	Seen        bool `db:"seen"`
}
