package models

import "time"

type Thread struct {
	ID int `db:"id"`

	Title    string `db:"title"`
	Tagnames string `db:"tagnames"` // Space-separated, denormalized from tag rows
	Language string `db:"language"`

	Approved bool `db:"approved"`
	Closed   bool `db:"closed"`
	Deleted  bool `db:"deleted"`

	AnswerCount      int  `db:"answer_count"`
	AcceptedAnswerID *int `db:"accepted_answer_id"`

	LastActivityAt   time.Time `db:"last_activity_at"`
	LastActivityByID int       `db:"last_activity_by_id"`
}

func (t *Thread) TagList() []string {
	var tags []string
	start := -1
	for i, c := range t.Tagnames {
		if c == ' ' {
			if start >= 0 {
				tags = append(tags, t.Tagnames[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tags = append(tags, t.Tagnames[start:])
	}
	return tags
}

// A user following one specific question to get updates about it.
type ThreadFollow struct {
	UserID   int       `db:"user_id"`
	ThreadID int       `db:"thread_id"`
	AddedAt  time.Time `db:"added_at"`
}
