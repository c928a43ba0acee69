package models

import (
	"time"
)

type UserStatus int

const (
	UserStatusWatched   UserStatus = 1 // Default for new users; everything they post goes through the queue
	UserStatusApproved             = 2 // Posts go live immediately
	UserStatusSuspended            = 3 // May edit their own content but not post anything new
	UserStatusBlocked              = 4 // May not post at all
)

// Strategies for filtering content by tag, both on screen and in email.
type TagFilterStrategy int

const (
	TagFilterNone        TagFilterStrategy = 0
	TagFilterInteresting                   = 1 // Only tags the user marked interesting / subscribed
	TagFilterIgnored                       = 2 // Everything except tags the user marked ignored
)

type User struct {
	ID int `db:"id"`

	Username string `db:"username"`
	Email    string `db:"email"`

	DateJoined time.Time  `db:"date_joined"`
	LastSeen   *time.Time `db:"last_seen"`

	Status          UserStatus `db:"status"`
	IsModerator     bool       `db:"is_moderator"`
	IsAdministrator bool       `db:"is_administrator"`

	EmailTagFilterStrategy   TagFilterStrategy `db:"email_tag_filter_strategy"`
	DisplayTagFilterStrategy TagFilterStrategy `db:"display_tag_filter_strategy"`

	// Space-separated wildcard patterns like "linux-*". Exact tag marks live
	// in TagMark rows; wildcards are matched at notification time.
	InterestingWildcards string `db:"interesting_wildcards"`
	IgnoredWildcards     string `db:"ignored_wildcards"`
	SubscribedWildcards  string `db:"subscribed_wildcards"`

	// Non-db field, filled in by fetch helpers from the user_language table.
	Languages []string
}

func (u *User) IsAdminOrMod() bool {
	return u.IsAdministrator || u.IsModerator
}

// Whether content posted by this user needs a moderator to look at it before
// it goes live.
func (u *User) NeedsModeration() bool {
	return u.Status != UserStatusApproved && !u.IsAdminOrMod()
}

func (u *User) CanPost() bool {
	return u.Status != UserStatusSuspended && u.Status != UserStatusBlocked
}

// Suspended users keep the ability to edit what they already wrote.
func (u *User) CanEditOwnPosts() bool {
	return u.Status != UserStatusBlocked
}

func (u *User) SpeaksLanguage(lang string) bool {
	if len(u.Languages) == 0 {
		return true
	}
	for _, l := range u.Languages {
		if l == lang {
			return true
		}
	}
	return false
}
