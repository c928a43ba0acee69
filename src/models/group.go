package models

// The name of the group every user implicitly belongs to. Content shared
// with it is public.
const EveryoneGroupName = "everyone"

type GroupOpenness int

const (
	GroupOpen      GroupOpenness = 0 // Anyone may join
	GroupModerated               = 1 // Join requests need approval
	GroupClosed                  = 2 // Members are added by moderators only
)

type Group struct {
	ID   int    `db:"id"`
	Name string `db:"name"`

	Openness GroupOpenness `db:"openness"`

	// Whether moderators of this group receive moderation queue email.
	ModerateAnsweredQuestions bool `db:"moderate_answered_questions"`
}

func (g *Group) IsEveryone() bool {
	return g.Name == EveryoneGroupName
}

type GroupMembershipLevel int

const (
	GroupMembershipPending GroupMembershipLevel = 0
	GroupMembershipFull                         = 1
)

type GroupMembership struct {
	GroupID int                  `db:"group_id"`
	UserID  int                  `db:"user_id"`
	Level   GroupMembershipLevel `db:"level"`
}

// Visibility grant tying a post to a group. A post with no rows is visible
// to nobody; sharing with the everyone group makes it public.
type PostToGroup struct {
	PostID  int `db:"post_id"`
	GroupID int `db:"group_id"`
}
