package qdata

import (
	"context"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/logging"
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
	"git.quorum.forum/qf/qf/src/perf"
)

// AddPostToGroups grants the post to each group. Idempotent: granting a
// group the post already has leaves exactly one row.
func AddPostToGroups(ctx context.Context, tx db.ConnOrTx, postID int, groupIDs []int) error {
	for _, groupID := range groupIDs {
		_, err := tx.Exec(ctx,
			`
			INSERT INTO post_to_group (post_id, group_id)
			VALUES ($1, $2)
			ON CONFLICT (post_id, group_id) DO NOTHING
			`,
			postID, groupID,
		)
		if err != nil {
			return oops.New(err, "failed to add post to group")
		}
	}
	return nil
}

// MakePostPublic replaces the post's grants with the everyone group.
func MakePostPublic(ctx context.Context, tx db.ConnOrTx, postID int) error {
	everyoneID, err := EveryoneGroupID(ctx, tx)
	if err != nil {
		return err
	}
	return replacePostGroups(ctx, tx, postID, []int{everyoneID})
}

// MakePostPrivate replaces the post's grants with the author's own groups,
// minus everyone. An author in no private groups would strand the post
// groupless, which is rejected.
func MakePostPrivate(ctx context.Context, tx db.ConnOrTx, postID int, author *models.User) error {
	groups, err := db.Query[models.Group](ctx, tx,
		`
		SELECT $columns{g}
		FROM
			qf_group AS g
			JOIN group_membership AS gm ON gm.group_id = g.id
		WHERE
			gm.user_id = $1
			AND gm.level = $2
		`,
		author.ID, models.GroupMembershipFull,
	)
	if err != nil {
		return oops.New(err, "failed to fetch the author's groups")
	}
	var groupIDs []int
	for _, g := range groups {
		if !g.IsEveryone() {
			groupIDs = append(groupIDs, g.ID)
		}
	}
	if len(groupIDs) == 0 {
		return validationErr("groups", "cannot make the post private: the author has no private groups")
	}
	return replacePostGroups(ctx, tx, postID, groupIDs)
}

func replacePostGroups(ctx context.Context, tx db.ConnOrTx, postID int, groupIDs []int) error {
	_, err := tx.Exec(ctx,
		`
		DELETE FROM post_to_group
		WHERE post_id = $1
		`,
		postID,
	)
	if err != nil {
		return oops.New(err, "failed to clear post groups")
	}
	return AddPostToGroups(ctx, tx, postID, groupIDs)
}

func EveryoneGroupID(ctx context.Context, dbConn db.ConnOrTx) (int, error) {
	id, err := db.QueryOneScalar[int](ctx, dbConn,
		`
		SELECT id
		FROM qf_group
		WHERE name = $1
		`,
		models.EveryoneGroupName,
	)
	if err != nil {
		return 0, oops.New(err, "failed to look up the everyone group")
	}
	return id, nil
}

// Gives a new post its initial group grants: explicit groups win, then
// private-to-author, then inheritance (comments copy the parent, thread
// posts copy the question), and finally everyone when scoping is off or
// nothing else applies.
func assignInitialGroups(
	ctx context.Context,
	tx db.ConnOrTx,
	settings Settings,
	post *models.Post,
	input CreatePostInput,
) error {
	if !settings.GroupsEnabled {
		return MakePostPublic(ctx, tx, post.ID)
	}
	if len(input.GroupIDs) > 0 {
		return AddPostToGroups(ctx, tx, post.ID, input.GroupIDs)
	}
	if input.MakePrivate {
		return MakePostPrivate(ctx, tx, post.ID, input.Author)
	}

	var inheritFromID *int
	if post.Kind == models.PostKindComment {
		inheritFromID = post.ParentID
	} else if post.ThreadID != nil && post.Kind == models.PostKindAnswer {
		questionID, err := db.QueryOneScalar[int](ctx, tx,
			`
			SELECT id
			FROM post
			WHERE thread_id = $1 AND kind = $2
			`,
			*post.ThreadID, models.PostKindQuestion,
		)
		if err != nil {
			return oops.New(err, "failed to find the thread's question")
		}
		inheritFromID = &questionID
	}

	if inheritFromID != nil {
		groupIDs, err := db.QueryScalar[int](ctx, tx,
			`
			SELECT group_id
			FROM post_to_group
			WHERE post_id = $1
			`,
			*inheritFromID,
		)
		if err != nil {
			return oops.New(err, "failed to fetch inherited groups")
		}
		if len(groupIDs) > 0 {
			return AddPostToGroups(ctx, tx, post.ID, groupIDs)
		}
	}

	return MakePostPublic(ctx, tx, post.ID)
}

// FilterAuthorizedUsers keeps only users whose full group memberships
// intersect the post's groups. A groupless post is a bug state: nobody is
// authorized, and we log it loudly instead of quietly going public.
//
// everyoneID marks the public group; membership rows are not stored for it,
// so a post granted to everyone authorizes every user. userGroups maps user
// id to the ids of groups where the user is a full member.
func FilterAuthorizedUsers(
	ctx context.Context,
	users []*models.User,
	postGroups []int,
	everyoneID int,
	userGroups map[int][]int,
) []*models.User {
	if len(users) == 0 {
		return nil
	}
	if len(postGroups) == 0 {
		logging.ExtractLogger(ctx).Error().
			Msg("post belongs to no groups; refusing to authorize anyone")
		return nil
	}

	for _, g := range postGroups {
		if g == everyoneID {
			return users
		}
	}

	postSet := make(map[int]bool, len(postGroups))
	for _, g := range postGroups {
		postSet[g] = true
	}

	var authorized []*models.User
	for _, u := range users {
		for _, g := range userGroups[u.ID] {
			if postSet[g] {
				authorized = append(authorized, u)
				break
			}
		}
	}
	return authorized
}

// Loads the full-membership group ids for a set of users in one query.
func FetchUserGroups(ctx context.Context, dbConn db.ConnOrTx, userIDs []int) (map[int][]int, error) {
	p := perf.ExtractPerf(ctx)
	b := p.StartBlock("SQL", "Fetch user groups")
	defer b.End()

	memberships, err := db.Query[models.GroupMembership](ctx, dbConn,
		`
		SELECT $columns
		FROM group_membership
		WHERE user_id = ANY ($1) AND level = $2
		`,
		userIDs, models.GroupMembershipFull,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch group memberships")
	}

	result := make(map[int][]int)
	for _, m := range memberships {
		result[m.UserID] = append(result[m.UserID], m.GroupID)
	}
	return result, nil
}
