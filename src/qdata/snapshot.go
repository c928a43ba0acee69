package qdata

import (
	"context"

	"git.quorum.forum/qf/qf/src/db"
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
	"git.quorum.forum/qf/qf/src/perf"
)

// PostNode is one post in a thread snapshot, with its author and child
// comments attached.
type PostNode struct {
	Post     *models.Post
	Author   *models.User
	Comments []*PostNode
}

// ThreadSnapshot is an in-memory picture of one thread: the question, its
// answers, and all comments, with authors and group grants. Visibility
// checks and notification fan-out compute over the snapshot instead of
// issuing their own queries, which keeps them deterministic and testable.
//
// A snapshot is request-scoped. It goes stale the moment the thread is
// mutated; fetch a fresh one after writes.
type ThreadSnapshot struct {
	Thread   *models.Thread
	Question *PostNode
	Answers  []*PostNode

	// Group ids granted per post id. Empty slice means the groupless bug
	// state, not public.
	PostGroups map[int][]int
}

// The question node anchoring the thread. For answers and comments this is
// what "walking up to the origin post" lands on.
func (s *ThreadSnapshot) Origin() *PostNode {
	return s.Question
}

func (s *ThreadSnapshot) Node(postID int) *PostNode {
	var found *PostNode
	s.Walk(func(n *PostNode) {
		if n.Post.ID == postID {
			found = n
		}
	})
	return found
}

// Calls visit for every node in the thread, question first, then each
// answer, with comments directly after their parent. Thread ownership is a
// tree by construction, but the visited set guards against a corrupt
// parent chain ever looping us.
func (s *ThreadSnapshot) Walk(visit func(n *PostNode)) {
	visited := make(map[int]bool)
	var rec func(n *PostNode)
	rec = func(n *PostNode) {
		if n == nil || visited[n.Post.ID] {
			return
		}
		visited[n.Post.ID] = true
		visit(n)
		for _, c := range n.Comments {
			rec(c)
		}
	}
	rec(s.Question)
	for _, a := range s.Answers {
		rec(a)
	}
}

// The authors participating under this node, order-preserving and deduped,
// the node's own author first. Same visited-set discipline as Walk.
func (n *PostNode) Participants(includeComments bool) []*models.User {
	var users []*models.User
	seen := make(map[int]bool)
	visited := make(map[int]bool)

	var rec func(node *PostNode)
	rec = func(node *PostNode) {
		if node == nil || visited[node.Post.ID] {
			return
		}
		visited[node.Post.ID] = true
		if node.Author != nil && !seen[node.Author.ID] {
			seen[node.Author.ID] = true
			users = append(users, node.Author)
		}
		if includeComments {
			for _, c := range node.Comments {
				rec(c)
			}
		}
	}
	rec(n)
	return users
}

// All authors participating anywhere in the thread, question author first,
// then answer authors, then commenters in walk order.
func (s *ThreadSnapshot) AllParticipants() []*models.User {
	var users []*models.User
	seen := make(map[int]bool)
	s.Walk(func(n *PostNode) {
		if n.Author != nil && !seen[n.Author.ID] {
			seen[n.Author.ID] = true
			users = append(users, n.Author)
		}
	})
	return users
}

// Loads a full thread picture in three queries. Deleted posts are included;
// compute functions decide what deleted means for them.
func FetchThreadSnapshot(ctx context.Context, dbConn db.ConnOrTx, threadID int) (*ThreadSnapshot, error) {
	p := perf.ExtractPerf(ctx)
	b := p.StartBlock("SQL", "Fetch thread snapshot")
	defer b.End()

	thread, err := db.QueryOne[models.Thread](ctx, dbConn,
		`
		SELECT $columns
		FROM thread
		WHERE id = $1
		`,
		threadID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch thread")
	}

	type postRow struct {
		Post   models.Post  `db:"post"`
		Author *models.User `db:"author"`
	}
	rows, err := db.Query[postRow](ctx, dbConn,
		`
		SELECT $columns
		FROM
			post
			LEFT JOIN qf_user AS author ON author.id = post.author_id
		WHERE
			post.thread_id = $1
		ORDER BY post.added_at
		`,
		threadID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch thread posts")
	}

	snapshot := &ThreadSnapshot{
		Thread:     thread,
		PostGroups: make(map[int][]int),
	}

	nodes := make(map[int]*PostNode)
	var postIDs []int
	for _, row := range rows {
		nodes[row.Post.ID] = &PostNode{Post: &row.Post, Author: row.Author}
		postIDs = append(postIDs, row.Post.ID)
	}
	for _, row := range rows {
		node := nodes[row.Post.ID]
		switch row.Post.Kind {
		case models.PostKindQuestion:
			snapshot.Question = node
		case models.PostKindAnswer:
			snapshot.Answers = append(snapshot.Answers, node)
		case models.PostKindComment:
			if row.Post.ParentID != nil {
				if parent, ok := nodes[*row.Post.ParentID]; ok {
					parent.Comments = append(parent.Comments, node)
				}
			}
		}
	}

	grants, err := db.Query[models.PostToGroup](ctx, dbConn,
		`
		SELECT $columns
		FROM post_to_group
		WHERE post_id = ANY ($1)
		`,
		postIDs,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch post group grants")
	}
	for _, g := range grants {
		snapshot.PostGroups[g.PostID] = append(snapshot.PostGroups[g.PostID], g.GroupID)
	}

	return snapshot, nil
}
