package qdata

import (
	"git.quorum.forum/qf/qf/src/models"
	"git.quorum.forum/qf/qf/src/oops"
)

// AssertVisible reports whether the viewer may see the post, as nil or a
// *HiddenError carrying the kind to present. It is a pure check over the
// snapshot; viewerGroups are the ids of groups the viewer fully belongs to.
//
// Tag wikis and reject reasons are administrative content and always
// visible; calling this on one is a programming error.
func AssertVisible(
	settings Settings,
	snapshot *ThreadSnapshot,
	post *models.Post,
	viewer *models.User,
	viewerGroups []int,
	everyoneGroupID int,
) error {
	if !post.Kind.IsContent() {
		panic(oops.New(nil, "visibility check on a %s post", post.Kind))
	}

	if settings.GroupsEnabled && post.Kind != models.PostKindComment {
		if !groupsAllow(snapshot.PostGroups[post.ID], viewerGroups, everyoneGroupID) {
			return hiddenAs(post.Kind)
		}
	}

	switch post.Kind {
	case models.PostKindQuestion:
		return assertQuestionVisible(post, viewer)
	case models.PostKindAnswer:
		return assertAnswerVisible(snapshot, post, viewer)
	case models.PostKindComment:
		if post.ParentID == nil {
			return hiddenAs(models.PostKindQuestion)
		}
		parent := snapshot.Node(*post.ParentID)
		if parent == nil {
			return hiddenAs(models.PostKindQuestion)
		}
		// Whatever kind of hidden the parent raises is what the comment
		// reports.
		return AssertVisible(settings, snapshot, parent.Post, viewer, viewerGroups, everyoneGroupID)
	}
	return nil
}

func assertQuestionVisible(post *models.Post, viewer *models.User) error {
	if !post.Approved && !isAuthorOrMod(post, viewer) {
		return ErrQuestionHidden
	}
	if post.Deleted && !canSeeDeleted(viewer) {
		return ErrQuestionHidden
	}
	return nil
}

func assertAnswerVisible(snapshot *ThreadSnapshot, post *models.Post, viewer *models.User) error {
	if question := snapshot.Origin(); question != nil {
		err := assertQuestionVisible(question.Post, viewer)
		if err != nil {
			return err
		}
	}
	if !post.Approved && !isAuthorOrMod(post, viewer) {
		return ErrAnswerHidden
	}
	if post.Deleted && !canSeeDeleted(viewer) {
		return ErrAnswerHidden
	}
	return nil
}

func hiddenAs(kind models.PostKind) error {
	if kind == models.PostKindQuestion {
		return ErrQuestionHidden
	}
	return ErrAnswerHidden
}

func groupsAllow(postGroups []int, viewerGroups []int, everyoneGroupID int) bool {
	// Zero groups is the groupless bug state and authorizes nobody.
	if len(postGroups) == 0 {
		return false
	}
	viewerSet := make(map[int]bool, len(viewerGroups))
	for _, g := range viewerGroups {
		viewerSet[g] = true
	}
	for _, g := range postGroups {
		if g == everyoneGroupID || viewerSet[g] {
			return true
		}
	}
	return false
}

func isAuthorOrMod(post *models.Post, viewer *models.User) bool {
	if viewer == nil {
		return false
	}
	return viewer.ID == post.AuthorID || viewer.IsAdminOrMod()
}

func canSeeDeleted(viewer *models.User) bool {
	return viewer != nil && viewer.IsAdminOrMod()
}
