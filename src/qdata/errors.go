package qdata

import (
	"errors"
	"fmt"

	"git.quorum.forum/qf/qf/src/models"
)

// HiddenError is returned when a viewer is not allowed to see a post. The
// kind tells the caller which flavor of "not for you" to present; it must be
// translated into a not-found or forbidden response, never shown raw.
type HiddenError struct {
	Kind models.PostKind
}

func (e *HiddenError) Error() string {
	return fmt.Sprintf("sorry, this %s is hidden", e.Kind)
}

// Two errors compare equal when they hide the same kind of post, so
// errors.Is works against the sentinels below.
func (e *HiddenError) Is(target error) bool {
	var other *HiddenError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

var (
	ErrQuestionHidden = &HiddenError{Kind: models.PostKindQuestion}
	ErrAnswerHidden   = &HiddenError{Kind: models.PostKindAnswer}
)

// ValidationError rejects a malformed mutation before anything is written.
// The whole operation aborts; there is never a partial row to clean up.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// A user already has a rule for this feed type. Surfaced as a save failure
// rather than silently merging the two rules.
var ErrDuplicateSubscription = errors.New("a subscription rule for this feed already exists")
