package workflow

import (
	"errors"
	"fmt"
)

// ErrNotAuthorized indicates the acting user is not a member of the group
// gating the active task.
var ErrNotAuthorized = errors.New("acting user is not a member of the required approval group")

// CollaboratorError wraps a failure of an external collaborator, typically
// the content action. When it wraps a failed final-approval content action
// the instance is intentionally left pending for manual follow-up.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: collaborator failed: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// IsNotAuthorized checks if an error indicates a failed group-membership
// precondition.
func IsNotAuthorized(err error) bool {
	return errors.Is(err, ErrNotAuthorized)
}

// IsCollaboratorError checks if an error originated in an external
// collaborator rather than the engine itself.
func IsCollaboratorError(err error) bool {
	var collaboratorErr *CollaboratorError

	return errors.As(err, &collaboratorErr)
}
