// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrTaskNotFound indicates a task instance was not found.
	ErrTaskNotFound = errors.New("task instance not found")

	// ErrActiveInstanceExists indicates a pending instance already exists
	// for the node; at most one workflow may be active per node.
	ErrActiveInstanceExists = errors.New("active workflow instance already exists for node")

	// ErrStateConflict indicates a conditional transition found the
	// instance or task in a different state than the caller observed.
	// Exactly one of two racing transitions receives this error.
	ErrStateConflict = errors.New("workflow instance state conflict")
)

// InstanceError wraps instance-related storage errors with context.
type InstanceError struct {
	Op      string // Operation being performed (e.g. "Create", "ResolveActiveTask")
	GUID    string // Instance GUID if applicable
	NodeID  int    // Node id if applicable
	Err     error  // Underlying error
	Message string // Additional context message
}

func (e *InstanceError) Error() string {
	target := e.GUID
	if target == "" && e.NodeID != 0 {
		target = fmt.Sprintf("node %d", e.NodeID)
	}

	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for instance %s: %s (%v)", e.Op, target, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, target, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for instance errors.
func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, guid string, err error) *InstanceError {
	return &InstanceError{
		Op:   op,
		GUID: guid,
		Err:  err,
	}
}

// NewNodeInstanceError creates a new instance error keyed by node.
func NewNodeInstanceError(op string, nodeID int, err error) *InstanceError {
	return &InstanceError{
		Op:     op,
		NodeID: nodeID,
		Err:    err,
	}
}

// IsInstanceNotFound checks if an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsTaskNotFound checks if an error indicates a missing task.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsActiveInstanceExists checks if an error indicates the per-node
// single-active-workflow invariant blocked a create.
func IsActiveInstanceExists(err error) bool {
	return errors.Is(err, ErrActiveInstanceExists)
}

// IsStateConflict checks if an error indicates a lost transition race.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrStateConflict)
}
