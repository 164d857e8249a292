package models

import (
	"strings"
	"time"
)

// TaskStatus represents the state of a single approval step.
type TaskStatus string

const (
	TaskStatusPendingApproval TaskStatus = "pending_approval"
	TaskStatusApproved        TaskStatus = "approved"
	TaskStatusRejected        TaskStatus = "rejected"
)

// Name returns the display name of the task status.
func (s TaskStatus) Name() string {
	switch s {
	case TaskStatusPendingApproval:
		return "Pending Approval"
	case TaskStatusApproved:
		return "Approved"
	case TaskStatusRejected:
		return "Rejected"
	default:
		return string(s)
	}
}

// TaskInstance is one approval step within a workflow instance.
//
// A task is created pending and mutated exactly once, to approved or
// rejected, when actioned. Steps are 1-based and strictly increasing
// within an instance.
type TaskInstance struct {
	ID           int64      `json:"id"`
	InstanceGUID string     `json:"instance_guid"`
	Step         int        `json:"step"`
	GroupID      int        `json:"group_id"`
	Status       TaskStatus `json:"status"`
	ActionedByID *int       `json:"actioned_by_id,omitempty"`
	Comment      string     `json:"comment"`
	CreatedAt    time.Time  `json:"created_at"`

	// Instance is a non-owning back-reference populated by listing queries.
	// May be nil when the task is read in a context already scoped to its
	// instance; readers fall back to that instance.
	Instance *WorkflowInstance `json:"-"`
}

// CssStatus returns the first word of the lowercased status name, used by
// dashboards as a style hook.
func (t *TaskInstance) CssStatus() string {
	name := strings.ToLower(t.Status.Name())

	word, _, _ := strings.Cut(name, " ")

	return word
}
