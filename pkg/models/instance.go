// Package models defines the core domain models for the content approval engine.
package models

import "time"

// WorkflowType identifies the content action an instance performs on full approval.
type WorkflowType string

const (
	WorkflowTypePublish   WorkflowType = "publish"
	WorkflowTypeUnpublish WorkflowType = "unpublish"
)

// Description returns the display label for the workflow type.
func (t WorkflowType) Description() string {
	switch t {
	case WorkflowTypePublish:
		return "Publish"
	case WorkflowTypeUnpublish:
		return "Unpublish"
	default:
		return string(t)
	}
}

// DescriptionPastTense returns the past-tense label, used in caller-facing messages.
func (t WorkflowType) DescriptionPastTense() string {
	switch t {
	case WorkflowTypePublish:
		return "published"
	case WorkflowTypeUnpublish:
		return "unpublished"
	default:
		return string(t)
	}
}

// WorkflowStatus represents the lifecycle state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowStatusPendingApproval WorkflowStatus = "pending_approval"
	WorkflowStatusApproved        WorkflowStatus = "approved"
	WorkflowStatusRejected        WorkflowStatus = "rejected"
	WorkflowStatusCancelled       WorkflowStatus = "cancelled"
)

// Name returns the display name of the status.
func (s WorkflowStatus) Name() string {
	switch s {
	case WorkflowStatusPendingApproval:
		return "Pending Approval"
	case WorkflowStatusApproved:
		return "Approved"
	case WorkflowStatusRejected:
		return "Rejected"
	case WorkflowStatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// Terminal reports whether the status is final. Terminal instances are
// permanent historical records and never transition again.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusApproved || s == WorkflowStatusRejected || s == WorkflowStatusCancelled
}

// WorkflowAction is a decision taken on the active task of an instance.
type WorkflowAction string

const (
	WorkflowActionApprove WorkflowAction = "approve"
	WorkflowActionReject  WorkflowAction = "reject"
)

// WorkflowInstance is one approval request for one content node.
//
// While the instance is pending exactly one of its tasks is pending; once the
// instance is terminal none are. Step numbers are never reused or decremented.
type WorkflowInstance struct {
	ID            int64           `json:"id"`
	GUID          string          `json:"guid"`
	NodeID        int             `json:"node_id"        validate:"required"`
	Type          WorkflowType    `json:"type"           validate:"required,oneof=publish unpublish"`
	Status        WorkflowStatus  `json:"status"`
	AuthorID      int             `json:"author_id"      validate:"required"`
	AuthorComment string          `json:"author_comment"`
	CurrentStep   int             `json:"current_step"`
	Tasks         []*TaskInstance `json:"tasks"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ActiveTask returns the unique pending task, or nil when the instance is terminal.
func (w *WorkflowInstance) ActiveTask() *TaskInstance {
	for _, task := range w.Tasks {
		if task.Status == TaskStatusPendingApproval {
			return task
		}
	}

	return nil
}

// TaskAtStep returns the task for the given step, or nil.
func (w *WorkflowInstance) TaskAtStep(step int) *TaskInstance {
	for _, task := range w.Tasks {
		if task.Step == step {
			return task
		}
	}

	return nil
}
