// Package web provides HTTP handlers and REST API endpoints for the approval engine.
package web

import (
	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/services"
)

// InitiateWorkflowRequest represents the request body for starting a workflow.
type InitiateWorkflowRequest struct {
	NodeID   int    `json:"node_id"   validate:"required"`
	AuthorID int    `json:"author_id" validate:"required"`
	Comment  string `json:"comment"`
	Publish  bool   `json:"publish"`
}

// TaskActionRequest represents the request body for actioning a task.
type TaskActionRequest struct {
	UserID  int    `json:"user_id" validate:"required"`
	Comment string `json:"comment"`
}

// ActionResponse is returned by every workflow mutation.
type ActionResponse struct {
	Message      string                   `json:"message"`
	WorkflowType models.WorkflowType      `json:"workflow_type"`
	Instance     *models.WorkflowInstance `json:"instance"`
}

// WorkflowTask is the task listing entry rendered by dashboards.
type WorkflowTask struct {
	TaskID          int64  `json:"task_id"`
	InstanceGUID    string `json:"instance_guid"`
	NodeID          int    `json:"node_id"`
	NodeName        string `json:"node_name"`
	Type            string `json:"type"`
	TypeDescription string `json:"type_description"`
	Status          string `json:"status"`
	CssStatus       string `json:"css_status"`
	Step            int    `json:"step"`
	RequestedBy     string `json:"requested_by"`
	RequestedOn     string `json:"requested_on"`
	Comment         string `json:"comment"`
	ApprovalGroup   string `json:"approval_group"`
	ShowActionLink  bool   `json:"show_action_link"`
}

// requestedOnLayout renders dates the way the dashboards expect, e.g. "2 Jan 2006".
const requestedOnLayout = "2 Jan 2006"

// TransformTaskResponse converts a query service item into its wire shape.
func TransformTaskResponse(item services.TaskItem) WorkflowTask {
	return WorkflowTask{
		TaskID:          item.TaskID,
		InstanceGUID:    item.InstanceGUID,
		NodeID:          item.NodeID,
		NodeName:        item.NodeName,
		Type:            string(item.Type),
		TypeDescription: item.TypeDescription,
		Status:          item.Status,
		CssStatus:       item.CssStatus,
		Step:            item.Step,
		RequestedBy:     item.RequestedBy,
		RequestedOn:     item.RequestedOn.Format(requestedOnLayout),
		Comment:         item.Comment,
		ApprovalGroup:   item.ApprovalGroup,
		ShowActionLink:  item.ShowActionLink,
	}
}

// TransformTasksResponse converts a listing in one go.
func TransformTasksResponse(items []services.TaskItem) []WorkflowTask {
	tasks := make([]WorkflowTask, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, TransformTaskResponse(item))
	}

	return tasks
}
