package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/persistence"
	"github.com/pressgate/pressgate/pkg/workflow"
)

// InitiateRequest asks for a new approval workflow on a node. Publish selects
// the content action recorded for the instance.
type InitiateRequest struct {
	NodeID   int    `json:"node_id"   validate:"required"`
	AuthorID int    `json:"author_id" validate:"required"`
	Comment  string `json:"comment"`
	Publish  bool   `json:"publish"`
}

// ActionRequest applies a decision to the task's workflow.
type ActionRequest struct {
	TaskID  int64  `json:"task_id" validate:"required"`
	UserID  int    `json:"user_id" validate:"required"`
	Comment string `json:"comment"`
}

// ActionResult is what adapters present to the caller: a human-readable
// message derived from the resulting status plus the affected instance.
type ActionResult struct {
	Message      string                   `json:"message"`
	WorkflowType models.WorkflowType      `json:"workflow_type"`
	Instance     *models.WorkflowInstance `json:"instance"`
}

// Approval exposes the workflow process to adapters with request validation
// and caller-facing messages.
type Approval struct {
	logger    *slog.Logger
	validator *validator.Validate
	process   *workflow.Process
	instances persistence.InstanceRepository
}

// NewApproval creates the approval service.
func NewApproval(logger *slog.Logger, process *workflow.Process, instances persistence.InstanceRepository) *Approval {
	return &Approval{
		logger:    logger.With("module", "approval"),
		validator: validator.New(),
		process:   process,
		instances: instances,
	}
}

// Initiate starts a workflow for the node.
func (a *Approval) Initiate(ctx context.Context, req InitiateRequest) (*ActionResult, error) {
	if err := a.validator.Struct(req); err != nil {
		return nil, NewValidationError("Initiate", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	workflowType := models.WorkflowTypeUnpublish
	if req.Publish {
		workflowType = models.WorkflowTypePublish
	}

	instance, err := a.process.InitiateWorkflow(ctx, req.NodeID, workflowType, req.AuthorID, req.Comment)
	if err != nil {
		return nil, err
	}

	message := "Page submitted for approval"
	if instance.Status == models.WorkflowStatusApproved {
		message = fmt.Sprintf("No approval required, page %s", workflowType.DescriptionPastTense())
	}

	return &ActionResult{
		Message:      message,
		WorkflowType: workflowType,
		Instance:     instance,
	}, nil
}

// Approve approves the task's active step.
func (a *Approval) Approve(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	return a.action(ctx, "Approve", req, models.WorkflowActionApprove)
}

// Reject rejects the task's active step, terminating the workflow.
func (a *Approval) Reject(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	return a.action(ctx, "Reject", req, models.WorkflowActionReject)
}

func (a *Approval) action(ctx context.Context, op string, req ActionRequest, action models.WorkflowAction) (*ActionResult, error) {
	if err := a.validator.Struct(req); err != nil {
		return nil, NewValidationError(op, "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	instance, err := a.instanceForTask(ctx, op, req.TaskID)
	if err != nil {
		return nil, err
	}

	updated, err := a.process.ActionWorkflow(ctx, instance, action, req.UserID, req.Comment)
	if err != nil {
		return nil, err
	}

	return &ActionResult{
		Message:      a.actionMessage(updated),
		WorkflowType: updated.Type,
		Instance:     updated,
	}, nil
}

// Cancel terminates the task's workflow without a content action.
func (a *Approval) Cancel(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	if err := a.validator.Struct(req); err != nil {
		return nil, NewValidationError("Cancel", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	instance, err := a.instanceForTask(ctx, "Cancel", req.TaskID)
	if err != nil {
		return nil, err
	}

	updated, err := a.process.CancelWorkflow(ctx, instance, req.UserID, req.Comment)
	if err != nil {
		return nil, err
	}

	return &ActionResult{
		Message:      fmt.Sprintf("%s workflow cancelled", updated.Type.Description()),
		WorkflowType: updated.Type,
		Instance:     updated,
	}, nil
}

func (a *Approval) instanceForTask(ctx context.Context, op string, taskID int64) (*models.WorkflowInstance, error) {
	instance, err := a.instances.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow for task %d: %w", taskID, err)
	}

	if instance == nil {
		return nil, &ServiceError{Op: op, Code: "TASK_NOT_FOUND", Err: persistence.ErrTaskNotFound}
	}

	return instance, nil
}

// actionMessage derives the caller message from the status the workflow
// reached, not from the action taken.
func (a *Approval) actionMessage(instance *models.WorkflowInstance) string {
	switch instance.Status {
	case models.WorkflowStatusApproved:
		return fmt.Sprintf("Workflow complete, page %s", instance.Type.DescriptionPastTense())
	case models.WorkflowStatusRejected:
		return "Workflow rejected, no changes made"
	case models.WorkflowStatusCancelled:
		return fmt.Sprintf("%s workflow cancelled", instance.Type.Description())
	default:
		return fmt.Sprintf("Approval recorded, step %d awaiting approval", instance.CurrentStep)
	}
}
