// Package workflow implements the approval state machine: a shared driver
// over the instance store plus one content action per workflow type.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pressgate/pressgate/pkg/content"
	"github.com/pressgate/pressgate/pkg/eventbus"
	"github.com/pressgate/pressgate/pkg/events"
	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/otelhelper"
	"github.com/pressgate/pressgate/pkg/permissions"
	"github.com/pressgate/pressgate/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Process drives workflow instances through their lifecycle. Each operation
// is a short synchronous transition; serialization of racing callers happens
// in the store, which the process surfaces as ErrStateConflict.
type Process struct {
	logger    *slog.Logger
	instances persistence.InstanceRepository
	resolver  *permissions.Resolver
	cms       content.Service
	groups    content.GroupService
	publisher eventbus.EventPublisher
}

// NewProcess creates the approval process driver. The publisher may be nil,
// in which case lifecycle events are not emitted.
func NewProcess(
	logger *slog.Logger,
	instances persistence.InstanceRepository,
	resolver *permissions.Resolver,
	cms content.Service,
	groups content.GroupService,
	publisher eventbus.EventPublisher,
) *Process {
	return &Process{
		logger:    logger.With("module", "workflow"),
		instances: instances,
		resolver:  resolver,
		cms:       cms,
		groups:    groups,
		publisher: publisher,
	}
}

// InitiateWorkflow creates a new approval request for the node.
//
// When no approval chain is configured anywhere up the content tree the
// content action fires immediately and the instance is created already
// approved, carrying a single historical approved task.
func (p *Process) InitiateWorkflow(
	ctx context.Context,
	nodeID int,
	workflowType models.WorkflowType,
	authorID int,
	comment string,
) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, otel.Tracer("pressgate/workflow"), "workflow.initiate",
		attribute.Int(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.WorkflowTypeKey, string(workflowType)),
	)
	defer span.End()

	action, err := ActionFor(workflowType, p.cms)
	if err != nil {
		return nil, err
	}

	node, err := p.cms.GetNodeByID(ctx, nodeID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to resolve node %d: %w", nodeID, err)
	}

	active, err := p.instances.ActiveByNode(ctx, nodeID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if active != nil {
		return nil, persistence.NewNodeInstanceError("InitiateWorkflow", nodeID, persistence.ErrActiveInstanceExists)
	}

	chain, err := p.resolver.ResolveIDs(ctx, node)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if len(chain) == 0 {
		return p.initiateAutoApproved(ctx, action, nodeID, authorID, comment)
	}

	instance := &models.WorkflowInstance{
		NodeID:        nodeID,
		Type:          workflowType,
		Status:        models.WorkflowStatusPendingApproval,
		AuthorID:      authorID,
		AuthorComment: comment,
		CurrentStep:   1,
		Tasks: []*models.TaskInstance{
			{Step: 1, GroupID: chain[0], Status: models.TaskStatusPendingApproval},
		},
	}

	if err := p.instances.Create(ctx, instance); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	p.publish(ctx, nodeID, events.WorkflowInitiated{
		BaseEvent:    events.NewBaseEvent(events.WorkflowInitiatedEvent, instance.GUID, nodeID),
		WorkflowType: workflowType,
		AuthorID:     authorID,
		GroupID:      chain[0],
	})

	p.logger.InfoContext(ctx, "workflow initiated",
		"instance_guid", instance.GUID, "node_id", nodeID, "type", workflowType, "groups", len(chain))

	return instance, nil
}

// initiateAutoApproved handles the empty-chain path: the content action fires
// immediately and the stored instance is a terminal historical record.
func (p *Process) initiateAutoApproved(
	ctx context.Context,
	action ContentAction,
	nodeID, authorID int,
	comment string,
) (*models.WorkflowInstance, error) {
	if err := action.Do(ctx, nodeID); err != nil {
		return nil, &CollaboratorError{Op: "InitiateWorkflow", Err: err}
	}

	actionedBy := authorID
	instance := &models.WorkflowInstance{
		NodeID:        nodeID,
		Type:          action.Type(),
		Status:        models.WorkflowStatusApproved,
		AuthorID:      authorID,
		AuthorComment: comment,
		CurrentStep:   1,
		Tasks: []*models.TaskInstance{
			{
				Step:         1,
				Status:       models.TaskStatusApproved,
				ActionedByID: &actionedBy,
				Comment:      comment,
			},
		},
	}

	if err := p.instances.Create(ctx, instance); err != nil {
		return nil, err
	}

	p.publish(ctx, nodeID, events.WorkflowInitiated{
		BaseEvent:    events.NewBaseEvent(events.WorkflowInitiatedEvent, instance.GUID, nodeID),
		WorkflowType: action.Type(),
		AuthorID:     authorID,
		AutoApproved: true,
	})

	p.logger.InfoContext(ctx, "workflow auto-approved, no chain configured",
		"instance_guid", instance.GUID, "node_id", nodeID, "type", action.Type())

	return instance, nil
}

// ActionWorkflow applies an approve or reject decision to the active task.
//
// The acting user must be a member of the group gating the task. Of two
// racing calls exactly one succeeds; the loser gets ErrStateConflict from the
// store when its observed step no longer matches.
func (p *Process) ActionWorkflow(
	ctx context.Context,
	instance *models.WorkflowInstance,
	action models.WorkflowAction,
	actingUserID int,
	comment string,
) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, otel.Tracer("pressgate/workflow"), "workflow.action",
		attribute.String(otelhelper.InstanceGUIDKey, instance.GUID),
		attribute.String("pressgate.action", string(action)),
		attribute.Int(otelhelper.UserIDKey, actingUserID),
	)
	defer span.End()

	if instance.Status != models.WorkflowStatusPendingApproval {
		return nil, persistence.NewInstanceError("ActionWorkflow", instance.GUID, persistence.ErrStateConflict)
	}

	task := instance.ActiveTask()
	if task == nil {
		return nil, persistence.NewInstanceError("ActionWorkflow", instance.GUID, persistence.ErrStateConflict)
	}

	member, err := p.groups.IsMember(ctx, task.GroupID, actingUserID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed membership check for group %d: %w", task.GroupID, err)
	}

	if !member {
		return nil, fmt.Errorf("user %d cannot action group %d task: %w", actingUserID, task.GroupID, ErrNotAuthorized)
	}

	switch action {
	case models.WorkflowActionApprove:
		return p.approve(ctx, instance, actingUserID, comment)
	case models.WorkflowActionReject:
		return p.reject(ctx, instance, actingUserID, comment)
	default:
		return nil, fmt.Errorf("unknown workflow action %q", action)
	}
}

func (p *Process) approve(
	ctx context.Context,
	instance *models.WorkflowInstance,
	actingUserID int,
	comment string,
) (*models.WorkflowInstance, error) {
	node, err := p.cms.GetNodeByID(ctx, instance.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve node %d: %w", instance.NodeID, err)
	}

	chain, err := p.resolver.ResolveIDs(ctx, node)
	if err != nil {
		return nil, err
	}

	if instance.CurrentStep >= len(chain) {
		return p.finalize(ctx, instance, actingUserID, comment)
	}

	nextGroupID := chain[instance.CurrentStep]

	// The conditional task completion is the serialization point: it only
	// succeeds while the instance is pending at the step this caller saw.
	// The next pending task rides in the same atomic unit so no reader
	// observes a pending instance without one.
	if _, err := p.instances.ResolveActiveTask(ctx, persistence.TaskResolution{
		InstanceGUID: instance.GUID,
		Step:         instance.CurrentStep,
		Status:       models.TaskStatusApproved,
		ActionedByID: actingUserID,
		Comment:      comment,
		NextTask:     &models.TaskInstance{GroupID: nextGroupID},
	}); err != nil {
		return nil, err
	}

	p.publish(ctx, instance.NodeID, events.WorkflowAdvanced{
		BaseEvent:    events.NewBaseEvent(events.WorkflowAdvancedEvent, instance.GUID, instance.NodeID),
		Step:         instance.CurrentStep + 1,
		NextGroupID:  nextGroupID,
		ActionedByID: actingUserID,
	})

	p.logger.InfoContext(ctx, "workflow advanced",
		"instance_guid", instance.GUID, "step", instance.CurrentStep+1, "next_group_id", nextGroupID)

	return p.instances.GetByGUID(ctx, instance.GUID)
}

// finalize approves the last task, fires the content action and then marks
// the instance approved. That order is deliberate: if the content action
// fails the instance stays pending with its final task approved, flagging it
// for manual follow-up instead of reporting false success.
func (p *Process) finalize(
	ctx context.Context,
	instance *models.WorkflowInstance,
	actingUserID int,
	comment string,
) (*models.WorkflowInstance, error) {
	action, err := ActionFor(instance.Type, p.cms)
	if err != nil {
		return nil, err
	}

	if _, err := p.instances.ResolveActiveTask(ctx, persistence.TaskResolution{
		InstanceGUID: instance.GUID,
		Step:         instance.CurrentStep,
		Status:       models.TaskStatusApproved,
		ActionedByID: actingUserID,
		Comment:      comment,
	}); err != nil {
		return nil, err
	}

	if err := action.Do(ctx, instance.NodeID); err != nil {
		p.logger.ErrorContext(ctx, "content action failed after final approval",
			"instance_guid", instance.GUID, "node_id", instance.NodeID, "type", instance.Type, "error", err)

		return nil, &CollaboratorError{Op: "ActionWorkflow", Err: err}
	}

	if err := p.instances.SetStatus(ctx, instance.GUID, models.WorkflowStatusApproved); err != nil {
		return nil, err
	}

	p.publish(ctx, instance.NodeID, events.WorkflowApproved{
		BaseEvent:    events.NewBaseEvent(events.WorkflowApprovedEvent, instance.GUID, instance.NodeID),
		WorkflowType: instance.Type,
		ActionedByID: actingUserID,
	})

	p.logger.InfoContext(ctx, "workflow approved",
		"instance_guid", instance.GUID, "node_id", instance.NodeID, "type", instance.Type)

	return p.instances.GetByGUID(ctx, instance.GUID)
}

func (p *Process) reject(
	ctx context.Context,
	instance *models.WorkflowInstance,
	actingUserID int,
	comment string,
) (*models.WorkflowInstance, error) {
	// The rejected status rides in the same atomic unit as the task
	// resolution; the instance is never observed pending with its task
	// already rejected.
	if _, err := p.instances.ResolveActiveTask(ctx, persistence.TaskResolution{
		InstanceGUID:   instance.GUID,
		Step:           instance.CurrentStep,
		Status:         models.TaskStatusRejected,
		ActionedByID:   actingUserID,
		Comment:        comment,
		InstanceStatus: models.WorkflowStatusRejected,
	}); err != nil {
		return nil, err
	}

	p.publish(ctx, instance.NodeID, events.WorkflowRejected{
		BaseEvent:    events.NewBaseEvent(events.WorkflowRejectedEvent, instance.GUID, instance.NodeID),
		Step:         instance.CurrentStep,
		ActionedByID: actingUserID,
	})

	p.logger.InfoContext(ctx, "workflow rejected",
		"instance_guid", instance.GUID, "step", instance.CurrentStep)

	return p.instances.GetByGUID(ctx, instance.GUID)
}

// CancelWorkflow terminates a pending instance without a content action. Who
// may cancel is the caller's concern; the process only checks the instance is
// still pending.
func (p *Process) CancelWorkflow(
	ctx context.Context,
	instance *models.WorkflowInstance,
	actingUserID int,
	comment string,
) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, otel.Tracer("pressgate/workflow"), "workflow.cancel",
		attribute.String(otelhelper.InstanceGUIDKey, instance.GUID),
		attribute.Int(otelhelper.UserIDKey, actingUserID),
	)
	defer span.End()

	if instance.Status.Terminal() {
		return nil, persistence.NewInstanceError("CancelWorkflow", instance.GUID, persistence.ErrStateConflict)
	}

	// The store tolerates an absent pending task: an instance left pending
	// by a failed content action still cancels.
	if err := p.instances.Cancel(ctx, instance.GUID, actingUserID, comment); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	p.publish(ctx, instance.NodeID, events.WorkflowCancelled{
		BaseEvent:     events.NewBaseEvent(events.WorkflowCancelledEvent, instance.GUID, instance.NodeID),
		CancelledByID: actingUserID,
	})

	p.logger.InfoContext(ctx, "workflow cancelled",
		"instance_guid", instance.GUID, "node_id", instance.NodeID)

	return p.instances.GetByGUID(ctx, instance.GUID)
}

// publish emits a lifecycle event best effort; delivery failures are logged
// and never fail the transition that already happened.
func (p *Process) publish(ctx context.Context, nodeID int, event eventbus.Event) {
	if p.publisher == nil {
		return
	}

	if err := p.publisher.Publish(ctx, strconv.Itoa(nodeID), event); err != nil {
		p.logger.WarnContext(ctx, "failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}
