package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/pressgate/pressgate/pkg/eventbus"
	"github.com/pressgate/pressgate/pkg/events"
)

// Auditor writes every workflow lifecycle event to the structured log,
// producing an append-only audit trail independent of the store.
type Auditor struct {
	id        string
	logger    *slog.Logger
	eventBus  eventbus.EventBus
	processed atomic.Uint64
}

func NewAuditor(id string, eventBus eventbus.EventBus, logger *slog.Logger) *Auditor {
	return &Auditor{
		id:       id,
		logger:   logger.With("module", "pressgate-audit", "auditor_id", id),
		eventBus: eventBus,
	}
}

// Register wires the lifecycle handlers and starts consuming.
func (a *Auditor) Register(ctx context.Context) error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.WorkflowInitiatedEvent: a.handleInitiated,
		events.WorkflowAdvancedEvent:  a.handleAdvanced,
		events.WorkflowApprovedEvent:  a.handleApproved,
		events.WorkflowRejectedEvent:  a.handleRejected,
		events.WorkflowCancelledEvent: a.handleCancelled,
	}

	for eventType, handler := range handlers {
		if err := a.eventBus.Handle(eventType, handler); err != nil {
			return err
		}
	}

	return a.eventBus.Subscribe(ctx)
}

func (a *Auditor) Start(ctx context.Context) error {
	a.logger.InfoContext(ctx, "Starting auditor")

	if err := a.Register(ctx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	a.logger.InfoContext(ctx, "Auditor started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	a.logger.InfoContext(ctx, "Shutting down auditor...")

	return nil
}

// Processed reports how many events this auditor has recorded.
func (a *Auditor) Processed() uint64 {
	return a.processed.Load()
}

func (a *Auditor) handleInitiated(ctx context.Context, event any) error {
	initiated, ok := event.(*events.WorkflowInitiated)
	if !ok {
		a.logger.ErrorContext(ctx, "Invalid event type for WorkflowInitiated")

		return nil
	}

	a.logger.InfoContext(ctx, "workflow initiated",
		"event_id", initiated.ID,
		"instance_guid", initiated.InstanceGUID,
		"node_id", initiated.NodeID,
		"workflow_type", initiated.WorkflowType,
		"author_id", initiated.AuthorID,
		"group_id", initiated.GroupID,
		"auto_approved", initiated.AutoApproved,
	)
	a.processed.Add(1)

	return nil
}

func (a *Auditor) handleAdvanced(ctx context.Context, event any) error {
	advanced, ok := event.(*events.WorkflowAdvanced)
	if !ok {
		a.logger.ErrorContext(ctx, "Invalid event type for WorkflowAdvanced")

		return nil
	}

	a.logger.InfoContext(ctx, "workflow advanced",
		"event_id", advanced.ID,
		"instance_guid", advanced.InstanceGUID,
		"node_id", advanced.NodeID,
		"step", advanced.Step,
		"next_group_id", advanced.NextGroupID,
		"actioned_by_id", advanced.ActionedByID,
	)
	a.processed.Add(1)

	return nil
}

func (a *Auditor) handleApproved(ctx context.Context, event any) error {
	approved, ok := event.(*events.WorkflowApproved)
	if !ok {
		a.logger.ErrorContext(ctx, "Invalid event type for WorkflowApproved")

		return nil
	}

	a.logger.InfoContext(ctx, "workflow approved",
		"event_id", approved.ID,
		"instance_guid", approved.InstanceGUID,
		"node_id", approved.NodeID,
		"workflow_type", approved.WorkflowType,
		"actioned_by_id", approved.ActionedByID,
	)
	a.processed.Add(1)

	return nil
}

func (a *Auditor) handleRejected(ctx context.Context, event any) error {
	rejected, ok := event.(*events.WorkflowRejected)
	if !ok {
		a.logger.ErrorContext(ctx, "Invalid event type for WorkflowRejected")

		return nil
	}

	a.logger.InfoContext(ctx, "workflow rejected",
		"event_id", rejected.ID,
		"instance_guid", rejected.InstanceGUID,
		"node_id", rejected.NodeID,
		"step", rejected.Step,
		"actioned_by_id", rejected.ActionedByID,
	)
	a.processed.Add(1)

	return nil
}

func (a *Auditor) handleCancelled(ctx context.Context, event any) error {
	cancelled, ok := event.(*events.WorkflowCancelled)
	if !ok {
		a.logger.ErrorContext(ctx, "Invalid event type for WorkflowCancelled")

		return nil
	}

	a.logger.InfoContext(ctx, "workflow cancelled",
		"event_id", cancelled.ID,
		"instance_guid", cancelled.InstanceGUID,
		"node_id", cancelled.NodeID,
		"cancelled_by_id", cancelled.CancelledByID,
	)
	a.processed.Add(1)

	return nil
}
