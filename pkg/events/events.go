// Package events defines event types and structures for approval lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/pressgate/pressgate/pkg/models"
)

type EventType string

// Topic carries every approval lifecycle event.
const Topic = "pressgate.workflows"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowInitiatedEvent EventType = "workflow.initiated"
	WorkflowAdvancedEvent  EventType = "workflow.advanced"
	WorkflowApprovedEvent  EventType = "workflow.approved"
	WorkflowRejectedEvent  EventType = "workflow.rejected"
	WorkflowCancelledEvent EventType = "workflow.cancelled"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	InstanceGUID string         `json:"instance_guid"`
	NodeID       int            `json:"node_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// WorkflowInitiated is published when a new approval request is created.
// AutoApproved marks instances created already approved because no chain was
// configured for the node.
type WorkflowInitiated struct {
	BaseEvent

	WorkflowType models.WorkflowType `json:"workflow_type"`
	AuthorID     int                 `json:"author_id"`
	GroupID      int                 `json:"group_id,omitempty"`
	AutoApproved bool                `json:"auto_approved"`
}

func (w WorkflowInitiated) GetType() EventType {
	return WorkflowInitiatedEvent
}

// WorkflowAdvanced is published when an intermediate step is approved and the
// instance moves on to the next group.
type WorkflowAdvanced struct {
	BaseEvent

	Step         int `json:"step"`
	NextGroupID  int `json:"next_group_id"`
	ActionedByID int `json:"actioned_by_id"`
}

func (w WorkflowAdvanced) GetType() EventType {
	return WorkflowAdvancedEvent
}

// WorkflowApproved is published after the final approval, once the content
// action has completed.
type WorkflowApproved struct {
	BaseEvent

	WorkflowType models.WorkflowType `json:"workflow_type"`
	ActionedByID int                 `json:"actioned_by_id"`
}

func (w WorkflowApproved) GetType() EventType {
	return WorkflowApprovedEvent
}

type WorkflowRejected struct {
	BaseEvent

	Step         int `json:"step"`
	ActionedByID int `json:"actioned_by_id"`
}

func (w WorkflowRejected) GetType() EventType {
	return WorkflowRejectedEvent
}

type WorkflowCancelled struct {
	BaseEvent

	CancelledByID int `json:"cancelled_by_id"`
}

func (w WorkflowCancelled) GetType() EventType {
	return WorkflowCancelledEvent
}

func NewBaseEvent(eventType EventType, instanceGUID string, nodeID int) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		InstanceGUID: instanceGUID,
		NodeID:       nodeID,
		Metadata:     make(map[string]any),
	}
}
