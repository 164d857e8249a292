// Package persistence provides the data storage contracts for workflow
// instances, task instances and permission rules.
package persistence

import (
	"context"

	"github.com/pressgate/pressgate/pkg/models"
)

// TaskResolution describes the completion of the active task of an instance.
// Step carries the step the caller observed; implementations must apply the
// resolution conditionally so that of two racing callers exactly one
// succeeds and the other gets ErrStateConflict.
//
// A resolution may carry a follow-up transition, applied in the same atomic
// unit as the task completion so no reader ever observes a pending instance
// without a pending task:
//   - NextTask, when set, advances the instance to the next step and stores
//     it as the new pending task.
//   - InstanceStatus, when set, moves the instance to that status.
//
// At most one of the two may be set.
type TaskResolution struct {
	InstanceGUID   string
	Step           int
	Status         models.TaskStatus
	ActionedByID   int
	Comment        string
	NextTask       *models.TaskInstance
	InstanceStatus models.WorkflowStatus
}

// InstanceRepository owns workflow instances and their nested tasks.
//
// Create and ResolveActiveTask are each observed as a single atomic unit by
// concurrent readers. Instances are never deleted.
type InstanceRepository interface {
	// Create stores the instance together with the tasks it carries.
	// Returns ErrActiveInstanceExists when a pending instance already
	// exists for the same node.
	Create(ctx context.Context, instance *models.WorkflowInstance) error

	// GetByGUID returns the instance with its tasks, or nil when absent.
	GetByGUID(ctx context.Context, guid string) (*models.WorkflowInstance, error)

	// GetByTaskID returns the instance owning the given task, or nil.
	GetByTaskID(ctx context.Context, taskID int64) (*models.WorkflowInstance, error)

	// ActiveByNode returns the pending instance for the node, or nil.
	ActiveByNode(ctx context.Context, nodeID int) (*models.WorkflowInstance, error)

	// ResolveActiveTask marks the active task approved or rejected,
	// conditional on the instance being pending at the resolved step, and
	// applies the follow-up transition the resolution carries as the same
	// atomic unit. Returns ErrStateConflict when the condition no longer
	// holds.
	ResolveActiveTask(ctx context.Context, resolution TaskResolution) (*models.TaskInstance, error)

	// Cancel moves a pending instance to cancelled, rejecting its pending
	// task when one exists. An instance whose final task is already
	// approved but whose content action never completed has no pending
	// task and must still cancel. Returns ErrStateConflict when the
	// instance is already terminal.
	Cancel(ctx context.Context, guid string, actionedByID int, comment string) error

	// SetStatus updates the instance status.
	SetStatus(ctx context.Context, guid string, status models.WorkflowStatus) error

	// All returns every instance with its nested tasks.
	All(ctx context.Context) ([]*models.WorkflowInstance, error)
}

// TaskRepository is the read side over task instances. Listing results carry
// the owning instance as a back-reference.
type TaskRepository interface {
	ByStatus(ctx context.Context, status models.TaskStatus) ([]*models.TaskInstance, error)
	All(ctx context.Context) ([]*models.TaskInstance, error)
	ByNode(ctx context.Context, nodeID int) ([]*models.TaskInstance, error)

	// PendingByAuthor returns pending tasks of instances requested by the
	// given user.
	PendingByAuthor(ctx context.Context, authorID int) ([]*models.TaskInstance, error)
}

// PermissionRepository reads and seeds the configured approval chains.
// The engine only ever reads; SetChain exists for configuration loading.
type PermissionRepository interface {
	// ChainFor returns the ordered group ids configured for the exact
	// (node, content type) pair, or an empty slice when none are set.
	ChainFor(ctx context.Context, nodeID, contentTypeID int) ([]int, error)

	SetChain(ctx context.Context, rule *models.PermissionRule) error

	All(ctx context.Context) ([]*models.PermissionRule, error)
}

// Persistence aggregates the repositories behind one storage provider.
type Persistence interface {
	Instances() InstanceRepository
	Tasks() TaskRepository
	Permissions() PermissionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
