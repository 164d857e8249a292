package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pressgate/pressgate/pkg/content"
	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/persistence"
)

// Flow listing kinds accepted by FlowsForUser.
const (
	FlowKindTasks       = 0 // tasks the user may action
	FlowKindSubmissions = 1 // the user's own pending submissions
)

// TaskItem is a task listing entry enriched with the descriptive fields
// dashboards render.
type TaskItem struct {
	TaskID          int64               `json:"task_id"`
	InstanceGUID    string              `json:"instance_guid"`
	NodeID          int                 `json:"node_id"`
	NodeName        string              `json:"node_name"`
	Type            models.WorkflowType `json:"type"`
	TypeDescription string              `json:"type_description"`
	Status          string              `json:"status"`
	CssStatus       string              `json:"css_status"`
	Step            int                 `json:"step"`
	RequestedBy     string              `json:"requested_by"`
	RequestedOn     time.Time           `json:"requested_on"`
	Comment         string              `json:"comment"`
	ApprovalGroupID int                 `json:"approval_group_id"`
	ApprovalGroup   string              `json:"approval_group"`
	ShowActionLink  bool                `json:"show_action_link"`
}

// Query is the read side: pure projections over the store, enriched with
// collaborator lookups. No method mutates state.
type Query struct {
	logger    *slog.Logger
	tasks     persistence.TaskRepository
	instances persistence.InstanceRepository
	cms       content.Service
	groups    content.GroupService
}

// NewQuery creates the query service.
func NewQuery(
	logger *slog.Logger,
	tasks persistence.TaskRepository,
	instances persistence.InstanceRepository,
	cms content.Service,
	groups content.GroupService,
) *Query {
	return &Query{
		logger:    logger.With("module", "query"),
		tasks:     tasks,
		instances: instances,
		cms:       cms,
		groups:    groups,
	}
}

// PendingTasks returns every task currently awaiting a decision.
func (q *Query) PendingTasks(ctx context.Context, viewerID int) ([]TaskItem, error) {
	tasks, err := q.tasks.ByStatus(ctx, models.TaskStatusPendingApproval)
	if err != nil {
		return nil, err
	}

	return q.EnrichTasks(ctx, tasks, nil, viewerID), nil
}

// AllTasks returns every task regardless of status.
func (q *Query) AllTasks(ctx context.Context, viewerID int) ([]TaskItem, error) {
	tasks, err := q.tasks.All(ctx)
	if err != nil {
		return nil, err
	}

	return q.EnrichTasks(ctx, tasks, nil, viewerID), nil
}

// TasksForNode returns the task history of all workflows targeting the node.
func (q *Query) TasksForNode(ctx context.Context, nodeID, viewerID int) ([]TaskItem, error) {
	tasks, err := q.tasks.ByNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	return q.EnrichTasks(ctx, tasks, nil, viewerID), nil
}

// FlowsForUser returns either the pending tasks the user may action
// (FlowKindTasks) or the user's own pending submissions
// (FlowKindSubmissions).
func (q *Query) FlowsForUser(ctx context.Context, userID, kind int) ([]TaskItem, error) {
	switch kind {
	case FlowKindTasks:
		pending, err := q.tasks.ByStatus(ctx, models.TaskStatusPendingApproval)
		if err != nil {
			return nil, err
		}

		actionable := make([]*models.TaskInstance, 0, len(pending))

		for _, task := range pending {
			member, err := q.groups.IsMember(ctx, task.GroupID, userID)
			if err != nil {
				q.logger.WarnContext(ctx, "membership check failed",
					"group_id", task.GroupID, "user_id", userID, "error", err)

				continue
			}

			if member {
				actionable = append(actionable, task)
			}
		}

		return q.EnrichTasks(ctx, actionable, nil, userID), nil
	case FlowKindSubmissions:
		submissions, err := q.tasks.PendingByAuthor(ctx, userID)
		if err != nil {
			return nil, err
		}

		return q.EnrichTasks(ctx, submissions, nil, userID), nil
	default:
		return nil, NewValidationError("FlowsForUser", "INVALID_KIND",
			fmt.Sprintf("unknown flow kind %d", kind), ErrInvalidRequest)
	}
}

// Instances returns every instance with its full task history, most recent
// step first.
func (q *Query) Instances(ctx context.Context) ([]*models.WorkflowInstance, error) {
	instances, err := q.instances.All(ctx)
	if err != nil {
		return nil, err
	}

	for _, instance := range instances {
		sort.SliceStable(instance.Tasks, func(i, j int) bool {
			return instance.Tasks[i].Step > instance.Tasks[j].Step
		})
	}

	return instances, nil
}

// NodeStatus reports whether an active workflow exists for the node.
func (q *Query) NodeStatus(ctx context.Context, nodeID int) (bool, error) {
	active, err := q.instances.ActiveByNode(ctx, nodeID)
	if err != nil {
		return false, err
	}

	return active != nil, nil
}

// EnrichTasks builds listing entries for the tasks. A task without an
// instance back-reference falls back to the supplied instance context;
// collaborator lookup failures degrade to empty display fields rather than
// failing the projection.
func (q *Query) EnrichTasks(ctx context.Context, tasks []*models.TaskInstance, instance *models.WorkflowInstance, viewerID int) []TaskItem {
	items := make([]TaskItem, 0, len(tasks))

	for _, task := range tasks {
		owner := task.Instance
		if owner == nil {
			owner = instance
		}

		if owner == nil {
			q.logger.WarnContext(ctx, "task has no instance context, skipping", "task_id", task.ID)

			continue
		}

		items = append(items, q.enrich(ctx, task, owner, viewerID))
	}

	return items
}

func (q *Query) enrich(ctx context.Context, task *models.TaskInstance, instance *models.WorkflowInstance, viewerID int) TaskItem {
	item := TaskItem{
		TaskID:          task.ID,
		InstanceGUID:    instance.GUID,
		NodeID:          instance.NodeID,
		Type:            instance.Type,
		TypeDescription: instance.Type.Description(),
		Status:          task.Status.Name(),
		CssStatus:       task.CssStatus(),
		Step:            task.Step,
		RequestedOn:     instance.CreatedAt,
		Comment:         task.Comment,
		ApprovalGroupID: task.GroupID,
	}

	if item.Comment == "" {
		item.Comment = instance.AuthorComment
	}

	if node, err := q.cms.GetNodeByID(ctx, instance.NodeID); err == nil {
		item.NodeName = node.Name
	} else {
		q.logger.WarnContext(ctx, "failed to resolve node name", "node_id", instance.NodeID, "error", err)
	}

	if user, err := q.groups.UserByID(ctx, instance.AuthorID); err == nil {
		item.RequestedBy = user.Name
	}

	if task.GroupID != 0 {
		if group, err := q.groups.GroupByID(ctx, task.GroupID); err == nil {
			item.ApprovalGroup = group.Name
		}
	}

	if task.Status == models.TaskStatusPendingApproval {
		member, err := q.groups.IsMember(ctx, task.GroupID, viewerID)
		item.ShowActionLink = err == nil && member
	}

	return item
}
