package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressgate/pressgate/pkg/models"
)

// TaskRepository is the read side over task instances. Listing queries join
// the owning instance so dashboard projections need no follow-up reads.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const taskListQuery = `
	SELECT
		t.id, t.instance_guid, t.step, t.group_id, t.status, t.actioned_by_id, t.comment, t.created_at
	  , i.id, i.guid, i.node_id, i.type, i.status, i.author_id, i.author_comment, i.current_step, i.created_at
	FROM workflow_tasks t
	JOIN workflow_instances i ON i.guid = t.instance_guid
`

// ByStatus returns all tasks with the given status.
func (tr *TaskRepository) ByStatus(ctx context.Context, status models.TaskStatus) ([]*models.TaskInstance, error) {
	return tr.list(ctx, taskListQuery+`
		WHERE t.status = $1
		ORDER BY t.created_at, t.id
	`, status)
}

// All returns every task.
func (tr *TaskRepository) All(ctx context.Context) ([]*models.TaskInstance, error) {
	return tr.list(ctx, taskListQuery+`
		ORDER BY t.created_at, t.id
	`)
}

// ByNode returns all tasks belonging to instances targeting the node.
func (tr *TaskRepository) ByNode(ctx context.Context, nodeID int) ([]*models.TaskInstance, error) {
	return tr.list(ctx, taskListQuery+`
		WHERE i.node_id = $1
		ORDER BY t.created_at, t.id
	`, nodeID)
}

// PendingByAuthor returns pending tasks of instances requested by the user.
func (tr *TaskRepository) PendingByAuthor(ctx context.Context, authorID int) ([]*models.TaskInstance, error) {
	return tr.list(ctx, taskListQuery+`
		WHERE t.status = $1 AND i.author_id = $2
		ORDER BY t.created_at, t.id
	`, models.TaskStatusPendingApproval, authorID)
}

func (tr *TaskRepository) list(ctx context.Context, query string, args ...any) ([]*models.TaskInstance, error) {
	rows, err := tr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			tr.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tasks := make([]*models.TaskInstance, 0)

	for rows.Next() {
		var (
			task       models.TaskInstance
			instance   models.WorkflowInstance
			actionedBy sql.NullInt64
		)

		err := rows.Scan(
			&task.ID,
			&task.InstanceGUID,
			&task.Step,
			&task.GroupID,
			&task.Status,
			&actionedBy,
			&task.Comment,
			&task.CreatedAt,
			&instance.ID,
			&instance.GUID,
			&instance.NodeID,
			&instance.Type,
			&instance.Status,
			&instance.AuthorID,
			&instance.AuthorComment,
			&instance.CurrentStep,
			&instance.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		if actionedBy.Valid {
			userID := int(actionedBy.Int64)
			task.ActionedByID = &userID
		}

		task.Instance = &instance
		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}
