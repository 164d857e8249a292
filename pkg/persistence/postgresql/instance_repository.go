package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/persistence"
)

const uniqueViolation = "23505"

// InstanceRepository handles workflow-instance database operations. State
// transitions are conditional UPDATEs so concurrent actions serialize at the
// database; the loser of a race observes zero affected rows.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const instanceColumns = `
	id
  , guid
  , node_id
  , type
  , status
  , author_id
  , author_comment
  , current_step
  , created_at
`

// Create stores the instance together with its tasks in one transaction.
func (ir *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	now := time.Now().UTC()

	if instance.GUID == "" {
		instance.GUID = uuid.New().String()
	}

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	tx, err := ir.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ir.rollback(ctx, tx)

	query := `
		INSERT INTO workflow_instances (guid, node_id, type, status, author_id, author_comment, current_step, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err = tx.QueryRowContext(ctx, query,
		instance.GUID,
		instance.NodeID,
		instance.Type,
		instance.Status,
		instance.AuthorID,
		instance.AuthorComment,
		instance.CurrentStep,
		instance.CreatedAt,
	).Scan(&instance.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewNodeInstanceError("Create", instance.NodeID, persistence.ErrActiveInstanceExists)
		}

		return fmt.Errorf("failed to insert instance: %w", err)
	}

	for _, task := range instance.Tasks {
		task.InstanceGUID = instance.GUID

		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO workflow_tasks (instance_guid, step, group_id, status, actioned_by_id, comment, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, task.InstanceGUID, task.Step, task.GroupID, task.Status, task.ActionedByID, task.Comment, task.CreatedAt).Scan(&task.ID)
		if err != nil {
			return fmt.Errorf("failed to insert task for step %d: %w", task.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit instance creation: %w", err)
	}

	return nil
}

// GetByGUID returns the instance with its tasks, or nil when absent.
func (ir *InstanceRepository) GetByGUID(ctx context.Context, guid string) (*models.WorkflowInstance, error) {
	row := ir.db.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instances
		WHERE guid = $1
	`, guid)

	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	if err := ir.loadTasks(ctx, instance); err != nil {
		return nil, err
	}

	return instance, nil
}

// GetByTaskID returns the instance owning the given task, or nil.
func (ir *InstanceRepository) GetByTaskID(ctx context.Context, taskID int64) (*models.WorkflowInstance, error) {
	row := ir.db.QueryRowContext(ctx, `
		SELECT `+qualifiedInstanceColumns("i")+`
		FROM workflow_instances i
		JOIN workflow_tasks t ON t.instance_guid = i.guid
		WHERE t.id = $1
	`, taskID)

	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan instance for task %d: %w", taskID, err)
	}

	if err := ir.loadTasks(ctx, instance); err != nil {
		return nil, err
	}

	return instance, nil
}

// ActiveByNode returns the pending instance for the node, or nil.
func (ir *InstanceRepository) ActiveByNode(ctx context.Context, nodeID int) (*models.WorkflowInstance, error) {
	row := ir.db.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instances
		WHERE node_id = $1 AND status = $2
	`, nodeID, models.WorkflowStatusPendingApproval)

	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan active instance for node %d: %w", nodeID, err)
	}

	if err := ir.loadTasks(ctx, instance); err != nil {
		return nil, err
	}

	return instance, nil
}

// ResolveActiveTask completes the active task and applies the follow-up
// transition the resolution carries in one transaction. The conditional task
// UPDATE is the serialization point: of two racing callers exactly one sees
// the row, and the loser gets ErrStateConflict.
func (ir *InstanceRepository) ResolveActiveTask(ctx context.Context, resolution persistence.TaskResolution) (*models.TaskInstance, error) {
	tx, err := ir.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ir.rollback(ctx, tx)

	row := tx.QueryRowContext(ctx, `
		UPDATE workflow_tasks t
		SET status = $1, actioned_by_id = $2, comment = $3
		FROM workflow_instances i
		WHERE t.instance_guid = i.guid
		  AND i.guid = $4
		  AND i.status = $5
		  AND i.current_step = $6
		  AND t.step = $6
		  AND t.status = $7
		RETURNING t.id, t.instance_guid, t.step, t.group_id, t.status, t.actioned_by_id, t.comment, t.created_at
	`,
		resolution.Status,
		resolution.ActionedByID,
		resolution.Comment,
		resolution.InstanceGUID,
		models.WorkflowStatusPendingApproval,
		resolution.Step,
		models.TaskStatusPendingApproval,
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("ResolveActiveTask", resolution.InstanceGUID, persistence.ErrStateConflict)
		}

		return nil, fmt.Errorf("failed to resolve active task: %w", err)
	}

	if next := resolution.NextTask; next != nil {
		if err := ir.insertNextTask(ctx, tx, resolution, next); err != nil {
			return nil, err
		}
	}

	if resolution.InstanceStatus != "" {
		_, err := tx.ExecContext(ctx, `
			UPDATE workflow_instances SET status = $1 WHERE guid = $2
		`, resolution.InstanceStatus, resolution.InstanceGUID)
		if err != nil {
			return nil, fmt.Errorf("failed to update instance status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task resolution: %w", err)
	}

	return task, nil
}

func (ir *InstanceRepository) insertNextTask(ctx context.Context, tx *sql.Tx, resolution persistence.TaskResolution, task *models.TaskInstance) error {
	task.InstanceGUID = resolution.InstanceGUID
	task.Step = resolution.Step + 1
	task.Status = models.TaskStatusPendingApproval

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE workflow_instances SET current_step = $1 WHERE guid = $2
	`, task.Step, resolution.InstanceGUID)
	if err != nil {
		return fmt.Errorf("failed to advance instance step: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO workflow_tasks (instance_guid, step, group_id, status, actioned_by_id, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, task.InstanceGUID, task.Step, task.GroupID, task.Status, task.ActionedByID, task.Comment, task.CreatedAt).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to insert next task: %w", err)
	}

	return nil
}

// Cancel moves a pending instance to cancelled and rejects its pending task
// when one exists, in one transaction. The conditional instance UPDATE
// serializes against racing actions; an instance whose final task is already
// approved has no pending task and still cancels.
//
// Task rows are touched before the instance row, the same lock order as
// ResolveActiveTask. The reject is rolled back when the instance turns out
// not to be pending.
func (ir *InstanceRepository) Cancel(ctx context.Context, guid string, actionedByID int, comment string) error {
	tx, err := ir.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ir.rollback(ctx, tx)

	_, err = tx.ExecContext(ctx, `
		UPDATE workflow_tasks
		SET status = $1, actioned_by_id = $2, comment = $3
		WHERE instance_guid = $4 AND status = $5
	`, models.TaskStatusRejected, actionedByID, comment, guid, models.TaskStatusPendingApproval)
	if err != nil {
		return fmt.Errorf("failed to reject pending task: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE workflow_instances
		SET status = $1
		WHERE guid = $2 AND status = $3
	`, models.WorkflowStatusCancelled, guid, models.WorkflowStatusPendingApproval)
	if err != nil {
		return fmt.Errorf("failed to cancel instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		var exists bool

		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE guid = $1)
		`, guid).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check instance existence: %w", err)
		}

		if !exists {
			return persistence.NewInstanceError("Cancel", guid, persistence.ErrInstanceNotFound)
		}

		return persistence.NewInstanceError("Cancel", guid, persistence.ErrStateConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	return nil
}

// SetStatus updates the instance status.
func (ir *InstanceRepository) SetStatus(ctx context.Context, guid string, status models.WorkflowStatus) error {
	result, err := ir.db.ExecContext(ctx, `
		UPDATE workflow_instances SET status = $1 WHERE guid = $2
	`, status, guid)
	if err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewInstanceError("SetStatus", guid, persistence.ErrInstanceNotFound)
	}

	return nil
}

// All returns every instance with its nested tasks, most recent first.
func (ir *InstanceRepository) All(ctx context.Context) ([]*models.WorkflowInstance, error) {
	rows, err := ir.db.QueryContext(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instances
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer ir.closeRows(ctx, rows)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	for _, instance := range instances {
		if err := ir.loadTasks(ctx, instance); err != nil {
			return nil, err
		}
	}

	return instances, nil
}

func (ir *InstanceRepository) loadTasks(ctx context.Context, instance *models.WorkflowInstance) error {
	rows, err := ir.db.QueryContext(ctx, `
		SELECT id, instance_guid, step, group_id, status, actioned_by_id, comment, created_at
		FROM workflow_tasks
		WHERE instance_guid = $1
		ORDER BY step
	`, instance.GUID)
	if err != nil {
		return fmt.Errorf("failed to query tasks for instance %s: %w", instance.GUID, err)
	}
	defer ir.closeRows(ctx, rows)

	instance.Tasks = make([]*models.TaskInstance, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return fmt.Errorf("failed to scan task: %w", err)
		}

		instance.Tasks = append(instance.Tasks, task)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tasks: %w", err)
	}

	return nil
}

func (ir *InstanceRepository) rollback(ctx context.Context, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		ir.logger.ErrorContext(ctx, "failed to roll back transaction", "error", err)
	}
}

func (ir *InstanceRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		ir.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(s scanner) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	err := s.Scan(
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
		return nil, err
	}

	return &instance, nil
}

func scanTask(s scanner) (*models.TaskInstance, error) {
	var (
		task       models.TaskInstance
		actionedBy sql.NullInt64
	)

	err := s.Scan(
		&task.ID,
		&task.InstanceGUID,
		&task.Step,
		&task.GroupID,
		&task.Status,
		&actionedBy,
		&task.Comment,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if actionedBy.Valid {
		userID := int(actionedBy.Int64)
		task.ActionedByID = &userID
	}

	return &task, nil
}

func qualifiedInstanceColumns(alias string) string {
	return alias + `.id
	  , ` + alias + `.guid
	  , ` + alias + `.node_id
	  , ` + alias + `.type
	  , ` + alias + `.status
	  , ` + alias + `.author_id
	  , ` + alias + `.author_comment
	  , ` + alias + `.current_step
	  , ` + alias + `.created_at`
}
