package file

import (
	"context"
	"sort"

	"github.com/pressgate/pressgate/pkg/models"
)

// TaskRepository is the read side over tasks, built by flattening the
// instance documents. Returned tasks carry their owning instance as a
// back-reference.
type TaskRepository struct {
	persistence *Persistence
}

// ByStatus returns all tasks with the given status.
func (tr *TaskRepository) ByStatus(ctx context.Context, status models.TaskStatus) ([]*models.TaskInstance, error) {
	return tr.collect(ctx, func(task *models.TaskInstance, _ *models.WorkflowInstance) bool {
		return task.Status == status
	})
}

// All returns every task.
func (tr *TaskRepository) All(ctx context.Context) ([]*models.TaskInstance, error) {
	return tr.collect(ctx, func(*models.TaskInstance, *models.WorkflowInstance) bool {
		return true
	})
}

// ByNode returns all tasks belonging to instances targeting the node.
func (tr *TaskRepository) ByNode(ctx context.Context, nodeID int) ([]*models.TaskInstance, error) {
	return tr.collect(ctx, func(_ *models.TaskInstance, instance *models.WorkflowInstance) bool {
		return instance.NodeID == nodeID
	})
}

// PendingByAuthor returns pending tasks of instances requested by the user.
func (tr *TaskRepository) PendingByAuthor(ctx context.Context, authorID int) ([]*models.TaskInstance, error) {
	return tr.collect(ctx, func(task *models.TaskInstance, instance *models.WorkflowInstance) bool {
		return task.Status == models.TaskStatusPendingApproval && instance.AuthorID == authorID
	})
}

func (tr *TaskRepository) collect(_ context.Context, keep func(*models.TaskInstance, *models.WorkflowInstance) bool) ([]*models.TaskInstance, error) {
	tr.persistence.mu.RLock()
	defer tr.persistence.mu.RUnlock()

	instances, err := tr.persistence.instanceRepo.loadAll()
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.TaskInstance, 0)

	for _, instance := range instances {
		for _, task := range instance.Tasks {
			if keep(task, instance) {
				task.Instance = instance
				tasks = append(tasks, task)
			}
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}

		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}
