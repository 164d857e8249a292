package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/persistence"
)

// InstanceRepository stores one JSON document per workflow instance, tasks
// nested inline. All mutations run under the persistence-wide lock.
type InstanceRepository struct {
	persistence *Persistence
}

// Create stores the instance with the tasks it carries, enforcing the
// at-most-one-active-instance-per-node invariant.
func (ir *InstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	ir.persistence.mu.Lock()
	defer ir.persistence.mu.Unlock()

	all, err := ir.loadAll()
	if err != nil {
		return err
	}

	for _, existing := range all {
		if existing.NodeID == instance.NodeID && existing.Status == models.WorkflowStatusPendingApproval {
			return persistence.NewNodeInstanceError("Create", instance.NodeID, persistence.ErrActiveInstanceExists)
		}
	}

	now := time.Now().UTC()

	if instance.GUID == "" {
		instance.GUID = uuid.New().String()
	}

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.ID = nextInstanceID(all)

	taskID := nextTaskID(all)
	for _, task := range instance.Tasks {
		task.ID = taskID
		taskID++
		task.InstanceGUID = instance.GUID

		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}
	}

	return ir.save(instance)
}

// GetByGUID returns the instance with its tasks, or nil when absent.
func (ir *InstanceRepository) GetByGUID(_ context.Context, guid string) (*models.WorkflowInstance, error) {
	ir.persistence.mu.RLock()
	defer ir.persistence.mu.RUnlock()

	return ir.load(guid)
}

// GetByTaskID returns the instance owning the given task, or nil.
func (ir *InstanceRepository) GetByTaskID(_ context.Context, taskID int64) (*models.WorkflowInstance, error) {
	ir.persistence.mu.RLock()
	defer ir.persistence.mu.RUnlock()

	all, err := ir.loadAll()
	if err != nil {
		return nil, err
	}

	for _, instance := range all {
		for _, task := range instance.Tasks {
			if task.ID == taskID {
				return instance, nil
			}
		}
	}

	return nil, nil
}

// ActiveByNode returns the pending instance for the node, or nil.
func (ir *InstanceRepository) ActiveByNode(_ context.Context, nodeID int) (*models.WorkflowInstance, error) {
	ir.persistence.mu.RLock()
	defer ir.persistence.mu.RUnlock()

	all, err := ir.loadAll()
	if err != nil {
		return nil, err
	}

	for _, instance := range all {
		if instance.NodeID == nodeID && instance.Status == models.WorkflowStatusPendingApproval {
			return instance, nil
		}
	}

	return nil, nil
}

// ResolveActiveTask completes the active task conditionally on the instance
// still being pending at the step the caller observed. The follow-up
// transition the resolution carries lands in the same locked mutation, so
// readers never see a pending instance without a pending task.
func (ir *InstanceRepository) ResolveActiveTask(_ context.Context, resolution persistence.TaskResolution) (*models.TaskInstance, error) {
	ir.persistence.mu.Lock()
	defer ir.persistence.mu.Unlock()

	instance, err := ir.load(resolution.InstanceGUID)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		return nil, persistence.NewInstanceError("ResolveActiveTask", resolution.InstanceGUID, persistence.ErrInstanceNotFound)
	}

	if instance.Status != models.WorkflowStatusPendingApproval || instance.CurrentStep != resolution.Step {
		return nil, persistence.NewInstanceError("ResolveActiveTask", resolution.InstanceGUID, persistence.ErrStateConflict)
	}

	task := instance.TaskAtStep(resolution.Step)
	if task == nil {
		return nil, persistence.NewInstanceError("ResolveActiveTask", resolution.InstanceGUID, persistence.ErrTaskNotFound)
	}

	if task.Status != models.TaskStatusPendingApproval {
		return nil, persistence.NewInstanceError("ResolveActiveTask", resolution.InstanceGUID, persistence.ErrStateConflict)
	}

	actionedBy := resolution.ActionedByID
	task.Status = resolution.Status
	task.ActionedByID = &actionedBy
	task.Comment = resolution.Comment

	if next := resolution.NextTask; next != nil {
		all, err := ir.loadAll()
		if err != nil {
			return nil, err
		}

		next.ID = nextTaskID(all)
		next.InstanceGUID = instance.GUID
		next.Step = resolution.Step + 1
		next.Status = models.TaskStatusPendingApproval

		if next.CreatedAt.IsZero() {
			next.CreatedAt = time.Now().UTC()
		}

		instance.CurrentStep = next.Step
		instance.Tasks = append(instance.Tasks, next)
	}

	if resolution.InstanceStatus != "" {
		instance.Status = resolution.InstanceStatus
	}

	if err := ir.save(instance); err != nil {
		return nil, err
	}

	resolved := *task

	return &resolved, nil
}

// Cancel moves a pending instance to cancelled. The pending task, when one
// exists, is marked rejected for record keeping; an instance stranded pending
// with its final task already approved cancels just the same.
func (ir *InstanceRepository) Cancel(_ context.Context, guid string, actionedByID int, comment string) error {
	ir.persistence.mu.Lock()
	defer ir.persistence.mu.Unlock()

	instance, err := ir.load(guid)
	if err != nil {
		return err
	}

	if instance == nil {
		return persistence.NewInstanceError("Cancel", guid, persistence.ErrInstanceNotFound)
	}

	if instance.Status != models.WorkflowStatusPendingApproval {
		return persistence.NewInstanceError("Cancel", guid, persistence.ErrStateConflict)
	}

	if task := instance.ActiveTask(); task != nil {
		actionedBy := actionedByID
		task.Status = models.TaskStatusRejected
		task.ActionedByID = &actionedBy
		task.Comment = comment
	}

	instance.Status = models.WorkflowStatusCancelled

	return ir.save(instance)
}

// SetStatus updates the instance status.
func (ir *InstanceRepository) SetStatus(_ context.Context, guid string, status models.WorkflowStatus) error {
	ir.persistence.mu.Lock()
	defer ir.persistence.mu.Unlock()

	instance, err := ir.load(guid)
	if err != nil {
		return err
	}

	if instance == nil {
		return persistence.NewInstanceError("SetStatus", guid, persistence.ErrInstanceNotFound)
	}

	instance.Status = status

	return ir.save(instance)
}

// All returns every instance with its nested tasks, most recent first.
func (ir *InstanceRepository) All(_ context.Context) ([]*models.WorkflowInstance, error) {
	ir.persistence.mu.RLock()
	defer ir.persistence.mu.RUnlock()

	all, err := ir.loadAll()
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}

		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	return all, nil
}

// load reads one instance document. Callers hold the lock.
func (ir *InstanceRepository) load(guid string) (*models.WorkflowInstance, error) {
	filePath := filepath.Clean(path.Join(ir.persistence.root, "instances", guid+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read instance %s: %w", guid, err)
	}

	var instance models.WorkflowInstance

	if err := json.Unmarshal(body, &instance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", guid, err)
	}

	return &instance, nil
}

func (ir *InstanceRepository) loadAll() ([]*models.WorkflowInstance, error) {
	dir := path.Join(ir.persistence.root, "instances")

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		guid := file[:len(file)-len(".json")]

		instance, err := ir.load(guid)
		if err != nil {
			return nil, err
		}

		if instance != nil {
			instances = append(instances, instance)
		}
	}

	return instances, nil
}

func (ir *InstanceRepository) save(instance *models.WorkflowInstance) error {
	dir := path.Join(ir.persistence.root, "instances")

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.GUID, err)
	}

	return os.WriteFile(path.Join(dir, instance.GUID+".json"), data, 0600)
}

func nextInstanceID(all []*models.WorkflowInstance) int64 {
	var max int64

	for _, instance := range all {
		if instance.ID > max {
			max = instance.ID
		}
	}

	return max + 1
}

func nextTaskID(all []*models.WorkflowInstance) int64 {
	var max int64

	for _, instance := range all {
		for _, task := range instance.Tasks {
			if task.ID > max {
				max = task.ID
			}
		}
	}

	return max + 1
}
