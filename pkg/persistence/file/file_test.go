package file

import (
	"sync"
	"testing"
	"time"

	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingInstance(nodeID, groupID int) *models.WorkflowInstance {
	return &models.WorkflowInstance{
		NodeID:      nodeID,
		Type:        models.WorkflowTypePublish,
		Status:      models.WorkflowStatusPendingApproval,
		AuthorID:    100,
		CurrentStep: 1,
		Tasks: []*models.TaskInstance{
			{Step: 1, GroupID: groupID, Status: models.TaskStatusPendingApproval},
		},
	}
}

func TestInstanceRepository_Create(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	assert.NotEmpty(t, instance.GUID)
	assert.EqualValues(t, 1, instance.ID)
	require.Len(t, instance.Tasks, 1)
	assert.EqualValues(t, 1, instance.Tasks[0].ID)
	assert.Equal(t, instance.GUID, instance.Tasks[0].InstanceGUID)
	assert.False(t, instance.CreatedAt.IsZero())

	fetched, err := fp.Instances().GetByGUID(t.Context(), instance.GUID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, instance.NodeID, fetched.NodeID)
	assert.Len(t, fetched.Tasks, 1)
}

func TestInstanceRepository_Create_ActiveInstanceExists(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	require.NoError(t, fp.Instances().Create(t.Context(), newPendingInstance(10, 1)))

	err := fp.Instances().Create(t.Context(), newPendingInstance(10, 1))
	require.Error(t, err)
	assert.True(t, persistence.IsActiveInstanceExists(err))

	// A different node is unaffected.
	require.NoError(t, fp.Instances().Create(t.Context(), newPendingInstance(11, 1)))
}

func TestInstanceRepository_Create_AfterTerminal(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	first := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), first))
	require.NoError(t, fp.Instances().SetStatus(t.Context(), first.GUID, models.WorkflowStatusRejected))

	require.NoError(t, fp.Instances().Create(t.Context(), newPendingInstance(10, 1)))
}

func TestInstanceRepository_GetByTaskID(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	found, err := fp.Instances().GetByTaskID(t.Context(), instance.Tasks[0].ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, instance.GUID, found.GUID)

	missing, err := fp.Instances().GetByTaskID(t.Context(), 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInstanceRepository_ResolveActiveTask(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	resolved, err := fp.Instances().ResolveActiveTask(t.Context(), persistence.TaskResolution{
		InstanceGUID: instance.GUID,
		Step:         1,
		Status:       models.TaskStatusApproved,
		ActionedByID: 200,
		Comment:      "looks good",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusApproved, resolved.Status)
	require.NotNil(t, resolved.ActionedByID)
	assert.Equal(t, 200, *resolved.ActionedByID)
	assert.Equal(t, "looks good", resolved.Comment)
}

func TestInstanceRepository_ResolveActiveTask_StateConflict(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	resolution := persistence.TaskResolution{
		InstanceGUID: instance.GUID,
		Step:         1,
		Status:       models.TaskStatusApproved,
		ActionedByID: 200,
	}

	_, err := fp.Instances().ResolveActiveTask(t.Context(), resolution)
	require.NoError(t, err)

	// The step has been resolved; a stale second action must lose.
	_, err = fp.Instances().ResolveActiveTask(t.Context(), resolution)
	require.Error(t, err)
	assert.True(t, persistence.IsStateConflict(err))
}

func TestInstanceRepository_ResolveActiveTask_Race(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	resolution := persistence.TaskResolution{
		InstanceGUID: instance.GUID,
		Step:         1,
		Status:       models.TaskStatusApproved,
		ActionedByID: 200,
	}

	var wg sync.WaitGroup

	errs := make([]error, 2)

	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, errs[i] = fp.Instances().ResolveActiveTask(t.Context(), resolution)
		}(i)
	}

	wg.Wait()

	succeeded := 0
	conflicted := 0

	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case persistence.IsStateConflict(err):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
}

func TestInstanceRepository_ResolveActiveTask_NextTask(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	next := &models.TaskInstance{GroupID: 2}

	_, err := fp.Instances().ResolveActiveTask(t.Context(), persistence.TaskResolution{
		InstanceGUID: instance.GUID,
		Step:         1,
		Status:       models.TaskStatusApproved,
		ActionedByID: 200,
		NextTask:     next,
	})
	require.NoError(t, err)
	assert.NotZero(t, next.ID)

	fetched, err := fp.Instances().GetByGUID(t.Context(), instance.GUID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPendingApproval, fetched.Status)
	assert.Equal(t, 2, fetched.CurrentStep)
	require.Len(t, fetched.Tasks, 2)

	active := fetched.ActiveTask()
	require.NotNil(t, active)
	assert.Equal(t, 2, active.Step)
	assert.Equal(t, 2, active.GroupID)
}

func TestInstanceRepository_ResolveActiveTask_InstanceStatus(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	_, err := fp.Instances().ResolveActiveTask(t.Context(), persistence.TaskResolution{
		InstanceGUID:   instance.GUID,
		Step:           1,
		Status:         models.TaskStatusRejected,
		ActionedByID:   200,
		Comment:        "not ready",
		InstanceStatus: models.WorkflowStatusRejected,
	})
	require.NoError(t, err)

	fetched, err := fp.Instances().GetByGUID(t.Context(), instance.GUID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRejected, fetched.Status)
	assert.Nil(t, fetched.ActiveTask())
}

func TestInstanceRepository_Cancel(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	require.NoError(t, fp.Instances().Cancel(t.Context(), instance.GUID, 200, "no longer needed"))

	fetched, err := fp.Instances().GetByGUID(t.Context(), instance.GUID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCancelled, fetched.Status)

	task := fetched.TaskAtStep(1)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusRejected, task.Status)
	assert.Equal(t, "no longer needed", task.Comment)

	// Terminal instances stay terminal.
	err = fp.Instances().Cancel(t.Context(), instance.GUID, 200, "again")
	require.Error(t, err)
	assert.True(t, persistence.IsStateConflict(err))

	err = fp.Instances().Cancel(t.Context(), "missing", 200, "")
	require.Error(t, err)
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func TestInstanceRepository_Cancel_WithoutPendingTask(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	// Final task approved but the instance never reached a terminal
	// status. Cancellation must not require a pending task.
	_, err := fp.Instances().ResolveActiveTask(t.Context(), persistence.TaskResolution{
		InstanceGUID: instance.GUID,
		Step:         1,
		Status:       models.TaskStatusApproved,
		ActionedByID: 200,
	})
	require.NoError(t, err)

	require.NoError(t, fp.Instances().Cancel(t.Context(), instance.GUID, 200, "stuck"))

	fetched, err := fp.Instances().GetByGUID(t.Context(), instance.GUID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCancelled, fetched.Status)

	// The approved task keeps its record.
	task := fetched.TaskAtStep(1)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusApproved, task.Status)
}

func TestInstanceRepository_All_OrdersMostRecentFirst(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	first := newPendingInstance(10, 1)
	first.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fp.Instances().Create(t.Context(), first))

	second := newPendingInstance(11, 1)
	second.CreatedAt = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fp.Instances().Create(t.Context(), second))

	all, err := fp.Instances().All(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.GUID, all[0].GUID)
}

func TestTaskRepository_Listings(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	instance := newPendingInstance(10, 1)
	require.NoError(t, fp.Instances().Create(t.Context(), instance))

	other := newPendingInstance(11, 2)
	other.AuthorID = 300
	require.NoError(t, fp.Instances().Create(t.Context(), other))

	pending, err := fp.Tasks().ByStatus(t.Context(), models.TaskStatusPendingApproval)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	for _, task := range pending {
		require.NotNil(t, task.Instance)
	}

	byNode, err := fp.Tasks().ByNode(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, byNode, 1)
	assert.Equal(t, instance.GUID, byNode[0].InstanceGUID)

	byAuthor, err := fp.Tasks().PendingByAuthor(t.Context(), 300)
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, other.GUID, byAuthor[0].InstanceGUID)

	all, err := fp.Tasks().All(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPermissionRepository(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	chain, err := fp.Permissions().ChainFor(t.Context(), 10, 5)
	require.NoError(t, err)
	assert.Empty(t, chain)

	require.NoError(t, fp.Permissions().SetChain(t.Context(), &models.PermissionRule{
		NodeID:        10,
		ContentTypeID: 5,
		GroupIDs:      []int{1, 2},
	}))

	chain, err = fp.Permissions().ChainFor(t.Context(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, chain)

	// Replace, not append.
	require.NoError(t, fp.Permissions().SetChain(t.Context(), &models.PermissionRule{
		NodeID:        10,
		ContentTypeID: 5,
		GroupIDs:      []int{3},
	}))

	chain, err = fp.Permissions().ChainFor(t.Context(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, chain)

	rules, err := fp.Permissions().All(t.Context())
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}
