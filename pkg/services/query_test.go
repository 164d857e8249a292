package services_test

import (
	"context"
	"testing"

	"github.com/pressgate/pressgate/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_PendingTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 200)

	_, err := f.approval.Initiate(ctx, services.InitiateRequest{
		NodeID: f.page.ID, AuthorID: 7, Comment: "please review", Publish: true,
	})
	require.NoError(t, err)

	// Viewed by the Editors member gating step 1.
	items, err := f.query.PendingTasks(ctx, 8)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Article", item.NodeName)
	assert.Equal(t, "Alex Author", item.RequestedBy)
	assert.Equal(t, "Editors", item.ApprovalGroup)
	assert.Equal(t, "Pending Approval", item.Status)
	assert.Equal(t, "pending", item.CssStatus)
	assert.Equal(t, "Publish", item.TypeDescription)
	assert.Equal(t, 1, item.Step)
	assert.True(t, item.ShowActionLink)

	// The comment falls back to the author comment when the task has none.
	assert.Equal(t, "please review", item.Comment)

	// A non-member sees the task but cannot action it.
	items, err = f.query.PendingTasks(ctx, 9)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].ShowActionLink)
}

func TestQuery_AllTasksIncludesResolved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 200)

	initiated, err := f.approval.Initiate(ctx, services.InitiateRequest{
		NodeID: f.page.ID, AuthorID: 7, Publish: true,
	})
	require.NoError(t, err)

	taskID := f.activeTaskID(t, initiated.Instance.GUID)
	_, err = f.approval.Approve(ctx, services.ActionRequest{TaskID: taskID, UserID: 8, Comment: "ok"})
	require.NoError(t, err)

	items, err := f.query.AllTasks(ctx, 8)
	require.NoError(t, err)
	require.Len(t, items, 2)

	pending, err := f.query.PendingTasks(ctx, 8)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestQuery_TasksForNode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	_, err := f.approval.Initiate(ctx, services.InitiateRequest{
		NodeID: f.page.ID, AuthorID: 7, Publish: true,
	})
	require.NoError(t, err)

	items, err := f.query.TasksForNode(ctx, f.page.ID, 8)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = f.query.TasksForNode(ctx, 999, 8)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQuery_FlowsForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 200)

	_, err := f.approval.Initiate(ctx, services.InitiateRequest{
		NodeID: f.page.ID, AuthorID: 7, Comment: "please review", Publish: true,
	})
	require.NoError(t, err)

	// Kind 0: tasks the user may action. Step 1 is gated by Editors.
	actionable, err := f.query.FlowsForUser(ctx, 8, services.FlowKindTasks)
	require.NoError(t, err)
	assert.Len(t, actionable, 1)

	actionable, err = f.query.FlowsForUser(ctx, 9, services.FlowKindTasks)
	require.NoError(t, err)
	assert.Empty(t, actionable)

	// Kind 1: the author's own submissions.
	submissions, err := f.query.FlowsForUser(ctx, 7, services.FlowKindSubmissions)
	require.NoError(t, err)
	require.Len(t, submissions, 1)
	assert.Equal(t, "Alex Author", submissions[0].RequestedBy)

	submissions, err = f.query.FlowsForUser(ctx, 8, services.FlowKindSubmissions)
	require.NoError(t, err)
	assert.Empty(t, submissions)

	_, err = f.query.FlowsForUser(ctx, 8, 5)
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestQuery_InstancesTasksStepDescending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 200)

	initiated, err := f.approval.Initiate(ctx, services.InitiateRequest{
		NodeID: f.page.ID, AuthorID: 7, Publish: true,
	})
	require.NoError(t, err)

	taskID := f.activeTaskID(t, initiated.Instance.GUID)
	_, err = f.approval.Approve(ctx, services.ActionRequest{TaskID: taskID, UserID: 8})
	require.NoError(t, err)

	instances, err := f.query.Instances(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	tasks := instances[0].Tasks
	require.Len(t, tasks, 2)
	assert.Equal(t, 2, tasks[0].Step)
	assert.Equal(t, 1, tasks[1].Step)
}

func TestQuery_NodeStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	active, err := f.query.NodeStatus(ctx, f.page.ID)
	require.NoError(t, err)
	assert.False(t, active)

	initiated, err := f.approval.Initiate(ctx, services.InitiateRequest{
		NodeID: f.page.ID, AuthorID: 7, Publish: true,
	})
	require.NoError(t, err)

	active, err = f.query.NodeStatus(ctx, f.page.ID)
	require.NoError(t, err)
	assert.True(t, active)

	taskID := f.activeTaskID(t, initiated.Instance.GUID)
	_, err = f.approval.Reject(ctx, services.ActionRequest{TaskID: taskID, UserID: 8})
	require.NoError(t, err)

	active, err = f.query.NodeStatus(ctx, f.page.ID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestQuery_EnrichTasksFallbackInstance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	initiated, err := f.approval.Initiate(ctx, services.InitiateRequest{
		NodeID: f.page.ID, AuthorID: 7, Comment: "context", Publish: true,
	})
	require.NoError(t, err)

	instance := initiated.Instance
	tasks := instance.Tasks
	require.NotEmpty(t, tasks)
	require.Nil(t, tasks[0].Instance)

	// Instance-scoped tasks carry no back-reference; the supplied context
	// fills in.
	items := f.query.EnrichTasks(ctx, tasks, instance, 8)
	require.Len(t, items, 1)
	assert.Equal(t, instance.GUID, items[0].InstanceGUID)
	assert.Equal(t, "Article", items[0].NodeName)

	// Without any context the task is skipped rather than failing the
	// projection.
	items = f.query.EnrichTasks(ctx, tasks, nil, 8)
	assert.Empty(t, items)
}
