package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/pressgate/pressgate/pkg/content"
	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/permissions"
	"github.com/pressgate/pressgate/pkg/persistence"
	"github.com/pressgate/pressgate/pkg/persistence/file"
	"github.com/pressgate/pressgate/pkg/testutil"
	"github.com/pressgate/pressgate/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test fixture: a two-level tree with the page under the root, Editors and
// Managers groups, and users 7 (author), 8 (editor), 9 (manager),
// 10 (outsider).
type fixture struct {
	process *workflow.Process
	store   *file.Persistence
	cms     *testutil.FakeContent
	groups  *testutil.FakeGroups
	page    *models.Node
}

func newFixture(t *testing.T, chain ...int) *fixture {
	t.Helper()

	root := &models.Node{ID: 1, ParentID: -1, Level: 1, ContentTypeID: 10, Name: "Home"}
	page := &models.Node{ID: 2, ParentID: 1, Level: 2, ContentTypeID: 11, Name: "Article"}

	cms := testutil.NewFakeContent(root, page)

	groups := testutil.NewFakeGroups()
	groups.AddGroup(100, "Editors", 8)
	groups.AddGroup(200, "Managers", 9)
	groups.AddUser(7, "Alex Author")
	groups.AddUser(8, "Eli Editor")
	groups.AddUser(9, "Morgan Manager")
	groups.AddUser(10, "Riley Reader")

	store := file.NewPersistence(t.TempDir())

	if len(chain) > 0 {
		err := store.Permissions().SetChain(context.Background(), &models.PermissionRule{
			NodeID: page.ID, ContentTypeID: page.ContentTypeID, GroupIDs: chain,
		})
		require.NoError(t, err)
	}

	resolver := permissions.NewResolver(store.Permissions(), cms, groups)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		process: workflow.NewProcess(logger, store.Instances(), resolver, cms, groups, nil),
		store:   store,
		cms:     cms,
		groups:  groups,
		page:    page,
	}
}

func TestInitiateWorkflow_PendingChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 200)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "please review")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusPendingApproval, instance.Status)
	assert.Equal(t, 1, instance.CurrentStep)
	require.Len(t, instance.Tasks, 1)
	assert.Equal(t, 100, instance.Tasks[0].GroupID)
	assert.Equal(t, models.TaskStatusPendingApproval, instance.Tasks[0].Status)

	// No content action until the chain is complete.
	assert.Zero(t, f.cms.PublishCount(f.page.ID))
}

func TestInitiateWorkflow_AutoApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusApproved, instance.Status)
	require.Len(t, instance.Tasks, 1)
	assert.Equal(t, models.TaskStatusApproved, instance.Tasks[0].Status)
	require.NotNil(t, instance.Tasks[0].ActionedByID)
	assert.Equal(t, 7, *instance.Tasks[0].ActionedByID)

	assert.Equal(t, 1, f.cms.PublishCount(f.page.ID))
}

func TestInitiateWorkflow_AutoApprove_CollaboratorFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cms.PublishErr = errors.New("cms down")

	_, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.Error(t, err)
	assert.True(t, workflow.IsCollaboratorError(err))

	// Nothing was stored.
	all, err := f.store.Instances().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInitiateWorkflow_UnknownNode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	_, err := f.process.InitiateWorkflow(ctx, 999, models.WorkflowTypePublish, 7, "")
	require.Error(t, err)
	assert.True(t, content.IsNodeNotFound(err))
}

func TestInitiateWorkflow_ActiveInstanceExists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	_, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.NoError(t, err)

	_, err = f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypeUnpublish, 8, "")
	require.Error(t, err)
	assert.True(t, persistence.IsActiveInstanceExists(err))
}

func TestInitiateWorkflow_AfterTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	first, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.NoError(t, err)

	_, err = f.process.ActionWorkflow(ctx, first, models.WorkflowActionReject, 8, "not ready")
	require.NoError(t, err)

	second, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "take two")
	require.NoError(t, err)
	assert.NotEqual(t, first.GUID, second.GUID)
}

func TestActionWorkflow_NonMemberUnauthorized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 200)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "please review")
	require.NoError(t, err)

	// User 10 belongs to no group; user 9 belongs to Managers, which gates
	// step 2, not step 1.
	for _, userID := range []int{10, 9} {
		_, err = f.process.ActionWorkflow(ctx, instance, models.WorkflowActionApprove, userID, "")
		require.Error(t, err)
		assert.True(t, workflow.IsNotAuthorized(err))
	}
}

func TestActionWorkflow_FullApprovalChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 200)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "please review")
	require.NoError(t, err)

	// Step 1: an Editors member approves; the instance advances.
	instance, err = f.process.ActionWorkflow(ctx, instance, models.WorkflowActionApprove, 8, "fine by me")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusPendingApproval, instance.Status)
	assert.Equal(t, 2, instance.CurrentStep)
	require.Len(t, instance.Tasks, 2)

	active := instance.ActiveTask()
	require.NotNil(t, active)
	assert.Equal(t, 2, active.Step)
	assert.Equal(t, 200, active.GroupID)

	done := instance.TaskAtStep(1)
	require.NotNil(t, done)
	assert.Equal(t, models.TaskStatusApproved, done.Status)
	assert.Equal(t, "fine by me", done.Comment)

	assert.Zero(t, f.cms.PublishCount(f.page.ID))

	// Step 2: a Managers member approves; the content action fires once.
	instance, err = f.process.ActionWorkflow(ctx, instance, models.WorkflowActionApprove, 9, "ship it")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusApproved, instance.Status)
	assert.Nil(t, instance.ActiveTask())
	assert.Equal(t, 1, f.cms.PublishCount(f.page.ID))
}

func TestActionWorkflow_RejectTerminatesWithoutContentAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 200)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "please review")
	require.NoError(t, err)

	instance, err = f.process.ActionWorkflow(ctx, instance, models.WorkflowActionReject, 8, "needs work")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusRejected, instance.Status)
	assert.Nil(t, instance.ActiveTask())
	assert.Zero(t, f.cms.PublishCount(f.page.ID))

	rejected := instance.TaskAtStep(1)
	require.NotNil(t, rejected)
	assert.Equal(t, models.TaskStatusRejected, rejected.Status)
	assert.Equal(t, "needs work", rejected.Comment)
}

func TestActionWorkflow_UnpublishVariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypeUnpublish, 7, "")
	require.NoError(t, err)

	instance, err = f.process.ActionWorkflow(ctx, instance, models.WorkflowActionApprove, 8, "")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusApproved, instance.Status)
	assert.Zero(t, f.cms.PublishCount(f.page.ID))
	assert.Equal(t, []int{f.page.ID}, f.cms.Unpublished)
}

func TestActionWorkflow_DoubleActionRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.NoError(t, err)

	var wg sync.WaitGroup

	errs := make([]error, 2)

	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			// Both callers act on the same snapshot of the instance.
			snapshot := *instance
			_, errs[i] = f.process.ActionWorkflow(ctx, &snapshot, models.WorkflowActionApprove, 8, "")
		}(i)
	}

	wg.Wait()

	succeeded := 0
	conflicts := 0

	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case persistence.IsStateConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, f.cms.PublishCount(f.page.ID))
}

func TestActionWorkflow_TerminalInstance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.NoError(t, err)

	terminal, err := f.process.ActionWorkflow(ctx, instance, models.WorkflowActionReject, 8, "")
	require.NoError(t, err)

	_, err = f.process.ActionWorkflow(ctx, terminal, models.WorkflowActionApprove, 8, "")
	require.Error(t, err)
	assert.True(t, persistence.IsStateConflict(err))
}

func TestActionWorkflow_CollaboratorFailureLeavesInstancePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.NoError(t, err)

	f.cms.PublishErr = errors.New("cms down")

	_, err = f.process.ActionWorkflow(ctx, instance, models.WorkflowActionApprove, 8, "")
	require.Error(t, err)
	assert.True(t, workflow.IsCollaboratorError(err))

	// The task is approved but the instance stays pending for follow-up.
	stored, err := f.store.Instances().GetByGUID(ctx, instance.GUID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPendingApproval, stored.Status)
	assert.Equal(t, models.TaskStatusApproved, stored.TaskAtStep(1).Status)
}

func TestCancelWorkflow_AfterCollaboratorFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.NoError(t, err)

	f.cms.PublishErr = errors.New("cms down")

	_, err = f.process.ActionWorkflow(ctx, instance, models.WorkflowActionApprove, 8, "")
	require.Error(t, err)
	assert.True(t, workflow.IsCollaboratorError(err))

	// The instance is pending with its final task already approved, so no
	// pending task remains. Cancellation must still release the node.
	stored, err := f.store.Instances().GetByGUID(ctx, instance.GUID)
	require.NoError(t, err)
	require.Nil(t, stored.ActiveTask())

	cancelled, err := f.process.CancelWorkflow(ctx, stored, 7, "giving up")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCancelled, cancelled.Status)

	// The approved task keeps its record.
	assert.Equal(t, models.TaskStatusApproved, cancelled.TaskAtStep(1).Status)

	// The node is free for a fresh request.
	f.cms.PublishErr = nil

	second, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "take two")
	require.NoError(t, err)
	assert.NotEqual(t, cancelled.GUID, second.GUID)
}

func TestCancelWorkflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 200)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "please review")
	require.NoError(t, err)

	cancelled, err := f.process.CancelWorkflow(ctx, instance, 7, "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.ActiveTask())
	assert.Zero(t, f.cms.PublishCount(f.page.ID))

	recorded := cancelled.TaskAtStep(1)
	require.NotNil(t, recorded)
	assert.Equal(t, models.TaskStatusRejected, recorded.Status)
	assert.Equal(t, "changed my mind", recorded.Comment)
}

func TestCancelWorkflow_Terminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.NoError(t, err)

	cancelled, err := f.process.CancelWorkflow(ctx, instance, 7, "")
	require.NoError(t, err)

	_, err = f.process.CancelWorkflow(ctx, cancelled, 7, "again")
	require.Error(t, err)
	assert.True(t, persistence.IsStateConflict(err))
}

func TestInheritedChainGovernsApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Configure the chain on the root; the page inherits it.
	err := f.store.Permissions().SetChain(ctx, &models.PermissionRule{
		NodeID: 1, ContentTypeID: 10, GroupIDs: []int{200},
	})
	require.NoError(t, err)

	instance, err := f.process.InitiateWorkflow(ctx, f.page.ID, models.WorkflowTypePublish, 7, "")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusPendingApproval, instance.Status)
	assert.Equal(t, 200, instance.Tasks[0].GroupID)
}
