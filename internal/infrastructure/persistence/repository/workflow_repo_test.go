package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

func TestWorkflowRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	projects := NewProjectRepository(db, zap.NewNop()).(*ProjectRepository)
	repo := NewWorkflowRepository(db, zap.NewNop())
	ctx := context.Background()

	p := seedProject(t, projects, "Lab fit-out", 90000)
	wf := seedWorkflow(p.ID, "Manager", "Controller", "CEO")
	require.NoError(t, repo.Create(ctx, wf))
	assert.NotZero(t, wf.ID)
	assert.Equal(t, int64(1), wf.Revision)

	got, err := repo.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Manager", "Controller", "CEO"}, got.RequiredRoles)
	assert.Equal(t, []string{"Manager", "Controller", "CEO"}, got.PendingRoles)
	assert.Empty(t, got.CompletedRoles)
	assert.True(t, got.Sequential)
	assert.Equal(t, 3, got.TotalSteps)
	assert.True(t, got.SLADeadline.Equal(baseTime.Add(24*time.Hour)))
	assert.Nil(t, got.CompletedAt)

	active, err := repo.GetActiveByProjectID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, wf.ID, active.ID)
}

func TestWorkflowRepository_SecondActiveWorkflowIsDuplicate(t *testing.T) {
	db := setupTestDB(t)
	projects := NewProjectRepository(db, zap.NewNop()).(*ProjectRepository)
	repo := NewWorkflowRepository(db, zap.NewNop())
	ctx := context.Background()

	p := seedProject(t, projects, "Roof repair", 1000)
	require.NoError(t, repo.Create(ctx, seedWorkflow(p.ID, "Manager")))

	err := repo.Create(ctx, seedWorkflow(p.ID, "Manager"))
	assert.ErrorIs(t, err, approval.ErrDuplicateWorkflow)
}

func TestWorkflowRepository_UpdateIsCompareAndSwap(t *testing.T) {
	db := setupTestDB(t)
	projects := NewProjectRepository(db, zap.NewNop()).(*ProjectRepository)
	repo := NewWorkflowRepository(db, zap.NewNop())
	ctx := context.Background()

	p := seedProject(t, projects, "Signage", 500)
	wf := seedWorkflow(p.ID, "Manager")
	require.NoError(t, repo.Create(ctx, wf))

	done := baseTime.Add(2 * time.Hour)
	next := approval.Close(approval.RecordApproval(wf, "Manager", done), entity.WorkflowStatusApproved, done)
	require.NoError(t, repo.Update(ctx, next, wf.Revision))
	assert.Equal(t, int64(2), next.Revision)

	loser := approval.RecordApproval(wf, "Manager", done)
	err := repo.Update(ctx, loser, wf.Revision)
	assert.ErrorIs(t, err, approval.ErrConcurrentModification)

	got, err := repo.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.WorkflowStatusApproved, got.Status)
	assert.Equal(t, []string{"Manager"}, got.CompletedRoles)
	assert.Empty(t, got.PendingRoles)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))

	active, err := repo.GetActiveByProjectID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	// a closed workflow no longer blocks a new one
	require.NoError(t, repo.Create(ctx, seedWorkflow(p.ID, "Manager")))
	history, err := repo.ListByProjectID(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.WorkflowStatusApproved, history[0].Status)
	assert.Equal(t, entity.WorkflowStatusPending, history[1].Status)
}

func TestWorkflowRepository_ListActiveOrdersByDeadline(t *testing.T) {
	db := setupTestDB(t)
	projects := NewProjectRepository(db, zap.NewNop()).(*ProjectRepository)
	repo := NewWorkflowRepository(db, zap.NewNop())
	ctx := context.Background()

	late := seedWorkflow(seedProject(t, projects, "late", 1).ID, "Manager")
	late.SLADeadline = baseTime.Add(72 * time.Hour)
	soon := seedWorkflow(seedProject(t, projects, "soon", 1).ID, "Manager")
	soon.SLADeadline = baseTime.Add(time.Hour)
	require.NoError(t, repo.Create(ctx, late))
	require.NoError(t, repo.Create(ctx, soon))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, soon.ID, active[0].ID)
	assert.Equal(t, late.ID, active[1].ID)
}
