package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

func TestLedgerRepository_NewestFirstWithInsertionTieBreak(t *testing.T) {
	db := setupTestDB(t)
	projects := NewProjectRepository(db, zap.NewNop()).(*ProjectRepository)
	workflows := NewWorkflowRepository(db, zap.NewNop())
	ledger := NewLedgerRepository(db, zap.NewNop())
	ctx := context.Background()

	p := seedProject(t, projects, "Server room", 75000)
	wf := seedWorkflow(p.ID, "Manager", "Controller")
	require.NoError(t, workflows.Create(ctx, wf))

	entries := []*entity.LedgerEntry{
		{Action: entity.LedgerActionSubmitted, ActorID: "owner-1", CreatedAt: baseTime},
		{Action: entity.LedgerActionApproved, ActorID: "m1", ActorRole: "Manager", CreatedAt: baseTime.Add(time.Hour)},
		{Action: entity.LedgerActionRejected, ActorID: "c1", ActorRole: "Controller", Notes: "over budget", CreatedAt: baseTime.Add(time.Hour)},
	}
	for _, e := range entries {
		e.ProjectID = p.ID
		e.WorkflowID = wf.ID
		require.NoError(t, ledger.Append(ctx, e))
		assert.NotZero(t, e.ID)
	}

	got, err := ledger.ListByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, entity.LedgerActionRejected, got[0].Action)
	assert.Equal(t, "over budget", got[0].Notes)
	assert.Equal(t, entity.LedgerActionApproved, got[1].Action)
	assert.Equal(t, "Manager", got[1].ActorRole)
	assert.Equal(t, entity.LedgerActionSubmitted, got[2].Action)

	empty, err := ledger.ListByProject(ctx, p.ID+100)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedgerRepository_RowsCannotBeChanged(t *testing.T) {
	db := setupTestDB(t)
	projects := NewProjectRepository(db, zap.NewNop()).(*ProjectRepository)
	workflows := NewWorkflowRepository(db, zap.NewNop())
	ledger := NewLedgerRepository(db, zap.NewNop())
	ctx := context.Background()

	p := seedProject(t, projects, "Kiosk", 100)
	wf := seedWorkflow(p.ID, "Manager")
	require.NoError(t, workflows.Create(ctx, wf))
	require.NoError(t, ledger.Append(ctx, &entity.LedgerEntry{
		ProjectID: p.ID, WorkflowID: wf.ID, ActorID: "owner-1", Action: entity.LedgerActionSubmitted, CreatedAt: baseTime,
	}))

	_, err := db.Exec("UPDATE approval_ledger SET notes = 'edited'")
	assert.Error(t, err)
	_, err = db.Exec("DELETE FROM approval_ledger")
	assert.Error(t, err)
}
