package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approvals/internal/domain/entity"
	"github.com/garyjia/budget-approvals/pkg/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "repo.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Run(database.Migrations()))
	return db.DB
}

var baseTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func seedProject(t *testing.T, repo *ProjectRepository, name string, expected int64) *entity.Project {
	t.Helper()
	p := &entity.Project{
		Name:      name,
		OwnerID:   "owner-1",
		Totals:    entity.ScenarioTotals{Conservative: expected / 2, Expected: expected, Stretch: expected * 2},
		Scenario:  entity.ScenarioExpected,
		Status:    entity.ProjectStatusDraft,
		Phase:     entity.PhasePlanning,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func seedWorkflow(projectID int64, roles ...string) *entity.Workflow {
	return &entity.Workflow{
		ProjectID:      projectID,
		TierName:       "manager",
		Sequential:     true,
		SLAHours:       24,
		RequiredRoles:  roles,
		CompletedRoles: []string{},
		PendingRoles:   append([]string{}, roles...),
		CurrentStep:    1,
		TotalSteps:     len(roles),
		Status:         entity.WorkflowStatusPending,
		SubmittedBy:    "owner-1",
		SubmittedAt:    baseTime,
		SLADeadline:    baseTime.Add(24 * time.Hour),
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
	}
}
