package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
	"github.com/garyjia/budget-approvals/internal/infrastructure/persistence/sqlite"
)

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id, project_id, tier_name, sequential, sla_hours,
	required_roles, completed_roles, pending_roles,
	current_step, total_steps, status, submitted_by, submitted_at,
	completed_at, sla_deadline, revision, created_at, updated_at`

// Create inserts wf. The partial unique index on open workflows turns a
// second active workflow for the same project into ErrDuplicateWorkflow.
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	required, err := encodeRoles(wf.RequiredRoles)
	if err != nil {
		return err
	}
	completed, err := encodeRoles(wf.CompletedRoles)
	if err != nil {
		return err
	}
	pending, err := encodeRoles(wf.PendingRoles)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO approval_workflows (
			project_id, tier_name, sequential, sla_hours,
			required_roles, completed_roles, pending_roles,
			current_step, total_steps, status, submitted_by, submitted_at,
			completed_at, sla_deadline, revision, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		wf.ProjectID,
		wf.TierName,
		wf.Sequential,
		wf.SLAHours,
		required,
		completed,
		pending,
		wf.CurrentStep,
		wf.TotalSteps,
		string(wf.Status),
		wf.SubmittedBy,
		wf.SubmittedAt.UTC(),
		nullTime(wf.CompletedAt),
		wf.SLADeadline.UTC(),
		wf.CreatedAt.UTC(),
		wf.UpdatedAt.UTC(),
	)
	if sqlite.IsUniqueViolation(err) {
		return fmt.Errorf("%w: project %d", approval.ErrDuplicateWorkflow, wf.ProjectID)
	}
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.Int64("project_id", wf.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	wf.ID = id
	wf.Revision = 1
	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*entity.Workflow, error) {
	return r.getOne(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE id = ?`, id)
}

func (r *WorkflowRepository) GetActiveByProjectID(ctx context.Context, projectID int64) (*entity.Workflow, error) {
	return r.getOne(ctx, `
		SELECT `+workflowColumns+` FROM approval_workflows
		WHERE project_id = ? AND status IN ('pending', 'in_progress')
		ORDER BY id DESC LIMIT 1`, projectID)
}

func (r *WorkflowRepository) ListByProjectID(ctx context.Context, projectID int64) ([]*entity.Workflow, error) {
	return r.list(ctx, `
		SELECT `+workflowColumns+` FROM approval_workflows
		WHERE project_id = ? ORDER BY id ASC`, projectID)
}

func (r *WorkflowRepository) ListActive(ctx context.Context) ([]*entity.Workflow, error) {
	return r.list(ctx, `
		SELECT `+workflowColumns+` FROM approval_workflows
		WHERE status IN ('pending', 'in_progress')
		ORDER BY sla_deadline ASC, id ASC`)
}

// Update writes the mutable workflow fields if the stored revision still
// matches expectedRevision.
func (r *WorkflowRepository) Update(ctx context.Context, wf *entity.Workflow, expectedRevision int64) error {
	completed, err := encodeRoles(wf.CompletedRoles)
	if err != nil {
		return err
	}
	pending, err := encodeRoles(wf.PendingRoles)
	if err != nil {
		return err
	}

	query := `
		UPDATE approval_workflows SET
			completed_roles = ?, pending_roles = ?, current_step = ?,
			status = ?, completed_at = ?, revision = revision + 1, updated_at = ?
		WHERE id = ? AND revision = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		completed,
		pending,
		wf.CurrentStep,
		string(wf.Status),
		nullTime(wf.CompletedAt),
		wf.UpdatedAt.UTC(),
		wf.ID,
		expectedRevision,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow", zap.Int64("id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: workflow %d is no longer at revision %d", approval.ErrConcurrentModification, wf.ID, expectedRevision)
	}

	wf.Revision = expectedRevision + 1
	return nil
}

func (r *WorkflowRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.Workflow, error) {
	wf, err := scanWorkflow(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

func (r *WorkflowRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Workflow, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*entity.Workflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func scanWorkflow(s scanner) (*entity.Workflow, error) {
	var wf entity.Workflow
	var required, completed, pending, status string
	var completedAt sql.NullTime

	err := s.Scan(
		&wf.ID,
		&wf.ProjectID,
		&wf.TierName,
		&wf.Sequential,
		&wf.SLAHours,
		&required,
		&completed,
		&pending,
		&wf.CurrentStep,
		&wf.TotalSteps,
		&status,
		&wf.SubmittedBy,
		&wf.SubmittedAt,
		&completedAt,
		&wf.SLADeadline,
		&wf.Revision,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if wf.RequiredRoles, err = decodeRoles(required); err != nil {
		return nil, err
	}
	if wf.CompletedRoles, err = decodeRoles(completed); err != nil {
		return nil, err
	}
	if wf.PendingRoles, err = decodeRoles(pending); err != nil {
		return nil, err
	}
	wf.Status = entity.WorkflowStatus(status)
	wf.CompletedAt = timePtr(completedAt)
	return &wf, nil
}

var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
