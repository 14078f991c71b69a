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

// ProjectRepository implements port.ProjectRepository
type ProjectRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewProjectRepository(db *sql.DB, logger *zap.Logger) port.ProjectRepository {
	return &ProjectRepository{db: db, logger: logger}
}

const projectColumns = `
	id, name, owner_id, total_conservative, total_expected, total_stretch,
	scenario, status, phase, submitted_at, approved_at, version,
	created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *entity.Project) error {
	query := `
		INSERT INTO projects (
			name, owner_id, total_conservative, total_expected, total_stretch,
			scenario, status, phase, submitted_at, approved_at, version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		p.Name,
		p.OwnerID,
		p.Totals.Conservative,
		p.Totals.Expected,
		p.Totals.Stretch,
		string(p.Scenario),
		string(p.Status),
		string(p.Phase),
		nullTime(p.SubmittedAt),
		nullTime(p.ApprovedAt),
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create project", zap.Error(err))
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	p.ID = id
	p.Version = 1
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*entity.Project, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)

	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get project", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (r *ProjectRepository) Update(ctx context.Context, p *entity.Project, expectedVersion int64) error {
	query := `
		UPDATE projects SET
			name = ?, total_conservative = ?, total_expected = ?, total_stretch = ?,
			scenario = ?, status = ?, phase = ?, submitted_at = ?, approved_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		p.Name,
		p.Totals.Conservative,
		p.Totals.Expected,
		p.Totals.Stretch,
		string(p.Scenario),
		string(p.Status),
		string(p.Phase),
		nullTime(p.SubmittedAt),
		nullTime(p.ApprovedAt),
		p.UpdatedAt.UTC(),
		p.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update project", zap.Int64("id", p.ID), zap.Error(err))
		return fmt.Errorf("failed to update project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: project %d is no longer at version %d", approval.ErrConcurrentModification, p.ID, expectedVersion)
	}

	p.Version = expectedVersion + 1
	return nil
}

func (r *ProjectRepository) List(ctx context.Context, limit, offset int) ([]*entity.Project, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err))
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*entity.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(s scanner) (*entity.Project, error) {
	var p entity.Project
	var scenario, status, phase string
	var submittedAt, approvedAt sql.NullTime

	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.OwnerID,
		&p.Totals.Conservative,
		&p.Totals.Expected,
		&p.Totals.Stretch,
		&scenario,
		&status,
		&phase,
		&submittedAt,
		&approvedAt,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Scenario = entity.Scenario(scenario)
	p.Status = entity.ProjectStatus(status)
	p.Phase = entity.Phase(phase)
	p.SubmittedAt = timePtr(submittedAt)
	p.ApprovedAt = timePtr(approvedAt)
	return &p, nil
}

var _ port.ProjectRepository = (*ProjectRepository)(nil)
