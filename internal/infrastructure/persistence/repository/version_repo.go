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

// VersionRepository implements port.VersionRepository
type VersionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewVersionRepository(db *sql.DB, logger *zap.Logger) port.VersionRepository {
	return &VersionRepository{db: db, logger: logger}
}

// Snapshot stores v. Numbers come from the project row's version counter,
// which already moves by exactly one under compare-and-swap, so snapshots
// may arrive out of order; only a number that is already stored conflicts.
func (r *VersionRepository) Snapshot(ctx context.Context, v *entity.ProjectVersion) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO project_versions (project_id, version_number, snapshot, author_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		v.ProjectID,
		v.VersionNumber,
		v.Snapshot,
		v.AuthorID,
		v.CreatedAt.UTC(),
	)
	if sqlite.IsUniqueViolation(err) {
		return fmt.Errorf("%w: project %d version %d already stored", approval.ErrVersionConflict, v.ProjectID, v.VersionNumber)
	}
	if err != nil {
		r.logger.Error("Failed to store version", zap.Int64("project_id", v.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to store version: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	v.ID = id
	return nil
}

func (r *VersionRepository) ListByProject(ctx context.Context, projectID int64) ([]*entity.ProjectVersion, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, project_id, version_number, snapshot, author_id, created_at
		FROM project_versions
		WHERE project_id = ?
		ORDER BY version_number ASC`, projectID)
	if err != nil {
		r.logger.Error("Failed to list versions", zap.Int64("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := []*entity.ProjectVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *VersionRepository) Latest(ctx context.Context, projectID int64) (*entity.ProjectVersion, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, project_id, version_number, snapshot, author_id, created_at
		FROM project_versions
		WHERE project_id = ?
		ORDER BY version_number DESC LIMIT 1`, projectID)

	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	return v, nil
}

func scanVersion(s scanner) (*entity.ProjectVersion, error) {
	var v entity.ProjectVersion
	if err := s.Scan(&v.ID, &v.ProjectID, &v.VersionNumber, &v.Snapshot, &v.AuthorID, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

var _ port.VersionRepository = (*VersionRepository)(nil)
