package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
	"github.com/garyjia/budget-approvals/internal/infrastructure/persistence/sqlite"
)

// LedgerRepository implements port.LedgerRepository. The table carries
// triggers that abort any UPDATE or DELETE.
type LedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewLedgerRepository(db *sql.DB, logger *zap.Logger) port.LedgerRepository {
	return &LedgerRepository{db: db, logger: logger}
}

func (r *LedgerRepository) Append(ctx context.Context, entry *entity.LedgerEntry) error {
	query := `
		INSERT INTO approval_ledger (
			project_id, workflow_id, actor_id, actor_role, action, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		entry.ProjectID,
		entry.WorkflowID,
		entry.ActorID,
		entry.ActorRole,
		string(entry.Action),
		entry.Notes,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append ledger entry",
			zap.Int64("project_id", entry.ProjectID),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

func (r *LedgerRepository) ListByProject(ctx context.Context, projectID int64) ([]*entity.LedgerEntry, error) {
	query := `
		SELECT id, project_id, workflow_id, actor_id, actor_role, action, notes, created_at
		FROM approval_ledger
		WHERE project_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list ledger", zap.Int64("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	entries := []*entity.LedgerEntry{}
	for rows.Next() {
		var e entity.LedgerEntry
		var action string
		if err := rows.Scan(
			&e.ID,
			&e.ProjectID,
			&e.WorkflowID,
			&e.ActorID,
			&e.ActorRole,
			&action,
			&e.Notes,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Action = entity.LedgerAction(action)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ port.LedgerRepository = (*LedgerRepository)(nil)
