package port

import (
	"context"

	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// ProjectRepository persists projects. GetByID returns nil, nil when the
// project does not exist.
type ProjectRepository interface {
	// Create inserts p with Version 1 and sets its ID.
	Create(ctx context.Context, p *entity.Project) error
	GetByID(ctx context.Context, id int64) (*entity.Project, error)

	// Update writes p only if the stored version still equals
	// expectedVersion, then sets p.Version to expectedVersion+1.
	// A lost race returns approval.ErrConcurrentModification.
	Update(ctx context.Context, p *entity.Project, expectedVersion int64) error
	List(ctx context.Context, limit, offset int) ([]*entity.Project, error)
}

// WorkflowRepository persists approval workflows. Lookups return nil, nil
// when nothing matches.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.Workflow) error
	GetByID(ctx context.Context, id int64) (*entity.Workflow, error)

	// GetActiveByProjectID returns the pending or in-progress workflow of a project.
	GetActiveByProjectID(ctx context.Context, projectID int64) (*entity.Workflow, error)

	// ListByProjectID returns every workflow of a project, oldest first.
	ListByProjectID(ctx context.Context, projectID int64) ([]*entity.Workflow, error)

	// ListActive returns all pending or in-progress workflows ordered by SLA deadline.
	ListActive(ctx context.Context) ([]*entity.Workflow, error)

	// Update is a compare-and-swap on the revision column. On success
	// wf.Revision becomes expectedRevision+1.
	Update(ctx context.Context, wf *entity.Workflow, expectedRevision int64) error
}

// LedgerRepository is the append-only approval ledger.
type LedgerRepository interface {
	Append(ctx context.Context, entry *entity.LedgerEntry) error

	// ListByProject returns entries newest first; ties go to the later insert.
	ListByProject(ctx context.Context, projectID int64) ([]*entity.LedgerEntry, error)
}

// VersionRepository stores immutable project snapshots.
type VersionRepository interface {
	// Snapshot fails with approval.ErrVersionConflict when v.VersionNumber
	// is already stored for the project. Numbers may arrive out of order.
	Snapshot(ctx context.Context, v *entity.ProjectVersion) error
	ListByProject(ctx context.Context, projectID int64) ([]*entity.ProjectVersion, error)

	// Latest returns nil, nil for a project without snapshots.
	Latest(ctx context.Context, projectID int64) (*entity.ProjectVersion, error)
}

// TransactionManager runs fn in a transaction carried by the context it
// receives. Repositories called with that context join the transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
