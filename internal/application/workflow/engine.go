package workflow

import (
	"context"

	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// WorkflowEngine drives approval workflows. Every operation reads, computes
// and writes inside one transaction and retries when a compare-and-swap
// write loses a race.
type WorkflowEngine interface {
	// Submit opens a workflow for a draft project, routed by its budget amount.
	Submit(ctx context.Context, projectID int64, actorID string) (*entity.Workflow, error)

	// Approve records actorRole's approval. actorID must hold actorRole.
	Approve(ctx context.Context, workflowID int64, actorRole, actorID, notes string) (*entity.Workflow, error)

	// Reject closes the workflow and marks the project rejected.
	Reject(ctx context.Context, workflowID int64, actorID, notes string) (*entity.Workflow, error)

	// RequestRevision closes the workflow and returns the project to draft.
	RequestRevision(ctx context.Context, workflowID int64, actorID, notes string) (*entity.Workflow, error)
}
