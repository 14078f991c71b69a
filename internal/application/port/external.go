package port

import (
	"context"
	"io"

	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// RoleDirectory resolves the roles a user currently holds.
type RoleDirectory interface {
	RolesOf(ctx context.Context, userID string) ([]string, error)
}

// TierResolver maps a budget amount to its approval tier.
type TierResolver interface {
	Resolve(amount int64) (*entity.ThresholdTier, error)
	Tiers() []entity.ThresholdTier
}

// AuditReport is everything recorded about one project.
type AuditReport struct {
	Project   *entity.Project
	Workflows []*entity.Workflow
	Ledger    []*entity.LedgerEntry
	Versions  []*entity.ProjectVersion
}

// ReportWriter renders an audit report to w.
type ReportWriter interface {
	WriteAuditReport(w io.Writer, report *AuditReport) error
}
