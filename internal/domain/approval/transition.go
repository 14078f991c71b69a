package approval

import (
	"time"

	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// NewWorkflow seeds a workflow from tier for a fresh submission.
func NewWorkflow(projectID int64, tier *entity.ThresholdTier, submittedBy string, now time.Time) *entity.Workflow {
	roles := append([]string(nil), tier.Roles...)
	return &entity.Workflow{
		ProjectID:      projectID,
		TierName:       tier.Name,
		Sequential:     tier.Sequential,
		SLAHours:       tier.SLAHours,
		RequiredRoles:  roles,
		CompletedRoles: []string{},
		PendingRoles:   append([]string(nil), roles...),
		CurrentStep:    1,
		TotalSteps:     len(roles),
		Status:         entity.WorkflowStatusPending,
		SubmittedBy:    submittedBy,
		SubmittedAt:    now,
		SLADeadline:    now.Add(time.Duration(tier.SLAHours) * time.Hour),
		Revision:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordApproval returns a copy of wf with role moved from pending to
// completed and the step advanced. After the last approval CurrentStep is
// TotalSteps+1. Status is left to the caller.
func RecordApproval(wf *entity.Workflow, role string, now time.Time) *entity.Workflow {
	next := wf.Clone()
	pending := next.PendingRoles[:0]
	for _, r := range next.PendingRoles {
		if r != role {
			pending = append(pending, r)
		}
	}
	next.PendingRoles = pending
	next.CompletedRoles = append(next.CompletedRoles, role)
	next.CurrentStep++
	next.UpdatedAt = now
	return next
}

// Close returns a copy of wf in the terminal status with a completion time.
func Close(wf *entity.Workflow, status entity.WorkflowStatus, now time.Time) *entity.Workflow {
	next := wf.Clone()
	next.Status = status
	next.CompletedAt = &now
	next.UpdatedAt = now
	return next
}
