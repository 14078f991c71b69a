package entity

import "time"

// Workflow is one approval run for a project. A project accumulates one
// workflow per submission; workflows are never deleted.
type Workflow struct {
	ID             int64          `json:"id"`
	ProjectID      int64          `json:"project_id"`
	TierName       string         `json:"tier_name"`
	Sequential     bool           `json:"sequential"`
	SLAHours       int            `json:"sla_hours"`
	RequiredRoles  []string       `json:"required_roles"`
	CompletedRoles []string       `json:"completed_roles"`
	PendingRoles   []string       `json:"pending_roles"`
	CurrentStep    int            `json:"current_step"`
	TotalSteps     int            `json:"total_steps"`
	Status         WorkflowStatus `json:"status"`
	SubmittedBy    string         `json:"submitted_by"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	SLADeadline    time.Time      `json:"sla_deadline"`
	Revision       int64          `json:"revision"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the workflow is closed.
func (w *Workflow) IsTerminal() bool {
	return w.Status.IsTerminal()
}

// IsPending reports whether role still has to act.
func (w *Workflow) IsPending(role string) bool {
	return containsRole(w.PendingRoles, role)
}

// NextRole returns the first pending role in required order, or "" when
// nothing is pending.
func (w *Workflow) NextRole() string {
	for _, r := range w.RequiredRoles {
		if containsRole(w.PendingRoles, r) {
			return r
		}
	}
	return ""
}

// SLABreached reports whether an open workflow is past its deadline.
func (w *Workflow) SLABreached(now time.Time) bool {
	return !w.IsTerminal() && now.After(w.SLADeadline)
}

// Clone returns a deep copy so a candidate state can be computed without
// touching the persisted one.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := *w
	c.RequiredRoles = append([]string(nil), w.RequiredRoles...)
	c.CompletedRoles = append([]string{}, w.CompletedRoles...)
	c.PendingRoles = append([]string{}, w.PendingRoles...)
	c.CompletedAt = cloneTime(w.CompletedAt)
	return &c
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
