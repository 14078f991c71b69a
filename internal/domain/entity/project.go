package entity

import "time"

// ScenarioTotals holds the three planning totals in minor currency units.
type ScenarioTotals struct {
	Conservative int64 `json:"conservative"`
	Expected     int64 `json:"expected"`
	Stretch      int64 `json:"stretch"`
}

// Project is a proposed budget request.
type Project struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	OwnerID     string         `json:"owner_id"`
	Totals      ScenarioTotals `json:"totals"`
	Scenario    Scenario       `json:"scenario"`
	Status      ProjectStatus  `json:"status"`
	Phase       Phase          `json:"phase"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time     `json:"approved_at,omitempty"`
	Version     int64          `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// BudgetAmount returns the total selected by the project's scenario.
// An unset scenario falls back to the expected total.
func (p *Project) BudgetAmount() int64 {
	switch p.Scenario {
	case ScenarioConservative:
		return p.Totals.Conservative
	case ScenarioStretch:
		return p.Totals.Stretch
	default:
		return p.Totals.Expected
	}
}

// IsEditable reports whether direct edits are allowed.
func (p *Project) IsEditable() bool {
	return p.Status == ProjectStatusDraft
}

// Clone returns a deep copy.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.SubmittedAt = cloneTime(p.SubmittedAt)
	c.ApprovedAt = cloneTime(p.ApprovedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
