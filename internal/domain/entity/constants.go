package entity

// ProjectStatus is the approval-facing status of a project.
type ProjectStatus string

const (
	ProjectStatusDraft           ProjectStatus = "Draft"
	ProjectStatusPendingApproval ProjectStatus = "Pending Approval"
	ProjectStatusApproved        ProjectStatus = "Approved"
	ProjectStatusRejected        ProjectStatus = "Rejected"
	ProjectStatusCompleted       ProjectStatus = "Completed"
)

// Phase is the lifecycle tag shown next to the project status.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseUnderReview Phase = "under_review"
	PhaseApproved    Phase = "approved"
	PhaseRejected    Phase = "rejected"
	PhaseClosed      Phase = "closed"
)

// Scenario selects which planning total is the budget amount under review.
type Scenario string

const (
	ScenarioConservative Scenario = "conservative"
	ScenarioExpected     Scenario = "expected"
	ScenarioStretch      Scenario = "stretch"
)

// IsValid reports whether s names one of the three planning totals.
func (s Scenario) IsValid() bool {
	switch s {
	case ScenarioConservative, ScenarioExpected, ScenarioStretch:
		return true
	}
	return false
}

// WorkflowStatus is the persisted status of an approval workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending           WorkflowStatus = "pending"
	WorkflowStatusInProgress        WorkflowStatus = "in_progress"
	WorkflowStatusApproved          WorkflowStatus = "approved"
	WorkflowStatusRejected          WorkflowStatus = "rejected"
	WorkflowStatusRevisionRequested WorkflowStatus = "revision_requested"
)

// IsTerminal reports whether the workflow accepts no further actions.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusApproved, WorkflowStatusRejected, WorkflowStatusRevisionRequested:
		return true
	}
	return false
}

// LedgerAction is the kind of decision recorded in the approval ledger.
type LedgerAction string

const (
	LedgerActionSubmitted         LedgerAction = "submitted"
	LedgerActionApproved          LedgerAction = "approved"
	LedgerActionRejected          LedgerAction = "rejected"
	LedgerActionRevisionRequested LedgerAction = "revision_requested"
)
