package workflow

// State is a status of an approval workflow as seen by the state machine.
type State string

const (
	// StateNone is the state before a project has been submitted
	StateNone State = "NONE"

	// StatePending is a freshly submitted workflow with no approvals yet
	StatePending State = "PENDING"

	// StateInProgress means at least one required role has approved
	StateInProgress State = "IN_PROGRESS"

	// StateApproved means every required role has approved
	StateApproved State = "APPROVED"

	// StateRejected is terminal; the project was turned down
	StateRejected State = "REJECTED"

	// StateRevisionRequested is terminal; the project goes back to draft
	// and a resubmission starts a new workflow
	StateRevisionRequested State = "REVISION_REQUESTED"
)

var validStates = map[State]bool{
	StateNone:              true,
	StatePending:           true,
	StateInProgress:        true,
	StateApproved:          true,
	StateRejected:          true,
	StateRevisionRequested: true,
}

var terminalStates = map[State]bool{
	StateApproved:          true,
	StateRejected:          true,
	StateRevisionRequested: true,
}

// IsTerminal reports whether no further triggers are accepted.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsActive reports whether the workflow still awaits approvals.
func (s State) IsActive() bool {
	return s == StatePending || s == StateInProgress
}

func (s State) String() string {
	return string(s)
}

func (s State) IsValid() bool {
	return validStates[s]
}
