package event

// Type identifies a domain event.
type Type string

const (
	TypeWorkflowSubmitted         Type = "workflow.submitted"
	TypeStepApproved              Type = "workflow.step_approved"
	TypeWorkflowApproved          Type = "workflow.approved"
	TypeWorkflowRejected          Type = "workflow.rejected"
	TypeWorkflowRevisionRequested Type = "workflow.revision_requested"
	TypeProjectVersioned          Type = "project.versioned"
)

// AllTypes lists every event type in emission order.
var AllTypes = []Type{
	TypeWorkflowSubmitted,
	TypeStepApproved,
	TypeWorkflowApproved,
	TypeWorkflowRejected,
	TypeWorkflowRevisionRequested,
	TypeProjectVersioned,
}

func (t Type) String() string {
	return string(t)
}

// IsValid reports whether t is one of the declared types.
func (t Type) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}
