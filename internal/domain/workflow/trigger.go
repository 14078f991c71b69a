package workflow

// Trigger is an event that moves a workflow between states.
type Trigger string

const (
	// TriggerSubmit creates the workflow for a draft project
	TriggerSubmit Trigger = "SUBMIT"

	// TriggerApprove records one role's approval; guards decide whether
	// it was the last one
	TriggerApprove Trigger = "APPROVE"

	// TriggerReject closes the workflow as rejected
	TriggerReject Trigger = "REJECT"

	// TriggerRequestRevision closes the workflow and sends the project back
	TriggerRequestRevision Trigger = "REQUEST_REVISION"
)

func (t Trigger) String() string {
	return string(t)
}
