package workflow

import (
	"context"

	"github.com/garyjia/budget-approvals/internal/domain/entity"
	domainwf "github.com/garyjia/budget-approvals/internal/domain/workflow"
)

// BuildApprovalStateMachine wires the approval lifecycle. lastApproval
// tells an APPROVE trigger whether it consumed the final pending role; it
// may be nil when the caller never fires APPROVE.
func BuildApprovalStateMachine(initialState domainwf.State, lastApproval domainwf.GuardFunc) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	final := lastApproval
	if final == nil {
		final = func(_ context.Context) bool { return false }
	}
	notFinal := func(ctx context.Context) bool { return !final(ctx) }

	builder.Configure(domainwf.StateNone).
		Permit(domainwf.TriggerSubmit, domainwf.StatePending)

	for _, open := range []domainwf.State{domainwf.StatePending, domainwf.StateInProgress} {
		builder.Configure(open).
			PermitIf(domainwf.TriggerApprove, domainwf.StateApproved, final).
			PermitIf(domainwf.TriggerApprove, domainwf.StateInProgress, notFinal).
			Permit(domainwf.TriggerReject, domainwf.StateRejected).
			Permit(domainwf.TriggerRequestRevision, domainwf.StateRevisionRequested)
	}

	return builder.Build(initialState)
}

var stateByStatus = map[entity.WorkflowStatus]domainwf.State{
	entity.WorkflowStatusPending:           domainwf.StatePending,
	entity.WorkflowStatusInProgress:        domainwf.StateInProgress,
	entity.WorkflowStatusApproved:          domainwf.StateApproved,
	entity.WorkflowStatusRejected:          domainwf.StateRejected,
	entity.WorkflowStatusRevisionRequested: domainwf.StateRevisionRequested,
}

func stateOf(status entity.WorkflowStatus) domainwf.State {
	if s, ok := stateByStatus[status]; ok {
		return s
	}
	return domainwf.StateNone
}

func statusOf(state domainwf.State) entity.WorkflowStatus {
	for status, s := range stateByStatus {
		if s == state {
			return status
		}
	}
	return ""
}
