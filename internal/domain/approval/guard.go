package approval

import (
	"fmt"

	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// Action is something an approver can do to an open workflow.
type Action string

const (
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequestRevision Action = "request_revision"
)

// CanAct reports whether role may perform action on wf right now.
func CanAct(wf *entity.Workflow, role string, action Action) bool {
	return Check(wf, role, action) == nil
}

// Check is CanAct with the reason for a refusal. Terminal workflows refuse
// everything; otherwise role must be pending, and approvals on a sequential
// tier must come from the next role in required order.
func Check(wf *entity.Workflow, role string, action Action) error {
	if wf.IsTerminal() {
		return fmt.Errorf("%w: workflow %d is %s", ErrWorkflowTerminal, wf.ID, wf.Status)
	}
	if !wf.IsPending(role) {
		return fmt.Errorf("%w: role %q is not pending on workflow %d", ErrNotAuthorized, role, wf.ID)
	}
	if action == ActionApprove && wf.Sequential {
		if next := wf.NextRole(); next != role {
			return fmt.Errorf("%w: %q must approve before %q", ErrOutOfSequence, next, role)
		}
	}
	return nil
}

// ActingRole picks the role under which an actor holding roles rejects or
// requests revision: the earliest pending role in required order.
func ActingRole(wf *entity.Workflow, roles []string) (string, error) {
	held := make(map[string]bool, len(roles))
	for _, r := range roles {
		held[r] = true
	}
	for _, r := range wf.RequiredRoles {
		if held[r] && wf.IsPending(r) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: actor holds no pending role on workflow %d", ErrNotAuthorized, wf.ID)
}
