package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

func TestApprovalService_SequentialLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.draft(t, 200000)

	wf, err := f.approvals.SubmitForApproval(ctx, p.ID, "owen")
	require.NoError(t, err)
	assert.Equal(t, "executive", wf.TierName)
	assert.Equal(t, testNow.Add(72*time.Hour), wf.SLADeadline)

	_, err = f.approvals.ApproveProject(ctx, p.ID, "carl", "Controller", "")
	assert.ErrorIs(t, err, approval.ErrOutOfSequence)

	for _, step := range []struct{ actor, role string }{{"mia", "Manager"}, {"carl", "Controller"}, {"cora", "CEO"}} {
		wf, err = f.approvals.ApproveProject(ctx, p.ID, step.actor, step.role, "ok")
		require.NoError(t, err, step.role)
	}
	assert.Equal(t, entity.WorkflowStatusApproved, wf.Status)
	assert.Equal(t, 4, wf.CurrentStep)

	project, err := f.projects.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProjectStatusApproved, project.Status)
	require.NotNil(t, project.ApprovedAt)

	entries, err := f.approvals.GetLedger(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "CEO", entries[0].ActorRole)
	assert.Equal(t, entity.LedgerActionSubmitted, entries[3].Action)

	// create, submit, final approval
	versions, err := f.approvals.GetVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, v := range versions {
		assert.Equal(t, int64(i+1), v.VersionNumber)
	}
	assert.Equal(t, project.Version, versions[2].VersionNumber)
}

func TestApprovalService_ProjectWithoutActiveWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.approvals.ApproveProject(ctx, 999, "mia", "Manager", "")
	assert.ErrorIs(t, err, approval.ErrNotFound)

	p := f.draft(t, 1000)
	_, err = f.approvals.RejectProject(ctx, p.ID, "mia", "no")
	assert.ErrorIs(t, err, approval.ErrNotFound, "never submitted")

	_, err = f.approvals.SubmitForApproval(ctx, p.ID, "owen")
	require.NoError(t, err)
	_, err = f.approvals.RejectProject(ctx, p.ID, "mia", "over budget")
	require.NoError(t, err)

	_, err = f.approvals.ApproveProject(ctx, p.ID, "mia", "Manager", "")
	assert.ErrorIs(t, err, approval.ErrWorkflowTerminal)
	_, err = f.approvals.RequestRevision(ctx, p.ID, "mia", "fix it")
	assert.ErrorIs(t, err, approval.ErrWorkflowTerminal)

	project, err := f.projects.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProjectStatusRejected, project.Status)
}

func TestApprovalService_RevisionCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.draft(t, 20000)

	_, err := f.approvals.SubmitForApproval(ctx, p.ID, "owen")
	require.NoError(t, err)

	_, err = f.approvals.RequestRevision(ctx, p.ID, "mia", "   ")
	assert.ErrorIs(t, err, approval.ErrMissingJustification)

	_, err = f.approvals.RequestRevision(ctx, p.ID, "mia", "trim travel")
	require.NoError(t, err)

	newTotals := entity.ScenarioTotals{Conservative: 9000, Expected: 18000, Stretch: 30000}
	_, err = f.projects.Update(ctx, p.ID, UpdateProjectRequest{Totals: &newTotals}, "owen")
	require.NoError(t, err)

	_, err = f.approvals.SubmitForApproval(ctx, p.ID, "owen")
	require.NoError(t, err)

	history, err := f.approvals.GetWorkflows(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.WorkflowStatusRevisionRequested, history[0].Status)
	assert.Equal(t, entity.WorkflowStatusPending, history[1].Status)

	entries, err := f.approvals.GetLedger(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, entity.LedgerActionRevisionRequested, entries[1].Action)
	assert.Equal(t, "trim travel", entries[1].Notes)
}

func TestApprovalService_PendingInbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	small := f.draft(t, 1000)
	sequential := f.draft(t, 200000)
	parallel := f.draft(t, 2000000)
	for _, p := range []*entity.Project{small, sequential, parallel} {
		_, err := f.approvals.SubmitForApproval(ctx, p.ID, "owen")
		require.NoError(t, err)
	}

	inbox, err := f.approvals.GetPendingApprovalsForRole(ctx, "Controller")
	require.NoError(t, err)
	require.Len(t, inbox, 2)

	canApprove := map[int64]bool{}
	for _, row := range inbox {
		canApprove[row.Project.ID] = row.CanApproveNow
		assert.Equal(t, row.Project.ID, row.Workflow.ProjectID)
	}
	assert.False(t, canApprove[sequential.ID], "waits on Manager")
	assert.True(t, canApprove[parallel.ID])

	managerInbox, err := f.approvals.GetPendingApprovalsForRole(ctx, "Manager")
	require.NoError(t, err)
	assert.Len(t, managerInbox, 3)

	_, err = f.approvals.ApproveProject(ctx, small.ID, "mia", "Manager", "")
	require.NoError(t, err)
	managerInbox, err = f.approvals.GetPendingApprovalsForRole(ctx, "Manager")
	require.NoError(t, err)
	assert.Len(t, managerInbox, 2, "closed workflows leave the inbox")

	none, err := f.approvals.GetPendingApprovalsForRole(ctx, "Auditor")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestApprovalService_GetOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fast := f.draft(t, 1000)   // 24h SLA
	slow := f.draft(t, 200000) // 72h SLA
	closed := f.draft(t, 2000) // approved before the deadline
	for _, p := range []*entity.Project{fast, slow, closed} {
		_, err := f.approvals.SubmitForApproval(ctx, p.ID, "owen")
		require.NoError(t, err)
	}
	_, err := f.approvals.ApproveProject(ctx, closed.ID, "mia", "Manager", "")
	require.NoError(t, err)

	overdue, err := f.approvals.GetOverdue(ctx, testNow.Add(30*time.Hour))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, fast.ID, overdue[0].Project.ID)
	assert.Equal(t, "Manager", overdue[0].NextRole)
	assert.Equal(t, 6*time.Hour, overdue[0].OverdueBy)
	assert.Equal(t, int64(6*60*60), overdue[0].OverdueSeconds)

	overdue, err = f.approvals.GetOverdue(ctx, testNow.Add(100*time.Hour))
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, fast.ID, overdue[0].Project.ID, "most overdue first")

	// SLA breach never blocks an action.
	_, err = f.approvals.ApproveProject(ctx, fast.ID, "mia", "Manager", "late")
	require.NoError(t, err)
}

func TestApprovalService_ConcurrentApprovals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.draft(t, 1000)
	_, err := f.approvals.SubmitForApproval(ctx, p.ID, "owen")
	require.NoError(t, err)

	actors := []string{"mia", "mike", "mia", "mike"}
	errs := make([]error, len(actors))
	var wg sync.WaitGroup
	for i, actor := range actors {
		wg.Add(1)
		go func(i int, actor string) {
			defer wg.Done()
			_, errs[i] = f.approvals.ApproveProject(ctx, p.ID, actor, "Manager", "")
		}(i, actor)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			errors.Is(err, approval.ErrWorkflowTerminal) || errors.Is(err, approval.ErrConcurrentModification),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	history, err := f.approvals.GetWorkflows(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"Manager"}, history[0].CompletedRoles)

	entries, err := f.approvals.GetLedger(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestApprovalService_ConcurrentSubmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.draft(t, 1000)

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.approvals.SubmitForApproval(ctx, p.ID, "owen")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			errors.Is(err, approval.ErrDuplicateWorkflow) ||
				errors.Is(err, approval.ErrInvalidProjectState) ||
				errors.Is(err, approval.ErrConcurrentModification),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	history, err := f.approvals.GetWorkflows(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApprovalService_ExportLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.draft(t, 1000)
	_, err := f.approvals.SubmitForApproval(ctx, p.ID, "owen")
	require.NoError(t, err)
	_, err = f.approvals.ApproveProject(ctx, p.ID, "mia", "Manager", "fine")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.approvals.ExportLedger(ctx, p.ID, &buf))
	assert.Equal(t, "report", buf.String())

	report := f.reports.last
	require.NotNil(t, report)
	assert.Equal(t, p.ID, report.Project.ID)
	assert.Len(t, report.Workflows, 1)
	assert.Len(t, report.Ledger, 2)
	assert.Len(t, report.Versions, 3)

	assert.ErrorIs(t, f.approvals.ExportLedger(ctx, 404, &buf), approval.ErrNotFound)

	f.reports.writeFunc = func(_ io.Writer, _ *port.AuditReport) error { return errors.New("disk full") }
	assert.Error(t, f.approvals.ExportLedger(ctx, p.ID, &buf))
}

func TestApprovalService_HistoryOfMissingProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.approvals.GetLedger(ctx, 42)
	assert.ErrorIs(t, err, approval.ErrNotFound)
	_, err = f.approvals.GetVersions(ctx, 42)
	assert.ErrorIs(t, err, approval.ErrNotFound)
	_, err = f.approvals.GetWorkflows(ctx, 42)
	assert.ErrorIs(t, err, approval.ErrNotFound)
}
