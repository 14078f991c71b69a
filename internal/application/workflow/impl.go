package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/budget-approvals/internal/application/dispatcher"
	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/application/versioning"
	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
	"github.com/garyjia/budget-approvals/internal/domain/event"
	domainwf "github.com/garyjia/budget-approvals/internal/domain/workflow"
)

// DefaultMaxRetries is how often an operation is retried after losing a
// compare-and-swap race.
const DefaultMaxRetries = 3

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type engineImpl struct {
	projects   port.ProjectRepository
	workflows  port.WorkflowRepository
	ledger     port.LedgerRepository
	txManager  port.TransactionManager
	recorder   *versioning.Recorder
	tiers      port.TierResolver
	directory  port.RoleDirectory
	dispatcher dispatcher.Dispatcher
	logger     Logger

	maxRetries int
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher publishes workflow events after each commit.
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithMaxRetries bounds compare-and-swap retries. Negative values are
// treated as zero.
func WithMaxRetries(n int) EngineOption {
	return func(e *engineImpl) {
		if n < 0 {
			n = 0
		}
		e.maxRetries = n
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	projects port.ProjectRepository,
	workflows port.WorkflowRepository,
	ledger port.LedgerRepository,
	txManager port.TransactionManager,
	recorder *versioning.Recorder,
	tiers port.TierResolver,
	directory port.RoleDirectory,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		projects:   projects,
		workflows:  workflows,
		ledger:     ledger,
		txManager:  txManager,
		recorder:   recorder,
		tiers:      tiers,
		directory:  directory,
		logger:     nopLogger{},
		maxRetries: DefaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// outcome collects what a committed operation has to publish.
type outcome struct {
	workflow *entity.Workflow
	project  *entity.Project
	deferred versioning.Deferred
	events   []event.Type
	role     string
}

func (e *engineImpl) Submit(ctx context.Context, projectID int64, actorID string) (*entity.Workflow, error) {
	out, err := e.run(ctx, "submit", func(txCtx context.Context) (*outcome, error) {
		project, err := e.projects.GetByID(txCtx, projectID)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, fmt.Errorf("%w: project %d", approval.ErrNotFound, projectID)
		}

		active, err := e.workflows.GetActiveByProjectID(txCtx, projectID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, fmt.Errorf("%w: project %d has workflow %d", approval.ErrDuplicateWorkflow, projectID, active.ID)
		}
		if project.Status != entity.ProjectStatusDraft {
			return nil, fmt.Errorf("%w: project %d is %s", approval.ErrInvalidProjectState, projectID, project.Status)
		}

		tier, err := e.tiers.Resolve(project.BudgetAmount())
		if err != nil {
			return nil, fmt.Errorf("project %d: %w", projectID, err)
		}

		machine := BuildApprovalStateMachine(domainwf.StateNone, nil)
		if err := machine.Fire(txCtx, domainwf.TriggerSubmit); err != nil {
			return nil, err
		}

		now := e.now()
		wf := approval.NewWorkflow(project.ID, tier, actorID, now)
		wf.Status = statusOf(machine.State())
		if err := e.workflows.Create(txCtx, wf); err != nil {
			return nil, err
		}

		if err := e.ledger.Append(txCtx, &entity.LedgerEntry{
			ProjectID:  project.ID,
			WorkflowID: wf.ID,
			ActorID:    actorID,
			Action:     entity.LedgerActionSubmitted,
			CreatedAt:  now,
		}); err != nil {
			return nil, err
		}

		project.Status = entity.ProjectStatusPendingApproval
		project.Phase = entity.PhaseUnderReview
		project.SubmittedAt = &now
		project.ApprovedAt = nil
		project.UpdatedAt = now
		deferred, err := e.recorder.Save(txCtx, project, actorID)
		if err != nil {
			return nil, err
		}

		return &outcome{
			workflow: wf,
			project:  project,
			deferred: deferred,
			events:   []event.Type{event.TypeWorkflowSubmitted},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, out, actorID, "")
	return out.workflow, nil
}

func (e *engineImpl) Approve(ctx context.Context, workflowID int64, actorRole, actorID, notes string) (*entity.Workflow, error) {
	// Resolved outside the transaction; a lookup failure is reported only
	// once the workflow is known to be open.
	roles, rolesErr := e.rolesOf(ctx, actorID)

	out, err := e.run(ctx, "approve", func(txCtx context.Context) (*outcome, error) {
		wf, err := e.loadOpen(txCtx, workflowID)
		if err != nil {
			return nil, err
		}
		if rolesErr != nil {
			return nil, rolesErr
		}
		if !holds(roles, actorRole) {
			return nil, fmt.Errorf("%w: %s does not hold role %q", approval.ErrNotAuthorized, actorID, actorRole)
		}
		if err := approval.Check(wf, actorRole, approval.ActionApprove); err != nil {
			return nil, err
		}

		now := e.now()
		next := approval.RecordApproval(wf, actorRole, now)
		machine := BuildApprovalStateMachine(stateOf(wf.Status), func(context.Context) bool {
			return len(next.PendingRoles) == 0
		})
		if err := machine.Fire(txCtx, domainwf.TriggerApprove); err != nil {
			return nil, err
		}
		next.Status = statusOf(machine.State())
		if next.IsTerminal() {
			next.CompletedAt = &now
		}

		if err := e.workflows.Update(txCtx, next, wf.Revision); err != nil {
			return nil, err
		}
		if err := e.ledger.Append(txCtx, &entity.LedgerEntry{
			ProjectID:  wf.ProjectID,
			WorkflowID: wf.ID,
			ActorID:    actorID,
			ActorRole:  actorRole,
			Action:     entity.LedgerActionApproved,
			Notes:      strings.TrimSpace(notes),
			CreatedAt:  now,
		}); err != nil {
			return nil, err
		}

		out := &outcome{workflow: next, role: actorRole, events: []event.Type{event.TypeStepApproved}}
		if next.Status != entity.WorkflowStatusApproved {
			return out, nil
		}

		project, deferred, err := e.moveProject(txCtx, wf.ProjectID, actorID, func(p *entity.Project) {
			p.Status = entity.ProjectStatusApproved
			p.Phase = entity.PhaseApproved
			p.ApprovedAt = &now
			p.UpdatedAt = now
		})
		if err != nil {
			return nil, err
		}
		out.project = project
		out.deferred = deferred
		out.events = append(out.events, event.TypeWorkflowApproved)
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, out, actorID, notes)
	return out.workflow, nil
}

func (e *engineImpl) Reject(ctx context.Context, workflowID int64, actorID, notes string) (*entity.Workflow, error) {
	return e.finish(ctx, workflowID, actorID, notes, approval.ActionReject)
}

func (e *engineImpl) RequestRevision(ctx context.Context, workflowID int64, actorID, notes string) (*entity.Workflow, error) {
	return e.finish(ctx, workflowID, actorID, notes, approval.ActionRequestRevision)
}

// finish ends an open workflow on behalf of any actor holding a pending role.
// Sequence does not matter here: a later-stage approver may stop the request.
func (e *engineImpl) finish(ctx context.Context, workflowID int64, actorID, notes string, action approval.Action) (*entity.Workflow, error) {
	trigger := domainwf.TriggerReject
	ledgerAction := entity.LedgerActionRejected
	evtType := event.TypeWorkflowRejected
	if action == approval.ActionRequestRevision {
		trigger = domainwf.TriggerRequestRevision
		ledgerAction = entity.LedgerActionRevisionRequested
		evtType = event.TypeWorkflowRevisionRequested
	}

	roles, rolesErr := e.rolesOf(ctx, actorID)
	notes = strings.TrimSpace(notes)

	out, err := e.run(ctx, string(action), func(txCtx context.Context) (*outcome, error) {
		wf, err := e.loadOpen(txCtx, workflowID)
		if err != nil {
			return nil, err
		}
		if notes == "" {
			return nil, fmt.Errorf("%w: %s on workflow %d", approval.ErrMissingJustification, action, workflowID)
		}
		if rolesErr != nil {
			return nil, rolesErr
		}
		role, err := approval.ActingRole(wf, roles)
		if err != nil {
			return nil, err
		}
		if err := approval.Check(wf, role, action); err != nil {
			return nil, err
		}

		machine := BuildApprovalStateMachine(stateOf(wf.Status), nil)
		if err := machine.Fire(txCtx, trigger); err != nil {
			return nil, err
		}

		now := e.now()
		next := approval.Close(wf, statusOf(machine.State()), now)
		if err := e.workflows.Update(txCtx, next, wf.Revision); err != nil {
			return nil, err
		}
		if err := e.ledger.Append(txCtx, &entity.LedgerEntry{
			ProjectID:  wf.ProjectID,
			WorkflowID: wf.ID,
			ActorID:    actorID,
			ActorRole:  role,
			Action:     ledgerAction,
			Notes:      notes,
			CreatedAt:  now,
		}); err != nil {
			return nil, err
		}

		project, deferred, err := e.moveProject(txCtx, wf.ProjectID, actorID, func(p *entity.Project) {
			if action == approval.ActionRequestRevision {
				p.Status = entity.ProjectStatusDraft
				p.Phase = entity.PhasePlanning
			} else {
				p.Status = entity.ProjectStatusRejected
				p.Phase = entity.PhaseRejected
			}
			p.UpdatedAt = now
		})
		if err != nil {
			return nil, err
		}

		return &outcome{
			workflow: next,
			project:  project,
			deferred: deferred,
			role:     role,
			events:   []event.Type{evtType},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, out, actorID, notes)
	return out.workflow, nil
}

// run executes op in a transaction and repeats it with fresh reads while it
// keeps losing compare-and-swap races, up to maxRetries extra attempts.
func (e *engineImpl) run(ctx context.Context, name string, op func(txCtx context.Context) (*outcome, error)) (*outcome, error) {
	var err error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.logger.Info("Retrying after concurrent modification", "operation", name, "attempt", attempt)
		}

		var out *outcome
		err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			var opErr error
			out, opErr = op(txCtx)
			return opErr
		})
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, approval.ErrConcurrentModification) {
			return nil, err
		}
	}

	e.logger.Error("Giving up after concurrent modifications", "operation", name, "retries", e.maxRetries)
	return nil, err
}

func (e *engineImpl) loadOpen(ctx context.Context, workflowID int64) (*entity.Workflow, error) {
	wf, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %d", approval.ErrNotFound, workflowID)
	}
	if wf.IsTerminal() {
		return nil, fmt.Errorf("%w: workflow %d is %s", approval.ErrWorkflowTerminal, workflowID, wf.Status)
	}
	return wf, nil
}

func (e *engineImpl) moveProject(ctx context.Context, projectID int64, actorID string, mutate func(p *entity.Project)) (*entity.Project, versioning.Deferred, error) {
	project, err := e.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, fmt.Errorf("%w: project %d", approval.ErrNotFound, projectID)
	}

	mutate(project)
	deferred, err := e.recorder.Save(ctx, project, actorID)
	if err != nil {
		return nil, nil, err
	}
	return project, deferred, nil
}

func (e *engineImpl) rolesOf(ctx context.Context, actorID string) ([]string, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, fmt.Errorf("%w: actor id is required", approval.ErrNotAuthorized)
	}
	roles, err := e.directory.RolesOf(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles of %s: %w", actorID, err)
	}
	return roles, nil
}

// publish flushes deferred snapshots and emits events for a committed outcome.
func (e *engineImpl) publish(ctx context.Context, out *outcome, actorID, notes string) {
	e.recorder.Flush(ctx, out.deferred)

	if e.dispatcher == nil {
		return
	}

	wf := out.workflow
	for _, typ := range out.events {
		e.dispatcher.DispatchAsync(ctx, event.NewEvent(typ, wf.ProjectID, wf.ID, actorID, map[string]any{
			"status":       string(wf.Status),
			"tier":         wf.TierName,
			"role":         out.role,
			"current_step": wf.CurrentStep,
			"total_steps":  wf.TotalSteps,
			"notes":        notes,
		}))
	}
	if out.project != nil {
		e.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeProjectVersioned, out.project.ID, wf.ID, actorID, map[string]any{
			"version": out.project.Version,
			"status":  string(out.project.Status),
		}))
	}
}

func holds(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
