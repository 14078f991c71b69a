package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/application/workflow"
	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// PendingApproval is one inbox row for a role.
type PendingApproval struct {
	Project  *entity.Project  `json:"project"`
	Workflow *entity.Workflow `json:"workflow"`

	// CanApproveNow is false when a sequential tier still waits on an
	// earlier role.
	CanApproveNow bool `json:"can_approve_now"`
}

// OverdueApproval is an open workflow past its SLA deadline. API clients
// read the delay as whole seconds.
type OverdueApproval struct {
	Project        *entity.Project  `json:"project"`
	Workflow       *entity.Workflow `json:"workflow"`
	NextRole       string           `json:"next_role"`
	OverdueBy      time.Duration    `json:"-"`
	OverdueSeconds int64            `json:"overdue_seconds"`
}

// ApprovalService is the project-level facade over the workflow engine.
type ApprovalService interface {
	SubmitForApproval(ctx context.Context, projectID int64, actorID string) (*entity.Workflow, error)
	ApproveProject(ctx context.Context, projectID int64, actorID, actorRole, notes string) (*entity.Workflow, error)
	RejectProject(ctx context.Context, projectID int64, actorID, notes string) (*entity.Workflow, error)
	RequestRevision(ctx context.Context, projectID int64, actorID, notes string) (*entity.Workflow, error)

	GetPendingApprovalsForRole(ctx context.Context, role string) ([]PendingApproval, error)
	GetOverdue(ctx context.Context, now time.Time) ([]OverdueApproval, error)

	GetLedger(ctx context.Context, projectID int64) ([]*entity.LedgerEntry, error)
	GetVersions(ctx context.Context, projectID int64) ([]*entity.ProjectVersion, error)
	GetWorkflows(ctx context.Context, projectID int64) ([]*entity.Workflow, error)

	// ExportLedger writes the project's workflows, ledger and versions as a workbook.
	ExportLedger(ctx context.Context, projectID int64, w io.Writer) error
}

type approvalServiceImpl struct {
	engine    workflow.WorkflowEngine
	projects  port.ProjectRepository
	workflows port.WorkflowRepository
	ledger    port.LedgerRepository
	versions  port.VersionRepository
	reports   port.ReportWriter
	logger    Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	engine workflow.WorkflowEngine,
	projects port.ProjectRepository,
	workflows port.WorkflowRepository,
	ledger port.LedgerRepository,
	versions port.VersionRepository,
	reports port.ReportWriter,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		engine:    engine,
		projects:  projects,
		workflows: workflows,
		ledger:    ledger,
		versions:  versions,
		reports:   reports,
		logger:    logger,
	}
}

// SubmitForApproval opens a workflow for a draft project
func (s *approvalServiceImpl) SubmitForApproval(ctx context.Context, projectID int64, actorID string) (*entity.Workflow, error) {
	wf, err := s.engine.Submit(ctx, projectID, actorID)
	if err != nil {
		s.logger.Error("Failed to submit project", "project_id", projectID, "actor_id", actorID, "error", err)
		return nil, err
	}

	s.logger.Info("Project submitted for approval",
		"project_id", projectID,
		"workflow_id", wf.ID,
		"tier", wf.TierName,
		"total_steps", wf.TotalSteps,
	)
	return wf, nil
}

// ApproveProject records an approval on the project's active workflow
func (s *approvalServiceImpl) ApproveProject(ctx context.Context, projectID int64, actorID, actorRole, notes string) (*entity.Workflow, error) {
	active, err := s.activeWorkflow(ctx, projectID)
	if err != nil {
		return nil, err
	}

	wf, err := s.engine.Approve(ctx, active.ID, actorRole, actorID, notes)
	if err != nil {
		s.logger.Error("Failed to approve project",
			"project_id", projectID, "workflow_id", active.ID, "actor_id", actorID, "role", actorRole, "error", err)
		return nil, err
	}

	s.logger.Info("Approval recorded",
		"project_id", projectID,
		"workflow_id", wf.ID,
		"role", actorRole,
		"status", string(wf.Status),
	)
	return wf, nil
}

// RejectProject closes the project's active workflow as rejected
func (s *approvalServiceImpl) RejectProject(ctx context.Context, projectID int64, actorID, notes string) (*entity.Workflow, error) {
	active, err := s.activeWorkflow(ctx, projectID)
	if err != nil {
		return nil, err
	}

	wf, err := s.engine.Reject(ctx, active.ID, actorID, notes)
	if err != nil {
		s.logger.Error("Failed to reject project", "project_id", projectID, "workflow_id", active.ID, "actor_id", actorID, "error", err)
		return nil, err
	}

	s.logger.Info("Project rejected", "project_id", projectID, "workflow_id", wf.ID, "actor_id", actorID)
	return wf, nil
}

// RequestRevision sends the project back to draft
func (s *approvalServiceImpl) RequestRevision(ctx context.Context, projectID int64, actorID, notes string) (*entity.Workflow, error) {
	active, err := s.activeWorkflow(ctx, projectID)
	if err != nil {
		return nil, err
	}

	wf, err := s.engine.RequestRevision(ctx, active.ID, actorID, notes)
	if err != nil {
		s.logger.Error("Failed to request revision", "project_id", projectID, "workflow_id", active.ID, "actor_id", actorID, "error", err)
		return nil, err
	}

	s.logger.Info("Revision requested", "project_id", projectID, "workflow_id", wf.ID, "actor_id", actorID)
	return wf, nil
}

// GetPendingApprovalsForRole lists open workflows still waiting on role,
// soonest SLA deadline first. Rows a sequential tier blocks are included
// with CanApproveNow false.
func (s *approvalServiceImpl) GetPendingApprovalsForRole(ctx context.Context, role string) ([]PendingApproval, error) {
	active, err := s.workflows.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list active workflows", "error", err)
		return nil, err
	}

	result := []PendingApproval{}
	for _, wf := range active {
		if !wf.IsPending(role) {
			continue
		}
		project, err := s.project(ctx, wf.ProjectID)
		if err != nil {
			return nil, err
		}
		result = append(result, PendingApproval{
			Project:       project,
			Workflow:      wf,
			CanApproveNow: approval.CanAct(wf, role, approval.ActionApprove),
		})
	}
	return result, nil
}

// GetOverdue reports open workflows whose SLA deadline has passed, most
// overdue first.
func (s *approvalServiceImpl) GetOverdue(ctx context.Context, now time.Time) ([]OverdueApproval, error) {
	active, err := s.workflows.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list active workflows", "error", err)
		return nil, err
	}

	result := []OverdueApproval{}
	for _, wf := range active {
		if !wf.SLABreached(now) {
			continue
		}
		project, err := s.project(ctx, wf.ProjectID)
		if err != nil {
			return nil, err
		}
		late := now.Sub(wf.SLADeadline)
		result = append(result, OverdueApproval{
			Project:        project,
			Workflow:       wf,
			NextRole:       wf.NextRole(),
			OverdueBy:      late,
			OverdueSeconds: int64(late / time.Second),
		})
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].OverdueBy > result[j].OverdueBy })
	return result, nil
}

// GetLedger returns the project's ledger, newest first
func (s *approvalServiceImpl) GetLedger(ctx context.Context, projectID int64) ([]*entity.LedgerEntry, error) {
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}
	return s.ledger.ListByProject(ctx, projectID)
}

// GetVersions returns the project's snapshots in version order
func (s *approvalServiceImpl) GetVersions(ctx context.Context, projectID int64) ([]*entity.ProjectVersion, error) {
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}
	return s.versions.ListByProject(ctx, projectID)
}

// GetWorkflows returns every workflow of the project, oldest first
func (s *approvalServiceImpl) GetWorkflows(ctx context.Context, projectID int64) ([]*entity.Workflow, error) {
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}
	return s.workflows.ListByProjectID(ctx, projectID)
}

func (s *approvalServiceImpl) ExportLedger(ctx context.Context, projectID int64, w io.Writer) error {
	if s.reports == nil {
		return fmt.Errorf("report export is not configured")
	}

	project, err := s.project(ctx, projectID)
	if err != nil {
		return err
	}

	report := &port.AuditReport{Project: project}
	if report.Workflows, err = s.workflows.ListByProjectID(ctx, projectID); err != nil {
		return err
	}
	if report.Ledger, err = s.ledger.ListByProject(ctx, projectID); err != nil {
		return err
	}
	if report.Versions, err = s.versions.ListByProject(ctx, projectID); err != nil {
		return err
	}

	if err := s.reports.WriteAuditReport(w, report); err != nil {
		s.logger.Error("Failed to export audit report", "project_id", projectID, "error", err)
		return fmt.Errorf("failed to export audit report: %w", err)
	}

	s.logger.Info("Audit report exported",
		"project_id", projectID,
		"workflows", len(report.Workflows),
		"ledger_entries", len(report.Ledger),
		"versions", len(report.Versions),
	)
	return nil
}

func (s *approvalServiceImpl) project(ctx context.Context, projectID int64) (*entity.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		s.logger.Error("Failed to get project", "project_id", projectID, "error", err)
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %d", approval.ErrNotFound, projectID)
	}
	return project, nil
}

// activeWorkflow finds the workflow a project-level action applies to. A
// project whose last workflow is closed reports ErrWorkflowTerminal.
func (s *approvalServiceImpl) activeWorkflow(ctx context.Context, projectID int64) (*entity.Workflow, error) {
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}

	active, err := s.workflows.GetActiveByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	history, err := s.workflows.ListByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: project %d has not been submitted", approval.ErrNotFound, projectID)
	}
	last := history[len(history)-1]
	return nil, fmt.Errorf("%w: workflow %d of project %d is %s", approval.ErrWorkflowTerminal, last.ID, projectID, last.Status)
}
