package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/budget-approvals/internal/application/dispatcher"
	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/application/versioning"
	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
	"github.com/garyjia/budget-approvals/internal/domain/event"
	"github.com/garyjia/budget-approvals/pkg/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// CreateProjectRequest describes a new draft project.
type CreateProjectRequest struct {
	Name     string                `json:"name"`
	OwnerID  string                `json:"owner_id"`
	Totals   entity.ScenarioTotals `json:"totals"`
	Scenario entity.Scenario       `json:"scenario"`
}

// UpdateProjectRequest carries the fields to change; nil fields are kept.
type UpdateProjectRequest struct {
	Name     *string                `json:"name,omitempty"`
	Totals   *entity.ScenarioTotals `json:"totals,omitempty"`
	Scenario *entity.Scenario       `json:"scenario,omitempty"`
}

// ProjectService manages budget projects outside of the approval flow.
// Every write produces a numbered version.
type ProjectService interface {
	Create(ctx context.Context, req CreateProjectRequest, actorID string) (*entity.Project, error)
	Get(ctx context.Context, id int64) (*entity.Project, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Project, error)

	// Update edits a draft project.
	Update(ctx context.Context, id int64, req UpdateProjectRequest, actorID string) (*entity.Project, error)

	// Complete closes an approved project.
	Complete(ctx context.Context, id int64, actorID string) (*entity.Project, error)
}

type projectServiceImpl struct {
	projects   port.ProjectRepository
	txManager  port.TransactionManager
	recorder   *versioning.Recorder
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// NewProjectService creates a new ProjectService. The dispatcher may be nil.
func NewProjectService(
	projects port.ProjectRepository,
	txManager port.TransactionManager,
	recorder *versioning.Recorder,
	d dispatcher.Dispatcher,
	logger Logger,
) ProjectService {
	return &projectServiceImpl{
		projects:   projects,
		txManager:  txManager,
		recorder:   recorder,
		dispatcher: d,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *projectServiceImpl) Create(ctx context.Context, req CreateProjectRequest, actorID string) (*entity.Project, error) {
	now := s.now()
	project := &entity.Project{
		Name:      utils.SanitizeString(req.Name),
		OwnerID:   strings.TrimSpace(req.OwnerID),
		Totals:    req.Totals,
		Scenario:  req.Scenario,
		Status:    entity.ProjectStatusDraft,
		Phase:     entity.PhasePlanning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if project.OwnerID == "" {
		project.OwnerID = actorID
	}
	if project.Scenario == "" {
		project.Scenario = entity.ScenarioExpected
	}
	if err := validateProject(project); err != nil {
		return nil, err
	}

	var deferred versioning.Deferred
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		deferred, err = s.recorder.Create(txCtx, project, actorID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to create project", "name", project.Name, "error", err)
		return nil, err
	}

	s.committed(ctx, project, deferred, actorID)
	s.logger.Info("Project created", "project_id", project.ID, "owner_id", project.OwnerID)
	return project, nil
}

func (s *projectServiceImpl) Get(ctx context.Context, id int64) (*entity.Project, error) {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get project", "project_id", id, "error", err)
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %d", approval.ErrNotFound, id)
	}
	return project, nil
}

func (s *projectServiceImpl) List(ctx context.Context, limit, offset int) ([]*entity.Project, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.projects.List(ctx, limit, offset)
}

func (s *projectServiceImpl) Update(ctx context.Context, id int64, req UpdateProjectRequest, actorID string) (*entity.Project, error) {
	return s.write(ctx, id, actorID, "update", func(p *entity.Project) error {
		if !p.IsEditable() {
			return fmt.Errorf("%w: project %d is %s, only drafts can be edited", approval.ErrInvalidProjectState, id, p.Status)
		}
		if req.Name != nil {
			p.Name = utils.SanitizeString(*req.Name)
		}
		if req.Totals != nil {
			p.Totals = *req.Totals
		}
		if req.Scenario != nil {
			p.Scenario = *req.Scenario
		}
		return validateProject(p)
	})
}

func (s *projectServiceImpl) Complete(ctx context.Context, id int64, actorID string) (*entity.Project, error) {
	return s.write(ctx, id, actorID, "complete", func(p *entity.Project) error {
		if p.Status != entity.ProjectStatusApproved {
			return fmt.Errorf("%w: project %d is %s, only approved projects can be completed", approval.ErrInvalidProjectState, id, p.Status)
		}
		p.Status = entity.ProjectStatusCompleted
		p.Phase = entity.PhaseClosed
		return nil
	})
}

// write loads, mutates and saves a project in one transaction.
func (s *projectServiceImpl) write(ctx context.Context, id int64, actorID, op string, mutate func(p *entity.Project) error) (*entity.Project, error) {
	var (
		project  *entity.Project
		deferred versioning.Deferred
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		project, err = s.projects.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if project == nil {
			return fmt.Errorf("%w: project %d", approval.ErrNotFound, id)
		}
		if err := mutate(project); err != nil {
			return err
		}
		project.UpdatedAt = s.now()

		deferred, err = s.recorder.Save(txCtx, project, actorID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to write project", "operation", op, "project_id", id, "error", err)
		return nil, err
	}

	s.committed(ctx, project, deferred, actorID)
	s.logger.Info("Project written", "operation", op, "project_id", id, "version", project.Version)
	return project, nil
}

func (s *projectServiceImpl) committed(ctx context.Context, p *entity.Project, deferred versioning.Deferred, actorID string) {
	s.recorder.Flush(ctx, deferred)
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeProjectVersioned, p.ID, 0, actorID, map[string]any{
		"version": p.Version,
		"status":  string(p.Status),
	}))
}

func validateProject(p *entity.Project) error {
	if err := utils.ValidateName(p.Name); err != nil {
		return fmt.Errorf("%w: %v", approval.ErrInvalidInput, err)
	}
	if p.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", approval.ErrInvalidInput)
	}
	if !p.Scenario.IsValid() {
		return fmt.Errorf("%w: unknown scenario %q", approval.ErrInvalidInput, p.Scenario)
	}
	for _, amount := range []struct {
		field string
		value int64
	}{
		{"conservative", p.Totals.Conservative},
		{"expected", p.Totals.Expected},
		{"stretch", p.Totals.Stretch},
	} {
		if err := utils.ValidateAmount(amount.field, amount.value); err != nil {
			return fmt.Errorf("%w: %v", approval.ErrInvalidInput, err)
		}
	}
	return nil
}
