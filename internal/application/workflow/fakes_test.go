package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/budget-approvals/internal/application/dispatcher"
	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
	"github.com/garyjia/budget-approvals/internal/domain/event"
)

// memStore backs every repository fake. Transactions serialize on txMu and
// restore a copy of the data when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	projects  map[int64]*entity.Project
	workflows map[int64]*entity.Workflow
	ledger    []*entity.LedgerEntry
	versions  []*entity.ProjectVersion
	nextID    int64

	// outside holds writes made by other processes; a rollback keeps them.
	outside []func()

	beforeWorkflowUpdate func(s *memStore, wf *entity.Workflow)
	ledgerErr            error
	versionErr           error
}

func newMemStore() *memStore {
	return &memStore{
		projects:  make(map[int64]*entity.Project),
		workflows: make(map[int64]*entity.Workflow),
	}
}

type memState struct {
	projects  map[int64]*entity.Project
	workflows map[int64]*entity.Workflow
	ledger    []*entity.LedgerEntry
	versions  []*entity.ProjectVersion
	nextID    int64
}

func (s *memStore) save() memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := memState{
		projects:  make(map[int64]*entity.Project, len(s.projects)),
		workflows: make(map[int64]*entity.Workflow, len(s.workflows)),
		ledger:    append([]*entity.LedgerEntry(nil), s.ledger...),
		versions:  append([]*entity.ProjectVersion(nil), s.versions...),
		nextID:    s.nextID,
	}
	for id, p := range s.projects {
		st.projects[id] = p.Clone()
	}
	for id, wf := range s.workflows {
		st.workflows[id] = wf.Clone()
	}
	return st
}

func (s *memStore) restore(st memState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = st.projects
	s.workflows = st.workflows
	s.ledger = st.ledger
	s.versions = st.versions
	s.nextID = st.nextID
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	mark := len(s.outside)
	s.mu.Unlock()

	st := s.save()
	if err := fn(ctx); err != nil {
		s.restore(st)
		s.mu.Lock()
		for _, write := range s.outside[mark:] {
			write()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// projects

type memProjects struct{ *memStore }

func (r memProjects) Create(_ context.Context, p *entity.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	p.Version = 1
	r.projects[p.ID] = p.Clone()
	return nil
}

func (r memProjects) GetByID(_ context.Context, id int64) (*entity.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.projects[id].Clone(), nil
}

func (r memProjects) Update(_ context.Context, p *entity.Project, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.projects[p.ID]
	if !ok || stored.Version != expected {
		return fmt.Errorf("%w: project %d", approval.ErrConcurrentModification, p.ID)
	}
	p.Version = expected + 1
	r.projects[p.ID] = p.Clone()
	return nil
}

func (r memProjects) List(context.Context, int, int) ([]*entity.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.Project{}
	for _, p := range r.projects {
		out = append(out, p.Clone())
	}
	return out, nil
}

// workflows

type memWorkflows struct{ *memStore }

func (r memWorkflows) Create(_ context.Context, wf *entity.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.workflows {
		if existing.ProjectID == wf.ProjectID && !existing.IsTerminal() {
			return approval.ErrDuplicateWorkflow
		}
	}
	wf.ID = r.id()
	wf.Revision = 1
	r.workflows[wf.ID] = wf.Clone()
	return nil
}

func (r memWorkflows) GetByID(_ context.Context, id int64) (*entity.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workflows[id].Clone(), nil
}

func (r memWorkflows) GetActiveByProjectID(_ context.Context, projectID int64) (*entity.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wf := range r.workflows {
		if wf.ProjectID == projectID && !wf.IsTerminal() {
			return wf.Clone(), nil
		}
	}
	return nil, nil
}

func (r memWorkflows) ListByProjectID(_ context.Context, projectID int64) ([]*entity.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.Workflow{}
	for _, wf := range r.workflows {
		if wf.ProjectID == projectID {
			out = append(out, wf.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memWorkflows) ListActive(context.Context) ([]*entity.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.Workflow{}
	for _, wf := range r.workflows {
		if !wf.IsTerminal() {
			out = append(out, wf.Clone())
		}
	}
	return out, nil
}

func (r memWorkflows) Update(_ context.Context, wf *entity.Workflow, expected int64) error {
	if hook := r.beforeWorkflowUpdate; hook != nil {
		hook(r.memStore, wf)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.workflows[wf.ID]
	if !ok || stored.Revision != expected {
		return fmt.Errorf("%w: workflow %d", approval.ErrConcurrentModification, wf.ID)
	}
	wf.Revision = expected + 1
	r.workflows[wf.ID] = wf.Clone()
	return nil
}

// bumpWorkflow simulates a writer outside the engine.
func (s *memStore) bumpWorkflow(id int64, mutate func(wf *entity.Workflow)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	write := func() {
		wf := s.workflows[id]
		mutate(wf)
		wf.Revision++
	}
	write()
	s.outside = append(s.outside, write)
}

// ledger

type memLedger struct{ *memStore }

func (r memLedger) Append(_ context.Context, e *entity.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ledgerErr != nil {
		return r.ledgerErr
	}
	e.ID = r.id()
	c := *e
	r.ledger = append(r.ledger, &c)
	return nil
}

func (r memLedger) ListByProject(_ context.Context, projectID int64) ([]*entity.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.LedgerEntry{}
	for i := len(r.ledger) - 1; i >= 0; i-- {
		if r.ledger[i].ProjectID == projectID {
			c := *r.ledger[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

// versions

type memVersions struct{ *memStore }

func (r memVersions) Snapshot(_ context.Context, v *entity.ProjectVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.versionErr != nil {
		return r.versionErr
	}
	for _, existing := range r.versions {
		if existing.ProjectID == v.ProjectID && existing.VersionNumber == v.VersionNumber {
			return approval.ErrVersionConflict
		}
	}
	v.ID = r.id()
	c := *v
	r.versions = append(r.versions, &c)
	return nil
}

func (r memVersions) ListByProject(_ context.Context, projectID int64) ([]*entity.ProjectVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*entity.ProjectVersion{}
	for _, v := range r.versions {
		if v.ProjectID == projectID {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (r memVersions) Latest(ctx context.Context, projectID int64) (*entity.ProjectVersion, error) {
	list, _ := r.ListByProject(ctx, projectID)
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}

// directory

type mockDirectory struct {
	roles map[string][]string
	err   error
}

func (m *mockDirectory) RolesOf(_ context.Context, userID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.roles[userID], nil
}

// dispatcher

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(event.Type, dispatcher.Handler)              {}
func (m *mockDispatcher) SubscribeNamed(event.Type, string, dispatcher.Handler) {}
func (m *mockDispatcher) Unsubscribe(event.Type, string)                        {}
func (m *mockDispatcher) ListHandlers(event.Type) []dispatcher.HandlerInfo      { return nil }
func (m *mockDispatcher) Close() error                                          { return nil }

func (m *mockDispatcher) Dispatch(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	_ = m.Dispatch(ctx, evt)
}

func (m *mockDispatcher) count(t event.Type) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}
