package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approvals/internal/application/dispatcher"
	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/application/versioning"
	"github.com/garyjia/budget-approvals/internal/application/workflow"
	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
	"github.com/garyjia/budget-approvals/internal/infrastructure/persistence/repository"
	"github.com/garyjia/budget-approvals/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/budget-approvals/pkg/database"
)

var testNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type mockDirectory struct {
	rolesOfFunc func(ctx context.Context, userID string) ([]string, error)
}

func (m *mockDirectory) RolesOf(ctx context.Context, userID string) ([]string, error) {
	if m.rolesOfFunc != nil {
		return m.rolesOfFunc(ctx, userID)
	}
	return staticRoles[userID], nil
}

var staticRoles = map[string][]string{
	"mia":  {"Manager"},
	"mike": {"Manager"},
	"carl": {"Controller"},
	"cora": {"CEO"},
}

type mockReportWriter struct {
	writeFunc func(w io.Writer, report *port.AuditReport) error
	last      *port.AuditReport
}

func (m *mockReportWriter) WriteAuditReport(w io.Writer, report *port.AuditReport) error {
	m.last = report
	if m.writeFunc != nil {
		return m.writeFunc(w, report)
	}
	_, err := io.WriteString(w, "report")
	return err
}

type fixture struct {
	approvals  ApprovalService
	projects   ProjectService
	workflows  port.WorkflowRepository
	versions   port.VersionRepository
	reports    *mockReportWriter
	dispatcher dispatcher.Dispatcher
	logger     *mockLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	zl := zap.NewNop()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "service.db")}, zl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, zl).Run(database.Migrations()))

	tiers, err := approval.NewThresholdTable([]entity.ThresholdTier{
		{Name: "manager", MinAmount: 0, MaxAmount: limit(50000), Roles: []string{"Manager"}, SLAHours: 24},
		{Name: "executive", MinAmount: 50000, MaxAmount: limit(1000000), Roles: []string{"Manager", "Controller", "CEO"}, Sequential: true, SLAHours: 72},
		{Name: "board", MinAmount: 1000000, Roles: []string{"Manager", "Controller", "CEO"}, SLAHours: 120},
	})
	require.NoError(t, err)

	logger := &mockLogger{}
	txManager := sqlite.NewDB(db.DB, zl)
	projects := repository.NewProjectRepository(db.DB, zl)
	workflows := repository.NewWorkflowRepository(db.DB, zl)
	ledger := repository.NewLedgerRepository(db.DB, zl)
	versions := repository.NewVersionRepository(db.DB, zl)
	recorder := versioning.NewRecorder(projects, versions, versioning.PolicyBestEffort, logger)

	d := dispatcher.NewDispatcher()
	t.Cleanup(func() { _ = d.Close() })

	engine := workflow.NewEngine(projects, workflows, ledger, txManager, recorder, tiers, &mockDirectory{},
		workflow.WithDispatcher(d),
		workflow.WithClock(func() time.Time { return testNow }),
		workflow.WithLogger(logger),
	)
	reports := &mockReportWriter{}

	return &fixture{
		approvals:  NewApprovalService(engine, projects, workflows, ledger, versions, reports, logger),
		projects:   NewProjectService(projects, txManager, recorder, d, logger),
		workflows:  workflows,
		versions:   versions,
		reports:    reports,
		dispatcher: d,
		logger:     logger,
	}
}

func limit(v int64) *int64 { return &v }

func (f *fixture) draft(t *testing.T, expected int64) *entity.Project {
	t.Helper()
	p, err := f.projects.Create(context.Background(), CreateProjectRequest{
		Name:   "Capex",
		Totals: entity.ScenarioTotals{Conservative: expected / 2, Expected: expected, Stretch: expected * 2},
	}, "owen")
	require.NoError(t, err)
	return p
}
