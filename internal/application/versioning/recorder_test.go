package versioning

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/budget-approvals/internal/domain/approval"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

type mockProjectRepo struct {
	createFn func(ctx context.Context, p *entity.Project) error
	updateFn func(ctx context.Context, p *entity.Project, expected int64) error
}

func (m *mockProjectRepo) Create(ctx context.Context, p *entity.Project) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	p.ID = 1
	p.Version = 1
	return nil
}

func (m *mockProjectRepo) GetByID(context.Context, int64) (*entity.Project, error) { return nil, nil }

func (m *mockProjectRepo) Update(ctx context.Context, p *entity.Project, expected int64) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, p, expected)
	}
	p.Version = expected + 1
	return nil
}

func (m *mockProjectRepo) List(context.Context, int, int) ([]*entity.Project, error) { return nil, nil }

type mockVersionRepo struct {
	stored     []*entity.ProjectVersion
	snapshotFn func(ctx context.Context, v *entity.ProjectVersion) error
}

func (m *mockVersionRepo) Snapshot(ctx context.Context, v *entity.ProjectVersion) error {
	if m.snapshotFn != nil {
		if err := m.snapshotFn(ctx, v); err != nil {
			return err
		}
	}
	m.stored = append(m.stored, v)
	return nil
}

func (m *mockVersionRepo) ListByProject(context.Context, int64) ([]*entity.ProjectVersion, error) {
	return m.stored, nil
}

func (m *mockVersionRepo) Latest(context.Context, int64) (*entity.ProjectVersion, error) {
	return nil, nil
}

type mockLogger struct {
	errors []string
}

func (m *mockLogger) Info(string, ...interface{}) {}

func (m *mockLogger) Error(msg string, _ ...interface{}) { m.errors = append(m.errors, msg) }

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyBestEffort, false},
		{"best_effort", PolicyBestEffort, false},
		{"strict", PolicyStrict, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRecorder_Policy(t *testing.T) {
	assert.Equal(t, PolicyBestEffort, NewRecorder(&mockProjectRepo{}, &mockVersionRepo{}, "", &mockLogger{}).Policy())
	assert.Equal(t, PolicyStrict, NewRecorder(&mockProjectRepo{}, &mockVersionRepo{}, PolicyStrict, &mockLogger{}).Policy())
}

func TestRecorder_BestEffortDefersSnapshot(t *testing.T) {
	versions := &mockVersionRepo{}
	rec := NewRecorder(&mockProjectRepo{}, versions, PolicyBestEffort, &mockLogger{})
	ctx := context.Background()

	p := &entity.Project{Name: "Depot", Status: entity.ProjectStatusDraft}
	deferred, err := rec.Create(ctx, p, "alice")
	require.NoError(t, err)
	require.Len(t, deferred, 1)
	assert.Empty(t, versions.stored, "nothing stored before flush")

	rec.Flush(ctx, deferred)
	require.Len(t, versions.stored, 1)
	v := versions.stored[0]
	assert.Equal(t, int64(1), v.VersionNumber)
	assert.Equal(t, "alice", v.AuthorID)

	var snap entity.Project
	require.NoError(t, json.Unmarshal([]byte(v.Snapshot), &snap))
	assert.Equal(t, "Depot", snap.Name)
	assert.Equal(t, int64(1), snap.Version)
}

func TestRecorder_BestEffortSwallowsSnapshotFailure(t *testing.T) {
	logger := &mockLogger{}
	versions := &mockVersionRepo{snapshotFn: func(context.Context, *entity.ProjectVersion) error {
		return approval.ErrVersionConflict
	}}
	rec := NewRecorder(&mockProjectRepo{}, versions, PolicyBestEffort, logger)

	p := &entity.Project{ID: 4, Version: 2}
	deferred, err := rec.Save(context.Background(), p, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Version)

	rec.Flush(context.Background(), deferred)
	assert.Empty(t, versions.stored)
	assert.Len(t, logger.errors, 1)
}

func TestRecorder_StrictFailsOperation(t *testing.T) {
	boom := errors.New("disk full")
	versions := &mockVersionRepo{snapshotFn: func(context.Context, *entity.ProjectVersion) error { return boom }}
	rec := NewRecorder(&mockProjectRepo{}, versions, PolicyStrict, &mockLogger{})

	_, err := rec.Save(context.Background(), &entity.Project{ID: 4, Version: 2}, "bob")
	assert.ErrorIs(t, err, boom)
}

func TestRecorder_StrictStoresInline(t *testing.T) {
	versions := &mockVersionRepo{}
	rec := NewRecorder(&mockProjectRepo{}, versions, PolicyStrict, &mockLogger{})

	deferred, err := rec.Save(context.Background(), &entity.Project{ID: 4, Version: 2}, "bob")
	require.NoError(t, err)
	assert.Empty(t, deferred)
	require.Len(t, versions.stored, 1)
	assert.Equal(t, int64(3), versions.stored[0].VersionNumber)
}

func TestRecorder_ProjectWriteFailureSkipsSnapshot(t *testing.T) {
	versions := &mockVersionRepo{}
	projects := &mockProjectRepo{updateFn: func(context.Context, *entity.Project, int64) error {
		return approval.ErrConcurrentModification
	}}
	rec := NewRecorder(projects, versions, PolicyStrict, &mockLogger{})

	_, err := rec.Save(context.Background(), &entity.Project{ID: 4, Version: 2}, "bob")
	assert.ErrorIs(t, err, approval.ErrConcurrentModification)
	assert.Empty(t, versions.stored)
}
