// Package versioning writes projects together with their numbered snapshots.
package versioning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/domain/entity"
)

// Policy decides what happens when a snapshot cannot be stored.
type Policy string

const (
	// PolicyBestEffort stores snapshots after the project write commits and
	// only logs failures.
	PolicyBestEffort Policy = "best_effort"

	// PolicyStrict stores snapshots in the caller's transaction; a failure
	// aborts the whole operation.
	PolicyStrict Policy = "strict"
)

// ParsePolicy maps a config value to a Policy. Empty means best effort.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyBestEffort:
		return PolicyBestEffort, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown versioning policy %q", s)
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Deferred holds snapshots to store once the surrounding transaction has
// committed. It is empty under the strict policy.
type Deferred []*entity.ProjectVersion

// Recorder pairs every project write with a snapshot of the written state.
// The project row's version column is the snapshot number, so the
// compare-and-swap on that column keeps numbers gap-free.
type Recorder struct {
	projects port.ProjectRepository
	versions port.VersionRepository
	policy   Policy
	logger   Logger
}

func NewRecorder(projects port.ProjectRepository, versions port.VersionRepository, policy Policy, logger Logger) *Recorder {
	if policy == "" {
		policy = PolicyBestEffort
	}
	return &Recorder{projects: projects, versions: versions, policy: policy, logger: logger}
}

func (r *Recorder) Policy() Policy {
	return r.policy
}

// Create inserts p as version 1.
func (r *Recorder) Create(ctx context.Context, p *entity.Project, authorID string) (Deferred, error) {
	if err := r.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	return r.record(ctx, p, authorID)
}

// Save writes p over the version it was read at.
func (r *Recorder) Save(ctx context.Context, p *entity.Project, authorID string) (Deferred, error) {
	if err := r.projects.Update(ctx, p, p.Version); err != nil {
		return nil, err
	}
	return r.record(ctx, p, authorID)
}

// Flush stores deferred snapshots. Failures are logged, never returned.
func (r *Recorder) Flush(ctx context.Context, d Deferred) {
	for _, v := range d {
		if err := r.versions.Snapshot(ctx, v); err != nil {
			r.logger.Error("Failed to store project version",
				"project_id", v.ProjectID,
				"version", v.VersionNumber,
				"policy", string(r.policy),
				"error", err,
			)
		}
	}
}

func (r *Recorder) record(ctx context.Context, p *entity.Project, authorID string) (Deferred, error) {
	v, err := snapshotOf(p, authorID)
	if err != nil {
		if r.policy == PolicyStrict {
			return nil, err
		}
		r.logger.Error("Failed to build project snapshot", "project_id", p.ID, "error", err)
		return nil, nil
	}

	if r.policy == PolicyStrict {
		if err := r.versions.Snapshot(ctx, v); err != nil {
			return nil, fmt.Errorf("failed to store project version: %w", err)
		}
		return nil, nil
	}
	return Deferred{v}, nil
}

func snapshotOf(p *entity.Project, authorID string) (*entity.ProjectVersion, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode project snapshot: %w", err)
	}
	return &entity.ProjectVersion{
		ProjectID:     p.ID,
		VersionNumber: p.Version,
		Snapshot:      string(b),
		AuthorID:      authorID,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
