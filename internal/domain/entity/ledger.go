package entity

import "time"

// LedgerEntry is one immutable record in the approval ledger.
type LedgerEntry struct {
	ID         int64        `json:"id"`
	ProjectID  int64        `json:"project_id"`
	WorkflowID int64        `json:"workflow_id"`
	ActorID    string       `json:"actor_id"`
	ActorRole  string       `json:"actor_role,omitempty"`
	Action     LedgerAction `json:"action"`
	Notes      string       `json:"notes,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ProjectVersion is a frozen snapshot of a project after one write.
type ProjectVersion struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"project_id"`
	VersionNumber int64     `json:"version_number"`
	Snapshot      string    `json:"snapshot"`
	AuthorID      string    `json:"author_id"`
	CreatedAt     time.Time `json:"created_at"`
}
