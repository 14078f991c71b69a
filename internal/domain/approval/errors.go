package approval

import "errors"

var (
	// ErrNoMatchingTier means no configured tier covers the amount.
	ErrNoMatchingTier = errors.New("no approval tier matches amount")

	// ErrNotAuthorized means the actor does not hold a role that may act now.
	ErrNotAuthorized = errors.New("actor not authorized for this action")

	// ErrOutOfSequence means a sequential tier expects another role first.
	ErrOutOfSequence = errors.New("approval out of sequence")

	// ErrDuplicateWorkflow means the project already has an open workflow.
	ErrDuplicateWorkflow = errors.New("project already has an active workflow")

	// ErrWorkflowTerminal means the workflow is closed and cannot change.
	ErrWorkflowTerminal = errors.New("workflow is terminal")

	// ErrMissingJustification means notes are required but blank.
	ErrMissingJustification = errors.New("notes are required")

	// ErrConcurrentModification means a compare-and-swap write lost a race.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrInvalidProjectState means the project status does not allow the operation.
	ErrInvalidProjectState = errors.New("invalid project state")

	// ErrVersionConflict means a version number was already stored for the project.
	ErrVersionConflict = errors.New("version number conflict")

	ErrNotFound = errors.New("not found")
)

// ErrInvalidInput means a request failed validation.
var ErrInvalidInput = errors.New("invalid input")
