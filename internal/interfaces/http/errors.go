package http

import (
	"errors"
	"net/http"

	"github.com/garyjia/budget-approvals/internal/domain/approval"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{approval.ErrNotFound, http.StatusNotFound},
	{approval.ErrInvalidInput, http.StatusBadRequest},
	{approval.ErrMissingJustification, http.StatusBadRequest},
	{approval.ErrNotAuthorized, http.StatusForbidden},
	{approval.ErrOutOfSequence, http.StatusForbidden},
	{approval.ErrDuplicateWorkflow, http.StatusConflict},
	{approval.ErrWorkflowTerminal, http.StatusConflict},
	{approval.ErrInvalidProjectState, http.StatusConflict},
	{approval.ErrConcurrentModification, http.StatusConflict},
	{approval.ErrVersionConflict, http.StatusConflict},
	{approval.ErrNoMatchingTier, http.StatusUnprocessableEntity},
}

// statusFor maps a domain error to its HTTP status; anything unknown is a 500.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
