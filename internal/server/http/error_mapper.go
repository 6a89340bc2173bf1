package http

import (
	"errors"
	"net/http"

	"github.com/catface996/aiops-executor/internal/domain"
)

// mapDomainError translates a domain sentinel error into an HTTP status code
// (spec.md §7). Returns (0, "") for an error this mapping doesn't recognize,
// letting the caller fall back to a default status — mirrors the teacher's
// mapDomainError in error_mapper.go.
func mapDomainError(err error) (status int, message string) {
	if err == nil {
		return 0, ""
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, err.Error()
	default:
		return 0, ""
	}
}

// writeMappedError writes err using the domain mapping, falling back to
// defaultStatus/defaultMsg for unrecognized errors.
func writeMappedError(w http.ResponseWriter, err error, defaultStatus int, defaultMsg string) {
	if status, msg := mapDomainError(err); status != 0 {
		writeError(w, status, msg)
		return
	}
	writeError(w, defaultStatus, defaultMsg)
}
