package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/chronos/internal/api/middleware"
	"github.com/kiranshivaraju/chronos/internal/api/response"
	"github.com/kiranshivaraju/chronos/internal/ledger"
	"github.com/kiranshivaraju/chronos/internal/schedule"
	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/internal/tasks"
	"github.com/kiranshivaraju/chronos/internal/validation"
)

type guardDetail struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// writeError maps a service error to its HTTP status and error code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		collision *schedule.Collision
		lifecycle *tasks.LifecycleError
		details   any
	)
	if errors.As(err, &lifecycle) {
		details = guardDetail{Field: lifecycle.Field, Reason: lifecycle.Reason}
	}

	switch {
	case errors.Is(err, validation.ErrInvalid):
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), validation.Fields(err))
	case errors.As(err, &collision):
		response.Error(w, http.StatusConflict, "COLLISION", collision.Error(), collision)
	case errors.Is(err, ledger.ErrInsufficient):
		response.Error(w, http.StatusConflict, "INSUFFICIENT_BALANCE", err.Error(), nil)
	case errors.Is(err, ledger.ErrAlreadyDecided):
		response.Error(w, http.StatusConflict, "ALREADY_DECIDED", err.Error(), nil)
	case errors.Is(err, tasks.ErrTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), details)
	case errors.Is(err, tasks.ErrDuplicateResult), errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "DUPLICATE", err.Error(), nil)
	case errors.Is(err, ledger.ErrNoAccess):
		response.Error(w, http.StatusForbidden, "NO_ACCESS", err.Error(), nil)
	case errors.Is(err, tasks.ErrNotOperator), errors.Is(err, tasks.ErrNotOwner):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", err.Error(), details)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), details)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
	}
	return id, ok
}

func invalid(w http.ResponseWriter, field, message string) {
	var errs validation.Errors
	errs.Add(field, message)
	response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", errs.Err().Error(), errs)
}
