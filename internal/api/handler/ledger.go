package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/api/response"
	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// Ledger manages observation-minute balances and requests for them.
type Ledger interface {
	RequestMinutes(ctx context.Context, userID, telescopeID uuid.UUID, minutes int) (*models.BalanceRequest, error)
	Approve(ctx context.Context, adminID, requestID uuid.UUID) (*models.BalanceRequest, error)
	Reject(ctx context.Context, adminID, requestID uuid.UUID) (*models.BalanceRequest, error)
	Balances(ctx context.Context, userID uuid.UUID) ([]*models.Balance, error)
	Requests(ctx context.Context, filter store.RequestFilter) ([]*models.BalanceRequest, error)
}

// NewCreateRequestHandler returns an http.HandlerFunc for
// POST /api/v1/balance-requests.
func NewCreateRequestHandler(svc Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			TelescopeID *uuid.UUID `json:"telescope_id"`
			Minutes     int        `json:"minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.TelescopeID == nil {
			invalid(w, "telescope_id", "is required")
			return
		}

		br, err := svc.RequestMinutes(r.Context(), userID, *req.TelescopeID, req.Minutes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, br)
	}
}

// NewListRequestsHandler returns an http.HandlerFunc listing the caller's own
// balance requests.
func NewListRequestsHandler(svc Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		listRequests(w, r, svc, store.RequestFilter{UserID: userID})
	}
}

// NewAdminListRequestsHandler returns an http.HandlerFunc for
// GET /api/v1/admin/balance-requests?status=created.
func NewAdminListRequestsHandler(svc Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.RequestFilter{Status: models.BalanceRequestStatus(r.URL.Query().Get("status"))}
		switch filter.Status {
		case "", models.RequestCreated, models.RequestApproved, models.RequestRejected:
		default:
			invalid(w, "status", "must be created, approved or rejected")
			return
		}
		listRequests(w, r, svc, filter)
	}
}

func listRequests(w http.ResponseWriter, r *http.Request, svc Ledger, filter store.RequestFilter) {
	requests, err := svc.Requests(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if requests == nil {
		requests = []*models.BalanceRequest{}
	}
	response.List(w, requests, len(requests), 0)
}

// NewListBalancesHandler returns an http.HandlerFunc for GET /api/v1/balances.
func NewListBalancesHandler(svc Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		balances, err := svc.Balances(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if balances == nil {
			balances = []*models.Balance{}
		}
		response.List(w, balances, len(balances), 0)
	}
}

// NewDecideRequestHandler returns an http.HandlerFunc for
// POST /api/v1/admin/balance-requests/{requestID}/approve (approve=true) or
// .../reject.
func NewDecideRequestHandler(svc Ledger, approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := requireUser(w, r)
		if !ok {
			return
		}
		requestID, ok := uuidParam(w, r, "requestID")
		if !ok {
			return
		}

		decide := svc.Reject
		if approve {
			decide = svc.Approve
		}
		br, err := decide(r.Context(), adminID, requestID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, br)
	}
}
