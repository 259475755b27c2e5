package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/api/response"
	"github.com/kiranshivaraju/chronos/internal/catalog"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// Catalog lists and registers telescopes and satellites.
type Catalog interface {
	CreateTelescope(ctx context.Context, in catalog.TelescopeInput) (*models.Telescope, error)
	Telescopes(ctx context.Context, userID uuid.UUID) ([]catalog.TelescopeView, error)
	CreateSatellite(ctx context.Context, number int, name string) (*models.Satellite, error)
	Satellites(ctx context.Context) ([]*models.Satellite, error)
}

// NewListTelescopesHandler returns an http.HandlerFunc for
// GET /api/v1/telescopes.
func NewListTelescopesHandler(svc Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		views, err := svc.Telescopes(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if views == nil {
			views = []catalog.TelescopeView{}
		}
		response.List(w, views, len(views), 0)
	}
}

func NewListSatellitesHandler(svc Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sats, err := svc.Satellites(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if sats == nil {
			sats = []*models.Satellite{}
		}
		response.List(w, sats, len(sats), 0)
	}
}

// NewCreateTelescopeHandler returns an http.HandlerFunc for
// POST /api/v1/admin/telescopes.
func NewCreateTelescopeHandler(svc Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in catalog.TelescopeInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		t, err := svc.CreateTelescope(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, t)
	}
}

func NewCreateSatelliteHandler(svc Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Number int    `json:"number"`
			Name   string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		sat, err := svc.CreateSatellite(r.Context(), req.Number, req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, sat)
	}
}
