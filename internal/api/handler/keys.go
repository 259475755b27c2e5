package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/chronos/internal/api/middleware"
	"github.com/kiranshivaraju/chronos/internal/api/response"
	"github.com/kiranshivaraju/chronos/internal/validation"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// KeyStore persists API keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

type createdKey struct {
	*models.APIKey
	Key string `json:"key"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key appears in this response only.
func NewCreateKeyHandler(keys KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID *uuid.UUID `json:"user_id"`
			Name   string     `json:"name"`
			Scopes []string   `json:"scopes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		var errs validation.Errors
		if req.UserID == nil {
			errs.Add("user_id", "is required")
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			errs.Add("name", "is required")
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []string{models.ScopeUser}
		}
		for i, s := range req.Scopes {
			switch s {
			case models.ScopeUser, models.ScopeOperator, models.ScopeAdmin:
			default:
				errs.Add(fmt.Sprintf("scopes[%d]", i), fmt.Sprintf("unknown scope %q", s))
			}
		}
		if err := errs.Err(); err != nil {
			writeError(w, r, err)
			return
		}

		raw, prefix, hash, err := mw.GenerateKey()
		if err != nil {
			writeError(w, r, err)
			return
		}
		now := time.Now().UTC()
		key := &models.APIKey{
			ID:        uuid.New(),
			UserID:    *req.UserID,
			Name:      req.Name,
			KeyHash:   hash,
			KeyPrefix: prefix,
			Scopes:    req.Scopes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := keys.CreateAPIKey(r.Context(), key); err != nil {
			writeError(w, r, err)
			return
		}

		slog.Info("api key created", "key_id", key.ID, "user_id", key.UserID, "scopes", key.Scopes)
		response.Created(w, createdKey{APIKey: key, Key: raw})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for
// GET /api/v1/admin/keys?user_id=.
func NewListKeysHandler(keys KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
		if err != nil {
			invalid(w, "user_id", "must be a UUID")
			return
		}

		list, err := keys.ListAPIKeys(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []*models.APIKey{}
		}
		response.List(w, list, len(list), 0)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for
// DELETE /api/v1/admin/keys/{keyID}?user_id=.
func NewRevokeKeyHandler(keys KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyID, ok := uuidParam(w, r, "keyID")
		if !ok {
			return
		}
		userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
		if err != nil {
			invalid(w, "user_id", "must be a UUID")
			return
		}

		if err := keys.RevokeAPIKey(r.Context(), keyID, userID); err != nil {
			writeError(w, r, err)
			return
		}
		slog.Info("api key revoked", "key_id", keyID, "user_id", userID)
		w.WriteHeader(http.StatusNoContent)
	}
}
