// Package ledger keeps per-telescope observation minute balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/internal/validation"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

var (
	// ErrNoAccess means the user holds no balance row for the telescope.
	ErrNoAccess = errors.New("no access to this telescope")
	// ErrInsufficient means the balance is smaller than the requested debit.
	ErrInsufficient = errors.New("insufficient balance")
	// ErrAlreadyDecided means a balance request was approved or rejected before.
	ErrAlreadyDecided = errors.New("balance request already decided")
)

// Debit subtracts minutes from the user's balance on a telescope. It must run
// inside tx so the balance row stays locked until the caller commits.
func Debit(ctx context.Context, tx store.Store, userID, telescopeID uuid.UUID, minutes int) (*models.Balance, error) {
	b, err := tx.LockBalance(ctx, userID, telescopeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoAccess
	}
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	if minutes > b.Minutes {
		return nil, fmt.Errorf("%w: %d minutes requested, %d available", ErrInsufficient, minutes, b.Minutes)
	}

	b.Minutes -= minutes
	if err := tx.UpdateBalanceMinutes(ctx, b.ID, b.Minutes); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	return b, nil
}

// Credit adds minutes to the user's balance, creating the row on first grant.
func Credit(ctx context.Context, tx store.Store, userID, telescopeID uuid.UUID, minutes int, now time.Time) (*models.Balance, error) {
	b, err := tx.LockBalance(ctx, userID, telescopeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b = &models.Balance{
			ID:          uuid.New(),
			UserID:      userID,
			TelescopeID: telescopeID,
			Minutes:     minutes,
			UpdatedAt:   now,
		}
		if err := tx.CreateBalance(ctx, b); err != nil {
			return nil, fmt.Errorf("create balance: %w", err)
		}
		return b, nil
	case err != nil:
		return nil, fmt.Errorf("lock balance: %w", err)
	}

	b.Minutes += minutes
	b.UpdatedAt = now
	if err := tx.UpdateBalanceMinutes(ctx, b.ID, b.Minutes); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	return b, nil
}

// Service exposes the balance request workflow.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a ledger Service. A nil now defaults to time.Now.
func NewService(s store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, now: now}
}

// RequestMinutes files a request for more minutes on a telescope.
func (s *Service) RequestMinutes(ctx context.Context, userID, telescopeID uuid.UUID, minutes int) (*models.BalanceRequest, error) {
	if minutes <= 0 {
		var errs validation.Errors
		errs.Add("minutes", "must be greater than 0")
		return nil, errs.Err()
	}
	if _, err := s.store.GetTelescope(ctx, telescopeID); err != nil {
		return nil, fmt.Errorf("get telescope: %w", err)
	}

	r := &models.BalanceRequest{
		ID:          uuid.New(),
		UserID:      userID,
		TelescopeID: telescopeID,
		Minutes:     minutes,
		Status:      models.RequestCreated,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateBalanceRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("create balance request: %w", err)
	}
	slog.Info("balance requested", "request_id", r.ID, "user_id", userID, "telescope_id", telescopeID, "minutes", minutes)
	return r, nil
}

// Approve credits the requested minutes. A request is decided at most once,
// so a repeated approval never credits twice.
func (s *Service) Approve(ctx context.Context, adminID, requestID uuid.UUID) (*models.BalanceRequest, error) {
	return s.decide(ctx, adminID, requestID, models.RequestApproved)
}

// Reject closes the request without crediting anything.
func (s *Service) Reject(ctx context.Context, adminID, requestID uuid.UUID) (*models.BalanceRequest, error) {
	return s.decide(ctx, adminID, requestID, models.RequestRejected)
}

func (s *Service) decide(ctx context.Context, adminID, requestID uuid.UUID, status models.BalanceRequestStatus) (*models.BalanceRequest, error) {
	var decided *models.BalanceRequest
	err := s.store.InTx(ctx, func(tx store.Store) error {
		r, err := tx.LockBalanceRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("lock balance request: %w", err)
		}
		if r.Status != models.RequestCreated {
			return fmt.Errorf("%w: request is %s", ErrAlreadyDecided, r.Status)
		}

		now := s.now().UTC()
		if err := tx.DecideBalanceRequest(ctx, r.ID, status, adminID, now); err != nil {
			return fmt.Errorf("decide balance request: %w", err)
		}
		if status == models.RequestApproved {
			if _, err := Credit(ctx, tx, r.UserID, r.TelescopeID, r.Minutes, now); err != nil {
				return err
			}
		}

		r.Status = status
		r.ApprovedBy = &adminID
		r.DecidedAt = &now
		decided = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("balance request decided",
		"request_id", decided.ID, "status", decided.Status, "admin_id", adminID, "minutes", decided.Minutes)
	return decided, nil
}

// Balances lists the user's balances.
func (s *Service) Balances(ctx context.Context, userID uuid.UUID) ([]*models.Balance, error) {
	balances, err := s.store.ListBalances(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return balances, nil
}

// Requests lists balance requests matching filter.
func (s *Service) Requests(ctx context.Context, filter store.RequestFilter) ([]*models.BalanceRequest, error) {
	requests, err := s.store.ListBalanceRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list balance requests: %w", err)
	}
	return requests, nil
}
