package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

func (s *Store) GetBalance(_ context.Context, userID, telescopeID uuid.UUID) (*models.Balance, error) {
	st := s.lock()
	defer s.unlock()

	for _, b := range st.balances {
		if b.UserID == userID && b.TelescopeID == telescopeID {
			return &b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) LockBalance(ctx context.Context, userID, telescopeID uuid.UUID) (*models.Balance, error) {
	return s.GetBalance(ctx, userID, telescopeID)
}

func (s *Store) CreateBalance(_ context.Context, b *models.Balance) error {
	st := s.lock()
	defer s.unlock()

	if _, ok := st.telescopes[b.TelescopeID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range st.balances {
		if existing.ID == b.ID || (existing.UserID == b.UserID && existing.TelescopeID == b.TelescopeID) {
			return store.ErrDuplicateKey
		}
	}
	st.balances[b.ID] = *b
	return nil
}

func (s *Store) UpdateBalanceMinutes(_ context.Context, id uuid.UUID, minutes int) error {
	st := s.lock()
	defer s.unlock()

	b, ok := st.balances[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Minutes = minutes
	b.UpdatedAt = time.Now().UTC()
	st.balances[id] = b
	return nil
}

func (s *Store) ListBalances(_ context.Context, userID uuid.UUID) ([]*models.Balance, error) {
	st := s.lock()
	defer s.unlock()

	var out []*models.Balance
	for _, b := range st.balances {
		if b.UserID == userID {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelescopeID.String() < out[j].TelescopeID.String() })
	return out, nil
}

func (s *Store) CreateBalanceRequest(_ context.Context, r *models.BalanceRequest) error {
	st := s.lock()
	defer s.unlock()

	if _, ok := st.telescopes[r.TelescopeID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := st.requests[r.ID]; ok {
		return store.ErrDuplicateKey
	}
	st.requests[r.ID] = *r
	return nil
}

func (s *Store) LockBalanceRequest(_ context.Context, id uuid.UUID) (*models.BalanceRequest, error) {
	st := s.lock()
	defer s.unlock()

	r, ok := st.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ListBalanceRequests(_ context.Context, filter store.RequestFilter) ([]*models.BalanceRequest, error) {
	st := s.lock()
	defer s.unlock()

	var out []*models.BalanceRequest
	for _, r := range st.requests {
		r := r
		if filter.Matches(&r) {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DecideBalanceRequest(_ context.Context, id uuid.UUID, status models.BalanceRequestStatus, adminID uuid.UUID, at time.Time) error {
	st := s.lock()
	defer s.unlock()

	r, ok := st.requests[id]
	if !ok || r.Status != models.RequestCreated {
		return store.ErrNotFound
	}
	r.Status = status
	r.ApprovedBy = &adminID
	r.DecidedAt = &at
	st.requests[id] = r
	return nil
}
