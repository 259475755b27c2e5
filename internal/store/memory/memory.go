// Package memory is an in-process store.Store that backs service and handler
// tests without Postgres. It mirrors the uniqueness and reference constraints of the
// SQL schema so services see the same sentinel errors.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

type state struct {
	apiKeys     map[uuid.UUID]models.APIKey
	telescopes  map[uuid.UUID]models.Telescope
	satellites  map[int]models.Satellite
	tasks       map[uuid.UUID]models.Task
	points      map[uuid.UUID][]models.Point
	frames      map[uuid.UUID][]models.Frame
	trackPoints map[uuid.UUID][]models.TrackPoint
	tracking    map[uuid.UUID]models.TrackingData
	tles        map[uuid.UUID][]models.TLEData
	inputs      map[uuid.UUID]models.InputData
	results     []models.TaskResult
	balances    map[uuid.UUID]models.Balance
	requests    map[uuid.UUID]models.BalanceRequest
}

func newState() state {
	return state{
		apiKeys:     map[uuid.UUID]models.APIKey{},
		telescopes:  map[uuid.UUID]models.Telescope{},
		satellites:  map[int]models.Satellite{},
		tasks:       map[uuid.UUID]models.Task{},
		points:      map[uuid.UUID][]models.Point{},
		frames:      map[uuid.UUID][]models.Frame{},
		trackPoints: map[uuid.UUID][]models.TrackPoint{},
		tracking:    map[uuid.UUID]models.TrackingData{},
		tles:        map[uuid.UUID][]models.TLEData{},
		inputs:      map[uuid.UUID]models.InputData{},
		balances:    map[uuid.UUID]models.Balance{},
		requests:    map[uuid.UUID]models.BalanceRequest{},
	}
}

func (st state) clone() state {
	c := newState()
	copyMap(c.apiKeys, st.apiKeys)
	copyMap(c.telescopes, st.telescopes)
	copyMap(c.satellites, st.satellites)
	copyMap(c.tasks, st.tasks)
	copyMap(c.points, st.points)
	copyMap(c.frames, st.frames)
	copyMap(c.trackPoints, st.trackPoints)
	copyMap(c.tracking, st.tracking)
	copyMap(c.tles, st.tles)
	copyMap(c.inputs, st.inputs)
	copyMap(c.balances, st.balances)
	copyMap(c.requests, st.requests)
	c.results = append([]models.TaskResult(nil), st.results...)
	return c
}

// copyMap is shallow; slices held as values are only ever replaced, never
// appended to in place.
func copyMap[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}

type db struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   state
}

// Store implements store.Store in memory. The zero value is not usable; call New.
type Store struct {
	db   *db
	inTx bool

	// PingErr is returned by Ping when set.
	PingErr error
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{db: &db{st: newState()}}
}

func (s *Store) Ping(_ context.Context) error { return s.PingErr }

// InTx serializes transactions and restores the prior state when fn fails
// or panics. A panic is re-raised after the restore.
func (s *Store) InTx(_ context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.db.txMu.Lock()
	defer s.db.txMu.Unlock()

	s.db.mu.Lock()
	snapshot := s.db.st.clone()
	s.db.mu.Unlock()

	committed := false
	defer func() {
		if committed {
			return
		}
		s.db.mu.Lock()
		s.db.st = snapshot
		s.db.mu.Unlock()
	}()

	if err := fn(&Store{db: s.db, inTx: true, PingErr: s.PingErr}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) lock() *state {
	s.db.mu.Lock()
	return &s.db.st
}

func (s *Store) unlock() { s.db.mu.Unlock() }

// --- API Keys ---

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	st := s.lock()
	defer s.unlock()

	var out []*models.APIKey
	for _, k := range st.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			k := k
			out = append(out, &k)
		}
	}
	return out, nil
}

func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	st := s.lock()
	defer s.unlock()

	k, ok := st.apiKeys[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	k.LastUsedAt = &now
	k.UpdatedAt = now
	st.apiKeys[id] = k
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	st := s.lock()
	defer s.unlock()

	for _, k := range st.apiKeys {
		if k.ID == key.ID || k.KeyHash == key.KeyHash {
			return store.ErrDuplicateKey
		}
	}
	st.apiKeys[key.ID] = *key
	return nil
}

func (s *Store) ListAPIKeys(_ context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	st := s.lock()
	defer s.unlock()

	var out []*models.APIKey
	for _, k := range st.apiKeys {
		if k.UserID == userID && k.DeletedAt == nil {
			k := k
			out = append(out, &k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	st := s.lock()
	defer s.unlock()

	k, ok := st.apiKeys[id]
	if !ok || k.UserID != userID || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	st.apiKeys[id] = k
	return nil
}

// --- Telescopes ---

func (s *Store) CreateTelescope(_ context.Context, t *models.Telescope) error {
	st := s.lock()
	defer s.unlock()

	for _, existing := range st.telescopes {
		if existing.ID == t.ID || existing.Code == t.Code || existing.Name == t.Name {
			return store.ErrDuplicateKey
		}
	}
	st.telescopes[t.ID] = *t
	return nil
}

func (s *Store) GetTelescope(_ context.Context, id uuid.UUID) (*models.Telescope, error) {
	st := s.lock()
	defer s.unlock()

	t, ok := st.telescopes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) LockTelescope(ctx context.Context, id uuid.UUID) (*models.Telescope, error) {
	return s.GetTelescope(ctx, id)
}

func (s *Store) ListTelescopes(_ context.Context, enabledOnly bool) ([]*models.Telescope, error) {
	st := s.lock()
	defer s.unlock()

	var out []*models.Telescope
	for _, t := range st.telescopes {
		if enabledOnly && !t.Enabled {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) UpdateTelescopeStatus(_ context.Context, id uuid.UUID, status models.TelescopeStatus) error {
	st := s.lock()
	defer s.unlock()

	t, ok := st.telescopes[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	st.telescopes[id] = t
	return nil
}

// --- Satellites ---

func (s *Store) CreateSatellite(_ context.Context, sat *models.Satellite) error {
	st := s.lock()
	defer s.unlock()

	if _, ok := st.satellites[sat.Number]; ok {
		return store.ErrDuplicateKey
	}
	st.satellites[sat.Number] = *sat
	return nil
}

func (s *Store) GetSatellite(_ context.Context, number int) (*models.Satellite, error) {
	st := s.lock()
	defer s.unlock()

	sat, ok := st.satellites[number]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sat, nil
}

func (s *Store) ListSatellites(_ context.Context) ([]*models.Satellite, error) {
	st := s.lock()
	defer s.unlock()

	out := make([]*models.Satellite, 0, len(st.satellites))
	for _, sat := range st.satellites {
		sat := sat
		out = append(out, &sat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
