package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
//
// Lock* methods read a row and hold it until the surrounding transaction
// ends; outside InTx they behave like the matching Get*.
type Store interface {
	Ping(ctx context.Context) error

	// InTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	// Nested calls join the outer transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateTelescope(ctx context.Context, t *models.Telescope) error
	GetTelescope(ctx context.Context, id uuid.UUID) (*models.Telescope, error)
	LockTelescope(ctx context.Context, id uuid.UUID) (*models.Telescope, error)
	ListTelescopes(ctx context.Context, enabledOnly bool) ([]*models.Telescope, error)
	UpdateTelescopeStatus(ctx context.Context, id uuid.UUID, status models.TelescopeStatus) error

	CreateSatellite(ctx context.Context, s *models.Satellite) error
	GetSatellite(ctx context.Context, number int) (*models.Satellite, error)
	ListSatellites(ctx context.Context) ([]*models.Satellite, error)

	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	LockTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus) error

	CreatePoints(ctx context.Context, points []models.Point) error
	CreateFrames(ctx context.Context, frames []models.Frame) error
	CreateTrackPoints(ctx context.Context, points []models.TrackPoint) error
	CreateTrackingData(ctx context.Context, td *models.TrackingData) error
	CreateTLEData(ctx context.Context, tle *models.TLEData) error
	CreateInputData(ctx context.Context, in *models.InputData) error
	ListPoints(ctx context.Context, taskID uuid.UUID) ([]models.Point, error)
	ListFrames(ctx context.Context, taskID uuid.UUID) ([]models.Frame, error)
	ListTrackPoints(ctx context.Context, taskID uuid.UUID) ([]models.TrackPoint, error)
	GetTrackingData(ctx context.Context, taskID uuid.UUID) (*models.TrackingData, error)
	ListTLEData(ctx context.Context, taskID uuid.UUID) ([]models.TLEData, error)
	GetInputData(ctx context.Context, taskID uuid.UUID) (*models.InputData, error)

	CreateResult(ctx context.Context, r *models.TaskResult) error
	ListResults(ctx context.Context, taskID uuid.UUID) ([]*models.TaskResult, error)

	GetBalance(ctx context.Context, userID, telescopeID uuid.UUID) (*models.Balance, error)
	LockBalance(ctx context.Context, userID, telescopeID uuid.UUID) (*models.Balance, error)
	CreateBalance(ctx context.Context, b *models.Balance) error
	UpdateBalanceMinutes(ctx context.Context, id uuid.UUID, minutes int) error
	ListBalances(ctx context.Context, userID uuid.UUID) ([]*models.Balance, error)

	CreateBalanceRequest(ctx context.Context, r *models.BalanceRequest) error
	LockBalanceRequest(ctx context.Context, id uuid.UUID) (*models.BalanceRequest, error)
	ListBalanceRequests(ctx context.Context, filter RequestFilter) ([]*models.BalanceRequest, error)
	DecideBalanceRequest(ctx context.Context, id uuid.UUID, status models.BalanceRequestStatus, adminID uuid.UUID, at time.Time) error
}

// TaskFilter narrows ListTasks. Zero fields are ignored. Results are ordered
// by window start, then creation time.
type TaskFilter struct {
	UserID      uuid.UUID
	TelescopeID uuid.UUID
	Statuses    []models.TaskStatus
	JDN         *int
	Limit       int
}

// Matches reports whether t passes the filter.
func (f TaskFilter) Matches(t *models.Task) bool {
	if f.UserID != uuid.Nil && t.UserID != f.UserID {
		return false
	}
	if f.TelescopeID != uuid.Nil && t.TelescopeID != f.TelescopeID {
		return false
	}
	if f.JDN != nil && (t.JDN == nil || *t.JDN != *f.JDN) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

// RequestFilter narrows ListBalanceRequests. Zero fields are ignored.
type RequestFilter struct {
	UserID uuid.UUID
	Status models.BalanceRequestStatus
}

// Matches reports whether r passes the filter.
func (f RequestFilter) Matches(r *models.BalanceRequest) bool {
	if f.UserID != uuid.Nil && r.UserID != f.UserID {
		return false
	}
	return f.Status == "" || r.Status == f.Status
}
