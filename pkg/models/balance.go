package models

import (
	"time"

	"github.com/google/uuid"
)

// Balance is the observation minutes a user may spend on one telescope.
// The absence of a row means the user has no access to the telescope.
type Balance struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	UserID      uuid.UUID `db:"user_id"      json:"user_id"`
	TelescopeID uuid.UUID `db:"telescope_id" json:"telescope_id"`
	Minutes     int       `db:"minutes"      json:"minutes"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}

// BalanceRequestStatus is the decision state of a BalanceRequest.
type BalanceRequestStatus string

const (
	RequestCreated  BalanceRequestStatus = "created"
	RequestApproved BalanceRequestStatus = "approved"
	RequestRejected BalanceRequestStatus = "rejected"
)

// BalanceRequest is a user's ask for more minutes on a telescope.
type BalanceRequest struct {
	ID          uuid.UUID            `db:"id"           json:"id"`
	UserID      uuid.UUID            `db:"user_id"      json:"user_id"`
	TelescopeID uuid.UUID            `db:"telescope_id" json:"telescope_id"`
	Minutes     int                  `db:"minutes"      json:"minutes"`
	Status      BalanceRequestStatus `db:"status"       json:"status"`
	ApprovedBy  *uuid.UUID           `db:"approved_by"  json:"approved_by,omitempty"`
	CreatedAt   time.Time            `db:"created_at"   json:"created_at"`
	DecidedAt   *time.Time           `db:"decided_at"   json:"decided_at,omitempty"`
}
