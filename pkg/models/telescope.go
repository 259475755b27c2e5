package models

import (
	"time"

	"github.com/google/uuid"
)

// TelescopeStatus is the availability reported by a telescope's operator.
type TelescopeStatus string

const (
	TelescopeOnline  TelescopeStatus = "online"
	TelescopeOffline TelescopeStatus = "offline"
)

// Valid reports whether s is a recognized status.
func (s TelescopeStatus) Valid() bool {
	return s == TelescopeOnline || s == TelescopeOffline
}

// Telescope is a remote observation instrument. Only enabled telescopes
// accept new tasks.
type Telescope struct {
	ID          uuid.UUID       `db:"id"          json:"id"`
	Code        int             `db:"code"        json:"code"`
	Name        string          `db:"name"        json:"name"`
	Alias       string          `db:"alias"       json:"alias,omitempty"`
	Enabled     bool            `db:"enabled"     json:"enabled"`
	Status      TelescopeStatus `db:"status"      json:"status"`
	Description string          `db:"description" json:"description,omitempty"`
	Location    string          `db:"location"    json:"location,omitempty"`
	Latitude    float64         `db:"latitude"    json:"latitude"`
	Longitude   float64         `db:"longitude"   json:"longitude"`
	Altitude    float64         `db:"altitude"    json:"altitude"`
	FOV         float64         `db:"fov"         json:"fov"`
	OperatorID  *uuid.UUID      `db:"operator_id" json:"operator_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"  json:"updated_at"`
}

// OperatedBy reports whether userID is the operator bound to t.
func (t *Telescope) OperatedBy(userID uuid.UUID) bool {
	return t.OperatorID != nil && *t.OperatorID == userID
}

// Satellite is a catalogued space object keyed by its catalog number.
type Satellite struct {
	Number    int       `db:"number"     json:"number"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
