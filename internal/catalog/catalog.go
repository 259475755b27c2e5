// Package catalog administers telescopes and satellites.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/internal/validation"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

const maxNameLen = 64

// Service manages the telescope and satellite catalogs.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a catalog Service. A nil now defaults to time.Now.
func NewService(s store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, now: now}
}

// TelescopeInput describes a telescope to register.
type TelescopeInput struct {
	Code        int        `json:"code"`
	Name        string     `json:"name"`
	Alias       string     `json:"alias"`
	Enabled     *bool      `json:"enabled"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Altitude    float64    `json:"altitude"`
	FOV         float64    `json:"fov"`
	OperatorID  *uuid.UUID `json:"operator_id"`
}

func (in TelescopeInput) validate() error {
	var errs validation.Errors
	if in.Code <= 0 {
		errs.Add("code", "must be positive")
	}
	switch name := strings.TrimSpace(in.Name); {
	case name == "":
		errs.Add("name", "is required")
	case len(name) > maxNameLen:
		errs.Add("name", fmt.Sprintf("must be at most %d characters", maxNameLen))
	}
	if in.Latitude < -90 || in.Latitude > 90 {
		errs.Add("latitude", "must be in [-90, 90]")
	}
	if in.Longitude < -180 || in.Longitude > 180 {
		errs.Add("longitude", "must be in [-180, 180]")
	}
	if in.FOV < 0 {
		errs.Add("fov", "must not be negative")
	}
	return errs.Err()
}

// CreateTelescope registers a telescope. New telescopes are enabled and
// offline unless stated otherwise.
func (s *Service) CreateTelescope(ctx context.Context, in TelescopeInput) (*models.Telescope, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &models.Telescope{
		ID:          uuid.New(),
		Code:        in.Code,
		Name:        strings.TrimSpace(in.Name),
		Alias:       in.Alias,
		Enabled:     in.Enabled == nil || *in.Enabled,
		Status:      models.TelescopeOffline,
		Description: in.Description,
		Location:    in.Location,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Altitude:    in.Altitude,
		FOV:         in.FOV,
		OperatorID:  in.OperatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTelescope(ctx, t); err != nil {
		return nil, fmt.Errorf("create telescope: %w", err)
	}
	slog.Info("telescope registered", "telescope_id", t.ID, "code", t.Code, "name", t.Name)
	return t, nil
}

// TelescopeView is a telescope as seen by one user, with the minutes they
// hold on it. Minutes is nil when the user has no access.
type TelescopeView struct {
	*models.Telescope
	Minutes *int `json:"balance_minutes"`
}

// Telescopes lists the enabled telescopes with userID's balance on each.
func (s *Service) Telescopes(ctx context.Context, userID uuid.UUID) ([]TelescopeView, error) {
	telescopes, err := s.store.ListTelescopes(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list telescopes: %w", err)
	}
	balances, err := s.store.ListBalances(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	minutes := make(map[uuid.UUID]int, len(balances))
	for _, b := range balances {
		minutes[b.TelescopeID] = b.Minutes
	}

	out := make([]TelescopeView, 0, len(telescopes))
	for _, t := range telescopes {
		v := TelescopeView{Telescope: t}
		if m, ok := minutes[t.ID]; ok {
			v.Minutes = &m
		}
		out = append(out, v)
	}
	return out, nil
}

// CreateSatellite adds a catalogued satellite.
func (s *Service) CreateSatellite(ctx context.Context, number int, name string) (*models.Satellite, error) {
	var errs validation.Errors
	if number <= 0 {
		errs.Add("number", "must be positive")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		errs.Add("name", "is required")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	sat := &models.Satellite{Number: number, Name: name, CreatedAt: s.now().UTC()}
	if err := s.store.CreateSatellite(ctx, sat); err != nil {
		return nil, fmt.Errorf("create satellite: %w", err)
	}
	return sat, nil
}

func (s *Service) Satellites(ctx context.Context) ([]*models.Satellite, error) {
	sats, err := s.store.ListSatellites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list satellites: %w", err)
	}
	return sats, nil
}
