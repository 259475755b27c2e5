package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/pkg/models"
)

// --- Telescopes ---

const telescopeColumns = `id, code, name, alias, enabled, status, description, location,
	latitude, longitude, altitude, fov, operator_id, created_at, updated_at`

func scanTelescope(row scanner) (*models.Telescope, error) {
	var t models.Telescope
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Alias, &t.Enabled, &t.Status, &t.Description, &t.Location,
		&t.Latitude, &t.Longitude, &t.Altitude, &t.FOV, &t.OperatorID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTelescope(ctx context.Context, t *models.Telescope) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO telescopes (id, code, name, alias, enabled, status, description, location,
		   latitude, longitude, altitude, fov, operator_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.Code, t.Name, t.Alias, t.Enabled, t.Status, t.Description, t.Location,
		t.Latitude, t.Longitude, t.Altitude, t.FOV, t.OperatorID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create telescope: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTelescope(ctx context.Context, id uuid.UUID) (*models.Telescope, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT `+telescopeColumns+` FROM telescopes WHERE id = $1`, id), scanTelescope, "get telescope")
}

// LockTelescope serializes submissions against one telescope timeline.
func (s *PostgresStore) LockTelescope(ctx context.Context, id uuid.UUID) (*models.Telescope, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT `+telescopeColumns+` FROM telescopes WHERE id = $1`+s.lockClause(), id), scanTelescope, "lock telescope")
}

func (s *PostgresStore) ListTelescopes(ctx context.Context, enabledOnly bool) ([]*models.Telescope, error) {
	query := `SELECT ` + telescopeColumns + ` FROM telescopes`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY code`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list telescopes: %w", err)
	}
	return collect(rows, scanTelescope, "scan telescope")
}

func (s *PostgresStore) UpdateTelescopeStatus(ctx context.Context, id uuid.UUID, status models.TelescopeStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE telescopes SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update telescope status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Satellites ---

func scanSatellite(row scanner) (*models.Satellite, error) {
	var sat models.Satellite
	if err := row.Scan(&sat.Number, &sat.Name, &sat.CreatedAt); err != nil {
		return nil, err
	}
	return &sat, nil
}

func (s *PostgresStore) CreateSatellite(ctx context.Context, sat *models.Satellite) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO satellites (number, name, created_at) VALUES ($1, $2, $3)`,
		sat.Number, sat.Name, sat.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create satellite: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSatellite(ctx context.Context, number int) (*models.Satellite, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT number, name, created_at FROM satellites WHERE number = $1`, number), scanSatellite, "get satellite")
}

func (s *PostgresStore) ListSatellites(ctx context.Context) ([]*models.Satellite, error) {
	rows, err := s.db.Query(ctx, `SELECT number, name, created_at FROM satellites ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("list satellites: %w", err)
	}
	return collect(rows, scanSatellite, "scan satellite")
}
