package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/pkg/models"
)

// --- Balances ---

func scanBalance(row scanner) (*models.Balance, error) {
	var b models.Balance
	if err := row.Scan(&b.ID, &b.UserID, &b.TelescopeID, &b.Minutes, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID, telescopeID uuid.UUID) (*models.Balance, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT id, user_id, telescope_id, minutes, updated_at FROM balances
		 WHERE user_id = $1 AND telescope_id = $2`, userID, telescopeID), scanBalance, "get balance")
}

func (s *PostgresStore) LockBalance(ctx context.Context, userID, telescopeID uuid.UUID) (*models.Balance, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT id, user_id, telescope_id, minutes, updated_at FROM balances
		 WHERE user_id = $1 AND telescope_id = $2`+s.lockClause(), userID, telescopeID), scanBalance, "lock balance")
}

func (s *PostgresStore) CreateBalance(ctx context.Context, b *models.Balance) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO balances (id, user_id, telescope_id, minutes, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.UserID, b.TelescopeID, b.Minutes, b.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create balance: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateBalanceMinutes(ctx context.Context, id uuid.UUID, minutes int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE balances SET minutes = $2, updated_at = NOW() WHERE id = $1`, id, minutes)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListBalances(ctx context.Context, userID uuid.UUID) ([]*models.Balance, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, telescope_id, minutes, updated_at FROM balances
		 WHERE user_id = $1 ORDER BY telescope_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return collect(rows, scanBalance, "scan balance")
}

// --- Balance requests ---

const requestColumns = `id, user_id, telescope_id, minutes, status, approved_by, created_at, decided_at`

func scanRequest(row scanner) (*models.BalanceRequest, error) {
	var r models.BalanceRequest
	err := row.Scan(&r.ID, &r.UserID, &r.TelescopeID, &r.Minutes, &r.Status, &r.ApprovedBy, &r.CreatedAt, &r.DecidedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateBalanceRequest(ctx context.Context, r *models.BalanceRequest) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO balance_requests (id, user_id, telescope_id, minutes, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.UserID, r.TelescopeID, r.Minutes, r.Status, r.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create balance request: %w", err)
	}
	return nil
}

func (s *PostgresStore) LockBalanceRequest(ctx context.Context, id uuid.UUID) (*models.BalanceRequest, error) {
	return getOne(s.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM balance_requests WHERE id = $1`+s.lockClause(), id), scanRequest, "lock balance request")
}

func (s *PostgresStore) ListBalanceRequests(ctx context.Context, filter RequestFilter) ([]*models.BalanceRequest, error) {
	var conditions []string
	var args []any

	if filter.UserID != uuid.Nil {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + requestColumns + ` FROM balance_requests`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list balance requests: %w", err)
	}
	return collect(rows, scanRequest, "scan balance request")
}

// DecideBalanceRequest records a decision. Only undecided requests change.
func (s *PostgresStore) DecideBalanceRequest(ctx context.Context, id uuid.UUID, status models.BalanceRequestStatus, adminID uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE balance_requests SET status = $2, approved_by = $3, decided_at = $4
		 WHERE id = $1 AND status = 'created'`, id, status, adminID, at)
	if err != nil {
		return fmt.Errorf("decide balance request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
