package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/chronos/internal/ledger"
	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/internal/store/memory"
	"github.com/kiranshivaraju/chronos/internal/validation"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*memory.Store, *models.Telescope) {
	t.Helper()
	s := memory.New()
	tel := &models.Telescope{ID: uuid.New(), Code: 1, Name: "t1", Enabled: true}
	require.NoError(t, s.CreateTelescope(context.Background(), tel))
	return s, tel
}

func TestDebit_WithoutBalanceRow(t *testing.T) {
	s, tel := setup(t)
	ctx := context.Background()
	user := uuid.New()

	err := s.InTx(ctx, func(tx store.Store) error {
		_, err := ledger.Debit(ctx, tx, user, tel.ID, 5)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrNoAccess)

	_, err = s.GetBalance(ctx, user, tel.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "no balance row is created by a failed debit")
}

func TestDebit_Subtracts(t *testing.T) {
	s, tel := setup(t)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, s.CreateBalance(ctx, &models.Balance{ID: uuid.New(), UserID: user, TelescopeID: tel.ID, Minutes: 20}))

	b, err := ledger.Debit(ctx, s, user, tel.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, 5, b.Minutes)

	got, err := s.GetBalance(ctx, user, tel.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Minutes)
}

func TestDebit_Insufficient(t *testing.T) {
	s, tel := setup(t)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, s.CreateBalance(ctx, &models.Balance{ID: uuid.New(), UserID: user, TelescopeID: tel.ID, Minutes: 3}))

	_, err := ledger.Debit(ctx, s, user, tel.ID, 4)
	assert.ErrorIs(t, err, ledger.ErrInsufficient)

	got, err := s.GetBalance(ctx, user, tel.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Minutes)
}

func TestCredit_CreatesThenIncrements(t *testing.T) {
	s, tel := setup(t)
	ctx := context.Background()
	user := uuid.New()

	b, err := ledger.Credit(ctx, s, user, tel.ID, 10, now)
	require.NoError(t, err)
	assert.Equal(t, 10, b.Minutes)

	b, err = ledger.Credit(ctx, s, user, tel.ID, 7, now)
	require.NoError(t, err)
	assert.Equal(t, 17, b.Minutes)

	all, err := s.ListBalances(ctx, user)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestApprove_CreditsOnce(t *testing.T) {
	s, tel := setup(t)
	ctx := context.Background()
	svc := ledger.NewService(s, func() time.Time { return now })
	user, admin := uuid.New(), uuid.New()

	req, err := svc.RequestMinutes(ctx, user, tel.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCreated, req.Status)

	approved, err := svc.Approve(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin, *approved.ApprovedBy)

	_, err = svc.Approve(ctx, admin, req.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyDecided)

	balances, err := svc.Balances(ctx, user)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, 30, balances[0].Minutes)
}

func TestReject_DoesNotCredit(t *testing.T) {
	s, tel := setup(t)
	ctx := context.Background()
	svc := ledger.NewService(s, func() time.Time { return now })
	user := uuid.New()

	req, err := svc.RequestMinutes(ctx, user, tel.ID, 30)
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, uuid.New(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)

	_, err = svc.Approve(ctx, uuid.New(), req.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyDecided)

	_, err = s.GetBalance(ctx, user, tel.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequestMinutes_Validation(t *testing.T) {
	s, tel := setup(t)
	ctx := context.Background()
	svc := ledger.NewService(s, nil)

	_, err := svc.RequestMinutes(ctx, uuid.New(), tel.ID, 0)
	assert.ErrorIs(t, err, validation.ErrInvalid)
	assert.True(t, validation.Fields(err).Has("minutes"))

	_, err = svc.RequestMinutes(ctx, uuid.New(), uuid.New(), 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApprove_UnknownRequest(t *testing.T) {
	s, _ := setup(t)
	svc := ledger.NewService(s, nil)

	_, err := svc.Approve(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
