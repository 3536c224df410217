package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcg-cloud/payments-service/internal/domain"
	"github.com/fcg-cloud/payments-service/internal/repository"
	"github.com/fcg-cloud/payments-service/internal/testutil"
)

func createPayment(t *testing.T, db *sql.DB, repo *repository.PaymentRepository, p *domain.Payment) {
	t.Helper()
	ctx := context.Background()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tx, p))
	require.NoError(t, tx.Commit())
}

func TestPaymentRepository_CreateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	p := domain.NewPayment(uuid.New(), uuid.New(), decimal.RequireFromString("10.00"))
	createPayment(t, db, repo, p)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.UserID, got.UserID)
	assert.Equal(t, p.GameID, got.GameID)
	assert.True(t, got.Amount.Equal(p.Amount))
	assert.Equal(t, domain.PaymentStatusRequested, got.Status)
}

func TestPaymentRepository_CreateDuplicateID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	p := domain.NewPayment(uuid.New(), uuid.New(), decimal.RequireFromString("5.00"))
	createPayment(t, db, repo, p)

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.Create(ctx, tx, p)
	require.ErrorIs(t, err, domain.ErrDuplicatePayment)
}

func TestPaymentRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewPaymentRepository(db)

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentRepository_GetPendingOrderedOldestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	newer := testutil.SeedPayment(t, db, domain.PaymentStatusRequested, base.Add(2*time.Minute))
	older := testutil.SeedPayment(t, db, domain.PaymentStatusRequested, base)
	testutil.SeedPayment(t, db, domain.PaymentStatusSucceeded, base.Add(time.Minute))

	pending, err := repo.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, newer.ID, pending[1].ID)
}

func TestPaymentRepository_GetByUserIDNewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	first := testutil.SeedPayment(t, db, domain.PaymentStatusRequested, base)
	second := testutil.SeedPayment(t, db, domain.PaymentStatusSucceeded, base.Add(time.Minute))
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		_, err := db.Exec(`UPDATE payments SET user_id = $1 WHERE id = $2`, userID, id)
		require.NoError(t, err)
	}

	payments, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, second.ID, payments[0].ID)
	assert.Equal(t, first.ID, payments[1].ID)
}

func TestPaymentRepository_UpdateStatusCAS(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	p := testutil.SeedPayment(t, db, domain.PaymentStatusRequested, time.Now().UTC())

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, tx, p.ID, domain.PaymentStatusRequested, domain.PaymentStatusSucceeded))
	require.NoError(t, tx.Commit())

	assert.Equal(t, domain.PaymentStatusSucceeded, testutil.GetPaymentStatus(t, db, p.ID))

	// losing the race: the payment already left requested
	tx, err = db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	err = repo.UpdateStatus(ctx, tx, p.ID, domain.PaymentStatusRequested, domain.PaymentStatusFailed)
	require.ErrorIs(t, err, domain.ErrPaymentTerminal)

	assert.Equal(t, domain.PaymentStatusSucceeded, testutil.GetPaymentStatus(t, db, p.ID))
}

func TestPaymentRepository_UpdateStatusUnknownID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.UpdateStatus(ctx, tx, uuid.New(), domain.PaymentStatusRequested, domain.PaymentStatusSucceeded)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
