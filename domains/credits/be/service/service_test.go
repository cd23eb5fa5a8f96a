package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendica/vendica-platform/domains/credits/be/repo"
	"github.com/vendica/vendica-platform/platform/go/persistence"
)

func newService(t *testing.T) (Service, *repo.Memory, uuid.UUID) {
	t.Helper()
	mem := repo.NewMemory()
	storeID := uuid.New()
	_, err := mem.EnsureBalance(context.Background(), storeID)
	require.NoError(t, err)
	return New(mem), mem, storeID
}

func TestAddCredits(t *testing.T) {
	svc, _, storeID := newService(t)
	ctx := context.Background()

	bal, err := svc.AddCredits(ctx, storeID, AddInput{Amount: 500, Description: "initial purchase"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.Balance)
	assert.Equal(t, int64(500), bal.Available)
	assert.Equal(t, int64(500), bal.LifetimePurchased)

	_, err = svc.AddCredits(ctx, storeID, AddInput{Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.AddCredits(ctx, storeID, AddInput{Amount: 10, Type: "loyalty"})
	assert.Error(t, err)
}

func TestDeductRespectsAvailableNotBalance(t *testing.T) {
	svc, _, storeID := newService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, storeID, AddInput{Amount: 100})
	require.NoError(t, err)
	_, err = svc.ReserveCredits(ctx, storeID, 60)
	require.NoError(t, err)

	// 40 available even though 100 is on the books.
	_, err = svc.DeductCredits(ctx, storeID, 50, "render job")
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(50), insufficient.Requested)
	assert.Equal(t, int64(40), insufficient.Available)

	bal, err := svc.DeductCredits(ctx, storeID, 40, "render job")
	require.NoError(t, err)
	assert.Equal(t, int64(60), bal.Balance)
	assert.Equal(t, int64(60), bal.ReservedBalance)
	assert.Equal(t, int64(0), bal.Available)
}

func TestReserveReleaseCycle(t *testing.T) {
	svc, _, storeID := newService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, storeID, AddInput{Amount: 100})
	require.NoError(t, err)

	bal, err := svc.ReserveCredits(ctx, storeID, 80)
	require.NoError(t, err)
	assert.Equal(t, int64(20), bal.Available)

	_, err = svc.ReserveCredits(ctx, storeID, 30)
	var insufficient *InsufficientBalanceError
	assert.ErrorAs(t, err, &insufficient)

	bal, err = svc.ReleaseReservedCredits(ctx, storeID, 80)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.ReservedBalance)
	assert.Equal(t, int64(100), bal.Available)

	// Releasing more than held clamps to zero instead of going negative.
	bal, err = svc.ReleaseReservedCredits(ctx, storeID, 999)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.ReservedBalance)
}

func TestReservationsLeaveNoLedgerRows(t *testing.T) {
	svc, _, storeID := newService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, storeID, AddInput{Amount: 100})
	require.NoError(t, err)
	_, err = svc.ReserveCredits(ctx, storeID, 50)
	require.NoError(t, err)
	_, err = svc.ReleaseReservedCredits(ctx, storeID, 50)
	require.NoError(t, err)
	_, err = svc.DeductCredits(ctx, storeID, 30, "usage")
	require.NoError(t, err)

	txs, err := svc.ListTransactions(ctx, storeID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-30), txs[0].Amount)
	assert.Equal(t, int64(100), txs[1].Amount)
	assert.Equal(t, persistence.TxPurchase, txs[1].Type)
}

func TestUnknownStore(t *testing.T) {
	svc := New(repo.NewMemory())
	_, err := svc.GetBalance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.DeductCredits(context.Background(), uuid.New(), 10, "usage")
	assert.ErrorIs(t, err, ErrNotFound)
}
