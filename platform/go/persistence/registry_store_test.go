package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// registryTestPool spins up a disposable Postgres and applies the registry DDL.
func registryTestPool(t *testing.T) *RegistryStore {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping registry integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("vendica"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	require.NoError(t, BootstrapRegistrySchema(ctx, pool))

	store, err := NewRegistryStore(pool)
	require.NoError(t, err)
	return store
}

func TestRegistryLifecycleAndLedger(t *testing.T) {
	registry := registryTestPool(t)
	pool := registry.pool
	ctx := context.Background()

	creds, err := NewCredentialStore(pool)
	require.NoError(t, err)
	domains, err := NewDomainStore(pool)
	require.NoError(t, err)
	credits, err := NewCreditStore(pool)
	require.NoError(t, err)

	accountID := uuid.New()
	rec, err := registry.Create(ctx, StoreRecord{
		StoreID:   uuid.New(),
		AccountID: accountID,
		Name:      "Acme Store",
		Slug:      "acme-store",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPendingDatabase, rec.Status)
	require.False(t, rec.IsActive)

	t.Run("lifecycle transitions are guarded", func(t *testing.T) {
		// active is not reachable from pending_database directly.
		_, err := registry.CompleteProvisioning(ctx, rec.StoreID)
		require.ErrorIs(t, err, ErrInvalidTransition)

		started, err := registry.StartProvisioning(ctx, rec.StoreID)
		require.NoError(t, err)
		require.Equal(t, StatusProvisioning, started.Status)

		// second racer loses.
		_, err = registry.StartProvisioning(ctx, rec.StoreID)
		require.ErrorIs(t, err, ErrInvalidTransition)

		done, err := registry.CompleteProvisioning(ctx, rec.StoreID)
		require.NoError(t, err)
		require.Equal(t, StatusActive, done.Status)
		require.True(t, done.IsActive)

		_, err = registry.StartProvisioning(ctx, uuid.New())
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("credential upsert resets test status", func(t *testing.T) {
		cred, err := creds.Upsert(ctx, rec.StoreID, KindManagedPostgres, "bm9uY2U=:dGFn:Y3Q=", "db.acme.example")
		require.NoError(t, err)
		require.Equal(t, ConnectionPending, cred.ConnectionStatus)
		require.Nil(t, cred.LastTestedAt)

		tested, err := creds.RecordTest(ctx, rec.StoreID, ConnectionConnected)
		require.NoError(t, err)
		require.Equal(t, ConnectionConnected, tested.ConnectionStatus)
		require.NotNil(t, tested.LastTestedAt)

		replaced, err := creds.Upsert(ctx, rec.StoreID, KindManagedPostgres, "bm9uY2Uy:dGFnMg==:Y3Qy", "db2.acme.example")
		require.NoError(t, err)
		require.Equal(t, ConnectionPending, replaced.ConnectionStatus)
		require.Nil(t, replaced.LastTestedAt)
	})

	t.Run("domain resolution requires verified and active", func(t *testing.T) {
		require.NoError(t, domains.CreateMapping(ctx, rec.StoreID, "acme.example", true, "verified"))
		require.NoError(t, domains.CreateMapping(ctx, rec.StoreID, "pending.acme.example", false, "pending"))

		got, err := domains.ResolveHostname(ctx, "acme.example")
		require.NoError(t, err)
		require.Equal(t, rec.StoreID, got.StoreID)
		require.Equal(t, "acme-store", got.StoreSlug)

		_, err = domains.ResolveHostname(ctx, "pending.acme.example")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, domains.TouchAccess(ctx, "acme.example"))
		got, err = domains.ResolveHostname(ctx, "acme.example")
		require.NoError(t, err)
		require.Equal(t, int64(1), got.AccessCount)
	})

	t.Run("credit mutations hold the invariant", func(t *testing.T) {
		bal, err := credits.EnsureBalance(ctx, rec.StoreID)
		require.NoError(t, err)
		require.Zero(t, bal.Balance)

		bal, err = credits.Add(ctx, rec.StoreID, 100, TxPurchase, nil, "initial purchase")
		require.NoError(t, err)
		require.Equal(t, int64(100), bal.Balance)
		require.Equal(t, int64(100), bal.LifetimePurchased)

		bal, err = credits.Reserve(ctx, rec.StoreID, 60)
		require.NoError(t, err)
		require.Equal(t, int64(60), bal.ReservedBalance)
		require.Equal(t, int64(40), bal.Available())

		_, err = credits.Deduct(ctx, rec.StoreID, 50, "over available")
		require.ErrorIs(t, err, ErrInsufficientBalance)

		bal, err = credits.Deduct(ctx, rec.StoreID, 40, "within available")
		require.NoError(t, err)
		require.Equal(t, int64(60), bal.Balance)
		require.Equal(t, int64(40), bal.LifetimeSpent)

		bal, err = credits.Release(ctx, rec.StoreID, 100)
		require.NoError(t, err)
		require.Zero(t, bal.ReservedBalance, "release clamps at zero")

		txs, err := credits.ListTransactions(ctx, rec.StoreID, 10)
		require.NoError(t, err)
		require.Len(t, txs, 2, "only applied mutations append ledger rows")

		var sum int64
		for _, tx := range txs {
			sum += tx.Amount
		}
		require.Equal(t, bal.Balance, sum, "ledger explains the balance")
	})

	t.Run("suspension is the terminal deletion", func(t *testing.T) {
		suspended, err := registry.Suspend(ctx, rec.StoreID, "requested by owner")
		require.NoError(t, err)
		require.Equal(t, StatusSuspended, suspended.Status)
		require.False(t, suspended.IsActive)
		require.NotNil(t, suspended.SuspendedReason)

		// resolution must now miss.
		_, err = domains.ResolveHostname(ctx, "acme.example")
		require.ErrorIs(t, err, ErrNotFound)

		count, err := registry.CountByAccount(ctx, accountID)
		require.NoError(t, err)
		require.Zero(t, count, "suspended stores do not count toward the ceiling")
	})
}
