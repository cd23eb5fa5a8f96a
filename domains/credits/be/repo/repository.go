// Package repo provides storage implementations for store credit balances
// and their transaction ledger.
package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/vendica/vendica-platform/platform/go/persistence"
)

// Repository abstracts credit balance storage so the service can run against
// Postgres in production and the in-memory implementation in tests.
type Repository interface {
	EnsureBalance(ctx context.Context, storeID uuid.UUID) (persistence.BalanceRecord, error)
	GetBalance(ctx context.Context, storeID uuid.UUID) (persistence.BalanceRecord, error)
	Add(ctx context.Context, storeID uuid.UUID, amount int64, txType string, paymentRef *string, description string) (persistence.BalanceRecord, error)
	Deduct(ctx context.Context, storeID uuid.UUID, amount int64, description string) (persistence.BalanceRecord, error)
	Reserve(ctx context.Context, storeID uuid.UUID, amount int64) (persistence.BalanceRecord, error)
	Release(ctx context.Context, storeID uuid.UUID, amount int64) (persistence.BalanceRecord, error)
	ListTransactions(ctx context.Context, storeID uuid.UUID, limit int) ([]persistence.TransactionRecord, error)
}

// Postgres delegates to the registry credit store.
type Postgres struct {
	store *persistence.CreditStore
}

// NewPostgres wraps a CreditStore as a credits Repository.
func NewPostgres(store *persistence.CreditStore) (*Postgres, error) {
	if store == nil {
		return nil, errors.New("credit store is required")
	}
	return &Postgres{store: store}, nil
}

func (p *Postgres) EnsureBalance(ctx context.Context, storeID uuid.UUID) (persistence.BalanceRecord, error) {
	return p.store.EnsureBalance(ctx, storeID)
}

func (p *Postgres) GetBalance(ctx context.Context, storeID uuid.UUID) (persistence.BalanceRecord, error) {
	return p.store.GetBalance(ctx, storeID)
}

func (p *Postgres) Add(ctx context.Context, storeID uuid.UUID, amount int64, txType string, paymentRef *string, description string) (persistence.BalanceRecord, error) {
	return p.store.Add(ctx, storeID, amount, txType, paymentRef, description)
}

func (p *Postgres) Deduct(ctx context.Context, storeID uuid.UUID, amount int64, description string) (persistence.BalanceRecord, error) {
	return p.store.Deduct(ctx, storeID, amount, description)
}

func (p *Postgres) Reserve(ctx context.Context, storeID uuid.UUID, amount int64) (persistence.BalanceRecord, error) {
	return p.store.Reserve(ctx, storeID, amount)
}

func (p *Postgres) Release(ctx context.Context, storeID uuid.UUID, amount int64) (persistence.BalanceRecord, error) {
	return p.store.Release(ctx, storeID, amount)
}

func (p *Postgres) ListTransactions(ctx context.Context, storeID uuid.UUID, limit int) ([]persistence.TransactionRecord, error) {
	return p.store.ListTransactions(ctx, storeID, limit)
}
