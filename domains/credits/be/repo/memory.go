package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendica/vendica-platform/platform/go/persistence"
)

// Memory is an in-memory Repository for tests and local development. It
// enforces the same guards as the Postgres store: mutations are atomic under
// one lock and reserved never exceeds balance.
type Memory struct {
	mu           sync.Mutex
	balances     map[uuid.UUID]persistence.BalanceRecord
	transactions map[uuid.UUID][]persistence.TransactionRecord
}

// NewMemory constructs an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		balances:     make(map[uuid.UUID]persistence.BalanceRecord),
		transactions: make(map[uuid.UUID][]persistence.TransactionRecord),
	}
}

func (m *Memory) EnsureBalance(_ context.Context, storeID uuid.UUID) (persistence.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.balances[storeID]; ok {
		return rec, nil
	}
	rec := persistence.BalanceRecord{StoreID: storeID, UpdatedAt: time.Now()}
	m.balances[storeID] = rec
	return rec, nil
}

func (m *Memory) GetBalance(_ context.Context, storeID uuid.UUID) (persistence.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.balances[storeID]
	if !ok {
		return persistence.BalanceRecord{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Add(_ context.Context, storeID uuid.UUID, amount int64, txType string, paymentRef *string, description string) (persistence.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.balances[storeID]
	if !ok {
		return persistence.BalanceRecord{}, persistence.ErrNotFound
	}
	rec.Balance += amount
	rec.LifetimePurchased += amount
	rec.UpdatedAt = time.Now()
	m.balances[storeID] = rec
	m.appendTx(storeID, amount, txType, paymentRef, description)
	return rec, nil
}

func (m *Memory) Deduct(_ context.Context, storeID uuid.UUID, amount int64, description string) (persistence.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.balances[storeID]
	if !ok {
		return persistence.BalanceRecord{}, persistence.ErrNotFound
	}
	if rec.Balance-rec.ReservedBalance < amount {
		return persistence.BalanceRecord{}, persistence.ErrInsufficientBalance
	}
	rec.Balance -= amount
	rec.LifetimeSpent += amount
	rec.UpdatedAt = time.Now()
	m.balances[storeID] = rec
	m.appendTx(storeID, -amount, persistence.TxAdjustment, nil, description)
	return rec, nil
}

func (m *Memory) Reserve(_ context.Context, storeID uuid.UUID, amount int64) (persistence.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.balances[storeID]
	if !ok {
		return persistence.BalanceRecord{}, persistence.ErrNotFound
	}
	if rec.Balance-rec.ReservedBalance < amount {
		return persistence.BalanceRecord{}, persistence.ErrInsufficientBalance
	}
	rec.ReservedBalance += amount
	rec.UpdatedAt = time.Now()
	m.balances[storeID] = rec
	return rec, nil
}

func (m *Memory) Release(_ context.Context, storeID uuid.UUID, amount int64) (persistence.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.balances[storeID]
	if !ok {
		return persistence.BalanceRecord{}, persistence.ErrNotFound
	}
	rec.ReservedBalance -= amount
	if rec.ReservedBalance < 0 {
		rec.ReservedBalance = 0
	}
	rec.UpdatedAt = time.Now()
	m.balances[storeID] = rec
	return rec, nil
}

func (m *Memory) ListTransactions(_ context.Context, storeID uuid.UUID, limit int) ([]persistence.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := m.transactions[storeID]
	out := make([]persistence.TransactionRecord, 0, len(txs))
	// Newest first, matching the Postgres ordering.
	for i := len(txs) - 1; i >= 0; i-- {
		out = append(out, txs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) appendTx(storeID uuid.UUID, amount int64, txType string, paymentRef *string, description string) {
	m.transactions[storeID] = append(m.transactions[storeID], persistence.TransactionRecord{
		TransactionID:    uuid.New(),
		StoreID:          storeID,
		Amount:           amount,
		TransactionType:  txType,
		PaymentReference: paymentRef,
		Description:      description,
		CreatedAt:        time.Now(),
	})
}
