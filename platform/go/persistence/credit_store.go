package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientBalance is returned when a deduction or reservation would
// push the available balance below zero. The mutation is never partially
// applied.
var ErrInsufficientBalance = errors.New("insufficient available balance")

// Credit transaction types for the append-only ledger.
const (
	TxPurchase   = "purchase"
	TxAdjustment = "adjustment"
	TxRefund     = "refund"
	TxBonus      = "bonus"
	TxMigration  = "migration"
)

// BalanceRecord is the mutable projection of a store's credit position.
// Invariant: ReservedBalance <= Balance, both non-negative.
type BalanceRecord struct {
	StoreID           uuid.UUID
	Balance           int64
	ReservedBalance   int64
	LifetimePurchased int64
	LifetimeSpent     int64
	UpdatedAt         time.Time
}

// Available is the spendable portion of the balance.
func (b BalanceRecord) Available() int64 { return b.Balance - b.ReservedBalance }

// TransactionRecord is one immutable ledger row. Rows are never updated.
type TransactionRecord struct {
	TransactionID    uuid.UUID
	StoreID          uuid.UUID
	Amount           int64
	TransactionType  string
	PaymentReference *string
	Description      string
	CreatedAt        time.Time
}

const balanceColumns = `store_id, balance, reserved_balance, lifetime_purchased, lifetime_spent, updated_at`

// CreditStore owns both the balance projection and the transaction ledger.
// Every balance mutation is a single conditional UPDATE so the invariant is
// enforced at the storage layer even under concurrent callers, and the
// ledger append rides in the same transaction.
type CreditStore struct {
	pool *pgxpool.Pool
}

func NewCreditStore(pool *pgxpool.Pool) (*CreditStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &CreditStore{pool: pool}, nil
}

// EnsureBalance creates the zero balance row for a new store.
func (s *CreditStore) EnsureBalance(ctx context.Context, storeID uuid.UUID) (BalanceRecord, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO credit_balances (store_id)
        VALUES ($1)
        ON CONFLICT (store_id) DO UPDATE SET store_id = EXCLUDED.store_id
        RETURNING `+balanceColumns, storeID)
	return scanBalanceRecord(row)
}

// GetBalance returns the current projection.
func (s *CreditStore) GetBalance(ctx context.Context, storeID uuid.UUID) (BalanceRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM credit_balances WHERE store_id = $1`, storeID)
	rec, err := scanBalanceRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceRecord{}, ErrNotFound
	}
	return rec, err
}

// Add increments balance and lifetime_purchased, appending a ledger row.
func (s *CreditStore) Add(ctx context.Context, storeID uuid.UUID, amount int64, txType string, paymentRef *string, description string) (BalanceRecord, error) {
	return s.mutate(ctx, storeID, amount, txType, paymentRef, description, `
        UPDATE credit_balances
        SET balance = balance + $2,
            lifetime_purchased = lifetime_purchased + $2,
            updated_at = now()
        WHERE store_id = $1
        RETURNING `+balanceColumns)
}

// Deduct removes credits from the available balance. The guard clause makes
// the check-and-debit a single atomic statement.
func (s *CreditStore) Deduct(ctx context.Context, storeID uuid.UUID, amount int64, description string) (BalanceRecord, error) {
	return s.mutate(ctx, storeID, -amount, TxAdjustment, nil, description, `
        UPDATE credit_balances
        SET balance = balance - $2,
            lifetime_spent = lifetime_spent + $2,
            updated_at = now()
        WHERE store_id = $1 AND balance - reserved_balance >= $2
        RETURNING `+balanceColumns)
}

// Reserve moves capacity from available into reserved without changing
// balance, guarded the same way as Deduct.
func (s *CreditStore) Reserve(ctx context.Context, storeID uuid.UUID, amount int64) (BalanceRecord, error) {
	row := s.pool.QueryRow(ctx, `
        UPDATE credit_balances
        SET reserved_balance = reserved_balance + $2, updated_at = now()
        WHERE store_id = $1 AND balance - reserved_balance >= $2
        RETURNING `+balanceColumns, storeID, amount)
	rec, err := scanBalanceRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceRecord{}, s.classifyGuardMiss(ctx, storeID)
	}
	return rec, err
}

// Release returns reserved capacity, clamped at zero.
func (s *CreditStore) Release(ctx context.Context, storeID uuid.UUID, amount int64) (BalanceRecord, error) {
	row := s.pool.QueryRow(ctx, `
        UPDATE credit_balances
        SET reserved_balance = GREATEST(reserved_balance - $2, 0), updated_at = now()
        WHERE store_id = $1
        RETURNING `+balanceColumns, storeID, amount)
	rec, err := scanBalanceRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceRecord{}, ErrNotFound
	}
	return rec, err
}

// ListTransactions returns the most recent ledger rows for a store.
func (s *CreditStore) ListTransactions(ctx context.Context, storeID uuid.UUID, limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
        SELECT transaction_id, store_id, amount, transaction_type, payment_reference, description, created_at
        FROM credit_transactions
        WHERE store_id = $1
        ORDER BY created_at DESC
        LIMIT $2`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		if err := rows.Scan(&rec.TransactionID, &rec.StoreID, &rec.Amount, &rec.TransactionType,
			&rec.PaymentReference, &rec.Description, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// mutate runs a balance update and its ledger append in one transaction. The
// update statement receives (storeID, abs(amount)); a zero-row result on a
// guarded statement means the invariant blocked the mutation.
func (s *CreditStore) mutate(ctx context.Context, storeID uuid.UUID, signedAmount int64, txType string, paymentRef *string, description, updateSQL string) (BalanceRecord, error) {
	abs := signedAmount
	if abs < 0 {
		abs = -abs
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return BalanceRecord{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, updateSQL, storeID, abs)
	rec, err := scanBalanceRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceRecord{}, s.classifyGuardMiss(ctx, storeID)
	}
	if err != nil {
		return BalanceRecord{}, err
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO credit_transactions (transaction_id, store_id, amount, transaction_type, payment_reference, description)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), storeID, signedAmount, txType, paymentRef, description); err != nil {
		return BalanceRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return BalanceRecord{}, err
	}
	return rec, nil
}

func (s *CreditStore) classifyGuardMiss(ctx context.Context, storeID uuid.UUID) error {
	if _, err := s.GetBalance(ctx, storeID); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrInsufficientBalance
}

func scanBalanceRecord(row pgx.Row) (BalanceRecord, error) {
	var rec BalanceRecord
	err := row.Scan(&rec.StoreID, &rec.Balance, &rec.ReservedBalance,
		&rec.LifetimePurchased, &rec.LifetimeSpent, &rec.UpdatedAt)
	if err != nil {
		return BalanceRecord{}, err
	}
	return rec, nil
}
