package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Errors shared by the registry stores.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// Store lifecycle statuses. Rows only ever move between these through the
// transition methods below; nothing else writes the status column.
const (
	StatusPendingDatabase = "pending_database"
	StatusProvisioning    = "provisioning"
	StatusActive          = "active"
	StatusSuspended       = "suspended"
	StatusFailed          = "failed"
)

// StoreRecord is one row of the master stores table.
type StoreRecord struct {
	StoreID         uuid.UUID
	AccountID       uuid.UUID
	Name            string
	Slug            string
	Status          string
	IsActive        bool
	SuspendedReason *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const storeColumns = `store_id, account_id, name, slug, status, is_active, suspended_reason, created_at, updated_at`

// RegistryStore persists store identity and lifecycle in the master database.
type RegistryStore struct {
	pool *pgxpool.Pool
}

// NewRegistryStore creates a store; assumes the registry DDL already ran.
func NewRegistryStore(pool *pgxpool.Pool) (*RegistryStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &RegistryStore{pool: pool}, nil
}

// Create inserts a new store in pending_database state.
func (s *RegistryStore) Create(ctx context.Context, rec StoreRecord) (StoreRecord, error) {
	if rec.StoreID == uuid.Nil {
		return StoreRecord{}, errors.New("store id is required")
	}
	if rec.AccountID == uuid.Nil {
		return StoreRecord{}, errors.New("account id is required")
	}

	row := s.pool.QueryRow(ctx, `
        INSERT INTO stores (store_id, account_id, name, slug, status, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, FALSE, now(), now())
        RETURNING `+storeColumns,
		rec.StoreID, rec.AccountID, rec.Name, rec.Slug, StatusPendingDatabase,
	)
	return scanStoreRecord(row)
}

// Get returns a store by id.
func (s *RegistryStore) Get(ctx context.Context, id uuid.UUID) (StoreRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE store_id = $1`, id)
	rec, err := scanStoreRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoreRecord{}, ErrNotFound
	}
	return rec, err
}

// ListByAccount returns all stores owned by an account, newest first.
func (s *RegistryStore) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]StoreRecord, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+storeColumns+` FROM stores
        WHERE account_id = $1
        ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoreRecord
	for rows.Next() {
		rec, err := scanStoreRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByAccount returns how many non-suspended stores an account owns, used
// to enforce the per-account store ceiling.
func (s *RegistryStore) CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
        SELECT count(*) FROM stores
        WHERE account_id = $1 AND status <> $2`, accountID, StatusSuspended).Scan(&count)
	return count, err
}

// StartProvisioning transitions pending_database -> provisioning. The guard
// in the WHERE clause serialises racing provisioners: the second caller sees
// ErrInvalidTransition because the first already moved the row.
func (s *RegistryStore) StartProvisioning(ctx context.Context, id uuid.UUID) (StoreRecord, error) {
	return s.transition(ctx, id, StatusProvisioning, false, nil, StatusPendingDatabase)
}

// CompleteProvisioning transitions provisioning -> active and flips is_active.
func (s *RegistryStore) CompleteProvisioning(ctx context.Context, id uuid.UUID) (StoreRecord, error) {
	return s.transition(ctx, id, StatusActive, true, nil, StatusProvisioning)
}

// RevertToPending returns a failed provisioning run to pending_database so the
// store stays retryable. Legal only from provisioning.
func (s *RegistryStore) RevertToPending(ctx context.Context, id uuid.UUID) (StoreRecord, error) {
	return s.transition(ctx, id, StatusPendingDatabase, false, nil, StatusProvisioning)
}

// Suspend moves a store out of service from any state. Stores are never
// physically deleted; suspension with a recorded reason is the terminal form
// of deletion.
func (s *RegistryStore) Suspend(ctx context.Context, id uuid.UUID, reason string) (StoreRecord, error) {
	return s.transition(ctx, id, StatusSuspended, false, &reason,
		StatusPendingDatabase, StatusProvisioning, StatusActive, StatusFailed)
}

func (s *RegistryStore) transition(ctx context.Context, id uuid.UUID, to string, active bool, reason *string, from ...string) (StoreRecord, error) {
	row := s.pool.QueryRow(ctx, `
        UPDATE stores
        SET status = $2, is_active = $3, suspended_reason = $4, updated_at = now()
        WHERE store_id = $1 AND status = ANY($5)
        RETURNING `+storeColumns,
		id, to, active, reason, from,
	)
	rec, err := scanStoreRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing row from a row in the wrong state.
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, ErrNotFound) {
			return StoreRecord{}, ErrNotFound
		}
		return StoreRecord{}, fmt.Errorf("%w: store %s is not in %v", ErrInvalidTransition, id, from)
	}
	return rec, err
}

func scanStoreRecord(row pgx.Row) (StoreRecord, error) {
	var rec StoreRecord
	err := row.Scan(
		&rec.StoreID, &rec.AccountID, &rec.Name, &rec.Slug, &rec.Status,
		&rec.IsActive, &rec.SuspendedReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return StoreRecord{}, err
	}
	return rec, nil
}
