package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connection test outcomes recorded on the credential row.
const (
	ConnectionPending   = "pending"
	ConnectionConnected = "connected"
	ConnectionFailed    = "failed"
	ConnectionTimeout   = "timeout"
)

// Database kinds a store can connect.
const (
	KindManagedPostgres = "managed_postgres"
	KindPostgres        = "postgres"
	KindMySQL           = "mysql"
)

// CredentialRecord is the persisted, non-sensitive view of a store's database
// credential. EncryptedCredentials is opaque ciphertext; the plaintext never
// touches this package.
type CredentialRecord struct {
	StoreID              uuid.UUID
	DatabaseKind         string
	EncryptedCredentials string
	Host                 string
	ConnectionStatus     string
	LastTestedAt         *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

const credentialColumns = `store_id, database_kind, encrypted_credentials, host, connection_status, last_tested_at, created_at, updated_at`

// CredentialStore persists encrypted per-store database credentials.
type CredentialStore struct {
	pool *pgxpool.Pool
}

func NewCredentialStore(pool *pgxpool.Pool) (*CredentialStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &CredentialStore{pool: pool}, nil
}

// Upsert stores or replaces the credential row for a store. Replacing resets
// the connection status to pending; the previous test result says nothing
// about the new secret.
func (s *CredentialStore) Upsert(ctx context.Context, storeID uuid.UUID, kind, encrypted, host string) (CredentialRecord, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO store_database_credentials (store_id, database_kind, encrypted_credentials, host, connection_status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, now(), now())
        ON CONFLICT (store_id) DO UPDATE SET
            database_kind = EXCLUDED.database_kind,
            encrypted_credentials = EXCLUDED.encrypted_credentials,
            host = EXCLUDED.host,
            connection_status = EXCLUDED.connection_status,
            last_tested_at = NULL,
            updated_at = now()
        RETURNING `+credentialColumns,
		storeID, kind, encrypted, host, ConnectionPending,
	)
	return scanCredentialRecord(row)
}

// Get returns the credential row for a store.
func (s *CredentialStore) Get(ctx context.Context, storeID uuid.UUID) (CredentialRecord, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+credentialColumns+` FROM store_database_credentials WHERE store_id = $1`, storeID)
	rec, err := scanCredentialRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CredentialRecord{}, ErrNotFound
	}
	return rec, err
}

// RecordTest stores the outcome of a connection test.
func (s *CredentialStore) RecordTest(ctx context.Context, storeID uuid.UUID, status string) (CredentialRecord, error) {
	row := s.pool.QueryRow(ctx, `
        UPDATE store_database_credentials
        SET connection_status = $2, last_tested_at = now(), updated_at = now()
        WHERE store_id = $1
        RETURNING `+credentialColumns,
		storeID, status,
	)
	rec, err := scanCredentialRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CredentialRecord{}, ErrNotFound
	}
	return rec, err
}

func scanCredentialRecord(row pgx.Row) (CredentialRecord, error) {
	var rec CredentialRecord
	err := row.Scan(
		&rec.StoreID, &rec.DatabaseKind, &rec.EncryptedCredentials, &rec.Host,
		&rec.ConnectionStatus, &rec.LastTestedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return CredentialRecord{}, err
	}
	return rec, nil
}
