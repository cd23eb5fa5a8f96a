package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DomainRecord is a resolved hostname -> store mapping, joined with the
// owning store so callers get routing identity in one lookup.
type DomainRecord struct {
	DomainID       uuid.UUID
	StoreID        uuid.UUID
	Hostname       string
	IsPrimary      bool
	StoreSlug      string
	StoreStatus    string
	AccessCount    int64
	LastAccessedAt *time.Time
}

// DomainStore reads verified domain mappings from the master registry.
type DomainStore struct {
	pool *pgxpool.Pool
}

func NewDomainStore(pool *pgxpool.Pool) (*DomainStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &DomainStore{pool: pool}, nil
}

// ResolveHostname returns the mapping for a hostname, requiring the mapping
// to be verified and the store to be active. Anything else is ErrNotFound;
// an unverified or suspended mapping must route exactly like a missing one.
func (s *DomainStore) ResolveHostname(ctx context.Context, hostname string) (DomainRecord, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT d.domain_id, d.store_id, d.hostname, d.is_primary,
               st.slug, st.status, d.access_count, d.last_accessed_at
        FROM domain_mappings d
        JOIN stores st ON st.store_id = d.store_id
        WHERE d.hostname = $1
          AND d.verification_status = 'verified'
          AND st.is_active = TRUE
          AND st.status = $2`,
		hostname, StatusActive,
	)

	var rec DomainRecord
	err := row.Scan(
		&rec.DomainID, &rec.StoreID, &rec.Hostname, &rec.IsPrimary,
		&rec.StoreSlug, &rec.StoreStatus, &rec.AccessCount, &rec.LastAccessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DomainRecord{}, ErrNotFound
	}
	if err != nil {
		return DomainRecord{}, err
	}
	return rec, nil
}

// TouchAccess bumps the access counter for a hostname. Callers treat this as
// fire-and-forget telemetry; failures must never affect request routing.
func (s *DomainStore) TouchAccess(ctx context.Context, hostname string) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE domain_mappings
        SET access_count = access_count + 1, last_accessed_at = now()
        WHERE hostname = $1`, hostname)
	return err
}

// CreateMapping inserts a mapping row. The verification flow that normally
// feeds this lives outside the control plane; the registry still owns the
// write so provisioning can assign the platform hostname.
func (s *DomainStore) CreateMapping(ctx context.Context, storeID uuid.UUID, hostname string, isPrimary bool, verificationStatus string) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO domain_mappings (domain_id, store_id, hostname, is_primary, verification_status)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (hostname) DO NOTHING`,
		uuid.New(), storeID, hostname, isPrimary, verificationStatus)
	return err
}
