// Package router hands out live tenant database handles keyed by store id.
// Handles are built from decrypted credentials on first use and cached for
// the life of the process; credential replacement and store suspension must
// invalidate the cached handle explicitly.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vendica/vendica-platform/platform/go/metrics"
	"github.com/vendica/vendica-platform/platform/go/persistence"
	"github.com/vendica/vendica-platform/platform/go/vault"
)

// ErrNoCredential is returned when a store has no credential row. The router
// never retries on its own; the caller decides whether to surface or collect.
var ErrNoCredential = errors.New("no database credential for store")

// ConnectionError wraps a failure to open or verify a tenant connection.
// Host is the non-sensitive endpoint for diagnostics; the secret never
// appears in the error chain.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tenant database %s unreachable: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// undefinedTableCode is the Postgres SQLSTATE for a missing relation. A
// reachable database whose root table does not exist yet is a valid
// connected-but-unprovisioned state, not a failure.
const undefinedTableCode = "42P01"

// rootTable is the tenant table whose presence marks the database as
// provisioned.
const rootTable = "stores"

// TenantPool is the slice of pgxpool.Pool behaviour the control plane needs
// from a tenant handle. *pgxpool.Pool satisfies it; tests substitute fakes.
type TenantPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// CredentialSource reads and updates credential rows in the master registry.
type CredentialSource interface {
	Get(ctx context.Context, storeID uuid.UUID) (persistence.CredentialRecord, error)
	RecordTest(ctx context.Context, storeID uuid.UUID, status string) (persistence.CredentialRecord, error)
}

// OpenFunc turns decrypted credentials into a live tenant handle.
type OpenFunc func(ctx context.Context, creds vault.Credentials) (TenantPool, error)

// ConnectionInfo is the observable, non-sensitive state of a store's
// database connection.
type ConnectionInfo struct {
	DatabaseKind     string     `json:"databaseKind"`
	Host             string     `json:"host"`
	ConnectionStatus string     `json:"connectionStatus"`
	LastTestedAt     *time.Time `json:"lastTestedAt,omitempty"`
}

// Router is the process-wide cache of tenant database handles. Construct one
// per process and inject it; it is not a package-level singleton so tests can
// run isolated instances.
type Router struct {
	credentials CredentialSource
	vault       *vault.Vault
	open        OpenFunc
	logger      *zap.Logger

	sfg singleflight.Group
	m   sync.Map // uuid.UUID -> TenantPool
}

// Option tweaks Router construction.
type Option func(*Router)

// WithOpenFunc replaces the handle opener; used by tests and by deployments
// that need custom pool settings.
func WithOpenFunc(open OpenFunc) Option {
	return func(r *Router) { r.open = open }
}

// New constructs a Router with explicit dependencies.
func New(credentials CredentialSource, v *vault.Vault, logger *zap.Logger, opts ...Option) *Router {
	if credentials == nil {
		panic("router: credential source is required")
	}
	if v == nil {
		panic("router: vault is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		credentials: credentials,
		vault:       v,
		open:        defaultOpen,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the cached handle for a store, opening one on first use.
// Concurrent first calls for the same store collapse into a single open.
func (r *Router) Get(ctx context.Context, storeID uuid.UUID) (TenantPool, error) {
	if v, ok := r.m.Load(storeID); ok {
		return v.(TenantPool), nil
	}

	v, err, _ := r.sfg.Do(storeID.String(), func() (any, error) {
		// Double-check after the singleflight barrier.
		if v, ok := r.m.Load(storeID); ok {
			return v.(TenantPool), nil
		}

		creds, host, err := r.decryptCredentials(ctx, storeID)
		if err != nil {
			return nil, err
		}

		pool, err := r.open(ctx, creds)
		if err != nil {
			metrics.TenantPoolErrorsTotal.Inc()
			return nil, &ConnectionError{Host: host, Err: err}
		}

		r.m.Store(storeID, pool)
		metrics.TenantPoolOpensTotal.Inc()
		metrics.OpenTenantPools.Inc()
		r.logger.Info("tenant pool opened", zap.String("store_id", storeID.String()), zap.String("host", host))
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(TenantPool), nil
}

// Invalidate drops and closes the cached handle for a store. Call after
// credential replacement or suspension.
func (r *Router) Invalidate(storeID uuid.UUID) {
	if v, ok := r.m.LoadAndDelete(storeID); ok {
		v.(TenantPool).Close()
		metrics.OpenTenantPools.Dec()
		r.logger.Info("tenant pool invalidated", zap.String("store_id", storeID.String()))
	}
}

// Clear drops every cached handle.
func (r *Router) Clear() {
	r.m.Range(func(key, value any) bool {
		r.m.Delete(key)
		value.(TenantPool).Close()
		metrics.OpenTenantPools.Dec()
		return true
	})
}

// TestConnection opens (or reuses) the store's handle and performs a cheap
// read against the root table, recording the outcome on the credential row.
// A missing root table still counts as connected: the database is reachable,
// just not provisioned yet.
func (r *Router) TestConnection(ctx context.Context, storeID uuid.UUID) (string, error) {
	pool, err := r.Get(ctx, storeID)
	if err != nil {
		status := ConnectionFailedStatus(err)
		if _, recordErr := r.credentials.RecordTest(ctx, storeID, status); recordErr != nil {
			r.logger.Warn("record connection test", zap.Error(recordErr))
		}
		return status, err
	}

	var one int
	err = pool.QueryRow(ctx, `SELECT 1 FROM `+rootTable+` LIMIT 1`).Scan(&one)
	status := persistence.ConnectionConnected
	switch {
	case err == nil || errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err):
		err = nil
	case errors.Is(err, context.DeadlineExceeded):
		status = persistence.ConnectionTimeout
	default:
		status = persistence.ConnectionFailed
	}

	if _, recordErr := r.credentials.RecordTest(ctx, storeID, status); recordErr != nil {
		r.logger.Warn("record connection test", zap.Error(recordErr))
	}
	if err != nil {
		creds, credErr := r.credentials.Get(ctx, storeID)
		host := ""
		if credErr == nil {
			host = creds.Host
		}
		return status, &ConnectionError{Host: host, Err: err}
	}
	return status, nil
}

// ConnectionInfo exposes connection state without touching secrets.
func (r *Router) ConnectionInfo(ctx context.Context, storeID uuid.UUID) (ConnectionInfo, error) {
	rec, err := r.credentials.Get(ctx, storeID)
	if errors.Is(err, persistence.ErrNotFound) {
		return ConnectionInfo{}, ErrNoCredential
	}
	if err != nil {
		return ConnectionInfo{}, err
	}
	return ConnectionInfo{
		DatabaseKind:     rec.DatabaseKind,
		Host:             rec.Host,
		ConnectionStatus: rec.ConnectionStatus,
		LastTestedAt:     rec.LastTestedAt,
	}, nil
}

// Credentials decrypts the store's credential object for collaborators that
// need it transiently (the provisioning orchestrator). The caller must not
// persist or log the result.
func (r *Router) Credentials(ctx context.Context, storeID uuid.UUID) (vault.Credentials, error) {
	creds, _, err := r.decryptCredentials(ctx, storeID)
	return creds, err
}

func (r *Router) decryptCredentials(ctx context.Context, storeID uuid.UUID) (vault.Credentials, string, error) {
	rec, err := r.credentials.Get(ctx, storeID)
	if errors.Is(err, persistence.ErrNotFound) {
		return vault.Credentials{}, "", ErrNoCredential
	}
	if err != nil {
		return vault.Credentials{}, "", err
	}

	creds, err := r.vault.DecryptCredentials(rec.EncryptedCredentials)
	if err != nil {
		return vault.Credentials{}, "", err
	}
	return creds, rec.Host, nil
}

// ConnectionFailedStatus maps an open error to the status to record.
func ConnectionFailedStatus(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return persistence.ConnectionTimeout
	}
	return persistence.ConnectionFailed
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode
}

// defaultOpen builds a pgx pool from the credential's connection string and
// verifies it with a ping.
func defaultOpen(ctx context.Context, creds vault.Credentials) (TenantPool, error) {
	if creds.ConnectionString == "" {
		return nil, errors.New("credential has no direct connection string")
	}

	cfg, err := pgxpool.ParseConfig(creds.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse tenant dsn: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
