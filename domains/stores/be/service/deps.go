package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/vendica/vendica-platform/domains/stores/be/provisioning"
	"github.com/vendica/vendica-platform/platform/go/persistence"
	"github.com/vendica/vendica-platform/platform/go/router"
)

// Repository abstracts the master registry store table.
type Repository interface {
	Create(ctx context.Context, rec persistence.StoreRecord) (persistence.StoreRecord, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.StoreRecord, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]persistence.StoreRecord, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error)
	StartProvisioning(ctx context.Context, id uuid.UUID) (persistence.StoreRecord, error)
	CompleteProvisioning(ctx context.Context, id uuid.UUID) (persistence.StoreRecord, error)
	RevertToPending(ctx context.Context, id uuid.UUID) (persistence.StoreRecord, error)
	Suspend(ctx context.Context, id uuid.UUID, reason string) (persistence.StoreRecord, error)
}

// CredentialStore persists encrypted credentials and test outcomes.
type CredentialStore interface {
	Upsert(ctx context.Context, storeID uuid.UUID, kind, encrypted, host string) (persistence.CredentialRecord, error)
	Get(ctx context.Context, storeID uuid.UUID) (persistence.CredentialRecord, error)
	RecordTest(ctx context.Context, storeID uuid.UUID, status string) (persistence.CredentialRecord, error)
}

// DomainStore creates hostname mappings for new stores.
type DomainStore interface {
	CreateMapping(ctx context.Context, storeID uuid.UUID, hostname string, isPrimary bool, verificationStatus string) error
}

// Credits initializes and reads store credit balances.
type Credits interface {
	EnsureBalance(ctx context.Context, storeID uuid.UUID) (persistence.BalanceRecord, error)
	GetBalance(ctx context.Context, storeID uuid.UUID) (persistence.BalanceRecord, error)
}

// ConnectionRouter is the subset of the connection router the service needs.
type ConnectionRouter interface {
	Get(ctx context.Context, storeID uuid.UUID) (router.TenantPool, error)
	Invalidate(storeID uuid.UUID)
	TestConnection(ctx context.Context, storeID uuid.UUID) (string, error)
	ConnectionInfo(ctx context.Context, storeID uuid.UUID) (router.ConnectionInfo, error)
}

// ResolverCache invalidates cached hostname routing when stores change.
type ResolverCache interface {
	InvalidateStore(storeID uuid.UUID)
}

// Provisioner runs the tenant database setup steps.
type Provisioner interface {
	Provision(ctx context.Context, exec provisioning.StatementExecutor, req provisioning.Request) (provisioning.Result, error)
}
