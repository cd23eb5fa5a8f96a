// Package service implements the store lifecycle: registration, database
// connection and provisioning, suspension, and the aggregate detail view.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendica/vendica-platform/domains/stores/be/provisioning"
	"github.com/vendica/vendica-platform/platform/go/persistence"
	"github.com/vendica/vendica-platform/platform/go/router"
	"github.com/vendica/vendica-platform/platform/go/vault"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("store not found")
	ErrInvalidState = errors.New("store state does not allow this operation")
	ErrSuspended    = errors.New("store is suspended")
)

// StoreLimitError is returned when an account hits its store ceiling.
type StoreLimitError struct {
	Limit int
}

func (e *StoreLimitError) Error() string {
	return fmt.Sprintf("account already has the maximum of %d stores", e.Limit)
}

// ConnectionFailedError reports that the supplied credentials could not
// reach the tenant database. Status is the recorded connection status.
type ConnectionFailedError struct {
	Status string
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("database connection test failed with status %q", e.Status)
}

// ProvisioningFailedError wraps a fatal provisioning run.
type ProvisioningFailedError struct {
	Result provisioning.Result
	Err    error
}

func (e *ProvisioningFailedError) Error() string {
	return fmt.Sprintf("provisioning failed: %v", e.Err)
}

func (e *ProvisioningFailedError) Unwrap() error { return e.Err }

// Store is the domain view of a registry entry.
type Store struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	Name            string
	Slug            string
	Status          string
	IsActive        bool
	SuspendedReason *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreditSummary is the balance view embedded in store details.
type CreditSummary struct {
	Balance         int64
	ReservedBalance int64
	Available       int64
}

// Details aggregates the registry row with connection and credit state.
// Connection and Credits are nil when the store has none yet.
type Details struct {
	Store      Store
	Connection *router.ConnectionInfo
	Credits    *CreditSummary
}

// CreateInput is the payload for registering a store.
type CreateInput struct {
	AccountID uuid.UUID
	Name      string
	Slug      string
}

// ConnectInput carries the database credentials for a store.
type ConnectInput struct {
	Kind        string
	Credentials vault.Credentials
	AdminEmail  string
	// Force re-runs provisioning even when the root table already exists.
	Force bool
}

// ConnectResult reports the outcome of a connect-database flow. Hostname is
// the platform hostname assigned on success; empty when assignment is
// disabled or failed.
type ConnectResult struct {
	Store        Store
	Hostname     string
	Provisioning provisioning.Result
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Config carries service-level settings.
type Config struct {
	// MaxStoresPerAccount caps non-suspended stores per account.
	MaxStoresPerAccount int
	// PlatformDomain is the suffix for auto-assigned store hostnames
	// (slug.PlatformDomain). Empty disables hostname assignment.
	PlatformDomain string
}

// Service provides store lifecycle operations.
type Service struct {
	repo        Repository
	credentials CredentialStore
	domains     DomainStore
	credits     Credits
	router      ConnectionRouter
	resolver    ResolverCache
	vault       *vault.Vault
	provisioner Provisioner
	logger      *zap.Logger
	cfg         Config
}

// New constructs a Service with required dependencies.
func New(
	repo Repository,
	credentials CredentialStore,
	domains DomainStore,
	credits Credits,
	connRouter ConnectionRouter,
	resolver ResolverCache,
	v *vault.Vault,
	provisioner Provisioner,
	logger *zap.Logger,
	cfg Config,
) *Service {
	if repo == nil {
		panic("stores repo is required")
	}
	if credentials == nil {
		panic("credential store is required")
	}
	if credits == nil {
		panic("credits dependency is required")
	}
	if connRouter == nil {
		panic("connection router is required")
	}
	if v == nil {
		panic("vault is required")
	}
	if provisioner == nil {
		panic("provisioner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxStoresPerAccount <= 0 {
		cfg.MaxStoresPerAccount = 3
	}
	return &Service{
		repo:        repo,
		credentials: credentials,
		domains:     domains,
		credits:     credits,
		router:      connRouter,
		resolver:    resolver,
		vault:       v,
		provisioner: provisioner,
		logger:      logger,
		cfg:         cfg,
	}
}

// Create registers a store in pending_database state and initializes its
// credit balance at zero.
func (s *Service) Create(ctx context.Context, input CreateInput) (Store, error) {
	if input.AccountID == uuid.Nil {
		return Store{}, errors.New("account id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Store{}, errors.New("store name is required")
	}
	slug := strings.TrimSpace(strings.ToLower(input.Slug))
	if slug == "" {
		slug = slugify(name)
	}
	if !slugPattern.MatchString(slug) {
		return Store{}, fmt.Errorf("invalid slug %q", slug)
	}

	count, err := s.repo.CountByAccount(ctx, input.AccountID)
	if err != nil {
		return Store{}, fmt.Errorf("count stores: %w", err)
	}
	if count >= s.cfg.MaxStoresPerAccount {
		return Store{}, &StoreLimitError{Limit: s.cfg.MaxStoresPerAccount}
	}

	rec, err := s.repo.Create(ctx, persistence.StoreRecord{
		StoreID:   uuid.New(),
		AccountID: input.AccountID,
		Name:      name,
		Slug:      slug,
	})
	if err != nil {
		return Store{}, fmt.Errorf("create store: %w", err)
	}

	if _, err := s.credits.EnsureBalance(ctx, rec.StoreID); err != nil {
		// The store exists; a missing zero balance is recoverable on the
		// first credit operation.
		s.logger.Warn("credit balance init failed", zap.String("store_id", rec.StoreID.String()), zap.Error(err))
	}

	return toStore(rec), nil
}

// Get returns the aggregate store view. Connection and credit lookups are
// best-effort: a store without credentials still renders.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Details, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Details{}, ErrNotFound
		}
		return Details{}, fmt.Errorf("get store: %w", err)
	}

	details := Details{Store: toStore(rec)}

	if info, err := s.router.ConnectionInfo(ctx, id); err == nil {
		details.Connection = &info
	} else if !errors.Is(err, router.ErrNoCredential) {
		s.logger.Warn("connection info lookup failed", zap.String("store_id", id.String()), zap.Error(err))
	}

	if bal, err := s.credits.GetBalance(ctx, id); err == nil {
		details.Credits = &CreditSummary{
			Balance:         bal.Balance,
			ReservedBalance: bal.ReservedBalance,
			Available:       bal.Available(),
		}
	} else if !errors.Is(err, persistence.ErrNotFound) {
		s.logger.Warn("credit balance lookup failed", zap.String("store_id", id.String()), zap.Error(err))
	}

	return details, nil
}

// List returns all stores owned by an account, newest first.
func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]Store, error) {
	recs, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	out := make([]Store, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toStore(rec))
	}
	return out, nil
}

// ConnectDatabase validates and stores credentials, tests the connection,
// and provisions the tenant database. On any failure after the lifecycle
// moved to provisioning, the store reverts to pending_database so the
// operation stays retryable.
func (s *Service) ConnectDatabase(ctx context.Context, id uuid.UUID, input ConnectInput) (ConnectResult, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ConnectResult{}, ErrNotFound
		}
		return ConnectResult{}, fmt.Errorf("get store: %w", err)
	}
	if rec.Status == persistence.StatusSuspended {
		return ConnectResult{}, ErrSuspended
	}

	if err := input.Credentials.Validate(); err != nil {
		return ConnectResult{}, fmt.Errorf("invalid credentials: %w", err)
	}

	kind := input.Kind
	if kind == "" {
		kind = persistence.KindManagedPostgres
	}

	encrypted, err := s.vault.EncryptCredentials(input.Credentials)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("encrypt credentials: %w", err)
	}
	if _, err := s.credentials.Upsert(ctx, id, kind, encrypted, input.Credentials.Host()); err != nil {
		return ConnectResult{}, fmt.Errorf("store credentials: %w", err)
	}

	// New credentials invalidate any cached handle built from old ones.
	s.router.Invalidate(id)

	if _, err := s.repo.StartProvisioning(ctx, id); err != nil {
		if errors.Is(err, persistence.ErrInvalidTransition) {
			return ConnectResult{}, ErrInvalidState
		}
		return ConnectResult{}, fmt.Errorf("start provisioning: %w", err)
	}

	result, err := s.provisionDatabase(ctx, id, input)
	if err != nil {
		if _, revertErr := s.repo.RevertToPending(ctx, id); revertErr != nil {
			s.logger.Error("revert to pending failed", zap.String("store_id", id.String()), zap.Error(revertErr))
		}
		return ConnectResult{Provisioning: result}, err
	}

	final, err := s.repo.CompleteProvisioning(ctx, id)
	if err != nil {
		return ConnectResult{Provisioning: result}, fmt.Errorf("complete provisioning: %w", err)
	}

	hostname := s.assignPlatformHostname(ctx, final)

	return ConnectResult{Store: toStore(final), Hostname: hostname, Provisioning: result}, nil
}

// Suspend takes a store out of service and drops its cached routing.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID, reason string) (Store, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Store{}, errors.New("suspension reason is required")
	}
	rec, err := s.repo.Suspend(ctx, id, reason)
	if err != nil {
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			return Store{}, ErrNotFound
		case errors.Is(err, persistence.ErrInvalidTransition):
			return Store{}, ErrInvalidState
		default:
			return Store{}, fmt.Errorf("suspend store: %w", err)
		}
	}

	s.router.Invalidate(id)
	if s.resolver != nil {
		s.resolver.InvalidateStore(id)
	}
	return toStore(rec), nil
}

func (s *Service) provisionDatabase(ctx context.Context, id uuid.UUID, input ConnectInput) (provisioning.Result, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return provisioning.Result{}, fmt.Errorf("get store: %w", err)
	}

	exec, err := s.buildExecutor(ctx, id, input.Credentials)
	if err != nil {
		s.recordTest(ctx, id, persistence.ConnectionFailed)
		return provisioning.Result{}, &ConnectionFailedError{Status: persistence.ConnectionFailed}
	}

	status := s.testConnection(ctx, id, input.Credentials, exec)
	if status != persistence.ConnectionConnected {
		return provisioning.Result{}, &ConnectionFailedError{Status: status}
	}

	result, err := s.provisioner.Provision(ctx, exec, provisioning.Request{
		StoreID:    id,
		StoreName:  rec.Name,
		StoreSlug:  rec.Slug,
		AdminEmail: input.AdminEmail,
		Force:      input.Force,
	})
	if err != nil {
		return result, &ProvisioningFailedError{Result: result, Err: err}
	}
	return result, nil
}

// buildExecutor picks the statement path: a direct pool when a connection
// string was supplied, the provider's management API otherwise.
func (s *Service) buildExecutor(ctx context.Context, id uuid.UUID, creds vault.Credentials) (provisioning.StatementExecutor, error) {
	if creds.ConnectionString != "" {
		pool, err := s.router.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return provisioning.NewPoolExecutor(pool), nil
	}
	endpoint := strings.TrimSuffix(creds.ProjectURL, "/") + "/database/query"
	return provisioning.NewManagementAPIExecutor(endpoint, creds.ServiceRoleKey, 30*time.Second)
}

// testConnection probes the tenant database and records the outcome. A
// missing root table still counts as connected: reachable but never
// provisioned.
func (s *Service) testConnection(ctx context.Context, id uuid.UUID, creds vault.Credentials, exec provisioning.StatementExecutor) string {
	if creds.ConnectionString != "" {
		status, err := s.router.TestConnection(ctx, id)
		if err != nil && status == "" {
			status = persistence.ConnectionFailed
		}
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var status string
	switch err := exec.Exec(probeCtx, "SELECT 1"); {
	case err == nil, errors.Is(err, provisioning.ErrUndefinedTable):
		status = persistence.ConnectionConnected
	case errors.Is(err, context.DeadlineExceeded):
		status = persistence.ConnectionTimeout
	default:
		status = persistence.ConnectionFailed
	}
	s.recordTest(ctx, id, status)
	return status
}

func (s *Service) recordTest(ctx context.Context, id uuid.UUID, status string) {
	if _, err := s.credentials.RecordTest(ctx, id, status); err != nil {
		s.logger.Warn("record connection test failed", zap.String("store_id", id.String()), zap.Error(err))
	}
}

// assignPlatformHostname maps slug.<platform domain> to the store and
// returns the assigned name. Failure is logged, not returned: the store is
// live, it just has no hostname yet, so the result is empty.
func (s *Service) assignPlatformHostname(ctx context.Context, rec persistence.StoreRecord) string {
	if s.cfg.PlatformDomain == "" || s.domains == nil {
		return ""
	}
	hostname := rec.Slug + "." + s.cfg.PlatformDomain
	if err := s.domains.CreateMapping(ctx, rec.StoreID, hostname, true, "verified"); err != nil {
		s.logger.Warn("platform hostname assignment failed",
			zap.String("store_id", rec.StoreID.String()),
			zap.String("hostname", hostname),
			zap.Error(err),
		)
		return ""
	}
	return hostname
}

func toStore(rec persistence.StoreRecord) Store {
	return Store{
		ID:              rec.StoreID,
		AccountID:       rec.AccountID,
		Name:            rec.Name,
		Slug:            rec.Slug,
		Status:          rec.Status,
		IsActive:        rec.IsActive,
		SuspendedReason: rec.SuspendedReason,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
