package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sqlassets "github.com/vendica/vendica-platform/database"
	"github.com/vendica/vendica-platform/platform/go/metrics"
)

// PlaceholderStoreID is the store id the seed assets are written against.
// The backfill step re-owns seeded rows to the real store.
const PlaceholderStoreID = "00000000-0000-0000-0000-000000000000"

// Step names, in execution order.
const (
	StepIdempotency = "idempotency-check"
	StepSchema      = "schema"
	StepConstraints = "constraints"
	StepSeed        = "seed"
	StepBackfill    = "tenant-scoping-backfill"
	StepGenesis     = "genesis"
)

// backfillTables are the seeded tables whose rows carry the placeholder
// store id and must be re-owned. The list is fixed: it mirrors the tables
// seed.sql writes to.
var backfillTables = []string{
	"attribute_sets",
	"translations",
	"content_pages",
	"consent_settings",
	"email_templates",
	"payment_methods",
	"document_templates",
	"shipping_methods",
}

// StepError records one tolerated statement failure.
type StepError struct {
	Step      string
	Statement string
	Err       error
}

func (e StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Statement, e.Err)
}

func (e StepError) Unwrap() error { return e.Err }

// Result reports what a provisioning run did. A run with StepErrors is
// still a success as long as the schema pass completed: missing constraints
// or seed rows degrade the store, they do not brick it.
type Result struct {
	AlreadyProvisioned bool
	SchemaOK           bool
	CompletedSteps     []string
	StepErrors         []StepError
}

// Request identifies the store being provisioned.
type Request struct {
	StoreID    uuid.UUID
	StoreName  string
	StoreSlug  string
	AdminEmail string
	// Force skips the idempotency check and re-runs every step. All
	// statements are written to be re-runnable.
	Force bool
}

// Orchestrator drives the provisioning steps against an executor.
type Orchestrator struct {
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{logger: logger}
}

// Provision runs the full step sequence. The schema pass is a fatal gate:
// if any schema statement fails the run aborts with an error and the result
// carries SchemaOK=false. Every later step tolerates per-statement failures,
// collecting them in Result.StepErrors.
func (o *Orchestrator) Provision(ctx context.Context, exec StatementExecutor, req Request) (Result, error) {
	if exec == nil {
		return Result{}, errors.New("statement executor is required")
	}
	if req.StoreID == uuid.Nil {
		return Result{}, errors.New("store id is required")
	}

	log := o.logger.With(zap.String("store_id", req.StoreID.String()))
	var res Result

	if !req.Force {
		provisioned, err := o.alreadyProvisioned(ctx, exec)
		if err != nil {
			metrics.ProvisioningRunsTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("idempotency check: %w", err)
		}
		res.CompletedSteps = append(res.CompletedSteps, StepIdempotency)
		if provisioned {
			log.Info("tenant database already provisioned, skipping")
			res.AlreadyProvisioned = true
			res.SchemaOK = true
			metrics.ProvisioningRunsTotal.WithLabelValues("already_provisioned").Inc()
			return res, nil
		}
	}

	// Schema pass. Tables only, no FKs, so statement order inside the
	// asset never matters and re-runs are safe.
	for _, stmt := range sqlassets.SplitStatements(sqlassets.TenantSchemaSQL) {
		if err := exec.Exec(ctx, stmt); err != nil {
			log.Error("schema statement failed", zap.String("statement", truncate(stmt)), zap.Error(err))
			metrics.ProvisioningRunsTotal.WithLabelValues("schema_failed").Inc()
			return res, fmt.Errorf("schema pass: %q: %w", truncate(stmt), err)
		}
	}
	res.SchemaOK = true
	res.CompletedSteps = append(res.CompletedSteps, StepSchema)

	o.runTolerated(ctx, exec, log, &res, StepConstraints, sqlassets.SplitStatements(sqlassets.TenantConstraintsSQL))
	o.runTolerated(ctx, exec, log, &res, StepSeed, sqlassets.SplitStatements(sqlassets.TenantSeedSQL))
	o.runTolerated(ctx, exec, log, &res, StepBackfill, o.backfillStatements(req.StoreID))
	o.runGenesis(ctx, exec, log, &res, req)

	outcome := "success"
	if len(res.StepErrors) > 0 {
		outcome = "partial"
	}
	metrics.ProvisioningRunsTotal.WithLabelValues(outcome).Inc()
	log.Info("provisioning run finished",
		zap.Strings("completed_steps", res.CompletedSteps),
		zap.Int("step_errors", len(res.StepErrors)),
	)
	return res, nil
}

// alreadyProvisioned probes the root table. A missing root table is the
// canonical "never provisioned" signal; any row (or none) means the schema
// exists.
func (o *Orchestrator) alreadyProvisioned(ctx context.Context, exec StatementExecutor) (bool, error) {
	err := exec.Exec(ctx, "SELECT store_id FROM stores LIMIT 1")
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrUndefinedTable) {
		return false, nil
	}
	return false, err
}

func (o *Orchestrator) runTolerated(ctx context.Context, exec StatementExecutor, log *zap.Logger, res *Result, step string, statements []string) {
	failed := 0
	for _, stmt := range statements {
		if err := exec.Exec(ctx, stmt); err != nil {
			failed++
			res.StepErrors = append(res.StepErrors, StepError{Step: step, Statement: truncate(stmt), Err: err})
			log.Warn("statement failed, continuing",
				zap.String("step", step),
				zap.String("statement", truncate(stmt)),
				zap.Error(err),
			)
		}
	}
	res.CompletedSteps = append(res.CompletedSteps, step)
	if failed > 0 {
		log.Warn("step completed with failures", zap.String("step", step), zap.Int("failed", failed))
	}
}

// backfillStatements re-own seeded rows from the placeholder store id to
// the real one. The table list is fixed; re-running is a no-op because no
// placeholder rows remain.
func (o *Orchestrator) backfillStatements(storeID uuid.UUID) []string {
	stmts := make([]string, 0, len(backfillTables))
	for _, table := range backfillTables {
		stmts = append(stmts, fmt.Sprintf(
			"UPDATE %s SET store_id = '%s' WHERE store_id = '%s'",
			table, storeID, PlaceholderStoreID,
		))
	}
	return stmts
}

// runGenesis writes the root store row and the first admin user. Both are
// conflict-tolerant: re-running provisioning must not fail on rows that
// already exist.
func (o *Orchestrator) runGenesis(ctx context.Context, exec StatementExecutor, log *zap.Logger, res *Result, req Request) {
	name := req.StoreName
	if name == "" {
		name = "New store"
	}
	slug := req.StoreSlug
	if slug == "" {
		slug = req.StoreID.String()
	}

	statements := []string{
		fmt.Sprintf(
			"INSERT INTO stores (store_id, name, slug) VALUES ('%s', '%s', '%s') ON CONFLICT (store_id) DO NOTHING",
			req.StoreID, sqlLiteral(name), sqlLiteral(slug),
		),
	}
	if req.AdminEmail != "" {
		statements = append(statements, fmt.Sprintf(
			"INSERT INTO users (user_id, store_id, email, role) VALUES ('%s', '%s', '%s', 'admin') ON CONFLICT (email) DO NOTHING",
			uuid.New(), req.StoreID, sqlLiteral(req.AdminEmail),
		))
	}
	o.runTolerated(ctx, exec, log, res, StepGenesis, statements)
}

// sqlLiteral escapes a value for inline use; the executors take whole
// statements, so genesis values cannot ride as bind parameters.
func sqlLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func truncate(stmt string) string {
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) > 80 {
		return stmt[:80] + "..."
	}
	return stmt
}
