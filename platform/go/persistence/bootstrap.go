package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/vendica/vendica-platform/database"
)

// BootstrapRegistrySchema applies the master registry DDL in a single
// transaction. SQL is embedded at build time so binaries stay
// self-contained. The helper is idempotent and intended for CLI bootstrap
// and tests.
func BootstrapRegistrySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("bootstrap registry schema: pool is required")
	}

	statements := sqlassets.SplitStatements(sqlassets.RegistrySQL)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply registry ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}
