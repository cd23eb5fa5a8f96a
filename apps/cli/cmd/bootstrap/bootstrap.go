package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vendica/vendica-platform/platform/go/persistence"
)

// Notes/constraints:
// - Bootstrap targets the master registry database only. Per-store databases
//   are provisioned later via `vendica store provision` or the API.
// - The registry DDL is idempotent, so re-running bootstrap is safe.

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (registry schema, first store)",
		Long:  "Bootstrap platform resources such as the master registry schema and an optional first store record.",
	}

	cmd.AddCommand(registryCommand())
	return cmd
}

func registryCommand() *cobra.Command {
	var (
		databaseURL string
		accountID   string
		storeName   string
		storeSlug   string
	)

	c := &cobra.Command{
		Use:   "registry",
		Short: "Create the master registry tables and optionally a first store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapRegistrySchema(ctx, pool); err != nil {
				return fmt.Errorf("bootstrap registry schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Registry schema ready.")

			if strings.TrimSpace(accountID) == "" {
				return nil
			}

			account, err := uuid.Parse(accountID)
			if err != nil {
				return fmt.Errorf("invalid account-id uuid: %w", err)
			}
			if strings.TrimSpace(storeName) == "" || strings.TrimSpace(storeSlug) == "" {
				return fmt.Errorf("store-name and store-slug are required when account-id is set")
			}

			registry, err := persistence.NewRegistryStore(pool)
			if err != nil {
				return fmt.Errorf("init registry store: %w", err)
			}

			rec, err := registry.Create(ctx, persistence.StoreRecord{
				StoreID:   uuid.New(),
				AccountID: account,
				Name:      storeName,
				Slug:      storeSlug,
			})
			if err != nil {
				return fmt.Errorf("create store: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Bootstrap complete. Store: %s (%s) status=%s\n", rec.Slug, rec.StoreID, rec.Status)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string for the master registry")
	c.Flags().StringVar(&accountID, "account-id", "", "Account UUID for an optional first store record")
	c.Flags().StringVar(&storeName, "store-name", "", "Display name for the first store")
	c.Flags().StringVar(&storeSlug, "store-slug", "", "Slug for the first store")

	_ = c.MarkFlagRequired("database-url")

	return c
}
