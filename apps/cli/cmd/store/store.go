package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vendica/vendica-platform/domains/stores/be/provisioning"
	"github.com/vendica/vendica-platform/platform/go/logging"
	"github.com/vendica/vendica-platform/platform/go/persistence"
)

// Command groups store-level helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Store utilities (provision a store database)",
	}

	cmd.AddCommand(provisionCommand())
	return cmd
}

func provisionCommand() *cobra.Command {
	var (
		storeDBURL string
		storeID    string
		storeName  string
		storeSlug  string
		adminEmail string
		force      bool
	)

	c := &cobra.Command{
		Use:   "provision",
		Short: "Run the provisioning steps (schema, constraints, seed, backfill, genesis) against a store database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(storeID)
			if err != nil {
				return fmt.Errorf("invalid store-id uuid: %w", err)
			}

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: storeDBURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			logger, err := logging.NewLogger(logging.Config{Component: "cli"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			orch := provisioning.New(logger)
			res, err := orch.Provision(ctx, provisioning.NewPoolExecutor(pool), provisioning.Request{
				StoreID:    id,
				StoreName:  storeName,
				StoreSlug:  storeSlug,
				AdminEmail: adminEmail,
				Force:      force,
			})
			if err != nil {
				return fmt.Errorf("provision: %w", err)
			}

			if res.AlreadyProvisioned {
				fmt.Fprintln(cmd.OutOrStdout(), "Store database already provisioned; nothing to do (use --force to re-run).")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Provisioning complete. Steps: %v\n", res.CompletedSteps)
			for _, stepErr := range res.StepErrors {
				fmt.Fprintf(cmd.OutOrStdout(), "  tolerated failure [%s]: %v\n", stepErr.Step, stepErr.Err)
			}
			return nil
		},
	}

	c.Flags().StringVar(&storeDBURL, "store-db-url", "", "PostgreSQL connection string for the store database")
	c.Flags().StringVar(&storeID, "store-id", "", "Store UUID used for tenant-scoping backfill and genesis records")
	c.Flags().StringVar(&storeName, "store-name", "", "Store display name for the genesis record")
	c.Flags().StringVar(&storeSlug, "store-slug", "", "Store slug for the genesis record")
	c.Flags().StringVar(&adminEmail, "admin-email", "", "Initial admin user email for the genesis record")
	c.Flags().BoolVar(&force, "force", false, "Skip the idempotency probe and re-run every step")

	_ = c.MarkFlagRequired("store-db-url")
	_ = c.MarkFlagRequired("store-id")
	_ = c.MarkFlagRequired("store-name")
	_ = c.MarkFlagRequired("store-slug")
	_ = c.MarkFlagRequired("admin-email")

	return c
}
