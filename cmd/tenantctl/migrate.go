package main

import (
	"fmt"
	"time"

	"github.com/dangerclosesec/tenantkit"
	"github.com/dangerclosesec/tenantkit/internal/migration"
	"github.com/spf13/cobra"
)

const migrationsDir = "migrations"

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long:  `Apply every embedded SQL migration that has not yet been recorded in schema_migrations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		migrator, err := migration.Open(cfg.Database.DSN(), tenantkit.MigrationsFS, migrationsDir)
		if err != nil {
			return err
		}
		defer migrator.Close()

		n, err := migrator.Up(ctx)
		if err != nil {
			return fmt.Errorf("migration failed after %d applied: %w", n, err)
		}

		if n == 0 {
			fmt.Println("No pending migrations.")
			return nil
		}
		fmt.Printf("Applied %d migration(s)\n", n)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		migrator, err := migration.Open(cfg.Database.DSN(), tenantkit.MigrationsFS, migrationsDir)
		if err != nil {
			return err
		}
		defer migrator.Close()

		if err := migrator.InitializeSchema(ctx); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}

		applied, err := migrator.AppliedMigrations(ctx)
		if err != nil {
			return err
		}
		pending, err := migrator.Pending(ctx)
		if err != nil {
			return err
		}

		fmt.Println("Applied:")
		for _, a := range applied {
			fmt.Printf("  %04d %s (applied %s)\n", a.Version, a.Name, a.AppliedAt.Format(time.RFC3339))
		}
		fmt.Println("Pending:")
		for _, f := range pending {
			fmt.Printf("  %04d %s\n", f.Version, f.Name)
		}
		return nil
	},
}
