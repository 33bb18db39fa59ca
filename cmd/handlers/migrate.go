package handlers

import (
	"context"
	"fmt"

	"blogwire/internal/config"
	"blogwire/internal/logger"
	"blogwire/internal/persistence"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage database schema migrations.

Without a subcommand all pending migrations are applied. Other commands apply
them automatically as well; this command is useful before a first deploy.

Subcommands:
  status   Show migration status
  rollback Forget the last migration (use with caution!)

Examples:
  blogwire migrate
  blogwire migrate status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}

	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateRollbackCmd())

	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
}

func newMigrateRollbackCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the last migration record",
		Long: `Remove the last applied migration from schema_migrations.

⚠️  WARNING: schema changes are not reverted. Use --force to skip the prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateRollback(cmd.Context(), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}

// connect opens the database without applying migrations.
func connect() (*persistence.SQLDB, error) {
	cfg := config.Get()
	db, err := persistence.Open(cfg.Database.Driver, cfg.Database.DSN, persistence.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func runMigrateUp(ctx context.Context) error {
	db, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := persistence.NewMigrationManager(db).Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("✅ All migrations applied successfully")
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	db, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := persistence.NewMigrationManager(db).Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	if len(status) == 0 {
		fmt.Println("No migrations found")
		return nil
	}

	fmt.Printf("📊 Migration Status (%s)\n", db.DriverName())
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-10s %-10s %s\n", "Version", "Status", "Description")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	pending := 0
	for _, m := range status {
		statusStr, icon := "applied", "✅"
		if !m.Applied {
			statusStr, icon = "pending", "⏳"
			pending++
		}
		fmt.Printf("%-10d %s %-8s %s\n", m.Version, icon, statusStr, m.Description)
	}

	fmt.Println()
	fmt.Printf("Applied: %d | Pending: %d | Total: %d\n", len(status)-pending, pending, len(status))
	if pending > 0 {
		fmt.Println("\nRun 'blogwire migrate' to apply pending migrations")
	}
	return nil
}

func runMigrateRollback(ctx context.Context, force bool) error {
	if !force {
		fmt.Println("⚠️  WARNING: this only removes the record from schema_migrations.")
		fmt.Print("Are you sure you want to proceed? (yes/no): ")

		var response string
		if _, err := fmt.Scanln(&response); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if response != "yes" {
			fmt.Println("Rollback cancelled")
			return nil
		}
	}

	db, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := persistence.NewMigrationManager(db).Rollback(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	logger.Warn("Migration record removed - remember to manually revert database changes")
	fmt.Println("⚠️  Migration record removed")
	return nil
}
