package main

import (
	"context"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/smartcare-health/smartcare-hms/internal/config"
	"github.com/smartcare-health/smartcare-hms/internal/provisioner"
	"github.com/smartcare-health/smartcare-hms/internal/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.AddCommand(migratePublicCmd())
	cmd.AddCommand(migrateTenantCmd())
	return cmd
}

// publicMigrator builds a golang-migrate instance for the registry schema.
func publicMigrator(cfg *config.Config) (*migrate.Migrate, func(), error) {
	pgxCfg, err := pgx.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database url: %w", err)
	}
	db := stdlib.OpenDB(*pgxCfg)

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.PublicMigrationsDir, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, func() { db.Close() }, nil
}

func migratePublicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "public [up|down]",
		Short: "Migrate the registry (public) schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			m, closeDB, err := publicMigrator(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			switch direction {
			case "up":
				if err := m.Up(); err != nil && err != migrate.ErrNoChange {
					return fmt.Errorf("apply migrations: %w", err)
				}
				fmt.Println("registry schema migrated")
			case "down":
				if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
					return fmt.Errorf("revert migration: %w", err)
				}
				fmt.Println("reverted one migration")
			default:
				return fmt.Errorf("unknown direction %q", direction)
			}
			return nil
		},
	}
	return cmd
}

func migrateTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Migrate tenant schemas",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			if schema == "" {
				return fmt.Errorf("--schema is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := provisioner.NewMigrator(pool, cfg.TenantMigrationsDir)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migrate schema %s: %w", schema, err)
			}
			fmt.Printf("applied %d migration(s) to %s\n", count, schema)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target tenant schema")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status for a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			if schema == "" {
				return fmt.Errorf("--schema is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := provisioner.NewMigrator(pool, cfg.TenantMigrationsDir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				state, appliedAt := "pending", ""
				if s.Applied {
					state = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, state, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target tenant schema")
	cmd.AddCommand(statusCmd)

	return cmd
}
