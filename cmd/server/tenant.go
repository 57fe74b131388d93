package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/smartcare-health/smartcare-hms/internal/config"
	"github.com/smartcare-health/smartcare-hms/internal/crypto"
	"github.com/smartcare-health/smartcare-hms/internal/model"
	"github.com/smartcare-health/smartcare-hms/internal/provisioner"
	"github.com/smartcare-health/smartcare-hms/internal/service"
	"github.com/smartcare-health/smartcare-hms/internal/store"
)

// cliDeps wires the service layer for one-shot CLI commands. No redis, no
// background worker; provisioning runs inline so the command reports the
// real outcome.
type cliDeps struct {
	repo *store.TenantRepository
	prov *provisioner.Provisioner
	svc  *service.TenantService
}

func dialCLI(ctx context.Context) (*cliDeps, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// Same key derivation as the server; records written here must stay
	// readable there.
	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return nil, nil, err
	}
	fieldCipher, err := crypto.New(key)
	if err != nil {
		return nil, nil, err
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	repo := store.NewTenantRepository(pool, nil, fieldCipher)
	prov := provisioner.New(pool, repo, cfg.TenantMigrationsDir)
	return &cliDeps{
		repo: repo,
		prov: prov,
		svc:  service.NewTenantService(repo, nil),
	}, cfg, nil
}

func (d *cliDeps) close() {
	d.repo.Pool().Close()
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}
	cmd.AddCommand(tenantCreateCmd())
	cmd.AddCommand(tenantProvisionCmd())
	cmd.AddCommand(tenantListCmd())
	cmd.AddCommand(tenantTransitionCmd("activate", model.StatusActive))
	cmd.AddCommand(tenantTransitionCmd("suspend", model.StatusSuspended))
	cmd.AddCommand(tenantTransitionCmd("cancel", model.StatusCancelled))
	cmd.AddCommand(tenantTransitionCmd("expire", model.StatusExpired))
	cmd.AddCommand(tenantDeleteSchemaCmd())
	return cmd
}

func tenantCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant and provision its schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			code, _ := cmd.Flags().GetString("code")
			email, _ := cmd.Flags().GetString("email")
			domain, _ := cmd.Flags().GetString("domain")

			ctx := context.Background()
			deps, _, err := dialCLI(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			tenant, err := deps.svc.CreateTenant(ctx, service.CreateTenantInput{
				Name:         name,
				Code:         code,
				ContactEmail: email,
				Domain:       domain,
			}, "cli")
			if err != nil {
				return err
			}
			fmt.Printf("tenant %s created (code %s, schema %s)\n", tenant.ID, tenant.Code, tenant.SchemaName)

			if err := deps.prov.CreateSchema(ctx, tenant); err != nil {
				return fmt.Errorf("provisioning failed (retry with 'tenant provision'): %w", err)
			}
			fmt.Println("schema provisioned")
			return nil
		},
	}
	cmd.Flags().String("name", "", "Facility name (required)")
	cmd.Flags().String("code", "", "Tenant code (generated when empty)")
	cmd.Flags().String("email", "", "Contact email (required)")
	cmd.Flags().String("domain", "", "Primary hostname")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	return cmd
}

func tenantProvisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision (or re-run provisioning for) a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			idStr, _ := cmd.Flags().GetString("id")
			id, err := uuid.Parse(idStr)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			ctx := context.Background()
			deps, _, err := dialCLI(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			tenant, err := deps.svc.GetTenant(ctx, id)
			if err != nil {
				return err
			}
			if err := deps.prov.CreateSchema(ctx, tenant); err != nil {
				return err
			}
			fmt.Printf("schema %s provisioned\n", tenant.SchemaName)
			return nil
		},
	}
	cmd.Flags().String("id", "", "Tenant id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func tenantListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")

			ctx := context.Background()
			deps, _, err := dialCLI(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			tenants, total, err := deps.svc.ListTenants(ctx, model.SubscriptionStatus(status), 100, 0)
			if err != nil {
				return err
			}
			fmt.Printf("%-38s %-10s %-24s %-10s %s\n", "ID", "CODE", "SCHEMA", "STATUS", "PROVISIONED")
			for _, t := range tenants {
				fmt.Printf("%-38s %-10s %-24s %-10s %v\n", t.ID, t.Code, t.SchemaName, t.SubscriptionStatus, t.Provisioned)
			}
			fmt.Printf("%d tenant(s)\n", total)
			return nil
		},
	}
	cmd.Flags().String("status", "", "Filter by subscription status")
	return cmd
}

func tenantTransitionCmd(verb string, to model.SubscriptionStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb,
		Short: fmt.Sprintf("Transition a tenant's subscription to %s", to),
		RunE: func(cmd *cobra.Command, args []string) error {
			idStr, _ := cmd.Flags().GetString("id")
			id, err := uuid.Parse(idStr)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			ctx := context.Background()
			deps, _, err := dialCLI(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			tenant, err := deps.svc.Transition(ctx, id, to, "cli")
			if err != nil {
				return err
			}
			fmt.Printf("tenant %s is now %s\n", tenant.Code, tenant.SubscriptionStatus)
			return nil
		},
	}
	cmd.Flags().String("id", "", "Tenant id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func tenantDeleteSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-schema",
		Short: "Drop a tenant's schema and all of its data",
		Long: "Drops the tenant's schema with CASCADE. This destroys every row the\n" +
			"tenant owns and cannot be undone. The schema name must be typed back\n" +
			"to confirm.",
		RunE: func(cmd *cobra.Command, args []string) error {
			idStr, _ := cmd.Flags().GetString("id")
			id, err := uuid.Parse(idStr)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			ctx := context.Background()
			deps, _, err := dialCLI(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			tenant, err := deps.svc.GetTenant(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("This will DROP schema %q and all data for tenant %s (%s).\n",
				tenant.SchemaName, tenant.Code, tenant.Name)
			fmt.Printf("Type the schema name to confirm: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			if strings.TrimSpace(line) != tenant.SchemaName {
				return fmt.Errorf("confirmation did not match, aborting")
			}

			if err := deps.prov.DropSchema(ctx, tenant); err != nil {
				return err
			}
			fmt.Printf("schema %s dropped\n", tenant.SchemaName)
			return nil
		},
	}
	cmd.Flags().String("id", "", "Tenant id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}
