package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/teamline/teamline/internal/adapter/postgres"
	"github.com/teamline/teamline/internal/adapter/ristretto"
	"github.com/teamline/teamline/internal/config"
	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/domain/tenant"
	"github.com/teamline/teamline/internal/port/database"
	"github.com/teamline/teamline/internal/service"
)

// runAdmin dispatches admin subcommands (bootstrap, reset-password, list-tenants).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "bootstrap":
		return runAdminBootstrap(args[1:])
	case "reset-password":
		return runAdminResetPassword(args[1:])
	case "list-tenants":
		return runAdminListTenants(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: teamline admin <command> [options]

Commands:
  bootstrap        Create a tenant with its owner account
  reset-password   Reset a principal's password
  list-tenants     List all tenants
  help             Show this help message

Examples:
  teamline admin bootstrap --name "Acme Corp" --slug acme --owner-email admin@acme.test --owner-name "Acme Admin"
  teamline admin reset-password --email admin@acme.test
  teamline admin list-tenants
`)
}

func loadAdminDeps() (database.Store, *service.AuthService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	c, err := ristretto.New(1 << 20)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("cache: %w", err)
	}

	store := postgres.NewStore(pool)
	authSvc := service.NewAuthService(store, c, &cfg.Auth)

	cleanup := func() {
		c.Close()
		pool.Close()
	}
	return store, authSvc, cleanup, nil
}

// runAdminBootstrap creates the tenant and owner directly against the store.
// The subscription is left sync_pending so the running server reconciles it
// with the billing provider on its next repair pass.
func runAdminBootstrap(args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	name := fs.String("name", "", "tenant display name (required)")
	slug := fs.String("slug", "", "tenant slug (required)")
	maxSeats := fs.Int("max-seats", 5, "seat cap for the tenant")
	ownerEmail := fs.String("owner-email", "", "owner email address (required)")
	ownerName := fs.String("owner-name", "", "owner display name (required)")
	password := fs.String("password", "", "owner password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" || *slug == "" || *ownerEmail == "" || *ownerName == "" {
		return fmt.Errorf("--name, --slug, --owner-email and --owner-name are required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Owner password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	store, authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	hash, err := authSvc.HashPassword(pass)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	ctx := context.Background()
	t := &tenant.Tenant{
		Name:     *name,
		Slug:     *slug,
		MaxSeats: *maxSeats,
		Enabled:  true,
	}
	if err := store.CreateTenant(ctx, t); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}

	owner := &principal.Principal{
		TenantID:     t.ID,
		Email:        *ownerEmail,
		Name:         *ownerName,
		Role:         principal.RoleOwner,
		Status:       principal.StatusActive,
		PasswordHash: hash,
	}
	seats, err := store.GrantSeat(ctx, t.ID, owner)
	if err != nil {
		return fmt.Errorf("grant owner seat: %w", err)
	}

	if err := store.MarkSyncPending(ctx, t.ID, "bootstrap"); err != nil {
		return fmt.Errorf("mark sync pending: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant created: %s (id=%s, seats=%d)\nOwner: %s (id=%s)\n",
		t.Slug, t.ID, seats, owner.Email, owner.ID)
	return nil
}

func runAdminResetPassword(args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	email := fs.String("email", "", "principal email address (required)")
	password := fs.String("password", "", "new password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}

	newPass := *password
	if newPass == "" {
		var err error
		newPass, err = promptPassword("New password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if newPass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	store, authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	p, err := store.GetPrincipalByEmail(ctx, *email)
	if err != nil {
		return fmt.Errorf("lookup principal: %w", err)
	}

	p.PasswordHash, err = authSvc.HashPassword(newPass)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := store.UpdatePrincipal(ctx, p); err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	if err := store.DeleteRefreshTokensByPrincipal(ctx, p.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Password reset successfully for %s\n", *email)
	return nil
}

func runAdminListTenants(args []string) error {
	fs := flag.NewFlagSet("list-tenants", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, _, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	tenants, err := store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	if len(tenants) == 0 {
		fmt.Println("No tenants found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSLUG\tNAME\tSEATS\tMAX\tENABLED")
	for i := range tenants {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%t\n",
			tenants[i].ID, tenants[i].Slug, tenants[i].Name, tenants[i].SeatCount, tenants[i].MaxSeats, tenants[i].Enabled)
	}
	return w.Flush()
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
