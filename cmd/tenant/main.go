// Command tenant administers the tenant registry: it provisions a
// database, runs migrations on it and registers the tenant in the meta
// database. Suspend and activate only flip the registry status; the
// HTTP layer refuses suspended tenants on the next pool lookup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"magazzino/internal/core/tenant"
)

const migrationsDir = "db/migrations"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "create":
		err = createTenant(ctx, os.Args[2:])
	case "list":
		err = listTenants(ctx)
	case "migrate":
		err = migrateTenants(ctx, os.Args[2:])
	case "suspend":
		err = setStatus(ctx, os.Args[2:], tenant.StatusSuspended)
	case "activate":
		err = setStatus(ctx, os.Args[2:], tenant.StatusActive)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Magazzino tenant administration

Usage:
  tenant create --slug <slug> --name <name> [--plan standard|premium|enterprise]
  tenant list
  tenant migrate --all | --id <tenant-uuid>
  tenant suspend <tenant-uuid>
  tenant activate <tenant-uuid>

Environment:
  META_DATABASE_URL    meta database connection string (required)
  TENANT_DB_USER       user for tenant databases
  TENANT_DB_PASSWORD   password for tenant databases
  TENANT_DB_HOST       host for new tenant databases (default localhost)
  TENANT_DB_PORT       port for new tenant databases (default 5432)
  POSTGRES_ADMIN_URL   admin connection used for CREATE DATABASE`)
}

func getMetaPool(ctx context.Context) (*pgxpool.Pool, error) {
	metaDSN := os.Getenv("META_DATABASE_URL")
	if metaDSN == "" {
		return nil, fmt.Errorf("META_DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, metaDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to meta database: %w", err)
	}
	return pool, nil
}

func tenantHostPort() (string, int) {
	host := os.Getenv("TENANT_DB_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 5432
	if p := os.Getenv("TENANT_DB_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}
	return host, port
}

func createTenant(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	slug := fs.String("slug", "", "tenant slug, becomes part of the database name")
	name := fs.String("name", "", "display name")
	plan := fs.String("plan", "standard", "plan: standard, premium or enterprise")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *slug == "" || *name == "" {
		return fmt.Errorf("--slug and --name are required")
	}

	metaPool, err := getMetaPool(ctx)
	if err != nil {
		return err
	}
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)
	host, port := tenantHostPort()

	// the registry's manager expects the mt_ prefix
	dbName := "mt_" + strings.ToLower(*slug)

	fmt.Printf("creating tenant %q\n", *slug)

	if err := createDatabase(ctx, dbName); err != nil {
		// provisioning can finish by hand; registration still proceeds
		fmt.Printf("  database not created: %v\n", err)
		fmt.Println("  create it manually and rerun `tenant migrate`")
	}

	dbUser := os.Getenv("TENANT_DB_USER")
	dbPassword := os.Getenv("TENANT_DB_PASSWORD")
	if dbUser != "" && dbPassword != "" {
		fmt.Println("  running migrations")
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			dbUser, dbPassword, host, port, dbName)
		if err := runGoose(dsn); err != nil {
			fmt.Printf("  migrations failed: %v\n", err)
		}
	}

	t := &tenant.Tenant{
		Slug:        *slug,
		DisplayName: *name,
		DBName:      dbName,
		DBHost:      host,
		DBPort:      port,
		Status:      tenant.StatusActive,
		Plan:        tenant.Plan(*plan),
	}

	if err := registry.Create(ctx, t); err != nil {
		return fmt.Errorf("register tenant: %w", err)
	}

	fmt.Printf("\ntenant %q created\n", *slug)
	fmt.Printf("  id:       %s\n", t.ID)
	fmt.Printf("  database: %s@%s:%d\n", dbName, host, port)
	fmt.Printf("  plan:     %s\n", *plan)
	return nil
}

// createDatabase issues CREATE DATABASE over the admin connection. An
// already existing database is not an error.
func createDatabase(ctx context.Context, dbName string) error {
	adminDSN := os.Getenv("POSTGRES_ADMIN_URL")
	if adminDSN == "" {
		adminDSN = strings.Replace(os.Getenv("META_DATABASE_URL"), "/magazzino_meta", "/postgres", 1)
	}
	if adminDSN == "" {
		return fmt.Errorf("POSTGRES_ADMIN_URL not set")
	}

	adminPool, err := pgxpool.New(ctx, adminDSN)
	if err != nil {
		return fmt.Errorf("connect as admin: %w", err)
	}
	defer adminPool.Close()

	_, err = adminPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			fmt.Printf("  database %s already exists\n", dbName)
			return nil
		}
		return err
	}
	fmt.Printf("  database %s created\n", dbName)
	return nil
}

func runGoose(dsn string) error {
	cmd := exec.Command("goose", "-dir", migrationsDir, "postgres", dsn, "up")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func listTenants(ctx context.Context) error {
	metaPool, err := getMetaPool(ctx)
	if err != nil {
		return err
	}
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)
	tenants, err := registry.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	if len(tenants) == 0 {
		fmt.Println("no tenants registered")
		return nil
	}

	fmt.Printf("%-36s %-20s %-30s %-15s %-12s %-10s\n", "TENANT_ID", "SLUG", "NAME", "DATABASE", "PLAN", "STATUS")
	fmt.Println(strings.Repeat("-", 135))
	for _, t := range tenants {
		fmt.Printf("%-36s %-20s %-30s %-15s %-12s %-10s\n",
			truncate(t.ID, 36),
			truncate(t.Slug, 20),
			truncate(t.DisplayName, 30),
			truncate(t.DBName, 15),
			t.Plan,
			t.Status,
		)
	}
	return nil
}

func migrateTenants(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	targetID := fs.String("id", "", "migrate a single tenant by uuid")
	all := fs.Bool("all", false, "migrate every active tenant")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*all && *targetID == "" {
		return fmt.Errorf("specify --id <tenant-uuid> or --all")
	}

	dbUser := os.Getenv("TENANT_DB_USER")
	dbPassword := os.Getenv("TENANT_DB_PASSWORD")
	if dbUser == "" || dbPassword == "" {
		return fmt.Errorf("TENANT_DB_USER and TENANT_DB_PASSWORD are required")
	}

	metaPool, err := getMetaPool(ctx)
	if err != nil {
		return err
	}
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)

	var tenants []*tenant.Tenant
	if *all {
		tenants, err = registry.ListActive(ctx)
		if err != nil {
			return fmt.Errorf("list active tenants: %w", err)
		}
	} else {
		t, err := registry.GetByID(ctx, *targetID)
		if err != nil {
			return fmt.Errorf("tenant %q not found", *targetID)
		}
		tenants = []*tenant.Tenant{t}
	}

	failed := 0
	for _, t := range tenants {
		fmt.Printf("migrating %s (%s)\n", t.Slug, t.DBName)
		if err := runGoose(t.DSN(dbUser, dbPassword)); err != nil {
			fmt.Printf("  failed: %v\n", err)
			failed++
			continue
		}
		fmt.Println("  done")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tenants failed", failed, len(tenants))
	}
	return nil
}

func setStatus(ctx context.Context, args []string, status tenant.Status) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: tenant suspend|activate <tenant-uuid>")
	}
	tenantID := args[0]

	metaPool, err := getMetaPool(ctx)
	if err != nil {
		return err
	}
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)
	if err := registry.UpdateStatusByID(ctx, tenantID, status); err != nil {
		return err
	}

	fmt.Printf("tenant %s is now %s\n", tenantID, status)
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
