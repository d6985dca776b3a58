// Package main provides a CLI tool for seeding the database with initial data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"magazzino/internal/core/id"
	"magazzino/internal/core/tenant"
	"magazzino/internal/domain/catalogs/reason"
	"magazzino/internal/infrastructure/storage/postgres"
	"magazzino/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Connect to database
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	poolCfg := postgres.DefaultPoolConfig(dbURL)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	// System movement reasons are always seeded; the ledger refuses to
	// append without them.
	if err := seedSystemReasons(ctx, pool, log); err != nil {
		log.Fatalw("failed to seed movement reasons", "error", err)
	}

	// Seed demo data if requested
	if os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := seedTenantRegistry(ctx, dbURL, log); err != nil {
			log.Warnw("failed to seed tenant registry", "error", err)
		}
		if err := seedDemoData(ctx, pool, log); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

func seedSystemReasons(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	for _, r := range reason.SystemReasons() {
		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO cat_movement_reasons (
				id, code, name, kind, sign,
				updates_average_cost, requires_source_document, allow_negative_stock,
				is_system, is_active, version, deletion_mark, attributes
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, false, '{}')
			ON CONFLICT (code) WHERE deletion_mark = FALSE DO NOTHING
		`, r.ID, r.Code, r.Name, r.Kind, r.Sign,
			r.UpdatesAverageCost, r.RequiresSourceDocument, r.AllowNegativeStock,
			r.IsSystem, r.IsActive)
		if err != nil {
			return fmt.Errorf("seed reason %s: %w", r.Code, err)
		}
	}

	log.Infow("system movement reasons seeded", "count", len(reason.SystemReasons()))
	return nil
}

func seedDemoData(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	log.Info("seeding demo data...")

	// warehouses first, movements reference them
	warehouses := []struct {
		name      string
		address   string
		wType     string
		isPrimary bool
	}{
		{"Main warehouse", "Via dei Magazzini 1, Milano", "main", true},
		{"Retail store", "Via del Commercio 5, Milano", "retail", false},
		{"Transit warehouse", "Virtual", "transit", false},
	}

	for i, w := range warehouses {
		whID := id.New()
		code := fmt.Sprintf("WH-%03d", i+1)
		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO cat_warehouses (
				id, code, name, address, type, is_primary,
				is_active, version, deletion_mark, attributes
			)
			VALUES ($1, $2, $3, $4, $5, $6, true, 1, false, '{}')
			ON CONFLICT (code) WHERE deletion_mark = FALSE DO NOTHING
		`, whID, code, w.name, w.address, w.wType, w.isPrimary)
		if err != nil {
			log.Warnw("failed to seed warehouse", "name", w.name, "error", err)
		}
	}

	products := []struct {
		name         string
		barcode      string
		unit         string
		trackLots    bool
		reorderPoint int64 // fixed-point, 4 decimal places
	}{
		{"Office paper A4", "4600000000001", "pack", false, 100_0000},
		{"Ballpoint pen blue", "4600000000002", "pcs", false, 500_0000},
		{"Desktop stapler", "4600000000003", "pcs", false, 20_0000},
		{"Paper clips 28mm (100 pcs)", "4600000000004", "pack", false, 50_0000},
		{"Toner cartridge", "4600000000005", "pcs", true, 10_0000},
		{"Thermal paper roll", "4600000000006", "pcs", true, 0},
	}

	for i, p := range products {
		prodID := id.New()
		code := fmt.Sprintf("PRD-%05d", i+1)
		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO cat_products (
				id, code, name, barcode, unit, track_lots,
				reorder_point, minimum_stock, quantity_on_hand,
				is_active, version, deletion_mark, attributes
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, true, 1, false, '{}')
			ON CONFLICT (code) WHERE deletion_mark = FALSE DO NOTHING
		`, prodID, code, p.name, p.barcode, p.unit, p.trackLots, p.reorderPoint)
		if err != nil {
			log.Warnw("failed to seed product", "name", p.name, "error", err)
		}
	}

	log.Info("demo data seeded successfully")
	return nil
}

func seedTenantRegistry(ctx context.Context, dbURL string, log *logger.Logger) error {
	metaDSN := os.Getenv("META_DATABASE_URL")
	if metaDSN == "" {
		log.Warn("META_DATABASE_URL is not set; skipping tenant registry seed")
		return nil
	}

	metaPool, err := pgxpool.New(ctx, metaDSN)
	if err != nil {
		return fmt.Errorf("connect meta database: %w", err)
	}
	defer metaPool.Close()

	if err := metaPool.Ping(ctx); err != nil {
		return fmt.Errorf("ping meta database: %w", err)
	}

	tenantSlug := os.Getenv("TENANT_SLUG")
	if tenantSlug == "" {
		tenantSlug = "demo"
	}

	tenantName := os.Getenv("TENANT_NAME")
	if tenantName == "" {
		tenantName = "Demo Tenant"
	}

	tenantPlan := os.Getenv("TENANT_PLAN")
	if tenantPlan == "" {
		tenantPlan = string(tenant.PlanStandard)
	}

	dbConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return fmt.Errorf("parse tenant database url: %w", err)
	}

	dbHost := dbConfig.ConnConfig.Host
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := int(dbConfig.ConnConfig.Port)
	if dbPort == 0 {
		dbPort = 5432
	}

	dbName := dbConfig.ConnConfig.Database
	if dbName == "" {
		dbName = "magazzino"
	}

	var existingID string
	err = metaPool.QueryRow(ctx, `SELECT id FROM tenants WHERE slug = $1`, tenantSlug).Scan(&existingID)
	if err == nil {
		log.Infow("tenant already exists in registry", "slug", tenantSlug, "tenant_id", existingID)
		return nil
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check tenant exists: %w", err)
	}

	registry := tenant.NewPostgresRegistry(metaPool)
	newTenant := &tenant.Tenant{
		Slug:        tenantSlug,
		DisplayName: tenantName,
		DBName:      dbName,
		DBHost:      dbHost,
		DBPort:      dbPort,
		Status:      tenant.StatusActive,
		Plan:        tenant.Plan(tenantPlan),
		Settings:    map[string]any{},
	}

	if err := registry.Create(ctx, newTenant); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}

	log.Infow("tenant seeded in registry", "slug", tenantSlug, "tenant_id", newTenant.ID)
	return nil
}
