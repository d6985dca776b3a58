// Package main is the entry point for the magazzino background worker.
// Multi-tenant architecture: processes jobs for all tenants.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"magazzino/internal/core/tenant"
	"magazzino/internal/domain/views"
	"magazzino/internal/infrastructure/storage/postgres"
	"magazzino/internal/infrastructure/storage/postgres/catalog_repo"
	"magazzino/internal/infrastructure/storage/postgres/ledger_repo"
	"magazzino/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting magazzino multi-tenant worker")

	// Connect to meta-database
	metaPool, err := pgxpool.New(ctx, mustEnv("META_DATABASE_URL"))
	if err != nil {
		log.Fatalw("failed to connect to meta database", "error", err)
	}
	defer metaPool.Close()

	// Create tenant registry and manager
	registry := tenant.NewPostgresRegistry(metaPool)

	managerCfg := tenant.DefaultManagerConfig()
	managerCfg.DBUser = mustEnv("TENANT_DB_USER")
	managerCfg.DBPassword = mustEnv("TENANT_DB_PASSWORD")
	managerCfg.PoolIdleTimeout = 10 * time.Minute // Shorter for worker

	manager := tenant.NewManager(managerCfg, registry, log)
	defer manager.Close()

	refreshMode := views.ParseRefreshMode(getEnv("STOCK_VIEW_REFRESH", "eager"))

	// Start multi-tenant worker
	worker := NewMultiTenantWorker(manager, refreshMode, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// MultiTenantWorker runs the background loops for every active tenant:
// outbox relay, periodic stock view refresh, and housekeeping.
type MultiTenantWorker struct {
	manager     *tenant.Manager
	refreshMode views.RefreshMode
	log         *logger.Logger
}

func NewMultiTenantWorker(manager *tenant.Manager, refreshMode views.RefreshMode, log *logger.Logger) *MultiTenantWorker {
	return &MultiTenantWorker{
		manager:     manager,
		refreshMode: refreshMode,
		log:         log.WithComponent("worker"),
	}
}

// Run starts worker goroutines for all active tenants.
func (w *MultiTenantWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	var wg sync.WaitGroup
	tenantContexts := make(map[string]context.CancelFunc) // tenant_id(UUID) -> cancel
	var mu sync.Mutex

	// Initial start
	w.refreshTenants(ctx, &wg, tenantContexts, &mu)

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, cancel := range tenantContexts {
				cancel()
			}
			mu.Unlock()
			wg.Wait()
			return

		case <-ticker.C:
			w.refreshTenants(ctx, &wg, tenantContexts, &mu)
		}
	}
}

func (w *MultiTenantWorker) refreshTenants(ctx context.Context, wg *sync.WaitGroup, tenantContexts map[string]context.CancelFunc, mu *sync.Mutex) {
	tenants, err := w.manager.GetActiveTenants(ctx)
	if err != nil {
		w.log.Errorw("failed to get active tenants", "error", err)
		return
	}

	activeTenants := make(map[string]*tenant.Tenant, len(tenants))
	for _, t := range tenants {
		activeTenants[t.ID] = t
	}

	mu.Lock()
	defer mu.Unlock()

	for tenantID, cancel := range tenantContexts {
		if _, active := activeTenants[tenantID]; !active {
			cancel()
			delete(tenantContexts, tenantID)
			w.log.Infow("stopped worker for inactive tenant", "tenant_id", tenantID)
		}
	}

	for _, t := range tenants {
		if _, exists := tenantContexts[t.ID]; !exists {
			tenantCtx, tenantCancel := context.WithCancel(ctx)
			tenantContexts[t.ID] = tenantCancel

			wg.Add(1)
			go func(t *tenant.Tenant) {
				defer wg.Done()
				w.runTenantWorker(tenantCtx, t)
			}(t)

			w.log.Infow("started worker for tenant", "tenant_id", t.ID)
		}
	}
}

func (w *MultiTenantWorker) runTenantWorker(ctx context.Context, t *tenant.Tenant) {
	mp, err := w.manager.GetPool(ctx, t.ID)
	if err != nil {
		w.log.Errorw("failed to get pool for tenant", "tenant_id", t.ID, "error", err)
		return
	}

	pool := mp.Pool()
	txManager := postgres.NewTxManagerFromRawPool(pool)

	// Repos resolve the TxManager from context, same as in HTTP handlers.
	tenantCtx := tenant.WithTxManager(tenant.WithPool(ctx, pool), txManager)
	tenantCtx = tenant.WithTenant(tenantCtx, t)

	viewService := views.NewService(
		ledger_repo.NewViewRepo(),
		catalog_repo.NewProductRepo(),
		w.refreshMode,
	)

	handler := newMovementEventHandler(viewService, w.refreshMode, w.log)
	relay := postgres.NewOutboxRelay(pool, 100, handler)

	g, gctx := errgroup.WithContext(tenantCtx)

	g.Go(func() error {
		return w.runOutboxLoop(gctx, relay, t.ID)
	})
	g.Go(func() error {
		return w.runViewRefreshLoop(gctx, viewService, t.ID)
	})
	g.Go(func() error {
		return w.runHousekeepingLoop(gctx, pool, t.ID)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		w.log.Errorw("tenant worker exited", "tenant_id", t.ID, "error", err)
	}
	w.log.Infow("stopping worker for tenant", "tenant_id", t.ID)
}

// runOutboxLoop drains the transactional outbox and parks poison
// messages in the dead letter queue.
func (w *MultiTenantWorker) runOutboxLoop(ctx context.Context, relay *postgres.OutboxRelay, tenantID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	dlqTicker := time.NewTicker(1 * time.Hour)
	defer dlqTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := relay.ProcessBatch(ctx)
			if err != nil {
				w.log.Errorw("outbox batch failed", "tenant_id", tenantID, "error", err)
				continue
			}
			if count > 0 {
				w.log.Debugw("processed outbox batch", "tenant_id", tenantID, "count", count)
			}
		case <-dlqTicker.C:
			moved, err := relay.MoveToDLQ(ctx)
			if err != nil {
				w.log.Errorw("move to dlq failed", "tenant_id", tenantID, "error", err)
				continue
			}
			if moved > 0 {
				w.log.Warnw("moved poison messages to dlq", "tenant_id", tenantID, "count", moved)
			}
		}
	}
}

// runViewRefreshLoop periodically rebuilds the whole stock view. In eager
// mode this is a safety net for drift; in lazy mode it backstops the
// per-product refresh done by the relay.
func (w *MultiTenantWorker) runViewRefreshLoop(ctx context.Context, viewService *views.Service, tenantID string) error {
	interval := getEnvDuration("STOCK_VIEW_REFRESH_INTERVAL", 15*time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := viewService.Refresh(ctx); err != nil {
				w.log.Errorw("stock view refresh failed", "tenant_id", tenantID, "error", err)
				continue
			}
			w.log.Debugw("stock view refreshed", "tenant_id", tenantID)
		}
	}
}

// runHousekeepingLoop expires idempotency keys.
func (w *MultiTenantWorker) runHousekeepingLoop(ctx context.Context, pool *pgxpool.Pool, tenantID string) error {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := pool.Exec(ctx, `
				DELETE FROM sys_idempotency
				WHERE created_at < NOW() - INTERVAL '24 hours'
			`)
			if err != nil {
				w.log.Errorw("idempotency cleanup failed", "tenant_id", tenantID, "error", err)
				continue
			}
			if result.RowsAffected() > 0 {
				w.log.Infow("cleaned up idempotency keys", "tenant_id", tenantID, "count", result.RowsAffected())
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
