// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"magazzino/internal/core/tenant"
	"magazzino/internal/domain/catalogs/product"
	"magazzino/internal/domain/catalogs/reason"
	"magazzino/internal/domain/catalogs/warehouse"
	"magazzino/internal/domain/ledger"
	"magazzino/internal/domain/lots"
	"magazzino/internal/domain/views"
	"magazzino/internal/infrastructure/http/v1/handlers"
	"magazzino/internal/infrastructure/http/v1/middleware"
	"magazzino/internal/infrastructure/storage/postgres"
	"magazzino/internal/infrastructure/storage/postgres/catalog_repo"
	"magazzino/internal/infrastructure/storage/postgres/ledger_repo"
	"magazzino/pkg/logger"
	"magazzino/pkg/numerator"
)

// RouterConfig holds router configuration for multi-tenant architecture.
type RouterConfig struct {
	// TenantManager manages database connections for all tenants
	TenantManager *tenant.Manager

	// MetaPool is connection to meta-database (for health checks)
	MetaPool *pgxpool.Pool

	// Logger for request logging
	Logger *logger.Logger

	// Numerator generates movement and catalog numbers
	Numerator *numerator.Service

	// RefreshMode selects eager or lazy stock view maintenance
	RefreshMode views.RefreshMode

	// IdempotencyEnabled enables idempotency middleware
	IdempotencyEnabled bool
}

// NewRouter creates and configures the Gin router for multi-tenant architecture.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no tenant required)
	healthHandler := handlers.NewHealthHandlerMultiTenant(cfg.MetaPool, cfg.TenantManager)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
		health.GET("/tenants", healthHandler.TenantsStats)
	}

	// API v1 - TenantDB resolves the tenant pool, UserContext picks up the
	// identity headers set by the upstream gateway.
	v1 := router.Group("/api/v1")
	v1.Use(middleware.TenantDB(cfg.TenantManager))
	v1.Use(middleware.UserContext())

	if cfg.IdempotencyEnabled {
		v1.Use(idempotencyMiddleware(10 * time.Minute))
	}

	deps := buildDependencies(cfg)

	registerCatalogRoutes(v1, deps)
	registerLedgerRoutes(v1, deps)

	return router
}

// dependencies holds the singleton services shared by all requests.
// Repos and services carry no pool; the TxManager is obtained from
// context per-request.
type dependencies struct {
	reasons    *reason.Service
	warehouses *warehouse.Service
	products   *product.Service
	ledger     *ledger.Service
	lots       *lots.Service
	views      *views.Service
}

func buildDependencies(cfg RouterConfig) *dependencies {
	reasonRepo := catalog_repo.NewReasonRepo()
	warehouseRepo := catalog_repo.NewWarehouseRepo()
	productRepo := catalog_repo.NewProductRepo()
	movementRepo := ledger_repo.NewMovementRepo()
	lotRepo := ledger_repo.NewLotRepo()
	viewRepo := ledger_repo.NewViewRepo()

	reasonService := reason.NewService(reasonRepo, cfg.Numerator)
	warehouseService := warehouse.NewService(warehouseRepo, cfg.Numerator)
	productService := product.NewService(productRepo, cfg.Numerator)
	lotService := lots.NewService(lotRepo)
	viewService := views.NewService(viewRepo, productRepo, cfg.RefreshMode)

	auditService, err := postgres.NewAuditServiceFromContext()
	if err != nil {
		// zstd codec construction fails only on invalid options
		panic(err)
	}

	ledgerService := ledger.NewService(ledger.Config{
		Repo:       movementRepo,
		Reasons:    reasonService,
		Warehouses: warehouseRepo,
		Products:   productRepo,
		Lots:       lotService,
		Views:      viewService,
		Audit:      postgres.NewLedgerAuditAdapter(auditService),
		Events:     postgres.NewLedgerEventAdapter(postgres.NewOutboxPublisherFromContext()),
		Numerator:  cfg.Numerator,
	})

	return &dependencies{
		reasons:    reasonService,
		warehouses: warehouseService,
		products:   productService,
		ledger:     ledgerService,
		lots:       lotService,
		views:      viewService,
	}
}

// idempotencyMiddleware creates idempotency middleware that uses tenant pool + TxManager from context.
func idempotencyMiddleware(ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		pool := tenant.MustGetPool(ctx)
		txm := postgres.MustGetTxManager(ctx)
		store := postgres.NewIdempotencyStoreFromRawPool(pool, txm, ttl)
		middleware.Idempotency(store)(c)
	}
}

// registerCatalogRoutes registers catalog endpoints.
func registerCatalogRoutes(rg *gin.RouterGroup, deps *dependencies) {
	catalogs := rg.Group("/catalog")
	baseHandler := handlers.NewBaseHandler()

	// --- MOVEMENT REASONS ---
	{
		handler := handlers.NewReasonHandler(baseHandler, deps.reasons)
		group := catalogs.Group("/reasons")
		RegisterCatalogRoutes(group, handler)
		group.POST("/:id/deactivate", handler.Deactivate)
	}

	// --- WAREHOUSES ---
	{
		handler := handlers.NewWarehouseHandler(baseHandler, deps.warehouses)
		RegisterCatalogRoutes(catalogs.Group("/warehouses"), handler)
	}

	// --- PRODUCTS ---
	{
		handler := handlers.NewProductHandler(baseHandler, deps.products)
		group := catalogs.Group("/products")
		RegisterCatalogRoutes(group, handler)
		group.GET("/barcode/:barcode", handler.GetByBarcode)
	}
}

// registerLedgerRoutes registers movement ledger, lot, and stock view endpoints.
func registerLedgerRoutes(rg *gin.RouterGroup, deps *dependencies) {
	baseHandler := handlers.NewBaseHandler()

	movementHandler := handlers.NewMovementHandler(baseHandler, deps.ledger)
	movementHandler.RegisterRoutes(rg.Group("/movements"))

	lotHandler := handlers.NewLotHandler(baseHandler, deps.lots)
	lotHandler.RegisterRoutes(rg.Group("/lots"))

	stockHandler := handlers.NewStockHandler(baseHandler, deps.views)
	stockHandler.RegisterRoutes(rg.Group("/stock"))
}
