package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/bom"
	"github.com/meridian-erp/meridian-erp/internal/manufacturing"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/items"
	mdshared "github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/units"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// warehouseChecker adapts the warehouse service to the executor's port.
type warehouseChecker struct {
	warehouses *warehouses.Service
}

func (c warehouseChecker) WarehouseExists(ctx context.Context, companyID, id int64) (bool, error) {
	return c.warehouses.Exists(ctx, companyID, id)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reference cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var refCache *mdshared.Cache
	if redisClient != nil {
		refCache = mdshared.NewCache(redisClient, cfg.RefCacheTTL)
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	unitService := units.NewService(units.NewRepository(pool))
	itemService := items.NewService(items.NewRepository(pool), refCache)
	warehouseService := warehouses.NewService(warehouses.NewRepository(pool), refCache)

	ledger := stock.NewLedger(stock.NewRepository(pool))
	formulaService := bom.NewService(bom.NewRepository(pool), logger)

	manufacturingService := manufacturing.NewService(
		manufacturing.NewRepository(pool),
		formulaService,
		ledger,
		warehouseChecker{warehouses: warehouseService},
		auditLogger,
		metrics,
		idempotencyStore,
		logger,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		StockHandler:         stock.NewHandler(logger, ledger),
		FormulaHandler:       bom.NewHandler(logger, formulaService),
		ManufacturingHandler: manufacturing.NewHandler(logger, manufacturingService),
		ItemsHandler:         items.NewHandler(logger, itemService),
		WarehousesHandler:    warehouses.NewHandler(logger, warehouseService),
		UnitsHandler:         units.NewHandler(logger, unitService),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
