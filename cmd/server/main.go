package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webAdapter "darbar-billing/internal/adapters/web"
	"darbar-billing/internal/app"
	"darbar-billing/internal/cache"
	"darbar-billing/internal/config"
	"darbar-billing/internal/core"
	"darbar-billing/internal/db"
	"darbar-billing/internal/logging"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	if rdb == nil {
		log.Warn("REDIS_URL is not set, stock info cache disabled")
	} else {
		defer rdb.Close()
	}
	stockCache := cache.NewStockCache(rdb, cfg.StockCacheTTL, log)

	ledger := core.NewQuantityLedger(log)
	numberer := core.NewDocumentNumberer(cfg.InvoiceNumberMaxAttempts, log)
	movements := core.NewMovementLog(pool)
	checker := core.NewAvailabilityChecker(pool)
	reconciler := core.NewStockReconciler(pool, ledger, checker, stockCache, log)
	totals := core.NewTotalsCalculator()
	inventory := core.NewInventoryService(pool, ledger, numberer, movements, stockCache, cfg.LowStockThreshold, log)
	invoices := core.NewInvoiceService(pool, ledger, reconciler, totals, numberer, stockCache, log)
	parties := core.NewPartyService(pool)

	svc := app.NewAppService(inventory, reconciler, invoices, parties, movements, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           webAdapter.NewHandler(svc, os.Getenv("ALLOWED_ORIGINS"), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.WithField("port", cfg.Port).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
	log.Info("server stopped")
}
