package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"darbar-billing/internal/adapters/cli"
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

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, cli.ErrUsage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Warnf("redis unavailable, reading stock from the database: %v", err)
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}
	stockCache := cache.NewStockCache(rdb, cfg.StockCacheTTL, log)

	ledger := core.NewQuantityLedger(log)
	numberer := core.NewDocumentNumberer(cfg.InvoiceNumberMaxAttempts, log)
	movements := core.NewMovementLog(pool)
	checker := core.NewAvailabilityChecker(pool)
	reconciler := core.NewStockReconciler(pool, ledger, checker, stockCache, log)
	inventory := core.NewInventoryService(pool, ledger, numberer, movements, stockCache, cfg.LowStockThreshold, log)
	invoices := core.NewInvoiceService(pool, ledger, reconciler, core.NewTotalsCalculator(), numberer, stockCache, log)
	parties := core.NewPartyService(pool)

	svc := app.NewAppService(inventory, reconciler, invoices, parties, movements, log)

	if err := cli.Run(ctx, svc, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}
}
