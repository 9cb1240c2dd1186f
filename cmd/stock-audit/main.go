package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"darbar-billing/internal/cache"
	"darbar-billing/internal/config"
	"darbar-billing/internal/core"
	"darbar-billing/internal/db"
	"darbar-billing/internal/logging"
)

const auditLockKey = "lock:stock-audit"

// stock-audit compares every item's quantity against its movement log and
// exits 1 when any item disagrees. With Redis configured only one audit runs at a time.
func main() {
	asJSON := flag.Bool("json", false, "print discrepancies as JSON")
	flag.Parse()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	found, err := run(ctx, cfg, *asJSON, log)
	if err != nil {
		log.Fatalf("stock-audit: %v", err)
	}
	if found > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, asJSON bool, log logrus.FieldLogger) (int, error) {
	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return 0, err
	}
	if rdb != nil {
		defer rdb.Close()
		lock, err := redislock.New(rdb).Obtain(ctx, auditLockKey, 5*time.Minute, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			log.Warn("another stock audit is running")
			return 0, nil
		} else if err != nil {
			logging.LogError(log, "stock-audit", "run", "obtain redis lock", auditLockKey, err)
			return 0, err
		}
		defer func() {
			_ = lock.Release(context.Background())
		}()
	} else {
		log.Warn("REDIS_URL is not set, running without audit lock")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return 0, err
	}
	defer pool.Close()

	discrepancies, err := core.NewMovementLog(pool).Audit(ctx)
	if err != nil {
		return 0, err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(discrepancies); err != nil {
			return 0, err
		}
	}
	for _, d := range discrepancies {
		log.WithFields(logrus.Fields{
			"item_id":          d.ItemID,
			"code":             d.Code,
			"quantity":         d.Quantity,
			"initial_quantity": d.InitialQuantity,
			"movement_sum":     d.MovementSum,
		}).Error("stock does not match movement log")
	}
	if len(discrepancies) == 0 {
		log.Info("stock audit clean")
	}
	return len(discrepancies), nil
}
