package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"darbar-billing/internal/config"
	"darbar-billing/internal/db"
	"darbar-billing/internal/logging"
)

const migratorLockID = 7462839

type migration struct {
	Version  string
	Filename string
	Checksum string
	SQL      string
}

func main() {
	dir := flag.String("dir", "migrations", "directory holding NNN_description.sql files")
	flag.Parse()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, *dir, log); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Info("all migrations processed")
}

func run(ctx context.Context, cfg config.Config, dir string, log logrus.FieldLogger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := acquireLock(ctx, pool)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migratorLockID)
		conn.Release()
	}()

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	migrations, err := discoverMigrations(dir)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		applied, err := applyMigration(ctx, pool, m)
		if err != nil {
			return err
		}
		if applied {
			log.WithField("file", m.Filename).Info("migration applied")
		} else {
			log.WithField("file", m.Filename).Debug("migration already applied")
		}
	}
	return nil
}

// acquireLock takes a session advisory lock so that two migrators never run together.
func acquireLock(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for lock: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migratorLockID).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to query advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, errors.New("another migrator is currently running")
	}
	return conn, nil
}

func discoverMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	seen := make(map[string]string)
	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := extractVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %s: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		body, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(body)
		out = append(out, migration{
			Version:  version,
			Filename: entry.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			SQL:      string(body),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func extractVersion(filename string) (string, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid migration filename %s, expected NNN_description.sql", filename)
	}
	return parts[0], nil
}

// applyMigration runs m once. A recorded version with a different checksum is an error.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, m migration) (bool, error) {
	var existing string
	err := pool.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", m.Version).Scan(&existing)
	switch {
	case err == nil:
		if existing != m.Checksum {
			return false, fmt.Errorf("checksum mismatch for %s: recorded %s, file %s", m.Filename, existing, m.Checksum)
		}
		return false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("failed to query schema_migrations for %s: %w", m.Filename, err)
	}

	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.Filename, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)",
			m.Version, m.Filename, m.Checksum); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.Filename, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
