// Command backfill runs the bulk attribution backfill for every store with
// recent events. It is scheduled (cron or ECS scheduled task) and guarded by
// a distributed lock so overlapping runs never double-process.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/shoplight/attribution/internal/config"
	"github.com/shoplight/attribution/internal/pkg/distlock"
	"github.com/shoplight/attribution/internal/repository/postgres"
	"github.com/shoplight/attribution/internal/service/attribution"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Backfill.LockTTL())
	defer cancel()

	// Falls back to a Postgres advisory lock when Redis is not configured.
	lock := distlock.NewLock(rdb, db, "attribution:backfill", cfg.Backfill.LockTTL())
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Fatalf("Lock acquire failed: %v", err)
	}
	if !ok {
		log.Println("Another backfill run holds the lock, exiting")
		return
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			log.Printf("Lock release failed: %v", err)
		}
	}()

	svc := attribution.NewService(postgres.NewAttributionRepo(db))
	since := time.Now().UTC().AddDate(0, 0, -cfg.Backfill.LookbackDays)

	stores, err := storeIDs(ctx, db, since)
	if err != nil {
		log.Fatalf("Store listing failed: %v", err)
	}
	log.Printf("Backfilling %d stores since %s", len(stores), since.Format(time.RFC3339))

	var failed []string
	total := 0
	for _, storeID := range stores {
		n, err := svc.BulkBackfill(ctx, storeID, since)
		if err != nil {
			log.Printf("Backfill failed for store %s: %v", storeID, err)
			failed = append(failed, storeID)
			continue
		}
		total += n
	}

	log.Printf("Backfill complete: %d purchases attributed across %d stores", total, len(stores)-len(failed))
	if len(failed) > 0 {
		log.Printf("Failed stores: %s", strings.Join(failed, ", "))
		os.Exit(1)
	}
}

// storeIDs lists stores with events inside the lookback window.
func storeIDs(ctx context.Context, db *sql.DB, since time.Time) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT store_id FROM tracking_events WHERE occurred_at >= $1 ORDER BY store_id`, since)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
