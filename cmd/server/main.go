package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/shoplight/attribution/internal/api"
	"github.com/shoplight/attribution/internal/config"
	"github.com/shoplight/attribution/internal/insights"
	"github.com/shoplight/attribution/internal/pkg/logger"
	"github.com/shoplight/attribution/internal/report"
	"github.com/shoplight/attribution/internal/repository/postgres"
	"github.com/shoplight/attribution/internal/service/attribution"
	"github.com/shoplight/attribution/internal/service/ingest"
	"github.com/shoplight/attribution/internal/service/metrics"
	"github.com/shoplight/attribution/internal/storage"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Printf("Warning: event store not reachable at startup: %v", err)
	}
	cancelPing()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	ingestSvc := ingest.NewService(postgres.NewEventRepo(db))
	matchSvc := attribution.NewService(postgres.NewAttributionRepo(db))
	metricsSvc := metrics.NewService(postgres.NewMetricsRepo(db))

	var blended api.Blender
	if cfg.Insights.Enabled {
		ic, err := insights.NewClient(insights.Config{
			Account:   cfg.Insights.Account,
			User:      cfg.Insights.User,
			Password:  cfg.Insights.Password,
			Database:  cfg.Insights.Database,
			Schema:    cfg.Insights.Schema,
			Warehouse: cfg.Insights.Warehouse,
		})
		if err != nil {
			log.Printf("Warning: insights warehouse unavailable, blended reports disabled: %v", err)
		} else {
			defer ic.Close()
			blended = report.NewService(metricsSvc, ic)
		}
	}

	var snaps storage.Store
	switch cfg.Snapshots.Type {
	case "s3":
		s3Store, err := storage.NewS3Store(context.Background(), cfg.Snapshots.S3Bucket, cfg.Snapshots.AWSRegion, cfg.Snapshots.GetAWSProfile())
		if err != nil {
			log.Printf("Warning: S3 snapshot store unavailable: %v", err)
		} else {
			snaps = s3Store
		}
	case "local":
		snaps = storage.NewLocalStore(cfg.Snapshots.LocalPath)
	}

	lookback := time.Duration(cfg.Backfill.LookbackDays) * 24 * time.Hour
	handlers := api.NewHandlers(ingestSvc, matchSvc, metricsSvc, blended, snaps, lookback, cfg.Matching.ProximityWindowMinutes)
	server := api.NewServer(handlers, api.NewHealthChecker(db, rdb))

	addr := fmt.Sprintf("%s:%d", host, port)
	go func() {
		log.Printf("Attribution API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
