// Package storage persists point-in-time report snapshots so attribution
// health can be compared across weeks without re-querying the event store.
// Snapshots are plain JSON documents on local disk or S3.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/shoplight/attribution/internal/service/metrics"
)

// Snapshot is a frozen entity-metrics report for one store and window.
type Snapshot struct {
	ID          string                    `json:"id"`
	StoreID     string                    `json:"store_id"`
	Since       time.Time                 `json:"since"`
	Until       time.Time                 `json:"until"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Rows        []metrics.EntityMetricRow `json:"rows"`
	Coverage    *metrics.Coverage         `json:"coverage,omitempty"`
}

// NewSnapshotID returns a sortable snapshot identifier.
func NewSnapshotID(at time.Time) string {
	return at.UTC().Format("20060102T150405Z") + "-" + uuid.New().String()[:8]
}

// Store persists and retrieves snapshots.
type Store interface {
	// SaveSnapshot persists the snapshot under (store_id, id).
	SaveSnapshot(ctx context.Context, snap *Snapshot) error

	// LoadSnapshot retrieves a snapshot by id. Returns os.ErrNotExist-wrapped
	// errors when it does not exist.
	LoadSnapshot(ctx context.Context, storeID, id string) (*Snapshot, error)
}

// LocalStore keeps snapshots as JSON files under a base directory.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a disk-backed snapshot store.
func NewLocalStore(basePath string) *LocalStore {
	return &LocalStore{basePath: basePath}
}

func (s *LocalStore) path(storeID, id string) string {
	return filepath.Join(s.basePath, storeID, id+".json")
}

func (s *LocalStore) SaveSnapshot(_ context.Context, snap *Snapshot) error {
	p := s.path(snap.StoreID, snap.ID)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *LocalStore) LoadSnapshot(_ context.Context, storeID, id string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(storeID, id))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}
