package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shoplight/attribution/internal/domain"
)

// MetricsRepo implements metrics.Repository against PostgreSQL.
type MetricsRepo struct{ db *sql.DB }

// NewMetricsRepo creates a Postgres-backed reporting repository.
func NewMetricsRepo(db *sql.DB) *MetricsRepo { return &MetricsRepo{db: db} }

func (r *MetricsRepo) EventsInRange(ctx context.Context, storeID string, since, until time.Time) ([]domain.TrackingEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM tracking_events
		WHERE store_id = $1 AND occurred_at BETWEEN $2 AND $3
	`, storeID, since, until)
	if err != nil {
		return nil, fmt.Errorf("events in range: %w", err)
	}
	return collectEvents(rows)
}
