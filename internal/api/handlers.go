// Package api exposes the attribution platform over HTTP: event collection
// (JSON and pixel), the matcher cascade, bulk backfill, and entity-level
// reporting. Handlers stay thin; all semantics live in the service layer.
package api

import (
	"context"
	"time"

	"github.com/shoplight/attribution/internal/domain"
	"github.com/shoplight/attribution/internal/report"
	"github.com/shoplight/attribution/internal/service/attribution"
	"github.com/shoplight/attribution/internal/service/ingest"
	"github.com/shoplight/attribution/internal/service/metrics"
	"github.com/shoplight/attribution/internal/storage"
)

// Ingestor accepts tracking events.
type Ingestor interface {
	Ingest(ctx context.Context, e *domain.TrackingEvent) (ingest.Result, error)
}

// Matcher runs the attribution matchers.
type Matcher interface {
	Resolve(ctx context.Context, storeID string, q attribution.MatchQuery) (*attribution.MatchResult, error)
	BulkBackfill(ctx context.Context, storeID string, since time.Time) (int, error)
}

// Reporter produces entity-level aggregates.
type Reporter interface {
	AggregateEntityMetrics(ctx context.Context, storeID string, since, until time.Time) ([]metrics.EntityMetricRow, error)
	CoverageReport(ctx context.Context, storeID string, since, until time.Time) (*metrics.Coverage, error)
}

// Blender produces spend-joined campaign rows.
type Blender interface {
	BlendedCampaignReport(ctx context.Context, storeID string, since, until time.Time) ([]report.BlendedRow, error)
}

// Handlers holds the HTTP handlers and their service dependencies.
type Handlers struct {
	ingest    Ingestor
	matcher   Matcher
	reporter  Reporter
	blender   Blender
	snapshots storage.Store

	// defaultLookback bounds report and backfill windows when the request
	// does not carry an explicit since.
	defaultLookback time.Duration
	// defaultWindowMinutes is the proximity matcher window applied when a
	// match request leaves it unset.
	defaultWindowMinutes int
}

// NewHandlers creates the handler set. blender and snapshots may be nil when
// the insights warehouse or snapshot store is not configured; the matching
// endpoints then return 404 for those routes' features.
func NewHandlers(ing Ingestor, m Matcher, rep Reporter, b Blender, snaps storage.Store, lookback time.Duration, windowMinutes int) *Handlers {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return &Handlers{
		ingest:               ing,
		matcher:              m,
		reporter:             rep,
		blender:              b,
		snapshots:            snaps,
		defaultLookback:      lookback,
		defaultWindowMinutes: windowMinutes,
	}
}
