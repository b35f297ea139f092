package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shoplight/attribution/internal/domain"
)

// EntityMetricRow holds aggregated performance for one ad entity tuple.
type EntityMetricRow struct {
	Entities      domain.EntityIDs `json:"entities"`
	Results       int              `json:"results"`
	Purchases     int              `json:"purchases"`
	PurchaseValue float64          `json:"purchase_value"`
}

// Coverage reports what fraction of (deduplicated) purchases carry an
// attribution mapping, overall and per entity level. Used to monitor
// attribution health over time.
type Coverage struct {
	Purchases     int     `json:"purchases"`
	Mapped        int     `json:"mapped"`
	CampaignLevel int     `json:"campaign_level"`
	AdSetLevel    int     `json:"adset_level"`
	AdLevel       int     `json:"ad_level"`
	MappedRate    float64 `json:"mapped_rate"`
	CampaignRate  float64 `json:"campaign_rate"`
	AdSetRate     float64 `json:"adset_rate"`
	AdRate        float64 `json:"ad_rate"`
}

// Service implements entity-level reporting over the event store.
type Service struct {
	repo Repository
}

// NewService creates a metrics service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AggregateEntityMetrics returns per-entity results, purchases, and revenue
// for the window, after collapsing multi-source duplicates. Only events
// carrying at least one entity id contribute.
func (s *Service) AggregateEntityMetrics(ctx context.Context, storeID string, since, until time.Time) ([]EntityMetricRow, error) {
	events, err := s.repo.EventsInRange(ctx, storeID, since, until)
	if err != nil {
		return nil, fmt.Errorf("events in range: %w", err)
	}

	byEntity := make(map[string]*EntityMetricRow)
	for _, e := range Deduplicate(events) {
		if !e.Attributed() {
			continue
		}
		key := e.Entities().Key()
		row, ok := byEntity[key]
		if !ok {
			row = &EntityMetricRow{Entities: e.Entities()}
			byEntity[key] = row
		}
		if domain.IsConversionEvent(e.EventName) {
			row.Results++
		}
		if e.EventName == domain.EventPurchase {
			row.Purchases++
			if e.Value != nil {
				row.PurchaseValue += *e.Value
			}
		}
	}

	out := make([]EntityMetricRow, 0, len(byEntity))
	for _, row := range byEntity {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchaseValue != out[j].PurchaseValue {
			return out[i].PurchaseValue > out[j].PurchaseValue
		}
		if out[i].Results != out[j].Results {
			return out[i].Results > out[j].Results
		}
		return out[i].Entities.Key() < out[j].Entities.Key()
	})
	return out, nil
}

// CoverageReport returns attribution coverage over the window's
// deduplicated purchases.
func (s *Service) CoverageReport(ctx context.Context, storeID string, since, until time.Time) (*Coverage, error) {
	events, err := s.repo.EventsInRange(ctx, storeID, since, until)
	if err != nil {
		return nil, fmt.Errorf("events in range: %w", err)
	}

	var cov Coverage
	for _, e := range Deduplicate(events) {
		if e.EventName != domain.EventPurchase {
			continue
		}
		cov.Purchases++
		if e.Attributed() {
			cov.Mapped++
		}
		if e.CampaignID != "" {
			cov.CampaignLevel++
		}
		if e.AdSetID != "" {
			cov.AdSetLevel++
		}
		if e.AdID != "" {
			cov.AdLevel++
		}
	}
	if cov.Purchases > 0 {
		n := float64(cov.Purchases)
		cov.MappedRate = float64(cov.Mapped) / n
		cov.CampaignRate = float64(cov.CampaignLevel) / n
		cov.AdSetRate = float64(cov.AdSetLevel) / n
		cov.AdRate = float64(cov.AdLevel) / n
	}
	return &cov, nil
}

// Deduplicate collapses events representing the same real-world purchase
// onto one representative row per coalesce(order_id, event_id) group. The
// representative is chosen by source priority (shopify > server > browser),
// tie-broken by most recent occurred_at. Events with neither key pass
// through untouched.
func Deduplicate(events []domain.TrackingEvent) []domain.TrackingEvent {
	out := make([]domain.TrackingEvent, 0, len(events))
	best := make(map[string]int) // dedup key -> index into out

	for _, e := range events {
		key := e.DedupKey()
		if key == "" {
			out = append(out, e)
			continue
		}
		i, seen := best[key]
		if !seen {
			best[key] = len(out)
			out = append(out, e)
			continue
		}
		cur := &out[i]
		if e.Source.Priority() > cur.Source.Priority() ||
			(e.Source.Priority() == cur.Source.Priority() && e.OccurredAt.After(cur.OccurredAt)) {
			out[i] = e
		}
	}
	return out
}
