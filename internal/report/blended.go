// Package report blends storefront attribution metrics with ad-platform
// delivery metrics into campaign-level performance rows (ROAS, CPA).
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shoplight/attribution/internal/insights"
	"github.com/shoplight/attribution/internal/service/metrics"
)

// MetricsSource provides attributed storefront metrics (the metrics service).
type MetricsSource interface {
	AggregateEntityMetrics(ctx context.Context, storeID string, since, until time.Time) ([]metrics.EntityMetricRow, error)
}

// SpendSource provides ad-platform delivery metrics (the insights client).
type SpendSource interface {
	CampaignSpend(ctx context.Context, storeID string, since, until time.Time) ([]insights.CampaignSpend, error)
}

// BlendedRow joins attributed revenue with delivery spend for one campaign.
type BlendedRow struct {
	CampaignID    string  `json:"campaign_id"`
	Spend         float64 `json:"spend"`
	Impressions   int64   `json:"impressions"`
	Clicks        int64   `json:"clicks"`
	Results       int     `json:"results"`
	Purchases     int     `json:"purchases"`
	PurchaseValue float64 `json:"purchase_value"`
	// ROAS is attributed purchase value per unit spend; zero when no spend
	// is known for the campaign.
	ROAS float64 `json:"roas"`
	// CPA is spend per purchase; zero when there are no purchases.
	CPA float64 `json:"cpa"`
}

// Service builds blended reports.
type Service struct {
	metrics MetricsSource
	spend   SpendSource
}

// NewService creates a report service. spend may be nil when no insights
// warehouse is configured; blended rows then carry zero delivery metrics.
func NewService(m MetricsSource, spend SpendSource) *Service {
	return &Service{metrics: m, spend: spend}
}

// BlendedCampaignReport rolls entity metrics up to campaign level and joins
// them with delivery spend. Campaigns present on only one side still get a
// row, so unattributed spend and untracked campaigns stay visible.
func (s *Service) BlendedCampaignReport(ctx context.Context, storeID string, since, until time.Time) ([]BlendedRow, error) {
	entityRows, err := s.metrics.AggregateEntityMetrics(ctx, storeID, since, until)
	if err != nil {
		return nil, fmt.Errorf("entity metrics: %w", err)
	}

	byCampaign := make(map[string]*BlendedRow)
	for _, r := range entityRows {
		id := r.Entities.CampaignID
		if id == "" {
			// Touches known only at ad-set or ad granularity cannot be
			// joined with campaign spend.
			continue
		}
		row, ok := byCampaign[id]
		if !ok {
			row = &BlendedRow{CampaignID: id}
			byCampaign[id] = row
		}
		row.Results += r.Results
		row.Purchases += r.Purchases
		row.PurchaseValue += r.PurchaseValue
	}

	if s.spend != nil {
		spendRows, err := s.spend.CampaignSpend(ctx, storeID, since, until)
		if err != nil {
			return nil, fmt.Errorf("campaign spend: %w", err)
		}
		for _, sp := range spendRows {
			row, ok := byCampaign[sp.CampaignID]
			if !ok {
				row = &BlendedRow{CampaignID: sp.CampaignID}
				byCampaign[sp.CampaignID] = row
			}
			row.Spend += sp.Spend
			row.Impressions += sp.Impressions
			row.Clicks += sp.Clicks
		}
	}

	out := make([]BlendedRow, 0, len(byCampaign))
	for _, row := range byCampaign {
		if row.Spend > 0 {
			row.ROAS = row.PurchaseValue / row.Spend
			if row.Purchases > 0 {
				row.CPA = row.Spend / float64(row.Purchases)
			}
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Spend != out[j].Spend {
			return out[i].Spend > out[j].Spend
		}
		return out[i].CampaignID < out[j].CampaignID
	})
	return out, nil
}
