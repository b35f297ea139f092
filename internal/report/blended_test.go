package report

import (
	"context"
	"testing"
	"time"

	"github.com/shoplight/attribution/internal/domain"
	"github.com/shoplight/attribution/internal/insights"
	"github.com/shoplight/attribution/internal/service/metrics"
)

type fakeMetrics struct{ rows []metrics.EntityMetricRow }

func (f *fakeMetrics) AggregateEntityMetrics(context.Context, string, time.Time, time.Time) ([]metrics.EntityMetricRow, error) {
	return f.rows, nil
}

type fakeSpend struct{ rows []insights.CampaignSpend }

func (f *fakeSpend) CampaignSpend(context.Context, string, time.Time, time.Time) ([]insights.CampaignSpend, error) {
	return f.rows, nil
}

func TestBlendedCampaignReport(t *testing.T) {
	m := &fakeMetrics{rows: []metrics.EntityMetricRow{
		// Two ad-level rows of the same campaign roll up.
		{Entities: domain.EntityIDs{CampaignID: "c1", AdID: "a1"}, Results: 3, Purchases: 2, PurchaseValue: 200},
		{Entities: domain.EntityIDs{CampaignID: "c1", AdID: "a2"}, Results: 1, Purchases: 1, PurchaseValue: 100},
		{Entities: domain.EntityIDs{CampaignID: "c2"}, Results: 1, Purchases: 1, PurchaseValue: 50},
		// No campaign id: cannot join spend, dropped.
		{Entities: domain.EntityIDs{AdSetID: "as1"}, Purchases: 5, PurchaseValue: 999},
	}}
	sp := &fakeSpend{rows: []insights.CampaignSpend{
		{CampaignID: "c1", Spend: 150, Impressions: 10000, Clicks: 400},
		// Spend with no attributed revenue still gets a row.
		{CampaignID: "c3", Spend: 80, Impressions: 5000, Clicks: 90},
	}}

	rows, err := NewService(m, sp).BlendedCampaignReport(context.Background(), "store-1", time.Time{}, time.Now())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(rows), rows)
	}

	// Sorted by spend descending.
	c1 := rows[0]
	if c1.CampaignID != "c1" || c1.Purchases != 3 || c1.PurchaseValue != 300 {
		t.Fatalf("c1 rollup = %+v", c1)
	}
	if c1.ROAS != 2 || c1.CPA != 50 {
		t.Fatalf("c1 ratios = roas %v cpa %v", c1.ROAS, c1.CPA)
	}

	c3 := rows[1]
	if c3.CampaignID != "c3" || c3.ROAS != 0 || c3.CPA != 0 {
		t.Fatalf("spend-only row = %+v", c3)
	}

	// Revenue with no known spend keeps zero ratios.
	c2 := rows[2]
	if c2.CampaignID != "c2" || c2.Spend != 0 || c2.ROAS != 0 {
		t.Fatalf("revenue-only row = %+v", c2)
	}
}

func TestBlendedCampaignReportWithoutSpendSource(t *testing.T) {
	m := &fakeMetrics{rows: []metrics.EntityMetricRow{
		{Entities: domain.EntityIDs{CampaignID: "c1"}, Purchases: 1, PurchaseValue: 100},
	}}

	rows, err := NewService(m, nil).BlendedCampaignReport(context.Background(), "store-1", time.Time{}, time.Now())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rows) != 1 || rows[0].Spend != 0 || rows[0].PurchaseValue != 100 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
