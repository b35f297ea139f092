package ingest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shoplight/attribution/internal/domain"
	"github.com/shoplight/attribution/internal/service/ingest"
)

// memRepo is an in-memory event store implementing the upsert-merge rule:
// keyed by (store_id, event_id), null fields fill from the incoming copy,
// populated fields never change.
type memRepo struct {
	mu     sync.Mutex
	byKey  map[string]*domain.TrackingEvent
	others []*domain.TrackingEvent // events without an event_id
}

func newMemRepo() *memRepo {
	return &memRepo{byKey: make(map[string]*domain.TrackingEvent)}
}

func (m *memRepo) Upsert(_ context.Context, e *domain.TrackingEvent) (ingest.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.EventID == "" {
		cp := *e
		m.others = append(m.others, &cp)
		return ingest.Result{Inserted: true}, nil
	}

	key := e.StoreID + "/" + e.EventID
	existing, ok := m.byKey[key]
	if !ok {
		cp := *e
		m.byKey[key] = &cp
		return ingest.Result{Inserted: true}, nil
	}

	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&existing.ClickID, e.ClickID)
	fill(&existing.FBC, e.FBC)
	fill(&existing.FBP, e.FBP)
	fill(&existing.EmailHash, e.EmailHash)
	fill(&existing.OrderID, e.OrderID)
	fill(&existing.Currency, e.Currency)
	fill(&existing.CampaignID, e.CampaignID)
	fill(&existing.AdSetID, e.AdSetID)
	fill(&existing.AdID, e.AdID)
	if existing.Value == nil && e.Value != nil {
		existing.Value = e.Value
		changed = true
	}
	return ingest.Result{Updated: changed}, nil
}

func (m *memRepo) get(storeID, eventID string) *domain.TrackingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[storeID+"/"+eventID]
}

var occurred = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func draft() *domain.TrackingEvent {
	return &domain.TrackingEvent{
		StoreID:    "store-1",
		EventID:    "evt-1",
		EventName:  domain.EventPurchase,
		Source:     domain.SourceBrowser,
		OccurredAt: occurred,
	}
}

func TestIngestInsert(t *testing.T) {
	svc := ingest.NewService(newMemRepo())
	e := draft()

	res, err := svc.Ingest(context.Background(), e)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Inserted || res.Updated {
		t.Fatalf("expected {inserted}, got %+v", res)
	}
	if e.ID == "" {
		t.Fatal("expected a generated internal id")
	}
	if e.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestIngestValidation(t *testing.T) {
	svc := ingest.NewService(newMemRepo())

	cases := []struct {
		name   string
		mutate func(*domain.TrackingEvent)
		want   error
	}{
		{"missing store", func(e *domain.TrackingEvent) { e.StoreID = "" }, ingest.ErrMissingStore},
		{"missing event name", func(e *domain.TrackingEvent) { e.EventName = "" }, ingest.ErrMissingEventName},
		{"missing timestamp", func(e *domain.TrackingEvent) { e.OccurredAt = time.Time{} }, ingest.ErrMissingTimestamp},
		{"bad source", func(e *domain.TrackingEvent) { e.Source = "webhook" }, ingest.ErrInvalidSource},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := draft()
			tc.mutate(e)
			if _, err := svc.Ingest(context.Background(), e); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestIngestDefaultsSourceToBrowser(t *testing.T) {
	svc := ingest.NewService(newMemRepo())
	e := draft()
	e.Source = ""

	if _, err := svc.Ingest(context.Background(), e); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if e.Source != domain.SourceBrowser {
		t.Fatalf("expected browser default, got %s", e.Source)
	}
}

func TestIngestMergeFillsOnlyNullFields(t *testing.T) {
	repo := newMemRepo()
	svc := ingest.NewService(repo)

	first := draft()
	first.ClickID = "abc"
	if _, err := svc.Ingest(context.Background(), first); err != nil {
		t.Fatalf("first: %v", err)
	}

	// Second delivery of the same event from another collector carries the
	// order data and a conflicting click id.
	second := draft()
	second.Source = domain.SourceShopify
	second.ClickID = "OTHER"
	second.OrderID = "order-9"
	v := 129.99
	second.Value = &v

	res, err := svc.Ingest(context.Background(), second)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Inserted || !res.Updated {
		t.Fatalf("expected {updated}, got %+v", res)
	}

	stored := repo.get("store-1", "evt-1")
	if stored.ClickID != "abc" {
		t.Fatalf("populated field must not change, got click_id %q", stored.ClickID)
	}
	if stored.OrderID != "order-9" || stored.Value == nil || *stored.Value != 129.99 {
		t.Fatalf("null fields must fill, got %+v", stored)
	}
}

func TestIngestZeroValueOrderSurvivesDuplicate(t *testing.T) {
	// A free order's explicit 0.0 is a set field, not an absent one; a
	// later duplicate carrying a price must not overwrite it.
	repo := newMemRepo()
	svc := ingest.NewService(repo)

	zero := 0.0
	first := draft()
	first.Value = &zero
	if _, err := svc.Ingest(context.Background(), first); err != nil {
		t.Fatalf("first: %v", err)
	}

	fifty := 50.0
	dup := draft()
	dup.Value = &fifty
	if _, err := svc.Ingest(context.Background(), dup); err != nil {
		t.Fatalf("dup: %v", err)
	}

	stored := repo.get("store-1", "evt-1")
	if stored.Value == nil || *stored.Value != 0 {
		t.Fatalf("explicit zero value must not be overwritten, got %+v", stored.Value)
	}
}

func TestIngestRepeatedDeliveryIsNoop(t *testing.T) {
	svc := ingest.NewService(newMemRepo())

	e := draft()
	e.ClickID = "abc"
	if _, err := svc.Ingest(context.Background(), e); err != nil {
		t.Fatalf("first: %v", err)
	}

	dup := draft()
	dup.ClickID = "abc"
	res, err := svc.Ingest(context.Background(), dup)
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	if res.Inserted || res.Updated {
		t.Fatalf("expected a no-op, got %+v", res)
	}
}

func TestIngestWithoutEventIDAlwaysInserts(t *testing.T) {
	repo := newMemRepo()
	svc := ingest.NewService(repo)

	for i := 0; i < 2; i++ {
		e := draft()
		e.EventID = ""
		res, err := svc.Ingest(context.Background(), e)
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
		if !res.Inserted {
			t.Fatalf("ingest %d: expected insert, got %+v", i, res)
		}
	}
	if len(repo.others) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(repo.others))
	}
}
