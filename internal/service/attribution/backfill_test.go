package attribution_test

import (
	"context"
	"testing"
	"time"

	"github.com/shoplight/attribution/internal/domain"
	"github.com/shoplight/attribution/internal/service/attribution"
)

func purchase(id string, at time.Time) domain.TrackingEvent {
	return domain.TrackingEvent{
		ID: id, StoreID: testStore, EventName: domain.EventPurchase,
		Source: domain.SourceShopify, OccurredAt: at,
	}
}

func TestBulkBackfillAssignsBySignalPriority(t *testing.T) {
	clickTouch := touch("touch-click", t0.Add(-2*time.Hour), "camp-click")
	clickTouch.ClickID = "abc"
	emailTouch := touch("touch-email", t0.Add(-time.Hour), "camp-email")
	emailTouch.EmailHash = "h1"

	p := purchase("p1", t0)
	p.ClickID = "abc"
	p.EmailHash = "h1"

	repo := newMemRepo(clickTouch, emailTouch, p)
	svc := attribution.NewService(repo)

	n, err := svc.BulkBackfill(context.Background(), testStore, t0.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 assignment, got %d", n)
	}

	got, _ := repo.UnmappedPurchases(context.Background(), testStore, t0.Add(-48*time.Hour))
	if len(got) != 0 {
		t.Fatalf("purchase still unmapped after backfill")
	}
	ev := repo.find("p1")
	if ev.CampaignID != "camp-click" {
		t.Fatalf("click_id must outrank email_hash, got campaign %q", ev.CampaignID)
	}
}

func TestBulkBackfillAgreesWithScoredOnClickID(t *testing.T) {
	// With only click_id signals in play the bulk matcher and the scored
	// matcher must assign the same entity.
	older := touch("touch-old", t0.Add(-5*time.Hour), "camp-old")
	older.ClickID = "abc"
	latest := touch("touch-new", t0.Add(-2*time.Hour), "camp-new")
	latest.ClickID = "abc"
	p := purchase("p1", t0)
	p.ClickID = "abc"

	repo := newMemRepo(older, latest, p)
	svc := attribution.NewService(repo)

	cutoff := t0
	scored, err := svc.MatchBySignals(context.Background(), testStore,
		attribution.Signals{ClickID: "abc"}, &cutoff)
	if err != nil || scored == nil {
		t.Fatalf("scored match: %+v, %v", scored, err)
	}

	if n, err := svc.BulkBackfill(context.Background(), testStore, t0.Add(-48*time.Hour)); err != nil || n != 1 {
		t.Fatalf("backfill: n=%d err=%v", n, err)
	}
	if got := repo.find("p1").CampaignID; got != scored.Entities.CampaignID {
		t.Fatalf("bulk assigned %q, scored matcher chose %q", got, scored.Entities.CampaignID)
	}
	if scored.Entities.CampaignID != "camp-new" {
		t.Fatalf("expected the latest click touch, got %q", scored.Entities.CampaignID)
	}
}

func TestBulkBackfillSkipsSignallessAndMapped(t *testing.T) {
	tch := touch("touch-1", t0.Add(-time.Hour), "camp-1")
	tch.FBC = "fb.1.c"

	bare := purchase("p-bare", t0) // no signals at all

	mapped := purchase("p-mapped", t0)
	mapped.FBC = "fb.1.c"
	mapped.CampaignID = "already"

	repo := newMemRepo(tch, bare, mapped)
	svc := attribution.NewService(repo)

	n, err := svc.BulkBackfill(context.Background(), testStore, t0.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 assignments, got %d", n)
	}
	if repo.find("p-bare").CampaignID != "" {
		t.Fatal("signalless purchase must stay unmapped")
	}
	if repo.find("p-mapped").CampaignID != "already" {
		t.Fatal("mapped purchase must not be rewritten")
	}
}

func TestBulkBackfillWindowExcludesStaleTouch(t *testing.T) {
	stale := touch("touch-stale", t0.Add(-30*time.Hour), "camp-stale")
	stale.ClickID = "abc"

	p := purchase("p1", t0)
	p.ClickID = "abc"

	repo := newMemRepo(stale, p)
	svc := attribution.NewService(repo)

	n, err := svc.BulkBackfill(context.Background(), testStore, t0.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 0 {
		t.Fatalf("touch outside the 24h window must not match, got %d assignments", n)
	}
}

func TestBulkBackfillIdempotent(t *testing.T) {
	tch := touch("touch-1", t0.Add(-time.Hour), "camp-1")
	tch.ClickID = "abc"
	p := purchase("p1", t0)
	p.ClickID = "abc"

	repo := newMemRepo(tch, p)
	svc := attribution.NewService(repo)

	if n, err := svc.BulkBackfill(context.Background(), testStore, t0.Add(-48*time.Hour)); err != nil || n != 1 {
		t.Fatalf("first run: n=%d err=%v", n, err)
	}
	if n, err := svc.BulkBackfill(context.Background(), testStore, t0.Add(-48*time.Hour)); err != nil || n != 0 {
		t.Fatalf("second run must be a no-op: n=%d err=%v", n, err)
	}
}
