package attribution_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shoplight/attribution/internal/domain"
	"github.com/shoplight/attribution/internal/service/attribution"
)

// memRepo is an in-memory event store for unit testing the matchers. It
// mirrors the SQL repository's filters: candidate queries only return rows
// with at least one entity id and event_name != Refund.
type memRepo struct {
	mu     sync.Mutex
	events []domain.TrackingEvent
}

func newMemRepo(events ...domain.TrackingEvent) *memRepo {
	return &memRepo{events: events}
}

func (m *memRepo) find(id string) *domain.TrackingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			cp := m.events[i]
			return &cp
		}
	}
	return nil
}

func isCandidate(e *domain.TrackingEvent, storeID string) bool {
	return e.StoreID == storeID && e.Attributed() && e.EventName != domain.EventRefund
}

func (m *memRepo) LatestByClickID(_ context.Context, storeID, clickID string, before *time.Time) (*domain.TrackingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.TrackingEvent
	for i := range m.events {
		e := &m.events[i]
		if !isCandidate(e, storeID) || e.ClickID != clickID {
			continue
		}
		if before != nil && e.OccurredAt.After(*before) {
			continue
		}
		if best == nil || e.OccurredAt.After(best.OccurredAt) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *memRepo) CandidatesBySignals(_ context.Context, storeID string, sig attribution.Signals, before *time.Time, limit int) ([]domain.TrackingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TrackingEvent
	for i := range m.events {
		e := &m.events[i]
		if !isCandidate(e, storeID) {
			continue
		}
		if before != nil && e.OccurredAt.After(*before) {
			continue
		}
		match := (sig.ClickID != "" && e.ClickID == sig.ClickID) ||
			(sig.FBC != "" && e.FBC == sig.FBC) ||
			(sig.FBP != "" && e.FBP == sig.FBP) ||
			(sig.EmailHash != "" && e.EmailHash == sig.EmailHash)
		if match {
			out = append(out, *e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) TouchesNear(_ context.Context, storeID string, at time.Time, window time.Duration) ([]domain.TrackingEvent, error) {
	return m.TouchesBetween(context.Background(), storeID, at.Add(-window), at.Add(window))
}

func (m *memRepo) TouchesBetween(_ context.Context, storeID string, from, to time.Time) ([]domain.TrackingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TrackingEvent
	for i := range m.events {
		e := &m.events[i]
		if !isCandidate(e, storeID) {
			continue
		}
		if e.OccurredAt.Before(from) || e.OccurredAt.After(to) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memRepo) UnmappedPurchases(_ context.Context, storeID string, since time.Time) ([]domain.TrackingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TrackingEvent
	for i := range m.events {
		e := &m.events[i]
		if e.StoreID != storeID || e.EventName != domain.EventPurchase || e.Attributed() {
			continue
		}
		if e.OccurredAt.Before(since) {
			continue
		}
		if e.ClickID == "" && e.FBC == "" && e.FBP == "" && e.EmailHash == "" {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memRepo) AssignEntities(_ context.Context, storeID, eventID string, ent domain.EntityIDs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		e := &m.events[i]
		if e.StoreID != storeID || e.ID != eventID {
			continue
		}
		if e.CampaignID == "" {
			e.CampaignID = ent.CampaignID
		}
		if e.AdSetID == "" {
			e.AdSetID = ent.AdSetID
		}
		if e.AdID == "" {
			e.AdID = ent.AdID
		}
	}
	return nil
}

func (m *memRepo) BulkAssign(_ context.Context, storeID string, assignments []attribution.Assignment) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range assignments {
		for i := range m.events {
			e := &m.events[i]
			if e.StoreID != storeID || e.ID != a.EventID || e.Attributed() {
				continue
			}
			e.CampaignID = a.Entities.CampaignID
			e.AdSetID = a.Entities.AdSetID
			e.AdID = a.Entities.AdID
			n++
		}
	}
	return n, nil
}

const testStore = "store-1"

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func touch(id string, at time.Time, campaign string) domain.TrackingEvent {
	return domain.TrackingEvent{
		ID: id, StoreID: testStore, EventName: "PageView",
		Source: domain.SourceBrowser, OccurredAt: at, CampaignID: campaign,
	}
}

func TestMatchByClickIDLatestWins(t *testing.T) {
	old := touch("t1", t0.Add(-3*time.Hour), "camp-old")
	old.ClickID = "abc"
	fresh := touch("t2", t0.Add(-time.Hour), "camp-new")
	fresh.ClickID = "abc"
	svc := attribution.NewService(newMemRepo(old, fresh))

	e, err := svc.MatchByClickID(context.Background(), testStore, "abc", nil)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if e == nil || e.CampaignID != "camp-new" {
		t.Fatalf("expected camp-new, got %+v", e)
	}
}

func TestMatchByClickIDNoFutureLeakage(t *testing.T) {
	future := touch("t1", t0.Add(time.Hour), "camp-future")
	future.ClickID = "abc"
	svc := attribution.NewService(newMemRepo(future))

	cutoff := t0
	e, err := svc.MatchByClickID(context.Background(), testStore, "abc", &cutoff)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if e != nil {
		t.Fatalf("expected no match against a future touch, got %+v", e)
	}
}

func TestMatchByClickIDIgnoresRefunds(t *testing.T) {
	ref := touch("t1", t0.Add(-time.Hour), "camp-1")
	ref.ClickID = "abc"
	ref.EventName = domain.EventRefund
	svc := attribution.NewService(newMemRepo(ref))

	e, err := svc.MatchByClickID(context.Background(), testStore, "abc", nil)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if e != nil {
		t.Fatalf("refund rows must not be candidates, got %+v", e)
	}
}

func TestMatchBySignalsStrongBeatsFresh(t *testing.T) {
	// A day-old click_id touch must outrank an hour-old fbp-only touch.
	click := touch("t1", t0.Add(-24*time.Hour), "camp-click")
	click.ClickID = "abc"
	fbp := touch("t2", t0.Add(-time.Hour), "camp-fbp")
	fbp.FBP = "fb.1.p"
	svc := attribution.NewService(newMemRepo(click, fbp))

	cutoff := t0
	m, err := svc.MatchBySignals(context.Background(), testStore,
		attribution.Signals{ClickID: "abc", FBP: "fb.1.p"}, &cutoff)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m == nil || m.Entities.CampaignID != "camp-click" {
		t.Fatalf("expected camp-click, got %+v", m)
	}
	if len(m.Matched) != 1 || m.Matched[0] != attribution.SignalClickID {
		t.Fatalf("expected matched [click_id], got %v", m.Matched)
	}
}

func TestMatchBySignalsTieGoesToLatest(t *testing.T) {
	// Same signal, same age bucket, identical scores: latest touch wins.
	a := touch("t1", t0.Add(-30*time.Minute), "camp-a")
	a.FBC = "fb.1.c"
	b := touch("t2", t0.Add(-10*time.Minute), "camp-b")
	b.FBC = "fb.1.c"
	svc := attribution.NewService(newMemRepo(a, b))

	cutoff := t0
	m, err := svc.MatchBySignals(context.Background(), testStore,
		attribution.Signals{FBC: "fb.1.c"}, &cutoff)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m == nil || m.Entities.CampaignID != "camp-b" {
		t.Fatalf("expected camp-b, got %+v", m)
	}
}

func TestMatchBySignalsDecaysWithoutCutoff(t *testing.T) {
	// With no cutoff the match time anchors recency decay. A two-hour-old
	// click_id touch lands in the six-hour tier: 72 * 0.97 / 120.
	tc := touch("t1", time.Now().Add(-2*time.Hour), "camp-a")
	tc.ClickID = "c1"
	svc := attribution.NewService(newMemRepo(tc))

	m, err := svc.MatchBySignals(context.Background(), testStore,
		attribution.Signals{ClickID: "c1"}, nil)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m == nil || m.Entities.CampaignID != "camp-a" {
		t.Fatalf("expected camp-a, got %+v", m)
	}
	if m.AgeHours < 1.9 || m.AgeHours > 2.1 {
		t.Fatalf("age = %v hours, want ~2", m.AgeHours)
	}
	want := 72 * 0.97 / 120
	if diff := m.Confidence - want; diff < -1e-9 || diff > 1e-9 {
		t.Fatalf("confidence = %v, want %v", m.Confidence, want)
	}
}

func TestMatchBySignalsEmpty(t *testing.T) {
	svc := attribution.NewService(newMemRepo())
	m, err := svc.MatchBySignals(context.Background(), testStore, attribution.Signals{}, nil)
	if err != nil || m != nil {
		t.Fatalf("expected nil,nil on empty signals, got %+v, %v", m, err)
	}
}

func TestMatchByProximityNearestWins(t *testing.T) {
	near := touch("t1", t0.Add(-90*time.Second), "camp-near")
	farAway := touch("t2", t0.Add(-9*time.Minute), "camp-far")
	svc := attribution.NewService(newMemRepo(near, farAway))

	m, err := svc.MatchByProximity(context.Background(), testStore, t0, 0)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m == nil || m.Entities.CampaignID != "camp-near" {
		t.Fatalf("expected camp-near, got %+v", m)
	}
	if m.Confidence != 0.72 {
		t.Fatalf("90s distance confidence = %v, want 0.72", m.Confidence)
	}
}

func TestMatchByProximityAmbiguityGuardrail(t *testing.T) {
	winner := touch("t1", t0.Add(-60*time.Second), "camp-a")

	// A conflicting touch 119s further away forces abstention.
	rival := touch("t2", t0.Add(-179*time.Second), "camp-b")
	svc := attribution.NewService(newMemRepo(winner, rival))
	m, err := svc.MatchByProximity(context.Background(), testStore, t0, 0)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m != nil {
		t.Fatalf("expected abstention inside the ambiguity margin, got %+v", m)
	}

	// At 121s beyond the winner the rival no longer blocks.
	svc = attribution.NewService(newMemRepo(winner, touch("t3", t0.Add(-181*time.Second), "camp-b")))
	m, err = svc.MatchByProximity(context.Background(), testStore, t0, 0)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m == nil || m.Entities.CampaignID != "camp-a" {
		t.Fatalf("expected camp-a outside the margin, got %+v", m)
	}
}

func TestMatchByProximitySameEntityNotAmbiguous(t *testing.T) {
	// Two touches for the same ad entity can sit arbitrarily close.
	a := touch("t1", t0.Add(-60*time.Second), "camp-a")
	b := touch("t2", t0.Add(-70*time.Second), "camp-a")
	svc := attribution.NewService(newMemRepo(a, b))

	m, err := svc.MatchByProximity(context.Background(), testStore, t0, 0)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m == nil || m.Entities.CampaignID != "camp-a" {
		t.Fatalf("expected camp-a, got %+v", m)
	}
}

func TestMatchByProximityWindowClamp(t *testing.T) {
	// 90 minutes away is outside even the maximum window.
	far := touch("t1", t0.Add(-90*time.Minute), "camp-far")
	svc := attribution.NewService(newMemRepo(far))

	m, err := svc.MatchByProximity(context.Background(), testStore, t0, 500)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m != nil {
		t.Fatalf("window must clamp to 60m, got %+v", m)
	}
}

func TestResolveCascadeOrder(t *testing.T) {
	click := touch("t1", t0.Add(-2*time.Hour), "camp-click")
	click.ClickID = "abc"
	fbc := touch("t2", t0.Add(-time.Hour), "camp-fbc")
	fbc.FBC = "fb.1.c"
	svc := attribution.NewService(newMemRepo(click, fbc))

	cutoff := t0
	q := attribution.MatchQuery{
		Signals:    attribution.Signals{ClickID: "abc", FBC: "fb.1.c"},
		OccurredAt: t0,
		Before:     &cutoff,
	}
	res, err := svc.Resolve(context.Background(), testStore, q)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res == nil || res.Method != attribution.MethodClickID {
		t.Fatalf("expected click_id method, got %+v", res)
	}
	if res.Entities.CampaignID != "camp-click" {
		t.Fatalf("expected camp-click, got %+v", res.Entities)
	}

	// Without the click signal the scored matcher takes over.
	q.Signals.ClickID = ""
	res, err = svc.Resolve(context.Background(), testStore, q)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res == nil || res.Method != attribution.MethodScored {
		t.Fatalf("expected scored method, got %+v", res)
	}

	// With no signals at all proximity is the last resort.
	q.Signals = attribution.Signals{}
	res, err = svc.Resolve(context.Background(), testStore, q)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res == nil || res.Method != attribution.MethodProximity {
		t.Fatalf("expected proximity method, got %+v", res)
	}
}

func TestAssignEmptyIsNoop(t *testing.T) {
	repo := newMemRepo()
	svc := attribution.NewService(repo)
	if err := svc.Assign(context.Background(), testStore, "e1", domain.EntityIDs{}); err != nil {
		t.Fatalf("assign: %v", err)
	}
}
