package attribution

import (
	"context"
	"time"

	"github.com/shoplight/attribution/internal/domain"
)

// Signals carries the identity signals of the purchase being attributed.
// Empty fields are excluded from matching.
type Signals struct {
	ClickID   string `json:"click_id,omitempty"`
	FBC       string `json:"fbc,omitempty"`
	FBP       string `json:"fbp,omitempty"`
	EmailHash string `json:"email_hash,omitempty"`
}

// Empty reports whether no signal is present at all.
func (s Signals) Empty() bool {
	return s.ClickID == "" && s.FBC == "" && s.FBP == "" && s.EmailHash == ""
}

// Assignment pairs an unmapped purchase with the entity ids a matcher chose
// for it.
type Assignment struct {
	EventID  string
	Entities domain.EntityIDs
}

// Repository defines the read/write contract the matchers need from the
// event store. Implementations must be safe for concurrent use.
//
// All candidate queries return only events that carry at least one entity id
// and whose event_name is not "Refund"; rows are scoped to a single store.
type Repository interface {
	// LatestByClickID returns the most recent reference touch with the given
	// click_id, or nil when none exists. When before is non-nil only events
	// with occurred_at <= before are considered.
	LatestByClickID(ctx context.Context, storeID, clickID string, before *time.Time) (*domain.TrackingEvent, error)

	// CandidatesBySignals returns up to limit most-recent reference touches
	// sharing at least one of the given signal values. When before is
	// non-nil only events with occurred_at <= before are considered.
	CandidatesBySignals(ctx context.Context, storeID string, sig Signals, before *time.Time, limit int) ([]domain.TrackingEvent, error)

	// TouchesNear returns reference touches with occurred_at inside
	// [at-window, at+window].
	TouchesNear(ctx context.Context, storeID string, at time.Time, window time.Duration) ([]domain.TrackingEvent, error)

	// TouchesBetween returns reference touches with occurred_at inside
	// [from, to]. Used by the bulk backfill to fetch one candidate pool for
	// the whole batch.
	TouchesBetween(ctx context.Context, storeID string, from, to time.Time) ([]domain.TrackingEvent, error)

	// UnmappedPurchases returns Purchase events since the given time that
	// carry no entity id at all and at least one matchable signal.
	UnmappedPurchases(ctx context.Context, storeID string, since time.Time) ([]domain.TrackingEvent, error)

	// AssignEntities writes entity ids onto an event, setting only fields
	// that are currently null (mirrors the ingest merge rule). Idempotent.
	AssignEntities(ctx context.Context, storeID, eventID string, e domain.EntityIDs) error

	// BulkAssign applies many assignments in a single transaction, touching
	// only rows whose campaign_id, adset_id, and ad_id are all still null.
	// Returns the number of rows actually changed.
	BulkAssign(ctx context.Context, storeID string, assignments []Assignment) (int, error)
}
