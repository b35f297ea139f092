package api

import (
	"net/http"
	"time"

	"github.com/shoplight/attribution/internal/pkg/httputil"
	"github.com/shoplight/attribution/internal/service/attribution"
)

// matchRequest asks the matcher cascade to attribute one purchase.
type matchRequest struct {
	StoreID       string              `json:"store_id"`
	Signals       attribution.Signals `json:"signals"`
	OccurredAt    time.Time           `json:"occurred_at"`
	WindowMinutes int                 `json:"window_minutes,omitempty"`
}

// matchResponse wraps the cascade outcome. Matched is false when every
// matcher came up empty or abstained.
type matchResponse struct {
	Matched bool                     `json:"matched"`
	Result  *attribution.MatchResult `json:"result,omitempty"`
}

// HandleMatch runs the matcher cascade for an ad-hoc query. The purchase's
// occurred_at doubles as the look-back cutoff so replayed historical
// purchases never see touches from their future.
//
//	POST /v1/attribution/match
func (h *Handlers) HandleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.StoreID == "" {
		httputil.BadRequest(w, "store_id is required")
		return
	}
	if req.OccurredAt.IsZero() {
		httputil.BadRequest(w, "occurred_at is required")
		return
	}

	window := req.WindowMinutes
	if window == 0 {
		window = h.defaultWindowMinutes
	}

	cutoff := req.OccurredAt
	res, err := h.matcher.Resolve(r.Context(), req.StoreID, attribution.MatchQuery{
		Signals:       req.Signals,
		OccurredAt:    req.OccurredAt,
		Before:        &cutoff,
		WindowMinutes: window,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, matchResponse{Matched: res != nil, Result: res})
}

// backfillRequest triggers a bulk backfill run.
type backfillRequest struct {
	StoreID string     `json:"store_id"`
	Since   *time.Time `json:"since,omitempty"`
}

// backfillResponse reports how many purchases the run attributed.
type backfillResponse struct {
	StoreID    string    `json:"store_id"`
	Since      time.Time `json:"since"`
	Backfilled int       `json:"backfilled"`
}

// HandleBackfill runs the bulk backfill synchronously for one store. The
// scheduled job covers routine runs; this endpoint exists for replays after
// late Shopify order imports.
//
//	POST /v1/attribution/backfill
func (h *Handlers) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.StoreID == "" {
		httputil.BadRequest(w, "store_id is required")
		return
	}

	since := time.Now().UTC().Add(-h.defaultLookback)
	if req.Since != nil && !req.Since.IsZero() {
		since = req.Since.UTC()
	}

	n, err := h.matcher.BulkBackfill(r.Context(), req.StoreID, since)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, backfillResponse{StoreID: req.StoreID, Since: since, Backfilled: n})
}
