package api

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shoplight/attribution/internal/pkg/httputil"
	"github.com/shoplight/attribution/internal/storage"
)

// reportWindow parses the common store_id/since/until query parameters.
// until defaults to now, since to now minus the configured lookback.
func (h *Handlers) reportWindow(w http.ResponseWriter, r *http.Request) (storeID string, since, until time.Time, ok bool) {
	storeID = r.URL.Query().Get("store_id")
	if storeID == "" {
		httputil.BadRequest(w, "store_id is required")
		return "", time.Time{}, time.Time{}, false
	}

	until = time.Now().UTC()
	if s := r.URL.Query().Get("until"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httputil.BadRequest(w, "until must be RFC3339")
			return "", time.Time{}, time.Time{}, false
		}
		until = t.UTC()
	}

	since = until.Add(-h.defaultLookback)
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httputil.BadRequest(w, "since must be RFC3339")
			return "", time.Time{}, time.Time{}, false
		}
		since = t.UTC()
	}
	if !since.Before(until) {
		httputil.BadRequest(w, "since must precede until")
		return "", time.Time{}, time.Time{}, false
	}
	return storeID, since, until, true
}

// HandleEntityMetrics returns per-entity results, purchases, and revenue.
//
//	GET /v1/reports/entities?store_id=...&since=...&until=...
func (h *Handlers) HandleEntityMetrics(w http.ResponseWriter, r *http.Request) {
	storeID, since, until, ok := h.reportWindow(w, r)
	if !ok {
		return
	}
	rows, err := h.reporter.AggregateEntityMetrics(r.Context(), storeID, since, until)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"store_id": storeID, "since": since, "until": until, "rows": rows})
}

// HandleCoverage returns attribution coverage for the window.
//
//	GET /v1/reports/coverage?store_id=...&since=...&until=...
func (h *Handlers) HandleCoverage(w http.ResponseWriter, r *http.Request) {
	storeID, since, until, ok := h.reportWindow(w, r)
	if !ok {
		return
	}
	cov, err := h.reporter.CoverageReport(r.Context(), storeID, since, until)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, cov)
}

// HandleBlended returns campaign rows joined with delivery spend. Returns
// 404 when no insights warehouse is configured.
//
//	GET /v1/reports/blended?store_id=...&since=...&until=...
func (h *Handlers) HandleBlended(w http.ResponseWriter, r *http.Request) {
	if h.blender == nil {
		httputil.NotFound(w, "insights warehouse not configured")
		return
	}
	storeID, since, until, ok := h.reportWindow(w, r)
	if !ok {
		return
	}
	rows, err := h.blender.BlendedCampaignReport(r.Context(), storeID, since, until)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"store_id": storeID, "since": since, "until": until, "rows": rows})
}

// snapshotRequest freezes a report window for later comparison.
type snapshotRequest struct {
	StoreID string     `json:"store_id"`
	Since   time.Time  `json:"since"`
	Until   *time.Time `json:"until,omitempty"`
}

// HandleCreateSnapshot computes entity metrics and coverage for the window
// and persists them as one snapshot document.
//
//	POST /v1/snapshots
func (h *Handlers) HandleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		httputil.NotFound(w, "snapshot store not configured")
		return
	}

	var req snapshotRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.StoreID == "" {
		httputil.BadRequest(w, "store_id is required")
		return
	}
	if req.Since.IsZero() {
		httputil.BadRequest(w, "since is required")
		return
	}
	until := time.Now().UTC()
	if req.Until != nil && !req.Until.IsZero() {
		until = req.Until.UTC()
	}

	rows, err := h.reporter.AggregateEntityMetrics(r.Context(), req.StoreID, req.Since, until)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	cov, err := h.reporter.CoverageReport(r.Context(), req.StoreID, req.Since, until)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	now := time.Now().UTC()
	snap := &storage.Snapshot{
		ID:          storage.NewSnapshotID(now),
		StoreID:     req.StoreID,
		Since:       req.Since.UTC(),
		Until:       until,
		GeneratedAt: now,
		Rows:        rows,
		Coverage:    cov,
	}
	if err := h.snapshots.SaveSnapshot(r.Context(), snap); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, snap)
}

// HandleGetSnapshot retrieves a stored snapshot.
//
//	GET /v1/snapshots/{id}?store_id=...
func (h *Handlers) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		httputil.NotFound(w, "snapshot store not configured")
		return
	}
	storeID := r.URL.Query().Get("store_id")
	if storeID == "" {
		httputil.BadRequest(w, "store_id is required")
		return
	}
	id := chi.URLParam(r, "id")

	snap, err := h.snapshots.LoadSnapshot(r.Context(), storeID, id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			httputil.NotFound(w, "snapshot not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, snap)
}
