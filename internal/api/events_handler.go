package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shoplight/attribution/internal/domain"
	"github.com/shoplight/attribution/internal/pkg/httputil"
	"github.com/shoplight/attribution/internal/pkg/logger"
	"github.com/shoplight/attribution/internal/service/ingest"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// ingestResponse is the HTTP envelope for an accepted event.
type ingestResponse struct {
	ID       string `json:"id"`
	Inserted bool   `json:"inserted"`
	Updated  bool   `json:"updated"`
}

// HandleIngestEvent accepts one tracking event as JSON.
//
//	POST /v1/events
func (h *Handlers) HandleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var evt domain.TrackingEvent
	if !httputil.Decode(w, r, &evt) {
		return
	}

	res, err := h.ingest.Ingest(r.Context(), &evt)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrMissingStore),
			errors.Is(err, ingest.ErrMissingEventName),
			errors.Is(err, ingest.ErrMissingTimestamp),
			errors.Is(err, ingest.ErrInvalidSource):
			httputil.BadRequest(w, err.Error())
		default:
			httputil.InternalError(w, err)
		}
		return
	}

	status := http.StatusOK
	if res.Inserted {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, ingestResponse{ID: evt.ID, Inserted: res.Inserted, Updated: res.Updated})
}

// pixelPayload is the browser collector's event shape, carried base64url
// encoded in the pixel path so the request stays a cacheable-looking GET.
type pixelPayload struct {
	StoreID    string   `json:"store_id"`
	EventID    string   `json:"event_id,omitempty"`
	EventName  string   `json:"event_name"`
	OccurredAt string   `json:"occurred_at,omitempty"`
	ClickID    string   `json:"click_id,omitempty"`
	FBC        string   `json:"fbc,omitempty"`
	FBP        string   `json:"fbp,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	OrderID    string   `json:"order_id,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	Currency   string   `json:"currency,omitempty"`
	CampaignID string   `json:"campaign_id,omitempty"`
	AdSetID    string   `json:"adset_id,omitempty"`
	AdID       string   `json:"ad_id,omitempty"`
}

// HandlePixel records a browser event embedded in the URL and always serves
// the GIF. Malformed payloads are dropped silently so broken storefront tags
// never surface errors to shoppers.
//
//	GET /px/{data}
func (h *Handlers) HandlePixel(w http.ResponseWriter, r *http.Request) {
	encoded := chi.URLParam(r, "data")

	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		servePixel(w)
		return
	}

	var p pixelPayload
	if err := json.Unmarshal(decoded, &p); err != nil {
		servePixel(w)
		return
	}

	occurred := time.Now().UTC()
	if p.OccurredAt != "" {
		if t, err := time.Parse(time.RFC3339, p.OccurredAt); err == nil {
			occurred = t.UTC()
		}
	}

	evt := domain.TrackingEvent{
		StoreID:    p.StoreID,
		EventID:    p.EventID,
		EventName:  p.EventName,
		Source:     domain.SourceBrowser,
		OccurredAt: occurred,
		ClickID:    p.ClickID,
		FBC:        p.FBC,
		FBP:        p.FBP,
		SessionID:  p.SessionID,
		OrderID:    p.OrderID,
		Value:      p.Value,
		Currency:   p.Currency,
		CampaignID: p.CampaignID,
		AdSetID:    p.AdSetID,
		AdID:       p.AdID,
		Payload:    json.RawMessage(decoded),
	}

	if _, err := h.ingest.Ingest(r.Context(), &evt); err != nil {
		logger.Warn("pixel ingest failed",
			"store_id", p.StoreID, "event_name", p.EventName,
			"click_id", p.ClickID, "error", err)
	}
	servePixel(w)
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}
