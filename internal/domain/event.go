package domain

import (
	"encoding/json"
	"time"
)

// EventSource identifies which collector produced a tracking event.
type EventSource string

const (
	SourceBrowser EventSource = "browser"
	SourceServer  EventSource = "server"
	SourceShopify EventSource = "shopify"
)

// Priority returns the dedup precedence of a source. When the same order
// arrives from multiple collectors, the highest-priority row wins
// (shopify > server > browser).
func (s EventSource) Priority() int {
	switch s {
	case SourceShopify:
		return 3
	case SourceServer:
		return 2
	case SourceBrowser:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known event source.
func (s EventSource) Valid() bool {
	return s == SourceBrowser || s == SourceServer || s == SourceShopify
}

// Well-known event names. EventRefund rows are synthetic negatives and are
// never used as attribution candidates.
const (
	EventPurchase = "Purchase"
	EventRefund   = "Refund"
)

// conversionEvents is the fixed set of event names counted as "results" in
// entity-level reporting.
var conversionEvents = map[string]struct{}{
	"Purchase":             {},
	"Lead":                 {},
	"CompleteRegistration": {},
	"Contact":              {},
	"SubmitApplication":    {},
	"Subscribe":            {},
	"StartTrial":           {},
	"AddPaymentInfo":       {},
	"InitiateCheckout":     {},
	"AddToCart":            {},
}

// IsConversionEvent reports whether the event name counts as a result.
func IsConversionEvent(name string) bool {
	_, ok := conversionEvents[name]
	return ok
}

// EntityIDs is the (campaign, ad set, ad) triple identifying which ad caused
// a touch. Any subset may be set; an upstream source may only know campaign
// granularity.
type EntityIDs struct {
	CampaignID string `json:"campaign_id,omitempty"`
	AdSetID    string `json:"adset_id,omitempty"`
	AdID       string `json:"ad_id,omitempty"`
}

// Empty reports whether no entity id is set at all.
func (e EntityIDs) Empty() bool {
	return e.CampaignID == "" && e.AdSetID == "" && e.AdID == ""
}

// Key returns a comparable representation of the assignment, used to decide
// whether two candidate touches point at the same ad entity.
func (e EntityIDs) Key() string {
	return e.CampaignID + "|" + e.AdSetID + "|" + e.AdID
}

// TrackingEvent is the central entity of the attribution core: one observed
// storefront or pixel event, with its optional identity signals and, once a
// matcher has run, its entity assignment.
//
// Optional string fields use "" for absence; the SQL layer maps "" to NULL
// so the (store_id, event_id) partial unique index and COALESCE merge
// semantics behave correctly.
type TrackingEvent struct {
	ID      string `json:"id" db:"id"`
	StoreID string `json:"store_id" db:"store_id"`
	// EventID is the externally supplied idempotency key. Events without one
	// cannot be deduplicated at ingest.
	EventID   string      `json:"event_id,omitempty" db:"event_id"`
	EventName string      `json:"event_name" db:"event_name"`
	Source    EventSource `json:"source" db:"source"`

	// OccurredAt is event time and the sole ordering key for all temporal
	// reasoning. CreatedAt is ingestion time and reflects delivery lag only.
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	// Identity signals, all optional.
	ClickID    string `json:"click_id,omitempty" db:"click_id"`
	FBC        string `json:"fbc,omitempty" db:"fbc"`
	FBP        string `json:"fbp,omitempty" db:"fbp"`
	EmailHash  string `json:"email_hash,omitempty" db:"email_hash"`
	PhoneHash  string `json:"phone_hash,omitempty" db:"phone_hash"`
	IPHash     string `json:"ip_hash,omitempty" db:"ip_hash"`
	ExternalID string `json:"external_id,omitempty" db:"external_id"`
	SessionID  string `json:"session_id,omitempty" db:"session_id"`

	// Commerce fields. Value is a pointer so an explicit zero-value order
	// stays distinguishable from "no value reported".
	Value    *float64 `json:"value,omitempty" db:"value"`
	Currency string   `json:"currency,omitempty" db:"currency"`
	OrderID  string   `json:"order_id,omitempty" db:"order_id"`

	// Attribution result, null until a matcher assigns it. An event carrying
	// an assignment becomes a reference touch other purchases can match
	// against; the assignment itself is never matched on.
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`
	AdSetID    string `json:"adset_id,omitempty" db:"adset_id"`
	AdID       string `json:"ad_id,omitempty" db:"ad_id"`

	// Payload carries the raw collector payload for debugging.
	Payload json.RawMessage `json:"payload,omitempty" db:"payload"`
}

// Entities returns the event's entity assignment.
func (e *TrackingEvent) Entities() EntityIDs {
	return EntityIDs{CampaignID: e.CampaignID, AdSetID: e.AdSetID, AdID: e.AdID}
}

// Attributed reports whether at least one entity id is assigned.
func (e *TrackingEvent) Attributed() bool {
	return !e.Entities().Empty()
}

// DedupKey returns the grouping key used when collapsing multi-source copies
// of the same real-world purchase: order_id when present, else event_id.
// Events with neither are never collapsed.
func (e *TrackingEvent) DedupKey() string {
	if e.OrderID != "" {
		return "o:" + e.OrderID
	}
	if e.EventID != "" {
		return "e:" + e.EventID
	}
	return ""
}
