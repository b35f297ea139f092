package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shoplight/attribution/internal/domain"
	"github.com/shoplight/attribution/internal/service/ingest"
)

// EventRepo implements ingest.Repository against PostgreSQL.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event store write path.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Upsert inserts the event or merges it into the existing row for the same
// (store_id, event_id). The whole insert-or-merge is one statement:
//
//   - fresh key (or no event_id at all): plain insert, RETURNING fires with
//     xmax = 0
//   - existing key and at least one mergeable field would gain a value:
//     COALESCE merge runs, RETURNING fires with xmax <> 0
//   - existing key and nothing to merge: the DO UPDATE WHERE clause is
//     false, no row comes back
//
// Mergeable fields follow first-write-wins: an existing non-null value is
// never overwritten.
func (r *EventRepo) Upsert(ctx context.Context, e *domain.TrackingEvent) (ingest.Result, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tracking_events
			(id, store_id, event_id, event_name, source, occurred_at, created_at,
			 click_id, fbc, fbp, email_hash, phone_hash, ip_hash, external_id, session_id,
			 value, currency, order_id, campaign_id, adset_id, ad_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			 $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (store_id, event_id) WHERE event_id IS NOT NULL DO UPDATE SET
			click_id    = COALESCE(tracking_events.click_id, EXCLUDED.click_id),
			fbc         = COALESCE(tracking_events.fbc, EXCLUDED.fbc),
			fbp         = COALESCE(tracking_events.fbp, EXCLUDED.fbp),
			email_hash  = COALESCE(tracking_events.email_hash, EXCLUDED.email_hash),
			phone_hash  = COALESCE(tracking_events.phone_hash, EXCLUDED.phone_hash),
			ip_hash     = COALESCE(tracking_events.ip_hash, EXCLUDED.ip_hash),
			external_id = COALESCE(tracking_events.external_id, EXCLUDED.external_id),
			session_id  = COALESCE(tracking_events.session_id, EXCLUDED.session_id),
			value       = COALESCE(tracking_events.value, EXCLUDED.value),
			currency    = COALESCE(tracking_events.currency, EXCLUDED.currency),
			order_id    = COALESCE(tracking_events.order_id, EXCLUDED.order_id),
			campaign_id = COALESCE(tracking_events.campaign_id, EXCLUDED.campaign_id),
			adset_id    = COALESCE(tracking_events.adset_id, EXCLUDED.adset_id),
			ad_id       = COALESCE(tracking_events.ad_id, EXCLUDED.ad_id),
			payload     = COALESCE(tracking_events.payload, EXCLUDED.payload)
		WHERE (tracking_events.click_id IS NULL AND EXCLUDED.click_id IS NOT NULL)
		   OR (tracking_events.fbc IS NULL AND EXCLUDED.fbc IS NOT NULL)
		   OR (tracking_events.fbp IS NULL AND EXCLUDED.fbp IS NOT NULL)
		   OR (tracking_events.email_hash IS NULL AND EXCLUDED.email_hash IS NOT NULL)
		   OR (tracking_events.phone_hash IS NULL AND EXCLUDED.phone_hash IS NOT NULL)
		   OR (tracking_events.ip_hash IS NULL AND EXCLUDED.ip_hash IS NOT NULL)
		   OR (tracking_events.external_id IS NULL AND EXCLUDED.external_id IS NOT NULL)
		   OR (tracking_events.session_id IS NULL AND EXCLUDED.session_id IS NOT NULL)
		   OR (tracking_events.value IS NULL AND EXCLUDED.value IS NOT NULL)
		   OR (tracking_events.currency IS NULL AND EXCLUDED.currency IS NOT NULL)
		   OR (tracking_events.order_id IS NULL AND EXCLUDED.order_id IS NOT NULL)
		   OR (tracking_events.campaign_id IS NULL AND EXCLUDED.campaign_id IS NOT NULL)
		   OR (tracking_events.adset_id IS NULL AND EXCLUDED.adset_id IS NOT NULL)
		   OR (tracking_events.ad_id IS NULL AND EXCLUDED.ad_id IS NOT NULL)
		   OR (tracking_events.payload IS NULL AND EXCLUDED.payload IS NOT NULL)
		RETURNING (xmax = 0)
	`,
		e.ID, e.StoreID, nullStr(e.EventID), e.EventName, string(e.Source),
		e.OccurredAt, e.CreatedAt,
		nullStr(e.ClickID), nullStr(e.FBC), nullStr(e.FBP),
		nullStr(e.EmailHash), nullStr(e.PhoneHash), nullStr(e.IPHash),
		nullStr(e.ExternalID), nullStr(e.SessionID),
		nullFloat(e.Value), nullStr(e.Currency), nullStr(e.OrderID),
		nullStr(e.CampaignID), nullStr(e.AdSetID), nullStr(e.AdID),
		nullBytes(e.Payload),
	).Scan(&inserted)
	if err == sql.ErrNoRows {
		// Conflict with nothing to merge.
		return ingest.Result{}, nil
	}
	if err != nil {
		return ingest.Result{}, fmt.Errorf("upsert event: %w", err)
	}
	if inserted {
		return ingest.Result{Inserted: true}, nil
	}
	return ingest.Result{Updated: true}, nil
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
