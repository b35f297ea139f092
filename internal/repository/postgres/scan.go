// Package postgres implements the service repository interfaces against
// PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/shoplight/attribution/internal/domain"
)

// eventColumns is the canonical select list for tracking_events rows.
// Keep in sync with scanEvent.
const eventColumns = `id, store_id, COALESCE(event_id,''), event_name, source,
	occurred_at, created_at,
	COALESCE(click_id,''), COALESCE(fbc,''), COALESCE(fbp,''),
	COALESCE(email_hash,''), COALESCE(phone_hash,''), COALESCE(ip_hash,''),
	COALESCE(external_id,''), COALESCE(session_id,''),
	value, COALESCE(currency,''), COALESCE(order_id,''),
	COALESCE(campaign_id,''), COALESCE(adset_id,''), COALESCE(ad_id,''),
	payload`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (domain.TrackingEvent, error) {
	var (
		e       domain.TrackingEvent
		source  string
		value   sql.NullFloat64
		payload []byte
	)
	err := row.Scan(
		&e.ID, &e.StoreID, &e.EventID, &e.EventName, &source,
		&e.OccurredAt, &e.CreatedAt,
		&e.ClickID, &e.FBC, &e.FBP,
		&e.EmailHash, &e.PhoneHash, &e.IPHash,
		&e.ExternalID, &e.SessionID,
		&value, &e.Currency, &e.OrderID,
		&e.CampaignID, &e.AdSetID, &e.AdID,
		&payload,
	)
	if err != nil {
		return e, err
	}
	e.Source = domain.EventSource(source)
	if value.Valid {
		e.Value = &value.Float64
	}
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return e, nil
}

func collectEvents(rows *sql.Rows) ([]domain.TrackingEvent, error) {
	defer rows.Close()
	var out []domain.TrackingEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// nullStr maps the domain's ""-means-absent convention onto SQL NULL.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullFloat maps a nil pointer onto SQL NULL; an explicit zero is stored.
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
