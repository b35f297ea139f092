package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shoplight/attribution/internal/domain"
	"github.com/shoplight/attribution/internal/service/attribution"
)

// AttributionRepo implements attribution.Repository against PostgreSQL.
//
// Reference-touch queries share the same shape: scoped to a store, at least
// one entity id assigned, and never the synthetic "Refund" rows.
type AttributionRepo struct{ db *sql.DB }

// NewAttributionRepo creates a Postgres-backed attribution repository.
func NewAttributionRepo(db *sql.DB) *AttributionRepo { return &AttributionRepo{db: db} }

const touchFilter = `
	  AND (campaign_id IS NOT NULL OR adset_id IS NOT NULL OR ad_id IS NOT NULL)
	  AND event_name <> 'Refund'`

func (r *AttributionRepo) LatestByClickID(ctx context.Context, storeID, clickID string, before *time.Time) (*domain.TrackingEvent, error) {
	q := `
		SELECT ` + eventColumns + `
		FROM tracking_events
		WHERE store_id = $1 AND click_id = $2` + touchFilter
	args := []interface{}{storeID, clickID}
	if before != nil {
		q += " AND occurred_at <= $3"
		args = append(args, *before)
	}
	q += " ORDER BY occurred_at DESC LIMIT 1"

	e, err := scanEvent(r.db.QueryRowContext(ctx, q, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest by click_id: %w", err)
	}
	return &e, nil
}

func (r *AttributionRepo) CandidatesBySignals(ctx context.Context, storeID string, sig attribution.Signals, before *time.Time, limit int) ([]domain.TrackingEvent, error) {
	if limit <= 0 {
		limit = 200
	}

	conds := ""
	args := []interface{}{storeID}
	idx := 2
	or := func(col, val string) {
		if val == "" {
			return
		}
		if conds != "" {
			conds += " OR "
		}
		conds += fmt.Sprintf("%s = $%d", col, idx)
		args = append(args, val)
		idx++
	}
	or("click_id", sig.ClickID)
	or("fbc", sig.FBC)
	or("fbp", sig.FBP)
	or("email_hash", sig.EmailHash)
	if conds == "" {
		return nil, nil
	}

	q := `
		SELECT ` + eventColumns + `
		FROM tracking_events
		WHERE store_id = $1 AND (` + conds + `)` + touchFilter
	if before != nil {
		q += fmt.Sprintf(" AND occurred_at <= $%d", idx)
		args = append(args, *before)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("signal candidates: %w", err)
	}
	return collectEvents(rows)
}

func (r *AttributionRepo) TouchesNear(ctx context.Context, storeID string, at time.Time, window time.Duration) ([]domain.TrackingEvent, error) {
	return r.TouchesBetween(ctx, storeID, at.Add(-window), at.Add(window))
}

func (r *AttributionRepo) TouchesBetween(ctx context.Context, storeID string, from, to time.Time) ([]domain.TrackingEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM tracking_events
		WHERE store_id = $1 AND occurred_at BETWEEN $2 AND $3`+touchFilter+`
		ORDER BY occurred_at DESC
	`, storeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("touches between: %w", err)
	}
	return collectEvents(rows)
}

func (r *AttributionRepo) UnmappedPurchases(ctx context.Context, storeID string, since time.Time) ([]domain.TrackingEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM tracking_events
		WHERE store_id = $1 AND event_name = 'Purchase' AND occurred_at >= $2
		  AND campaign_id IS NULL AND adset_id IS NULL AND ad_id IS NULL
		  AND (click_id IS NOT NULL OR fbc IS NOT NULL
		       OR fbp IS NOT NULL OR email_hash IS NOT NULL)
		ORDER BY occurred_at
	`, storeID, since)
	if err != nil {
		return nil, fmt.Errorf("unmapped purchases: %w", err)
	}
	return collectEvents(rows)
}

// AssignEntities writes entity ids onto an event, preserving any already-set
// field (same first-write-wins rule as ingest merges).
func (r *AttributionRepo) AssignEntities(ctx context.Context, storeID, eventID string, e domain.EntityIDs) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tracking_events SET
			campaign_id = COALESCE(campaign_id, $3),
			adset_id    = COALESCE(adset_id, $4),
			ad_id       = COALESCE(ad_id, $5)
		WHERE store_id = $1 AND id = $2
	`, storeID, eventID, nullStr(e.CampaignID), nullStr(e.AdSetID), nullStr(e.AdID))
	if err != nil {
		return fmt.Errorf("assign entities: %w", err)
	}
	return nil
}

// BulkAssign applies the backfill's assignments in one transaction. Only
// rows that are still fully unmapped are touched, so re-running the same
// batch changes nothing.
func (r *AttributionRepo) BulkAssign(ctx context.Context, storeID string, assignments []attribution.Assignment) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk assign: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE tracking_events SET
			campaign_id = $3, adset_id = $4, ad_id = $5
		WHERE store_id = $1 AND id = $2
		  AND campaign_id IS NULL AND adset_id IS NULL AND ad_id IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare bulk assign: %w", err)
	}
	defer stmt.Close()

	total := 0
	for _, a := range assignments {
		res, err := stmt.ExecContext(ctx, storeID, a.EventID,
			nullStr(a.Entities.CampaignID), nullStr(a.Entities.AdSetID), nullStr(a.Entities.AdID))
		if err != nil {
			return 0, fmt.Errorf("bulk assign %s: %w", a.EventID, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk assign: %w", err)
	}
	return total, nil
}
