package attribution

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shoplight/attribution/internal/domain"
)

// backfillWindow bounds how far from each purchase the bulk matcher looks
// for a candidate touch, in both directions.
const backfillWindow = 24 * time.Hour

// BulkBackfill resolves every fully-unmapped purchase since the given time
// in one batched pass. It applies the scored matcher's signal priority
// (click_id, then fbc, then fbp, then email_hash) but skips scoring,
// recency decay, and the source discount: on bulk historical data the
// simplification trades precision for throughput.
//
// The write is a single transaction touching only rows that are still fully
// unmapped, so the operation is idempotent and appears atomic to observers.
// Returns the number of rows changed; zero eligible rows is not an error.
func (s *Service) BulkBackfill(ctx context.Context, storeID string, since time.Time) (int, error) {
	purchases, err := s.repo.UnmappedPurchases(ctx, storeID, since)
	if err != nil {
		return 0, fmt.Errorf("unmapped purchases: %w", err)
	}
	if len(purchases) == 0 {
		return 0, nil
	}

	// One candidate pool covers every purchase's window.
	from, to := purchases[0].OccurredAt, purchases[0].OccurredAt
	for i := range purchases {
		t := purchases[i].OccurredAt
		if t.Before(from) {
			from = t
		}
		if t.After(to) {
			to = t
		}
	}
	touches, err := s.repo.TouchesBetween(ctx, storeID, from.Add(-backfillWindow), to.Add(backfillWindow))
	if err != nil {
		return 0, fmt.Errorf("backfill touches: %w", err)
	}

	var assignments []Assignment
	windowed := make([]domain.TrackingEvent, 0, len(touches))
	for i := range purchases {
		p := &purchases[i]
		sig := Signals{ClickID: p.ClickID, FBC: p.FBC, FBP: p.FBP, EmailHash: p.EmailHash}
		if sig.Empty() {
			continue
		}

		windowed = windowed[:0]
		for j := range touches {
			d := p.OccurredAt.Sub(touches[j].OccurredAt)
			if d < 0 {
				d = -d
			}
			if d <= backfillWindow {
				windowed = append(windowed, touches[j])
			}
		}

		if best := bestBySignalPriority(sig, windowed); best != nil {
			assignments = append(assignments, Assignment{EventID: p.ID, Entities: best.Entities()})
		}
	}
	if len(assignments) == 0 {
		return 0, nil
	}

	n, err := s.repo.BulkAssign(ctx, storeID, assignments)
	if err != nil {
		return 0, fmt.Errorf("bulk assign: %w", err)
	}
	log.Printf("[attribution.Service] store %s: backfilled %d of %d unmapped purchases", storeID, n, len(purchases))
	return n, nil
}
