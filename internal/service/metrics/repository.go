package metrics

import (
	"context"
	"time"

	"github.com/shoplight/attribution/internal/domain"
)

// Repository defines the read contract for reporting. Implementations must
// be safe for concurrent use.
type Repository interface {
	// EventsInRange returns all events for the store with
	// occurred_at in [since, until], in no particular order.
	EventsInRange(ctx context.Context, storeID string, since, until time.Time) ([]domain.TrackingEvent, error)
}
