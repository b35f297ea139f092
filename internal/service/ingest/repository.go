package ingest

import (
	"context"

	"github.com/shoplight/attribution/internal/domain"
)

// Result reports what an ingestion call did to the store.
type Result struct {
	// Inserted is true when a new row was created.
	Inserted bool `json:"inserted"`
	// Updated is true when an existing row gained at least one field.
	// A repeated delivery that adds nothing yields {false, false}.
	Updated bool `json:"updated"`
}

// Repository defines the data access contract for the event store write path.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Upsert atomically inserts the event or, when a row already exists for
	// the same (store_id, event_id), merges it field-by-field: a field is
	// written only if the stored value is null and the incoming value is not.
	// Events without an event_id are always inserted.
	//
	// The insert-or-merge decision must be a single atomic statement, not a
	// read-then-write sequence, so concurrent deliveries of the same event_id
	// resolve deterministically.
	Upsert(ctx context.Context, e *domain.TrackingEvent) (Result, error)
}
