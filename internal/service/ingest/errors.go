package ingest

import "errors"

// Sentinel errors for the ingest service layer.
var (
	ErrMissingStore     = errors.New("store_id is required")
	ErrMissingEventName = errors.New("event_name is required")
	ErrMissingTimestamp = errors.New("occurred_at is required")
	ErrInvalidSource    = errors.New("unknown event source")
)
