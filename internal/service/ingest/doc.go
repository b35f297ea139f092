// Package ingest implements the event store's write path.
//
// Every pixel hit, server-side conversion, and storefront webhook lands here
// as a TrackingEvent draft. Ingestion is idempotent per (store_id, event_id):
// a repeated delivery never creates a second row, it merges missing fields
// into the existing one (first write wins per field).
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package ingest
