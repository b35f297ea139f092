// Package metrics implements entity-level performance aggregation over the
// event store.
//
// The same real-world purchase routinely arrives from several collectors
// (browser pixel, server pixel, storefront webhook), so every report first
// collapses events sharing an order onto a single representative row; only
// then are results, purchases, and revenue counted per ad entity.
//
// Deduplication and aggregation are pure functions over a plain range
// query, so they are unit-testable without a database.
package metrics
