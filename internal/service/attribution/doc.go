// Package attribution implements the matching engine that decides which
// campaign/ad-set/ad most plausibly caused a purchase, and with what
// confidence.
//
// Three matchers run in descending order of trust:
//
//	1. Click-id matcher:  exact lookup, no scoring (strongest signal)
//	2. Scored matcher:    weighted multi-signal match with recency decay
//	3. Proximity matcher: nearest touch in time, with an ambiguity
//	                      guardrail that abstains rather than guess
//
// A fourth path, BulkBackfill, resolves many unmapped historical purchases
// in one transactional pass using a simplified unscored variant of the
// scored matcher.
//
// All weighting, decay, and tie-break logic lives in scoring.go as pure
// functions over candidate lists; repositories only run range queries.
// The service layer never imports net/http or database/sql directly.
package attribution
