// Package httputil holds the JSON request/response helpers shared by every
// API handler, so status codes, error envelopes, and decode limits stay
// uniform across endpoints.
package httputil
