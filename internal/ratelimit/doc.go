// Package ratelimit provides per-client sliding-window rate limiting.
//
// # Simple in-memory implementation, not shared between instances or distributed
//
// Each Limiter keeps, per client identifier, the timestamps of recently
// accepted requests. Entries older than the window are pruned before every
// check, so the count is a true sliding window rather than a fixed bucket
// that resets on a boundary.
//
// State is local to one process. Running N replicas multiplies the effective
// quota by N; that is an accepted limitation, upstream WAF/CDN limits cover
// the distributed case.
//
// Tracked clients are bounded two ways: a background sweep evicts clients
// whose window is empty, and WithMaxClients caps the map. At the cap a new
// client is denied (fail closed) until the sweep frees room.
package ratelimit
