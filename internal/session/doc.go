// Package session tracks per-session conversation state: the active mode,
// the most recent transcript and response, and the conversation history the
// assistant sees. Stores come in two flavors, an in-memory map for
// single-node deployments and a Redis backend for shared state, both with
// TTL-based expiry.
package session
