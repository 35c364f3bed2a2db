// Package server exposes the service over HTTP: the session status and
// text processing API, a WebSocket endpoint for streaming capture audio,
// and the operational endpoints for health, stats and Prometheus metrics.
package server
