// Package assistant wraps an OpenAI-compatible chat completion API behind
// the small interface the router needs.
package assistant
