// Package websearch answers questions through a search-backed text
// generation endpoint.
package websearch
