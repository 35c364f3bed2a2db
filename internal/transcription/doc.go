// Package transcription provides an HTTP client for OpenAI-compatible
// speech-to-text APIs. Audio windows are shipped as WAV uploads with
// bounded concurrency and retry with exponential backoff.
package transcription
