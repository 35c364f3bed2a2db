// Package router turns normalized transcripts into actions. Mode switch
// keywords are recognized first; everything else is dispatched to the
// handler for the session's active mode: plain transcription, the LLM
// assistant, or web search.
package router
