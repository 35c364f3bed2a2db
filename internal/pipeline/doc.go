// Package pipeline runs the local voice loop: it drains audio windows from
// the assembler, transcribes them, and routes the resulting utterances
// through the implicit local session. Failures in one iteration reset the
// window buffer and never stop the loop.
package pipeline
