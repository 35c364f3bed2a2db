// Package audio provides the capture-side primitives of the voice pipeline:
// a bounded frame source fed by the transport layer, a window assembler that
// produces fixed-duration overlapping sample windows, and WAV encoding for
// shipping windows to the transcription API.
package audio
