package router

import "strings"

// Normalize trims a raw transcript, preserving its case. The second return
// value is false for utterances that carry no content: empty strings and
// the lone-period placeholder the transcription API emits for silence.
func Normalize(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" || text == "." {
		return "", false
	}
	return text, true
}

// IsQuestion reports whether the utterance ends with a question mark after
// trimming trailing whitespace.
func IsQuestion(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), "?")
}
