package session

import (
	"fmt"
	"time"
)

// DefaultSessionID identifies the implicit session used by the local audio
// pipeline. It is never evicted by the TTL sweep.
const DefaultSessionID = "local"

// Mode selects how an utterance is handled
type Mode string

const (
	ModeTranscription Mode = "transcription"
	ModeAssistant     Mode = "assistant"
	ModeWebSearch     Mode = "websearch"
)

// ParseMode converts a configuration string into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTranscription, ModeAssistant, ModeWebSearch:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode '%s'", s)
}

// String returns the mode name
func (m Mode) String() string {
	return string(m)
}

// Turn is one conversation entry, either the user's utterance or the
// assistant's reply.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// State is the per-session conversation state
type State struct {
	ID             string    `json:"id"`
	Mode           Mode      `json:"mode"`
	LastTranscript string    `json:"last_transcript"`
	LastResponse   string    `json:"last_response"`
	History        []Turn    `json:"history"`
	LastActiveAt   time.Time `json:"last_active_at"`
}

// Touch updates the activity timestamp
func (s *State) Touch(now time.Time) {
	s.LastActiveAt = now
}

// AppendTurn adds a conversation turn to the history
func (s *State) AppendTurn(role, text string) {
	s.History = append(s.History, Turn{Role: role, Text: text})
}

// ProjectContext builds the short context sent to the assistant: the last
// two user turns in order, with the most recent assistant turn inserted
// between them when one exists. At most three turns are returned.
func ProjectContext(history []Turn) []Turn {
	var users []Turn
	var lastAssistant *Turn

	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		switch turn.Role {
		case "user":
			if len(users) < 2 {
				users = append([]Turn{turn}, users...)
			}
		case "assistant":
			if lastAssistant == nil {
				t := turn
				lastAssistant = &t
			}
		}
		if len(users) == 2 && lastAssistant != nil {
			break
		}
	}

	if lastAssistant == nil {
		return users
	}
	if len(users) == 0 {
		return []Turn{*lastAssistant}
	}

	projected := make([]Turn, 0, 3)
	projected = append(projected, users[0])
	projected = append(projected, *lastAssistant)
	if len(users) > 1 {
		projected = append(projected, users[1])
	}
	return projected
}
