package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tylertzm/KnowledgeOS/internal/metrics"
	"github.com/tylertzm/KnowledgeOS/internal/session"
)

// Mode switch keywords and their acknowledgements.
const (
	keywordAssistant     = "ai mode"
	keywordTranscription = "transcription mode"
	keywordWebSearch     = "web search mode"

	ackAssistant     = "AI mode activated"
	ackTranscription = "Transcription mode activated"
	ackWebSearch     = "Web search mode activated"
)

// SearchFallback is returned when the web search collaborator fails.
const SearchFallback = "Sorry, the web search failed. Please try again."

// Outcome labels for routed utterances.
const (
	OutcomeModeSwitch  = "mode_switch"
	OutcomeTranscribed = "transcribed"
	OutcomeAnswered    = "answered"
	OutcomeIgnored     = "ignored"
	OutcomeFallback    = "fallback"
	OutcomeError       = "error"
)

// Assistant produces a reply to a projected conversation context.
type Assistant interface {
	Complete(ctx context.Context, turns []session.Turn) (string, error)
}

// Searcher answers a single question.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Result describes how an utterance was handled
type Result struct {
	Transcript string       `json:"transcript"`
	Response   string       `json:"response"`
	Mode       session.Mode `json:"mode"`
	Outcome    string       `json:"outcome"`
}

// Router dispatches normalized utterances to mode handlers. Utterances for
// the same session are serialized; different sessions do not contend.
type Router struct {
	store     session.Store
	assistant Assistant
	searcher  Searcher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes routing for one session. Entries are reference
// counted so the lock map only tracks sessions with routing in flight.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a router. The metrics argument may be nil.
func New(store session.Store, assistant Assistant, searcher Searcher, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		store:     store,
		assistant: assistant,
		searcher:  searcher,
		metrics:   m,
		logger:    logger,
		locks:     make(map[string]*sessionLock),
	}
}

func (r *Router) acquire(id string) *sessionLock {
	r.mu.Lock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sessionLock{}
		r.locks[id] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (r *Router) release(id string, lock *sessionLock) {
	lock.mu.Unlock()

	r.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.locks, id)
	}
	r.mu.Unlock()
}

// Route handles one normalized utterance for the given session. The
// utterance must already have passed Normalize.
func (r *Router) Route(ctx context.Context, sessionID, utterance string) (*Result, error) {
	lock := r.acquire(sessionID)
	defer r.release(sessionID, lock)

	state, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	state.LastTranscript = utterance
	state.Touch(time.Now())

	result := &Result{Transcript: utterance}

	// Mode switches win over everything, including the web search
	// question gate.
	if mode, ack, ok := matchModeSwitch(utterance); ok {
		state.Mode = mode
		state.LastResponse = ack
		result.Mode = mode
		result.Response = ack
		result.Outcome = OutcomeModeSwitch

		if r.metrics != nil {
			r.metrics.RecordModeSwitch(mode.String())
			r.metrics.RecordUtterance(mode.String(), OutcomeModeSwitch)
		}
		r.logger.Info("Mode switched",
			slog.String("session_id", sessionID),
			slog.String("mode", mode.String()))

		if err := r.store.Put(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to store session %s: %w", sessionID, err)
		}
		return result, nil
	}

	result.Mode = state.Mode

	switch state.Mode {
	case session.ModeAssistant:
		err = r.handleAssistant(ctx, state, utterance, result)
	case session.ModeWebSearch:
		err = r.handleWebSearch(ctx, state, utterance, result)
	default:
		result.Outcome = OutcomeTranscribed
	}
	if err != nil {
		// Persist the transcript even when the handler failed.
		if putErr := r.store.Put(ctx, state); putErr != nil {
			r.logger.Error("Failed to store session after handler error",
				slog.String("session_id", sessionID),
				slog.String("error", putErr.Error()))
		}
		if r.metrics != nil {
			r.metrics.RecordUtterance(state.Mode.String(), OutcomeError)
		}
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordUtterance(state.Mode.String(), result.Outcome)
	}

	if err := r.store.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store session %s: %w", sessionID, err)
	}
	return result, nil
}

func (r *Router) handleAssistant(ctx context.Context, state *session.State, utterance string, result *Result) error {
	state.AppendTurn("user", utterance)

	reply, err := r.assistant.Complete(ctx, session.ProjectContext(state.History))
	if err != nil {
		return fmt.Errorf("assistant request failed: %w", err)
	}

	state.AppendTurn("assistant", reply)
	state.LastResponse = reply
	result.Response = reply
	result.Outcome = OutcomeAnswered
	return nil
}

func (r *Router) handleWebSearch(ctx context.Context, state *session.State, utterance string, result *Result) error {
	if !IsQuestion(utterance) {
		result.Outcome = OutcomeIgnored
		return nil
	}

	answer, err := r.searcher.Search(ctx, utterance)
	if err != nil {
		r.logger.Warn("Web search failed",
			slog.String("session_id", state.ID),
			slog.String("error", err.Error()))

		state.LastResponse = SearchFallback
		result.Response = SearchFallback
		result.Outcome = OutcomeFallback
		return nil
	}

	state.LastResponse = answer
	result.Response = answer
	result.Outcome = OutcomeAnswered
	return nil
}

// matchModeSwitch detects switch keywords. Only the comparison is
// case-folded; the utterance itself keeps its original case.
func matchModeSwitch(utterance string) (session.Mode, string, bool) {
	lower := strings.ToLower(utterance)
	switch {
	case strings.Contains(lower, keywordAssistant):
		return session.ModeAssistant, ackAssistant, true
	case strings.Contains(lower, keywordTranscription):
		return session.ModeTranscription, ackTranscription, true
	case strings.Contains(lower, keywordWebSearch):
		return session.ModeWebSearch, ackWebSearch, true
	}
	return "", "", false
}
