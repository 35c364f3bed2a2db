package router

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylertzm/KnowledgeOS/internal/session"
)

type fakeAssistant struct {
	reply    string
	err      error
	lastCtx  []session.Turn
	requests int
}

func (f *fakeAssistant) Complete(_ context.Context, turns []session.Turn) (string, error) {
	f.requests++
	f.lastCtx = turns
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeSearcher struct {
	answer   string
	err      error
	lastQ    string
	requests int
}

func (f *fakeSearcher) Search(_ context.Context, query string) (string, error) {
	f.requests++
	f.lastQ = query
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestRouter(t *testing.T) (*Router, *session.MemoryStore, *fakeAssistant, *fakeSearcher) {
	t.Helper()

	store := session.NewMemoryStore(session.ModeTranscription, 30*time.Minute, nil, nil)
	assistant := &fakeAssistant{reply: "assistant reply"}
	searcher := &fakeSearcher{answer: "search answer"}
	return New(store, assistant, searcher, nil, nil), store, assistant, searcher
}

func TestRouteTranscriptionMode(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	ctx := context.Background()

	result, err := router.Route(ctx, "s1", "hello world")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTranscribed, result.Outcome)
	assert.Equal(t, "hello world", result.Transcript)
	assert.Empty(t, result.Response)

	state, _ := store.Get(ctx, "s1")
	assert.Equal(t, "hello world", state.LastTranscript)
	assert.Empty(t, state.LastResponse)
}

func TestRouteModeSwitch(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	ctx := context.Background()

	tests := []struct {
		utterance string
		mode      session.Mode
		ack       string
	}{
		{"ai mode", session.ModeAssistant, "AI mode activated"},
		{"please switch to web search mode now", session.ModeWebSearch, "Web search mode activated"},
		{"transcription mode", session.ModeTranscription, "Transcription mode activated"},
	}

	for _, tt := range tests {
		result, err := router.Route(ctx, "s1", tt.utterance)
		require.NoError(t, err)
		assert.Equal(t, OutcomeModeSwitch, result.Outcome)
		assert.Equal(t, tt.mode, result.Mode)
		assert.Equal(t, tt.ack, result.Response)

		state, _ := store.Get(ctx, "s1")
		assert.Equal(t, tt.mode, state.Mode)
		assert.Equal(t, tt.ack, state.LastResponse)
	}
}

func TestRouteModeSwitchIdempotent(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := router.Route(ctx, "s1", "ai mode")
		require.NoError(t, err)
		assert.Equal(t, "AI mode activated", result.Response)
	}

	state, _ := store.Get(ctx, "s1")
	assert.Equal(t, session.ModeAssistant, state.Mode)
}

func TestRouteAssistantMode(t *testing.T) {
	router, store, assistant, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := router.Route(ctx, "s1", "ai mode")
	require.NoError(t, err)

	result, err := router.Route(ctx, "s1", "what is the capital of france")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, result.Outcome)
	assert.Equal(t, "assistant reply", result.Response)

	// The assistant saw the projected context ending in the user turn.
	require.NotEmpty(t, assistant.lastCtx)
	last := assistant.lastCtx[len(assistant.lastCtx)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "what is the capital of france", last.Text)

	state, _ := store.Get(ctx, "s1")
	assert.Equal(t, "assistant reply", state.LastResponse)
	assert.Len(t, state.History, 2)
}

func TestRouteAssistantContextBounded(t *testing.T) {
	router, _, assistant, _ := newTestRouter(t)
	ctx := context.Background()

	router.Route(ctx, "s1", "ai mode")
	for i := 0; i < 10; i++ {
		_, err := router.Route(ctx, "s1", "another question")
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, len(assistant.lastCtx), 3)
}

func TestRouteAssistantError(t *testing.T) {
	router, store, assistant, _ := newTestRouter(t)
	ctx := context.Background()

	router.Route(ctx, "s1", "ai mode")
	assistant.err = errors.New("upstream down")

	_, err := router.Route(ctx, "s1", "hello there")
	require.Error(t, err)

	// Transcript is recorded even when the handler fails, and the
	// previous response is untouched.
	state, _ := store.Get(ctx, "s1")
	assert.Equal(t, "hello there", state.LastTranscript)
	assert.Equal(t, "AI mode activated", state.LastResponse)
}

func TestRouteWebSearchQuestionGate(t *testing.T) {
	router, store, _, searcher := newTestRouter(t)
	ctx := context.Background()

	router.Route(ctx, "s1", "web search mode")

	// Statements are ignored without calling the collaborator.
	result, err := router.Route(ctx, "s1", "the weather is nice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.Equal(t, 0, searcher.requests)

	// Questions go through.
	result, err = router.Route(ctx, "s1", "what is the weather in berlin?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, result.Outcome)
	assert.Equal(t, "search answer", result.Response)
	assert.Equal(t, "what is the weather in berlin?", searcher.lastQ)

	state, _ := store.Get(ctx, "s1")
	assert.Equal(t, "search answer", state.LastResponse)
}

func TestRouteWebSearchFallback(t *testing.T) {
	router, store, _, searcher := newTestRouter(t)
	ctx := context.Background()

	router.Route(ctx, "s1", "web search mode")
	searcher.err = errors.New("upstream down")

	result, err := router.Route(ctx, "s1", "what is the weather?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFallback, result.Outcome)
	assert.Equal(t, SearchFallback, result.Response)

	state, _ := store.Get(ctx, "s1")
	assert.Equal(t, SearchFallback, state.LastResponse)
}

func TestRouteModeSwitchBeatsQuestionGate(t *testing.T) {
	router, store, _, searcher := newTestRouter(t)
	ctx := context.Background()

	router.Route(ctx, "s1", "web search mode")

	// A switch command phrased as a question is still a switch.
	result, err := router.Route(ctx, "s1", "ai mode?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeModeSwitch, result.Outcome)
	assert.Equal(t, 0, searcher.requests)

	state, _ := store.Get(ctx, "s1")
	assert.Equal(t, session.ModeAssistant, state.Mode)
}

func TestRouteKeywordMatchCaseInsensitive(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	ctx := context.Background()

	result, err := router.Route(ctx, "s1", "AI Mode")
	require.NoError(t, err)
	assert.Equal(t, OutcomeModeSwitch, result.Outcome)
	assert.Equal(t, "AI mode activated", result.Response)

	state, _ := store.Get(ctx, "s1")
	assert.Equal(t, session.ModeAssistant, state.Mode)
	// The transcript keeps the speaker's casing.
	assert.Equal(t, "AI Mode", state.LastTranscript)
}

func TestRouteSearchReceivesVerbatimText(t *testing.T) {
	router, store, _, searcher := newTestRouter(t)
	ctx := context.Background()

	router.Route(ctx, "s1", "web search mode")

	_, err := router.Route(ctx, "s1", "What is the weather in Berlin?")
	require.NoError(t, err)
	assert.Equal(t, "What is the weather in Berlin?", searcher.lastQ)

	state, _ := store.Get(ctx, "s1")
	assert.Equal(t, "What is the weather in Berlin?", state.LastTranscript)
}

func TestRouteReleasesSessionLocks(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := router.Route(ctx, fmt.Sprintf("s%d", i), "hello")
		require.NoError(t, err)
	}

	router.mu.Lock()
	held := len(router.locks)
	router.mu.Unlock()
	assert.Equal(t, 0, held)
}

func TestRouteSessionsIndependent(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	ctx := context.Background()

	router.Route(ctx, "s1", "ai mode")
	router.Route(ctx, "s2", "hello")

	s1, _ := store.Get(ctx, "s1")
	s2, _ := store.Get(ctx, "s2")
	assert.Equal(t, session.ModeAssistant, s1.Mode)
	assert.Equal(t, session.ModeTranscription, s2.Mode)
}
