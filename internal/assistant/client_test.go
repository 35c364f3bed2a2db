package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylertzm/KnowledgeOS/internal/session"
)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "meta-llama/llama-4-maverick-17b-128e-instruct",
		MaxTokens: 100,
		Timeout:   5 * time.Second,
	})
}

func TestCompleteSuccess(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "Paris."},
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	turns := []session.Turn{
		{Role: "user", Text: "first question"},
		{Role: "assistant", Text: "first answer"},
		{Role: "user", Text: "what is the capital of france"},
	}

	reply, err := client.Complete(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", reply)

	assert.Equal(t, "meta-llama/llama-4-maverick-17b-128e-instruct", captured.Model)
	assert.Equal(t, 100, captured.MaxTokens)

	// System prompt plus the three context turns, roles preserved.
	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "assistant", captured.Messages[2].Role)
	assert.Equal(t, "user", captured.Messages[3].Role)
	assert.Equal(t, "what is the capital of france", captured.Messages[3].Content)

	assert.Equal(t, uint64(1), client.GetStats().Successes)
}

func TestCompleteUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad request"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), []session.Turn{{Role: "user", Text: "hi"}})
	require.Error(t, err)
	assert.Equal(t, uint64(1), client.GetStats().Failures)
}

func TestCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "chatcmpl-1", "object": "chat.completion", "choices": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), []session.Turn{{Role: "user", Text: "hi"}})
	require.Error(t, err)
}
