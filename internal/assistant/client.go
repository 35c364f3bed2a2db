package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/tylertzm/KnowledgeOS/internal/session"
)

// Replies are spoken back to the user, so the model is steered toward
// short conversational answers.
const systemPrompt = "You are a helpful voice assistant. Keep your answers short and conversational."

// Config contains assistant client configuration
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Client talks to an OpenAI-compatible chat completion endpoint
type Client struct {
	api       openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *slog.Logger

	mu    sync.RWMutex
	stats Stats
}

// Stats contains assistant client statistics
type Stats struct {
	Requests  uint64 `json:"requests"`
	Successes uint64 `json:"successes"`
	Failures  uint64 `json:"failures"`
}

// NewClient creates an assistant client.
func NewClient(config Config) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		api:       openai.NewClient(opts...),
		model:     config.Model,
		maxTokens: config.MaxTokens,
		timeout:   config.Timeout,
		logger:    config.Logger,
	}
}

// Complete sends the projected conversation context and returns the reply.
func (c *Client) Complete(ctx context.Context, turns []session.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range turns {
		switch turn.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(turn.Text))
		default:
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}

	start := time.Now()
	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(c.model),
		Messages:  messages,
		MaxTokens: openai.Int(int64(c.maxTokens)),
	})
	if err != nil {
		c.recordResult(false)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		c.recordResult(false)
		return "", fmt.Errorf("chat completion returned no choices")
	}

	c.recordResult(true)
	c.logger.Debug("Assistant reply",
		slog.Duration("duration", time.Since(start)),
		slog.Int("context_turns", len(turns)))

	return completion.Choices[0].Message.Content, nil
}

func (c *Client) recordResult(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Requests++
	if success {
		c.stats.Successes++
	} else {
		c.stats.Failures++
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
