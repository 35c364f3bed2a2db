package websearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Config contains web search client configuration
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client queries a search-backed text generation endpoint. The query is
// passed in the URL path and the answer comes back as plain text.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	stats Stats
}

// Stats contains web search client statistics
type Stats struct {
	Requests  uint64 `json:"requests"`
	Successes uint64 `json:"successes"`
	Failures  uint64 `json:"failures"`
}

// NewClient creates a web search client.
func NewClient(config Config) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}
}

// Search answers a question. Returns an error on transport failures,
// non-200 responses and blank answers.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(query))
	if c.model != "" {
		endpoint += "?model=" + url.QueryEscape(c.model)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.recordResult(false)
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordResult(false)
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordResult(false)
		return "", fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.recordResult(false)
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	answer := strings.TrimSpace(string(body))
	if answer == "" {
		c.recordResult(false)
		return "", fmt.Errorf("search returned an empty answer")
	}

	c.recordResult(true)
	c.logger.Debug("Search answered",
		slog.Duration("duration", time.Since(start)),
		slog.Int("answer_length", len(answer)))

	return answer, nil
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
