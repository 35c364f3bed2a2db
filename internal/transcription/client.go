package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tylertzm/KnowledgeOS/internal/audio"
	"github.com/tylertzm/KnowledgeOS/internal/metrics"
)

// Config contains transcription client configuration
type Config struct {
	Endpoint      string
	APIKey        string
	Model         string
	Language      string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Client sends audio windows to the transcription API
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{}
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu    sync.RWMutex
	stats Stats
}

// Stats contains transcription client statistics
type Stats struct {
	Requests        uint64        `json:"requests"`
	Successes       uint64        `json:"successes"`
	Failures        uint64        `json:"failures"`
	Retries         uint64        `json:"retries"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// NewClient creates a transcription client.
func NewClient(config Config) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		semaphore: make(chan struct{}, config.MaxConcurrent),
		metrics:   config.Metrics,
		logger:    config.Logger,
	}
}

// Transcribe converts an audio window to text. Retries transient failures
// with exponential backoff up to MaxRetries.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	wavData, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode audio: %w", err)
	}

	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries+1; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(math.Pow(2, float64(attempt-2))) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}

			c.logger.Warn("Retrying transcription",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()))

			c.recordRetry()

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.recordResult(time.Since(start), false)
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, wavData)
		if err == nil {
			c.recordResult(time.Since(start), true)
			return text, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	c.recordResult(time.Since(start), false)
	return "", fmt.Errorf("transcription failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, wavData []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.WriteField("model", c.config.Model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if c.config.Language != "" {
		if err := writer.WriteField("language", c.config.Language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("failed to write response_format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result transcriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return result.Text, nil
}

// isRetryableError determines if an error is worth retrying
func isRetryableError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "HTTP error 5") ||
		strings.Contains(errStr, "HTTP error 429") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "EOF")
}

func (c *Client) recordRetry() {
	c.mu.Lock()
	c.stats.Retries++
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordTranscriptionRetry()
	}
}

func (c *Client) recordResult(duration time.Duration, success bool) {
	if c.metrics != nil {
		c.metrics.RecordTranscription(duration, success)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Requests++
	c.stats.TotalDuration += duration
	if success {
		c.stats.Successes++
	} else {
		c.stats.Failures++
	}
	if c.stats.Requests > 0 {
		c.stats.AverageDuration = c.stats.TotalDuration / time.Duration(c.stats.Requests)
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
