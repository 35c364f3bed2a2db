package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	WebSearch     WebSearchConfig     `yaml:"websearch"`
	Session       SessionConfig       `yaml:"session"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains audio capture and windowing parameters
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate"`
	Channels        int     `yaml:"channels"`
	BitDepth        int     `yaml:"bit_depth"`
	ChunkDuration   float64 `yaml:"chunk_duration"`   // seconds
	OverlapDuration float64 `yaml:"overlap_duration"` // seconds
	FrameQueueSize  int     `yaml:"frame_queue_size"` // frames
	OverflowPolicy  string  `yaml:"overflow_policy"`  // "drop_newest" or "drop_oldest"
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Language      string `yaml:"language"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// AssistantConfig contains LLM assistant API configuration
type AssistantConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   int    `yaml:"timeout"` // seconds
}

// WebSearchConfig contains web search API configuration
type WebSearchConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout"` // seconds
}

// SessionConfig contains session store configuration
type SessionConfig struct {
	DefaultMode      string      `yaml:"default_mode"` // "transcription", "assistant" or "websearch"
	TTL              int         `yaml:"ttl"`          // seconds
	RequireSessionID bool        `yaml:"require_session_id"`
	Backend          string      `yaml:"backend"` // "memory" or "redis"
	Redis            RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis session backend configuration
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Assistant.Validate(); err != nil {
		return fmt.Errorf("assistant config: %w", err)
	}

	if err := c.WebSearch.Validate(); err != nil {
		return fmt.Errorf("websearch config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	if a.OverlapDuration < 0 {
		return fmt.Errorf("overlap_duration cannot be negative, got %f", a.OverlapDuration)
	}

	if a.OverlapDuration >= a.ChunkDuration {
		return fmt.Errorf("overlap_duration (%f) must be less than chunk_duration (%f)",
			a.OverlapDuration, a.ChunkDuration)
	}

	if a.FrameQueueSize < 1 {
		return fmt.Errorf("frame_queue_size must be at least 1, got %d", a.FrameQueueSize)
	}

	validPolicies := map[string]bool{"drop_newest": true, "drop_oldest": true}
	if !validPolicies[a.OverflowPolicy] {
		return fmt.Errorf("overflow_policy must be 'drop_newest' or 'drop_oldest', got '%s'", a.OverflowPolicy)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates assistant configuration
func (a *AssistantConfig) Validate() error {
	if a.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if a.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if a.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", a.MaxTokens)
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

// Validate validates web search configuration
func (w *WebSearchConfig) Validate() error {
	if w.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if w.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", w.Timeout)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	validModes := map[string]bool{"transcription": true, "assistant": true, "websearch": true}
	if !validModes[s.DefaultMode] {
		return fmt.Errorf("default_mode must be one of [transcription, assistant, websearch], got '%s'", s.DefaultMode)
	}

	if s.TTL < 1 {
		return fmt.Errorf("ttl must be at least 1 second, got %d", s.TTL)
	}

	switch s.Backend {
	case "memory":
	case "redis":
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis addr cannot be empty when backend is 'redis'")
		}
	default:
		return fmt.Errorf("backend must be 'memory' or 'redis', got '%s'", s.Backend)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// ChunkSamples returns the number of samples in one chunk
func (a *AudioConfig) ChunkSamples() int {
	return int(a.ChunkDuration * float64(a.SampleRate))
}

// OverlapSamples returns the number of samples carried across windows
func (a *AudioConfig) OverlapSamples() int {
	return int(a.OverlapDuration * float64(a.SampleRate))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the assistant timeout as a time.Duration
func (a *AssistantConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetTimeoutDuration returns the web search timeout as a time.Duration
func (w *WebSearchConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(w.Timeout) * time.Second
}

// GetTTLDuration returns the session TTL as a time.Duration
func (s *SessionConfig) GetTTLDuration() time.Duration {
	return time.Duration(s.TTL) * time.Second
}
