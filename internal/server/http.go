package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tylertzm/KnowledgeOS/internal/audio"
	"github.com/tylertzm/KnowledgeOS/internal/config"
	"github.com/tylertzm/KnowledgeOS/internal/metrics"
	"github.com/tylertzm/KnowledgeOS/internal/router"
	"github.com/tylertzm/KnowledgeOS/internal/session"
)

// Dispatcher routes a normalized utterance for a session.
type Dispatcher interface {
	Route(ctx context.Context, sessionID, utterance string) (*router.Result, error)
}

// StatsFunc supplies a named stats section for the /stats endpoint.
type StatsFunc func() any

// HTTPServer provides the service API
type HTTPServer struct {
	config     *config.Config
	store      session.Store
	dispatcher Dispatcher
	source     *audio.Source
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
	startTime  time.Time
	stats      map[string]StatsFunc
	upgrader   wsUpgrader
}

type statusResponse struct {
	SessionID     string `json:"session_id"`
	Mode          string `json:"mode"`
	Transcription string `json:"transcription"`
	Response      string `json:"response"`
}

type processRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

// NewHTTPServer creates the API server. The statsFns sections are rendered
// under their key in the /stats response.
func NewHTTPServer(cfg *config.Config, store session.Store, dispatcher Dispatcher, source *audio.Source, m *metrics.Metrics, logger *slog.Logger, statsFns map[string]StatsFunc) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := &HTTPServer{
		config:     cfg,
		store:      store,
		dispatcher: dispatcher,
		source:     source,
		metrics:    m,
		logger:     logger,
		startTime:  time.Now(),
		stats:      statsFns,
		upgrader:   newUpgrader(),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      withCORS(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.withMetrics("/", s.handleRoot))
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/status", s.withMetrics("/status", s.handleStatus))
	mux.HandleFunc("/process", s.withMetrics("/process", s.handleProcess))
	mux.HandleFunc("/config", s.withMetrics("/config", s.handleConfig))
	mux.HandleFunc("/stats", s.withMetrics("/stats", s.handleStats))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())
}

// Start begins serving HTTP requests.
func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", slog.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// sessionID resolves the session for a request. The implicit local session
// is used when the caller omits one, unless configuration requires an
// explicit ID.
func (s *HTTPServer) sessionID(provided string) (string, error) {
	if provided != "" {
		return provided, nil
	}
	if s.config.Session.RequireSessionID {
		return "", fmt.Errorf("session_id is required")
	}
	return session.DefaultSessionID, nil
}

// sweep lazily evicts expired sessions before serving session state.
func (s *HTTPServer) sweep(ctx context.Context) {
	evicted, err := s.store.SweepExpired(ctx)
	if err != nil {
		s.logger.Warn("Session sweep failed", slog.String("error", err.Error()))
		return
	}
	if s.metrics != nil {
		if evicted > 0 {
			s.metrics.RecordSessionsEvicted(evicted)
		}
		if count, err := s.store.Count(ctx); err == nil {
			s.metrics.SetActiveSessions(count)
		}
	}
}

func (s *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "voice-command-service",
		"status":  "running",
		"endpoints": map[string]string{
			"GET /status":   "session mode, last transcript and response",
			"POST /process": "route pre-transcribed text",
			"GET /ws":       "binary PCM16 capture stream",
			"GET /health":   "liveness",
			"GET /config":   "sanitized runtime configuration",
			"GET /stats":    "component statistics",
			"GET /metrics":  "Prometheus metrics",
		},
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.sweep(r.Context())

	id, err := s.sessionID(r.URL.Query().Get("session_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("Failed to load session",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		SessionID:     state.ID,
		Mode:          state.Mode.String(),
		Transcription: state.LastTranscript,
		Response:      state.LastResponse,
	})
}

func (s *HTTPServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.sweep(r.Context())

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.sessionID(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	utterance, ok := router.Normalize(req.Text)
	if !ok {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := s.dispatcher.Route(r.Context(), id, utterance)
	if err != nil {
		s.logger.Error("Failed to process text",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to process text")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	// API keys stay out of the response.
	writeJSON(w, http.StatusOK, map[string]any{
		"audio": map[string]any{
			"sample_rate":      s.config.Audio.SampleRate,
			"channels":         s.config.Audio.Channels,
			"chunk_duration":   s.config.Audio.ChunkDuration,
			"overlap_duration": s.config.Audio.OverlapDuration,
			"overflow_policy":  s.config.Audio.OverflowPolicy,
		},
		"transcription": map[string]any{
			"model": s.config.Transcription.Model,
		},
		"assistant": map[string]any{
			"model":      s.config.Assistant.Model,
			"max_tokens": s.config.Assistant.MaxTokens,
		},
		"websearch": map[string]any{
			"model": s.config.WebSearch.Model,
		},
		"session": map[string]any{
			"default_mode": s.config.Session.DefaultMode,
			"ttl":          s.config.Session.TTL,
			"backend":      s.config.Session.Backend,
		},
	})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	sections := map[string]any{
		"uptime": time.Since(s.startTime).String(),
	}
	if s.source != nil {
		sections["source"] = s.source.GetStats()
	}
	for name, fn := range s.stats {
		sections[name] = fn()
	}
	if count, err := s.store.Count(r.Context()); err == nil {
		sections["sessions"] = map[string]int{"count": count}
	}

	writeJSON(w, http.StatusOK, sections)
}

// withMetrics wraps a handler with request metrics collection
func (s *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(wrapped, r)

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, endpoint,
				strconv.Itoa(wrapped.statusCode), time.Since(start))
		}
	}
}

// withCORS allows browser clients from any origin, matching the capture
// frontend's expectations.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for metrics
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
