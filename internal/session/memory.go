package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tylertzm/KnowledgeOS/internal/metrics"
)

// Store is the session state backend
type Store interface {
	// Get returns the state for the given session, creating it with the
	// default mode when it does not exist.
	Get(ctx context.Context, id string) (*State, error)

	// Put persists the state.
	Put(ctx context.Context, state *State) error

	// SweepExpired evicts sessions idle longer than the TTL and returns
	// how many were removed. The implicit local session is never evicted.
	SweepExpired(ctx context.Context) (int, error)

	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// MemoryStore is an in-process session store
type MemoryStore struct {
	defaultMode Mode
	ttl         time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*State
}

// NewMemoryStore creates an in-memory session store. The metrics argument
// may be nil.
func NewMemoryStore(defaultMode Mode, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &MemoryStore{
		defaultMode: defaultMode,
		ttl:         ttl,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
		sessions:    make(map[string]*State),
	}
}

// Get returns a copy of the session state, creating the session on first use
func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		state = &State{
			ID:           id,
			Mode:         m.defaultMode,
			LastActiveAt: m.now(),
		}
		m.sessions[id] = state

		if m.metrics != nil {
			m.metrics.RecordSessionCreated()
		}
		m.logger.Debug("Session created",
			slog.String("session_id", id),
			slog.String("mode", state.Mode.String()))
	}

	copied := *state
	copied.History = append([]Turn(nil), state.History...)
	return &copied, nil
}

// Put persists the session state
func (m *MemoryStore) Put(_ context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *state
	copied.History = append([]Turn(nil), state.History...)
	m.sessions[state.ID] = &copied
	return nil
}

// SweepExpired evicts idle sessions
func (m *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	evicted := 0
	for id, state := range m.sessions {
		if id == DefaultSessionID {
			continue
		}
		if state.LastActiveAt.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}

	if evicted > 0 {
		m.logger.Info("Evicted expired sessions", slog.Int("count", evicted))
	}
	return evicted, nil
}

// Count returns the number of live sessions
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() error {
	return nil
}
