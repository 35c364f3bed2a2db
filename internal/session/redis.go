package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tylertzm/KnowledgeOS/internal/metrics"
)

// RedisStore keeps session state in Redis so multiple service instances can
// share it. Expiry is delegated to per-key TTLs; the implicit local session
// is stored without one.
type RedisStore struct {
	client      *redis.Client
	defaultMode Mode
	ttl         time.Duration
	keyPrefix   string
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	DefaultMode Mode
	TTL         time.Duration
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "voice"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{
		client:      client,
		defaultMode: opts.DefaultMode,
		ttl:         opts.TTL,
		keyPrefix:   opts.KeyPrefix,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}, nil
}

func (r *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:session:%s", r.keyPrefix, id)
}

// Get returns the session state, creating it with the default mode when the
// key does not exist.
func (r *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		state := &State{
			ID:           id,
			Mode:         r.defaultMode,
			LastActiveAt: time.Now(),
		}
		if err := r.Put(ctx, state); err != nil {
			return nil, err
		}

		if r.metrics != nil {
			r.metrics.RecordSessionCreated()
		}
		r.logger.Debug("Session created",
			slog.String("session_id", id),
			slog.String("mode", state.Mode.String()))
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &state, nil
}

// Put persists the session state with the configured TTL.
func (r *RedisStore) Put(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", state.ID, err)
	}

	ttl := r.ttl
	if state.ID == DefaultSessionID {
		ttl = 0
	}

	if err := r.client.Set(ctx, r.key(state.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", state.ID, err)
	}
	return nil
}

// SweepExpired is a no-op for Redis, which expires keys by TTL on its own.
func (r *RedisStore) SweepExpired(_ context.Context) (int, error) {
	return 0, nil
}

// Count returns the number of live sessions by scanning the key space.
func (r *RedisStore) Count(ctx context.Context) (int, error) {
	pattern := fmt.Sprintf("%s:session:*", r.keyPrefix)
	count := 0

	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return count, nil
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
