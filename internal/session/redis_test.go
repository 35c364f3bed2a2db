package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisOptions{
		Addr:        mr.Addr(),
		KeyPrefix:   "voice",
		DefaultMode: ModeTranscription,
		TTL:         30 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStoreLazyCreate(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	state, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", state.ID)
	assert.Equal(t, ModeTranscription, state.Mode)

	assert.True(t, mr.Exists("voice:session:abc"))
}

func TestRedisStorePutGet(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	state, err := store.Get(ctx, "abc")
	require.NoError(t, err)

	state.Mode = ModeWebSearch
	state.LastResponse = "answer"
	state.AppendTurn("user", "question?")
	require.NoError(t, store.Put(ctx, state))

	loaded, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, ModeWebSearch, loaded.Mode)
	assert.Equal(t, "answer", loaded.LastResponse)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "question?", loaded.History[0].Text)
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "abc")
	require.NoError(t, err)

	ttl := mr.TTL("voice:session:abc")
	assert.Equal(t, 30*time.Minute, ttl)

	// Keys expire on their own.
	mr.FastForward(31 * time.Minute)
	assert.False(t, mr.Exists("voice:session:abc"))

	// A fresh Get recreates the session with default mode.
	state, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, ModeTranscription, state.Mode)
}

func TestRedisStoreLocalSessionNeverExpires(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, DefaultSessionID)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), mr.TTL("voice:session:"+DefaultSessionID))

	mr.FastForward(24 * time.Hour)
	assert.True(t, mr.Exists("voice:session:"+DefaultSessionID))
}

func TestRedisStoreCount(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Get(ctx, id)
		require.NoError(t, err)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
