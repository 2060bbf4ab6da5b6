package session

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionhub/pkg/models"
)

func TestMemoryStoreAcknowledge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour, func() time.Time { return now })

	ok, err := s.Acknowledged(ctx, "s1", "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Acknowledge(ctx, "s1", "m1"))

	ok, err = s.Acknowledged(ctx, "s1", "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Session-local: another session has not seen the theory.
	ok, err = s.Acknowledged(ctx, "s2", "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Hour)
	ok, err = s.Acknowledged(ctx, "s1", "m1")
	require.NoError(t, err)
	assert.False(t, ok, "acknowledgement expires with the ttl")
}

func TestMemoryStoreRejectsBlankIDs(t *testing.T) {
	s := NewMemoryStore(0, nil)
	err := s.Acknowledge(context.Background(), " ", "m1")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	s := NewMemoryStore(0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Acknowledged(ctx, "s1", "m1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("MISSIONHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MISSIONHUB_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	session := "test-" + time.Now().Format("150405.000000")
	s := NewRedisStore(rdb, time.Minute)
	t.Cleanup(func() { rdb.Del(ctx, theoryKey(session, "m1")) })

	ok, err := s.Acknowledged(ctx, session, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Acknowledge(ctx, session, "m1"))
	ok, err = s.Acknowledged(ctx, session, "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := rdb.TTL(ctx, theoryKey(session, "m1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
