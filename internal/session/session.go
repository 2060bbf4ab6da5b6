// Package session keeps session-local state that must never reach the
// progress store, currently theory acknowledgements.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"missionhub/pkg/models"
)

// DefaultTheoryTTL bounds how long an acknowledgement outlives its session
const DefaultTheoryTTL = 12 * time.Hour

const keyPrefix = "missionhub:theory"

func theoryKey(sessionID, missionID string) string {
	return keyPrefix + ":" + sessionID + ":" + missionID
}

func validate(sessionID, missionID string) error {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(missionID) == "" {
		return fmt.Errorf("session and mission ids are required: %w", models.ErrInvalidInput)
	}
	return nil
}

// RedisStore keeps acknowledgements as expiring keys
type RedisStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisStore wraps an existing client; the caller owns its lifecycle
func NewRedisStore(rdb *goredis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTheoryTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Acknowledge(ctx context.Context, sessionID, missionID string) error {
	if err := validate(sessionID, missionID); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, theoryKey(sessionID, missionID), 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set theory ack: %w", err)
	}
	return nil
}

func (s *RedisStore) Acknowledged(ctx context.Context, sessionID, missionID string) (bool, error) {
	if sessionID == "" || missionID == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, theoryKey(sessionID, missionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists theory ack: %w", err)
	}
	return n > 0, nil
}

// MemoryStore is the single-process store used in dev mode and tests
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	acked map[string]time.Time
}

// NewMemoryStore creates an in-process store; a nil now uses time.Now
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTheoryTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{ttl: ttl, now: now, acked: make(map[string]time.Time)}
}

func (s *MemoryStore) Acknowledge(ctx context.Context, sessionID, missionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(sessionID, missionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.acked[theoryKey(sessionID, missionID)] = now.Add(s.ttl)
	s.sweep(now)
	return nil
}

func (s *MemoryStore) Acknowledged(ctx context.Context, sessionID, missionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.acked[theoryKey(sessionID, missionID)]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expires) {
		delete(s.acked, theoryKey(sessionID, missionID))
		return false, nil
	}
	return true, nil
}

// sweep drops expired keys; callers hold mu
func (s *MemoryStore) sweep(now time.Time) {
	for k, exp := range s.acked {
		if !now.Before(exp) {
			delete(s.acked, k)
		}
	}
}
