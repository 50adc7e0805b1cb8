package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ContactState tracks per-contact pipeline state: the hand-off deadline and
// the consecutive out-of-scope counter. Implementations expire entries on
// their own so restarts and horizontal scaling do not leak or lose state.
type ContactState interface {
	ActivateHandoff(ctx context.Context, phone string, ttl time.Duration) error
	HandoffActive(ctx context.Context, phone string) (bool, error)
	ClearHandoff(ctx context.Context, phone string) error

	// IncrOutOfScope bumps and returns the consecutive out-of-scope count.
	IncrOutOfScope(ctx context.Context, phone string) (int, error)
	ResetOutOfScope(ctx context.Context, phone string) error
}

const outOfScopeTTL = time.Hour

// RedisContactState stores contact state in Redis with key TTLs.
type RedisContactState struct {
	redis redis.Cmdable
}

// NewRedisContactState creates a Redis-backed contact state store.
func NewRedisContactState(client redis.Cmdable) *RedisContactState {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisContactState{redis: client}
}

func (s *RedisContactState) ActivateHandoff(ctx context.Context, phone string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, handoffKey(phone), "1", ttl).Err(); err != nil {
		return fmt.Errorf("conversation: activate handoff: %w", err)
	}
	return nil
}

func (s *RedisContactState) HandoffActive(ctx context.Context, phone string) (bool, error) {
	n, err := s.redis.Exists(ctx, handoffKey(phone)).Result()
	if err != nil {
		return false, fmt.Errorf("conversation: handoff lookup: %w", err)
	}
	return n > 0, nil
}

func (s *RedisContactState) ClearHandoff(ctx context.Context, phone string) error {
	if err := s.redis.Del(ctx, handoffKey(phone)).Err(); err != nil {
		return fmt.Errorf("conversation: clear handoff: %w", err)
	}
	return nil
}

func (s *RedisContactState) IncrOutOfScope(ctx context.Context, phone string) (int, error) {
	key := scopeKey(phone)
	n, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("conversation: scope counter: %w", err)
	}
	_ = s.redis.Expire(ctx, key, outOfScopeTTL).Err()
	return int(n), nil
}

func (s *RedisContactState) ResetOutOfScope(ctx context.Context, phone string) error {
	if err := s.redis.Del(ctx, scopeKey(phone)).Err(); err != nil {
		return fmt.Errorf("conversation: reset scope counter: %w", err)
	}
	return nil
}

func handoffKey(phone string) string { return "handoff:" + phone }
func scopeKey(phone string) string   { return "oos:" + phone }

// MemoryContactState is an in-process ContactState with expiry sweeping,
// used in tests and single-node local runs.
type MemoryContactState struct {
	mu         sync.Mutex
	handoff    map[string]time.Time
	outOfScope map[string]int
	now        func() time.Time
}

// NewMemoryContactState creates an in-memory contact state store.
func NewMemoryContactState() *MemoryContactState {
	return &MemoryContactState{
		handoff:    make(map[string]time.Time),
		outOfScope: make(map[string]int),
		now:        time.Now,
	}
}

func (s *MemoryContactState) ActivateHandoff(_ context.Context, phone string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoff[phone] = s.now().Add(ttl)
	return nil
}

func (s *MemoryContactState) HandoffActive(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.handoff[phone]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.handoff, phone)
		return false, nil
	}
	return true, nil
}

func (s *MemoryContactState) ClearHandoff(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handoff, phone)
	return nil
}

func (s *MemoryContactState) IncrOutOfScope(_ context.Context, phone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outOfScope[phone]++
	return s.outOfScope[phone], nil
}

func (s *MemoryContactState) ResetOutOfScope(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outOfScope, phone)
	return nil
}
