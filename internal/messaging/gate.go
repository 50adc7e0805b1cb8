package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Verdict is the admission decision for one inbound message.
type Verdict string

const (
	VerdictAccepted    Verdict = "accepted"
	VerdictDuplicate   Verdict = "duplicate_message"
	VerdictRateLimited Verdict = "rate_limited"
	VerdictCooldown    Verdict = "cooldown"
)

// GateConfig bounds inbound traffic per contact.
type GateConfig struct {
	DedupWindow  time.Duration
	MaxPerMinute int
	Cooldown     time.Duration
}

func (c *GateConfig) applyDefaults() {
	if c.DedupWindow <= 0 {
		c.DedupWindow = 5 * time.Minute
	}
	if c.MaxPerMinute <= 0 {
		c.MaxPerMinute = 10
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 2 * time.Second
	}
}

// Gate decides whether an inbound message enters the pipeline. Checks run
// in order: duplicate id, per-phone rate, per-phone cooldown. Only accepted
// messages count toward the rate window and arm the cooldown.
type Gate interface {
	Admit(ctx context.Context, phone, messageID string) (Verdict, error)
}

// RedisGate shares admission state across instances.
type RedisGate struct {
	redis redis.Cmdable
	cfg   GateConfig
}

// NewRedisGate creates a Redis-backed admission gate.
func NewRedisGate(client redis.Cmdable, cfg GateConfig) *RedisGate {
	if client == nil {
		panic("messaging: redis client cannot be nil")
	}
	cfg.applyDefaults()
	return &RedisGate{redis: client, cfg: cfg}
}

func (g *RedisGate) Admit(ctx context.Context, phone, messageID string) (Verdict, error) {
	fresh, err := g.redis.SetNX(ctx, dedupKey(messageID), "1", g.cfg.DedupWindow).Result()
	if err != nil {
		return "", fmt.Errorf("messaging: dedup check: %w", err)
	}
	if !fresh {
		return VerdictDuplicate, nil
	}

	count, err := g.redis.Get(ctx, rateKey(phone)).Int()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("messaging: rate lookup: %w", err)
	}
	if count >= g.cfg.MaxPerMinute {
		return VerdictRateLimited, nil
	}

	held, err := g.redis.Exists(ctx, cooldownKey(phone)).Result()
	if err != nil {
		return "", fmt.Errorf("messaging: cooldown lookup: %w", err)
	}
	if held > 0 {
		return VerdictCooldown, nil
	}

	n, err := g.redis.Incr(ctx, rateKey(phone)).Result()
	if err != nil {
		return "", fmt.Errorf("messaging: rate increment: %w", err)
	}
	if n == 1 {
		_ = g.redis.Expire(ctx, rateKey(phone), time.Minute).Err()
	}
	if err := g.redis.Set(ctx, cooldownKey(phone), "1", g.cfg.Cooldown).Err(); err != nil {
		return "", fmt.Errorf("messaging: arm cooldown: %w", err)
	}
	return VerdictAccepted, nil
}

func dedupKey(messageID string) string { return "dedup:" + messageID }
func rateKey(phone string) string      { return "rate:" + phone }
func cooldownKey(phone string) string  { return "cooldown:" + phone }

// MemoryGate is a single-process Gate for tests and local runs.
type MemoryGate struct {
	mu         sync.Mutex
	cfg        GateConfig
	seen       map[string]time.Time
	timestamps map[string][]time.Time
	now        func() time.Time
}

// NewMemoryGate creates an in-memory admission gate.
func NewMemoryGate(cfg GateConfig) *MemoryGate {
	cfg.applyDefaults()
	return &MemoryGate{
		cfg:        cfg,
		seen:       make(map[string]time.Time),
		timestamps: make(map[string][]time.Time),
		now:        time.Now,
	}
}

func (g *MemoryGate) Admit(_ context.Context, phone, messageID string) (Verdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()

	for id, at := range g.seen {
		if now.Sub(at) >= g.cfg.DedupWindow {
			delete(g.seen, id)
		}
	}
	if _, dup := g.seen[messageID]; dup {
		return VerdictDuplicate, nil
	}
	g.seen[messageID] = now

	recent := g.timestamps[phone][:0]
	for _, ts := range g.timestamps[phone] {
		if now.Sub(ts) < time.Minute {
			recent = append(recent, ts)
		}
	}
	g.timestamps[phone] = recent

	if len(recent) >= g.cfg.MaxPerMinute {
		return VerdictRateLimited, nil
	}
	if len(recent) > 0 && now.Sub(recent[len(recent)-1]) < g.cfg.Cooldown {
		return VerdictCooldown, nil
	}

	g.timestamps[phone] = append(recent, now)
	return VerdictAccepted, nil
}
