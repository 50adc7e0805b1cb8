package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	conversationTTL = 24 * time.Hour
	maxHistoryTurns = 40
)

// HistoryStore keeps per-conversation message history in Redis, keyed by
// channel-qualified session ids ("zapi:<phone>"). Profiles carry long-term
// preference notes maintained outside the pipeline.
type HistoryStore struct {
	redis redis.Cmdable
}

// NewHistoryStore creates a Redis-backed history store.
func NewHistoryStore(client redis.Cmdable) *HistoryStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &HistoryStore{redis: client}
}

// Save persists the history under the session id with a rolling TTL,
// keeping only the most recent turns.
func (s *HistoryStore) Save(ctx context.Context, sessionID string, history []ChatMessage) error {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("conversation: marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(sessionID), data, conversationTTL).Err(); err != nil {
		return fmt.Errorf("conversation: persist history: %w", err)
	}
	return nil
}

// Load returns the saved history, or nil when the session is new.
func (s *HistoryStore) Load(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	data, err := s.redis.Get(ctx, conversationKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("conversation: decode history: %w", err)
	}
	return history, nil
}

// LoadProfile returns the long-term preference notes for a contact phone,
// or "" when none exist.
func (s *HistoryStore) LoadProfile(ctx context.Context, phone string) (string, error) {
	data, err := s.redis.Get(ctx, profileKey(phone)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("conversation: load profile: %w", err)
	}
	return data, nil
}

func conversationKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s", sessionID)
}

func profileKey(phone string) string {
	return fmt.Sprintf("profile:%s", phone)
}
