package timer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultStateTTL = 6 * time.Hour

// RedisStore persists countdown state in Redis so a countdown survives page
// reloads and process restarts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(sessionKey string) string {
	return fmt.Sprintf("assessment:timer:%s", sessionKey)
}

func (s *RedisStore) Load(ctx context.Context, sessionKey string) (*State, error) {
	data, err := s.client.Get(ctx, s.key(sessionKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load countdown state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal countdown state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionKey string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal countdown state: %w", err)
	}
	return s.client.Set(ctx, s.key(sessionKey), data, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, sessionKey string) error {
	return s.client.Del(ctx, s.key(sessionKey)).Err()
}
