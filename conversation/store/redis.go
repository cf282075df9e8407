package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omniaweb/chatbot/conversation"
)

const (
	sessionKeyPrefix = "chatbot:session:"
	counterKeyPrefix = "chatbot:counter:"
)

// RedisStore implements SessionStore backed by Redis.
//
// Sessions are stored as JSON under "chatbot:session:<id>" and expiry
// is delegated to Redis TTLs, so nothing in-process needs to sweep
// stale conversations.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance described by the URL,
// e.g. "redis://localhost:6379/0".
func NewRedisStore(url string) (*RedisStore, error) {
	if url == "" {
		return nil, ErrInvalidConfig
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreFromClient wraps an existing client. Tests use this
// with a miniredis-backed client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements SessionStore.
func (s *RedisStore) Get(ctx context.Context, id string) (*conversation.Session, error) {
	val, err := s.client.Get(ctx, sessionKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess conversation.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Put implements SessionStore.
func (s *RedisStore) Put(ctx context.Context, id string, sess *conversation.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = 0 // redis treats 0 as no expiry
	}
	return s.client.Set(ctx, sessionKeyPrefix+id, data, ttl).Err()
}

// Delete implements SessionStore.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKeyPrefix+id).Err()
}

// Incr implements SessionStore.
//
// INCR followed by EXPIRE on the first increment gives the counter a
// fixed window starting at its first use.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	full := counterKeyPrefix + key
	n, err := s.client.Incr(ctx, full).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		if err := s.client.Expire(ctx, full, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Close implements SessionStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
