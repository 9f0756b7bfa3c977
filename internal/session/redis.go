package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed session store. Each session is a JSON blob
// under prefix:token with the TTL supplied on Save.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore using the given key namespace.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sess"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + ":" + token
}

// Get loads and decodes the session stored under token.
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// A blob we cannot read is treated like a missing session.
		_ = s.redis.Del(ctx, s.key(token)).Err()
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Save writes the session unconditionally with the given TTL.
func (s *RedisStore) Save(ctx context.Context, token string, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the session key.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Touch rewrites the session only while the key exists (SET ... XX), so a
// request racing a logout cannot bring the session back.
func (s *RedisStore) Touch(ctx context.Context, token string, sess *Session, ttl time.Duration) error {
	if sess == nil {
		return ErrNotFound
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	ok, err := s.redis.SetXX(ctx, s.key(token), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
