package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/jz315/autoplay/internal/errors"
)

// DefaultRedisKey is the key the state document is stored under
const DefaultRedisKey = "autoplay:state"

// RedisStore keeps the state document under a single Redis key
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to redisURL and tests the connection
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, DefaultRedisKey), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Client exposes the connection so the instance lock can share it
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Load reads the state document. A missing key is an empty state.
func (s *RedisStore) Load(ctx context.Context) (*State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewState(), nil
	}
	if err != nil {
		return nil, &apperrors.PersistenceError{Op: "load", Err: fmt.Errorf("failed to get %s: %w", s.key, err)}
	}
	return decode(data)
}

// Save overwrites the state document
func (s *RedisStore) Save(ctx context.Context, st *State) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return &apperrors.PersistenceError{Op: "save", Err: fmt.Errorf("failed to set %s: %w", s.key, err)}
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
