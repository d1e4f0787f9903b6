package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 2 * time.Second

// RedisConfig configures a Redis-backed definition store.
type RedisConfig struct {
	// Client is the shared Redis connection. Required.
	Client redis.UniversalClient
	// Namespace isolates one fleet's definitions from another's. The hash
	// key is "threadforge:pipelines:<namespace>". Defaults to "default".
	Namespace string
	// Timeout bounds each Redis round trip. Defaults to 2s.
	Timeout time.Duration
}

// RedisStore keeps pipeline definitions in a single Redis hash, one field
// per pipeline name.
type RedisStore struct {
	client  redis.UniversalClient
	key     string
	timeout time.Duration
}

// NewRedisStore returns a store over the given client.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis store: client is required")
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "default"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &RedisStore{
		client:  cfg.Client,
		key:     "threadforge:pipelines:" + namespace,
		timeout: timeout,
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, name, definitionJSON string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.HSet(ctx, s.key, name, definitionJSON).Err(); err != nil {
		return fmt.Errorf("redis store: save %q: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.HDel(ctx, s.key, name).Err(); err != nil {
		return fmt.Errorf("redis store: delete %q: %w", name, err)
	}
	return nil
}

func (s *RedisStore) LoadAll(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: load: %w", err)
	}
	return all, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
