package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

const defaultRedisKey = "festcrawl:state"

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisStore keeps the checkpoint document under a single Redis key. A SET
// replaces the value atomically.
type RedisStore struct {
	client redisClient
	key    string
}

// NewRedisStore connects to Redis using cfg.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisStoreWithClient(client, cfg.Key), nil
}

func newRedisStoreWithClient(client redisClient, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load fetches the checkpoint, returning an empty state when the key is absent.
func (s *RedisStore) Load(ctx context.Context) (crawler.CrawlState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return crawler.NewCrawlState(), nil
	}
	if err != nil {
		return crawler.CrawlState{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	state, err := crawler.DecodeState(data)
	if err != nil {
		return crawler.CrawlState{}, fmt.Errorf("decode checkpoint key %s: %w", s.key, err)
	}
	return state, nil
}

// Save overwrites the checkpoint key.
func (s *RedisStore) Save(ctx context.Context, state crawler.CrawlState) error {
	data, err := crawler.EncodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
