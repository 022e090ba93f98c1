package cache

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/jettravel/backend/config"
	"github.com/redis/go-redis/v9"
)

// health tracks whether the redis backend is currently reachable, so repeated
// failures log once per transition instead of once per call.
type health struct {
	healthy atomic.Bool
}

func newHealth() *health {
	h := &health{}
	h.healthy.Store(true)
	return h
}

func (h *health) IsHealthy() bool { return h.healthy.Load() }

func (h *health) markSuccess() {
	if !h.healthy.Swap(true) {
		log.Printf("cache backend recovered")
	}
}

func (h *health) markFailure(err error) {
	if h.healthy.Swap(false) {
		log.Printf("WARNING: cache backend unavailable: %v", err)
	}
}

type RedisStore struct {
	client *redis.Client
	state  *health
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		state:  newHealth(),
	}
}

func (s *RedisStore) IsHealthy() bool { return s.state.IsHealthy() }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			s.state.markSuccess()
			return nil, ErrMiss
		}
		s.state.markFailure(err)
		return nil, err
	}
	s.state.markSuccess()
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.state.markFailure(err)
		return err
	}
	s.state.markSuccess()
	return nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.state.markFailure(err)
		return err
	}
	s.state.markSuccess()
	return nil
}

var _ KeyValueStore = (*RedisStore)(nil)
