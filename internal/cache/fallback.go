package cache

import (
	"context"
	"log"
	"time"
)

// FallbackStore composes a distributed primary with a process-local secondary.
// Writes land on the secondary unconditionally and on the primary when it is
// reachable; reads try the primary and consult the secondary only when the
// primary errors (a clean miss is a miss). Callers see a single KeyValueStore.
type FallbackStore struct {
	primary   KeyValueStore
	secondary KeyValueStore
}

func NewFallbackStore(primary, secondary KeyValueStore) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary}
}

func (s *FallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if err == ErrMiss {
		return nil, ErrMiss
	}
	return s.secondary.Get(ctx, key)
}

func (s *FallbackStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.secondary.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		log.Printf("WARNING: primary cache set failed for %s: %v", key, err)
	}
	return nil
}

func (s *FallbackStore) Del(ctx context.Context, key string) error {
	if err := s.secondary.Del(ctx, key); err != nil {
		return err
	}
	if err := s.primary.Del(ctx, key); err != nil {
		log.Printf("WARNING: primary cache del failed for %s: %v", key, err)
	}
	return nil
}

var _ KeyValueStore = (*FallbackStore)(nil)
