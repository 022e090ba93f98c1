package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired. It is distinct
// from a transport error: a miss means the backend answered.
var ErrMiss = errors.New("cache: key not found")

// KeyValueStore is the TTL-keyed mapping used for OTP codes, verified offer
// snapshots and booking lookups. Implementations must treat Get/Set/Del as
// best-effort from the caller's point of view; only the fallback decorator
// knows about degradation.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
