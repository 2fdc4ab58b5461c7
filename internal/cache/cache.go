package cache

import (
	"context"
	"time"
)

// BytesCache is the read-side cache contract. Implementations are best-effort:
// callers must work when Get misses or any call errors.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
