package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is how long analytics responses stay fresh.
const DefaultTTL = 5 * time.Minute

// Cache stores serialized analytics responses keyed by endpoint and filter.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key builds a cache key from an endpoint name and its filter parts. Empty
// parts are kept so that distinct filter combinations never collide.
func Key(endpoint string, parts ...string) string {
	return fmt.Sprintf("gastrolytics:%s:%s", endpoint, strings.Join(parts, ":"))
}
