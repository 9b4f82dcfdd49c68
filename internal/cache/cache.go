// Package cache provides the read-side accelerator for ledger-derived data
// and the only home of the ephemeral chat store.
//
// The Store interface is the backing store contract and may fail; the Cache
// wrapper is what the rest of the application uses and never surfaces an
// error: backing failures degrade to a miss on read and a silent no-op on
// write. Callers must stay correct with the cache entirely absent.
package cache

import (
	"context"
	"errors"
	"time"
)

// TTL tiers, chosen per data class. Advisory: a backing store may expire
// entries earlier or ignore the value, so callers bound staleness with
// these but never rely on precise expiry timing.
const (
	TTLShort    = 180 * time.Second  // high-churn aggregates
	TTLMedium   = 600 * time.Second  // expense lists and balances
	TTLLong     = 1800 * time.Second // user and friends lists
	TTLVeryLong = 3600 * time.Second // preferences
	TTLDay      = 86400 * time.Second
	TTLChat     = 30 * 24 * time.Hour // ephemeral chat store, fixed regardless of tier
)

// ErrCacheMiss is returned by Store.Get when a key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

// Store is the backing-store contract. Implementations must be safe for
// concurrent use. Any method may fail; only the Cache wrapper decides what
// failures mean.
type Store interface {
	// Get returns the value for key, or ErrCacheMiss when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL, overwriting any
	// previous value. Concurrent sets for one key race last-write-wins.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// SupportsPatternDelete reports whether wildcard deletion is
	// available. No production path may depend on it being true.
	SupportsPatternDelete() bool

	// Close releases the backing connection or storage.
	Close() error
}

// Logger is the logging surface the cache needs. Satisfied by *log.Logger.
type Logger interface {
	WarnContext(ctx context.Context, msg string, args ...any)
	DebugContext(ctx context.Context, msg string, args ...any)
}

// Cache wraps a Store with the never-throw contract and a per-call timeout.
// Construct one per process and inject it; there is no package-level state.
type Cache struct {
	store   Store
	timeout time.Duration
	logger  Logger
}

// New returns a Cache over the given backing store. timeout bounds every
// backing call; on expiry the call degrades like any other failure.
func New(store Store, timeout time.Duration, logger Logger) *Cache {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Cache{store: store, timeout: timeout, logger: logger}
}

// Get returns the cached value and true on a hit. Misses, failures, and
// timeouts all report (nil, false); the caller falls back to the source of
// truth.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, err := c.store.Get(cctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.WarnContext(ctx, "Cache read failed, treating as miss", "cache_key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

// Set stores value under key. Failures are logged and swallowed: cache
// entries are disposable and a failed write only costs a later recompute.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Set(cctx, key, value, ttl); err != nil {
		c.logger.WarnContext(ctx, "Cache write failed, skipping", "cache_key", key, "error", err)
	}
}

// Delete removes key, swallowing failures. A failed invalidation leaves the
// entry stale at most until its TTL expires.
func (c *Cache) Delete(ctx context.Context, key string) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Delete(cctx, key); err != nil {
		c.logger.WarnContext(ctx, "Cache invalidation failed, entry stays until TTL expiry", "cache_key", key, "error", err)
	}
}

// Exists reports whether key is present. Failures report false.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ok, err := c.store.Exists(cctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "Cache exists check failed", "cache_key", key, "error", err)
		return false
	}
	return ok
}

// Close tears down the backing store. Called once at process shutdown by
// whoever constructed the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}
