// Package tokens keeps the API tokens allowed to call the export endpoint
// in memory and refreshes them from a repository.
package tokens

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrStoreNotReady = errors.New("token store not ready")
)

// Repository loads the full token set, mapping token to requests per
// rate-limit interval.
type Repository interface {
	LoadTokens(ctx context.Context) (map[string]int, error)
}

// Cache is a concurrency-safe token set.
type Cache struct {
	mu    sync.RWMutex
	cache map[string]int
}

func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps in a copy of m.
func (c *Cache) Replace(m map[string]int) {
	next := make(map[string]int, len(m))
	for k, v := range m {
		next[k] = v
	}
	c.mu.Lock()
	c.cache = next
	c.mu.Unlock()
}

// Ready returns true once the cache has been loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache != nil
}

// Validate checks whether token is known.
func (c *Cache) Validate(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cache[token]
	return ok
}

// RateLimit returns the configured limit for token. Unknown tokens get 0,
// which disables token-based limiting for them.
func (c *Cache) RateLimit(token string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[token]
}
