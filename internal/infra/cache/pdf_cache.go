// Package cache stores rendered PDFs in Redis, keyed by the normalized document.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"pdf-export/internal/domain"
	"pdf-export/internal/infra/logging"
)

const (
	keyPrefix  = "pdfcache:"
	defaultTTL = time.Minute
	opTimeout  = time.Second
)

// PDFCache reads and writes rendered PDFs.
type PDFCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache on rdb. A non-positive ttl falls back to one minute.
func New(rdb *redis.Client, ttl time.Duration) *PDFCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &PDFCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key for a normalized document. The page settings are
// part of the key so a configuration change never serves stale layouts.
func Key(document string, s domain.PageSettings) string {
	h := sha256.New()
	h.Write([]byte(document))
	h.Write([]byte{0})
	h.Write([]byte(settingsFingerprint(s)))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached PDF, or ok=false on a miss.
func (c *PDFCache) Get(ctx context.Context, key string) (pdf []byte, ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pdf, err = c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return pdf, true, nil
}

// Set stores pdf under key with the cache TTL.
func (c *PDFCache) Set(ctx context.Context, key string, pdf []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.rdb.Set(ctx, key, pdf, c.ttl).Err()
}

// Renderer serves renders from the cache and fills it on a miss. Redis errors
// are logged and never fail a render.
type Renderer struct {
	Next     domain.Renderer
	Cache    *PDFCache
	Settings domain.PageSettings
}

var _ domain.Renderer = (*Renderer)(nil)

func (r *Renderer) Render(ctx context.Context, document string) ([]byte, error) {
	key := Key(document, r.Settings)

	cached, ok, err := r.Cache.Get(ctx, key)
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
	}
	if ok {
		logging.Debug("PDF cache hit", "key", key)
		return cached, nil
	}

	pdf, err := r.Next.Render(ctx, document)
	if err != nil {
		return nil, err
	}
	if err := r.Cache.Set(ctx, key, pdf); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
	return pdf, nil
}
