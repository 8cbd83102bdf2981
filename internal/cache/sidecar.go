// Package cache is a best-effort byte cache of decompressed WAD artifacts
// fronting the object store. Every failure is logged and swallowed: the
// cache must never block pipeline progress.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/beebs-dev/dorch/internal/metrics"
)

const (
	// DefaultTTL is how long a cached artifact remains valid.
	DefaultTTL = 90 * time.Minute
	// MaxCacheableBytes is the per-entry size cap; larger payloads are
	// never cached.
	MaxCacheableBytes = 300 * 1024 * 1024
)

// Config configures the Redis-compatible sidecar connection.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// Sidecar wraps a Redis client. A nil-backed Sidecar (Enabled() == false) is
// a valid no-op, so callers never need to check for a nil pointer.
type Sidecar struct {
	client  *redis.Client
	logger  arbor.ILogger
	enabled bool
}

// New builds a Sidecar. If cfg.Host is empty, the cache is disabled and all
// operations become no-ops.
func New(cfg Config, logger arbor.ILogger) *Sidecar {
	if cfg.Host == "" {
		return &Sidecar{logger: logger, enabled: false}
	}

	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Sidecar{client: redis.NewClient(opts), logger: logger, enabled: true}
}

// Enabled reports whether a backing store is configured.
func (s *Sidecar) Enabled() bool { return s.enabled }

func cacheKey(sha1 string) string {
	return "dorch:wad:" + sha1
}

// Get returns the cached bytes for sha1, or ok=false on any miss or error.
func (s *Sidecar) Get(ctx context.Context, sha1 string) ([]byte, bool) {
	if !s.enabled {
		return nil, false
	}
	data, err := s.client.Get(ctx, cacheKey(sha1)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Str("sha1", sha1).Msg("cache GET failed; falling through to object store")
			metrics.CacheHits.WithLabelValues("error").Inc()
		} else {
			metrics.CacheHits.WithLabelValues("miss").Inc()
		}
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("hit").Inc()
	return data, true
}

// Set stores decompressed bytes for sha1, best-effort. Oversized payloads
// are silently skipped rather than cached.
func (s *Sidecar) Set(ctx context.Context, sha1 string, data []byte) {
	if !s.enabled || len(data) > MaxCacheableBytes {
		return
	}
	if err := s.client.Set(ctx, cacheKey(sha1), data, DefaultTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("sha1", sha1).Msg("cache SET failed; continuing without cache")
	}
}

// Close releases the underlying connection pool, if any.
func (s *Sidecar) Close() error {
	if !s.enabled {
		return nil
	}
	return s.client.Close()
}
