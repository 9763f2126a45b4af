// Package cache is a tenant-aware response cache on Redis. Keys are
// namespaced by the tenant in the request context, so two stores never
// see each other's entries. Cache failures are never surfaced: a broken
// cache degrades to a miss, not an error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// defaultNamespace is used when the request carries no tenant, and for
// entries that explicitly live outside tenant namespaces
const defaultNamespace = "default"

// Options describe one cacheable operation
type Options struct {
	Scope     string
	Operation string
	TTL       time.Duration // Zero means the store default

	// ForceDefaultTenant pins the entry to the default namespace even
	// when the request carries a tenant. Used for per-customer data
	// that lives in the default database.
	ForceDefaultTenant bool
}

// Store reads and writes cached responses
type Store struct {
	client     *redis.Client
	enabled    bool
	defaultTTL time.Duration
	log        *zap.Logger
}

// NewStore creates a Store on an existing Redis client
func NewStore(client *redis.Client, cfg config.CacheConfig, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		client:     client,
		enabled:    cfg.Enabled,
		defaultTTL: cfg.DefaultTTL,
		log:        log.Named("cache"),
	}
}

// Enabled reports whether caching is active
func (s *Store) Enabled() bool {
	return s.enabled
}

// Key builds the cache key for an operation. args distinguishes calls
// with different inputs; pass nil for argument-free operations.
func (s *Store) Key(ctx context.Context, opts Options, args any) string {
	namespace := defaultNamespace
	if !opts.ForceDefaultTenant {
		if code, ok := tenant.CodeFromContext(ctx); ok {
			namespace = code
		}
	}

	key := namespace + ":" + opts.Scope + ":" + opts.Operation
	if args != nil {
		if fingerprint, err := canonicalJSON(args); err == nil {
			key += ":" + fingerprint
		}
	}
	return key
}

// Get loads a cached value into dest. Any failure, including a
// disabled cache, reads as a miss.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	if !s.enabled {
		return false
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.WithLogger(ctx, s.log).Warn("cache read failed",
				zap.String("key", key), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		logger.WithLogger(ctx, s.log).Warn("cache entry corrupt, ignoring",
			zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set stores a value. Failures are logged and swallowed.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !s.enabled {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	raw, err := json.Marshal(value)
	if err != nil {
		logger.WithLogger(ctx, s.log).Warn("cache value not serializable",
			zap.String("key", key), zap.Error(err))
		return
	}

	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		logger.WithLogger(ctx, s.log).Warn("cache write failed",
			zap.String("key", key), zap.Error(err))
	}
}

// Delete removes exact keys. Failures are logged and swallowed.
func (s *Store) Delete(ctx context.Context, keys ...string) {
	if !s.enabled || len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		logger.WithLogger(ctx, s.log).Warn("cache delete failed",
			zap.Strings("keys", keys), zap.Error(err))
	}
}

// DeletePattern removes every key matching a glob pattern using SCAN so
// large keyspaces are not blocked
func (s *Store) DeletePattern(ctx context.Context, pattern string) {
	if !s.enabled {
		return
	}

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			logger.WithLogger(ctx, s.log).Warn("cache scan failed",
				zap.String("pattern", pattern), zap.Error(err))
			return
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				logger.WithLogger(ctx, s.log).Warn("cache delete failed",
					zap.String("pattern", pattern), zap.Error(err))
				return
			}
		}

		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Invalidate removes all entries of the targeted operations in the
// namespace of the current request (or the default namespace when the
// target demands it)
func (s *Store) Invalidate(ctx context.Context, targets ...Target) {
	for _, target := range targets {
		namespace := defaultNamespace
		if !target.ForceDefaultTenant {
			if code, ok := tenant.CodeFromContext(ctx); ok {
				namespace = code
			}
		}

		pattern := namespace + ":" + target.Scope + ":" + target.Operation + "*"
		s.DeletePattern(ctx, pattern)
	}
}

// canonicalJSON renders a value as JSON with object keys sorted at
// every level, so equal inputs always produce equal fingerprints
func canonicalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", err
	}

	var b strings.Builder
	if err := writeCanonical(&b, decoded); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%q:", k)
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		b.Write(raw)
		return nil
	}
}
