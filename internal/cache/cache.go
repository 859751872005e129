// Package cache stores full query responses in Redis, keyed by content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pasokh-ai/pasokh/internal/types"
)

// ErrMiss is returned when no cached response exists for the key.
var ErrMiss = errors.New("cache miss")

const keyPrefix = "pasokh:response:"

// Params are the non-query inputs that change what a response would contain.
// Two requests with identical Key inputs must produce the same cache key.
type Params struct {
	Language string
	Limit    int
	Filters  map[string]string
}

// Key derives the content address for one query. Pure function of its inputs:
// normalization and canonical filter ordering keep it deterministic.
func Key(query string, params Params) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))

	keys := make([]string, 0, len(params.Filters))
	for k := range params.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var filters strings.Builder
	for _, k := range keys {
		filters.WriteString(k)
		filters.WriteString("=")
		filters.WriteString(params.Filters[k])
		filters.WriteString(";")
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s", normalized, params.Language, params.Limit, filters.String())
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// ResponseCache reads and writes cached responses. Every Redis failure is
// logged and treated as a miss; caching is never in the request's fault path.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis.
func New(addr, password string, db int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// Get returns the cached response for the key, bumping its hit count while
// preserving the remaining TTL.
func (c *ResponseCache) Get(ctx context.Context, query string, params Params) (*types.CachedResponse, error) {
	key := Key(query, params)
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache read failed, treating as miss", "error", err.Error())
		}
		return nil, ErrMiss
	}

	var entry types.CachedResponse
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		slog.Warn("cache entry corrupt, treating as miss", "error", err.Error())
		return nil, ErrMiss
	}

	entry.HitCount++
	if data, err := json.Marshal(entry); err == nil {
		if err := c.client.Set(ctx, key, data, redis.KeepTTL).Err(); err != nil {
			slog.Warn("cache hit-count update failed", "error", err.Error())
		}
	}

	return &entry, nil
}

// Put stores a response under its content address with the configured TTL.
func (c *ResponseCache) Put(ctx context.Context, query string, params Params, answer string, sources []types.SourceRef) error {
	entry := types.CachedResponse{
		Answer:    answer,
		Sources:   sources,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, Key(query, params), data, c.ttl).Err(); err != nil {
		slog.Warn("cache write failed", "error", err.Error())
	}
	return nil
}

// Purge removes every cached response.
func (c *ResponseCache) Purge(ctx context.Context) (int, error) {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 200).Result()
		if err != nil {
			return removed, fmt.Errorf("cache scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return removed, fmt.Errorf("cache delete failed: %w", err)
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Close releases the Redis connection.
func (c *ResponseCache) Close() error {
	return c.client.Close()
}
