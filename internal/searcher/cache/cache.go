// Package cache memoises search results in Redis for the serve command.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/parser"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/redis"
)

const keyPrefix = "bloom:search:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// QueryCache keys results by the sorted query terms, the limit and a
// generation token. Invalidate starts a new generation, so entries written
// against a replaced store are never read again and age out through their TTL.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger

	mu         sync.RWMutex
	generation string

	hits   atomic.Int64
	misses atomic.Int64
}

func New(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		backend:    backend,
		ttl:        ttl,
		generation: uuid.NewString(),
		logger:     slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, bool) {
	key := c.buildKey(plan, limit)
	data, err := c.backend.GetBytes(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", plan.RawQuery, "key", key)
	result.Query = plan.RawQuery
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, plan *parser.QueryPlan, limit int, result *executor.SearchResult) {
	key := c.buildKey(plan, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result when there is one. Otherwise it runs
// computeFn once per key, however many callers are waiting on it, and
// caches the outcome. The boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	plan *parser.QueryPlan,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, plan, limit); ok {
		return result, true, nil
	}
	key := c.buildKey(plan, limit)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, plan, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	shared := *val.(*executor.SearchResult)
	shared.Query = plan.RawQuery
	return &shared, false, nil
}

// Invalidate discards every cached result.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	c.generation = uuid.NewString()
	gen := c.generation
	c.mu.Unlock()
	c.logger.Info("cache invalidated", "generation", gen)
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(plan *parser.QueryPlan, limit int) string {
	terms := slices.Clone(plan.Terms)
	slices.Sort(terms)
	raw := fmt.Sprintf("%s:limit=%d", strings.Join(terms, ","), limit)
	hash := sha256.Sum256([]byte(raw))

	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()
	return fmt.Sprintf("%s%s:%x", keyPrefix, gen, hash[:16])
}
