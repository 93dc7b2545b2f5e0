// Package cache keeps short-lived copies of API read responses and collapses
// concurrent identical reads into one network call.
package cache

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a cached response stays fresh
const DefaultTTL = 5 * time.Minute

// Recorder observes cache lookups. *observability.Metrics satisfies it.
type Recorder interface {
	RecordCache(result string)
}

// Lookup results reported to the Recorder
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultShared = "shared"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// ResponseCache maps request keys to response bodies with a fixed TTL
type ResponseCache struct {
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
	recorder Recorder

	mu         sync.RWMutex
	entries    map[string]entry
	generation uint64
	group      *singleflight.Group
}

// Option configures a ResponseCache
type Option func(*ResponseCache)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// WithRecorder reports hits and misses
func WithRecorder(r Recorder) Option {
	return func(c *ResponseCache) { c.recorder = r }
}

// New creates an empty cache
func New(logger *zap.Logger, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "response_cache")),
		entries: make(map[string]entry),
		group:   &singleflight.Group{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds a cache key from method, endpoint and query params sorted by name
func Key(method, endpoint string, params url.Values) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(endpoint)

	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)

		sep := byte('?')
		for _, name := range names {
			values := append([]string(nil), params[name]...)
			sort.Strings(values)
			for _, v := range values {
				b.WriteByte(sep)
				b.WriteString(url.QueryEscape(name))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
				sep = '&'
			}
		}
	}
	return b.String()
}

// Get returns a fresh cached value
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return append([]byte(nil), e.value...), true
}

// Set stores value under key for DefaultTTL
func (c *ResponseCache) Set(key string, value []byte) {
	c.mu.Lock()
	c.entries[key] = entry{value: append([]byte(nil), value...), expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Do returns the cached value for key or calls fetch. Concurrent callers for the
// same key share one fetch, which runs detached from any caller's cancellation;
// a cancelled caller returns ctx.Err() without aborting it for the others.
// A failed fetch is not cached.
func (c *ResponseCache) Do(ctx context.Context, key string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(key); ok {
		c.record(ResultHit)
		return v, nil
	}

	c.mu.RLock()
	group := c.group
	gen := c.generation
	c.mu.RUnlock()

	// The shared fetch outlives any one caller; fetch is expected to bound itself
	ch := group.DoChan(key, func() (any, error) {
		data, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.storeIfCurrent(gen, key, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.record(ResultShared)
		} else {
			c.record(ResultMiss)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]byte(nil), res.Val.([]byte)...), nil
	}
}

// storeIfCurrent skips results of fetches started before the last Clear
func (c *ResponseCache) storeIfCurrent(gen uint64, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.entries[key] = entry{value: append([]byte(nil), data...), expiresAt: c.now().Add(c.ttl)}
}

// Invalidate drops entries for endpoint path and anything beneath it, for every method and query
func (c *ResponseCache) Invalidate(path string) int {
	path = strings.TrimSuffix(path, "/")

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if matchesPath(key, path) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("Cache entries invalidated", zap.String("path", path), zap.Int("count", removed))
	}
	return removed
}

func matchesPath(key, path string) bool {
	_, endpoint, ok := strings.Cut(key, " ")
	if !ok {
		return false
	}
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	return endpoint == path || strings.HasPrefix(endpoint, path+"/")
}

// Clear drops every entry and forgets in-flight fetches so their results are not stored
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.generation++
	c.group = &singleflight.Group{}
	c.mu.Unlock()

	c.logger.Debug("Cache cleared")
}

// Len returns the number of stored entries, fresh or stale
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ResponseCache) record(result string) {
	if c.recorder != nil {
		c.recorder.RecordCache(result)
	}
}
