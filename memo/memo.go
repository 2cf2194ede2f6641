// Package memo caches expensive values, such as loaded models or datasets,
// so that benchmarks sharing them compute each at most once.
package memo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by Value after Close.
var ErrClosed = errors.New("memo: closed")

// Token identifies one memo within a Cache. Tokens are never reused.
type Token uint64

func (t Token) String() string { return "#" + strconv.FormatUint(uint64(t), 10) }

var lastToken atomic.Uint64

func nextToken() Token { return Token(lastToken.Add(1)) }

// Cache stores computed memo values. It is safe for concurrent use.
type Cache struct {
	logger *slog.Logger

	mu     sync.Mutex
	values map[Token]any
	group  singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger used for cache hits and misses.
func WithLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{values: map[Token]any{}, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Evict drops the value cached under t. It reports whether a value was
// present; evicting an absent token is a no-op.
func (c *Cache) Evict(t Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[t]; !ok {
		return false
	}
	delete(c.values, t)
	c.logger.Debug("evicted memoized value", "token", t)
	return true
}

// Clear drops every cached value.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.values)
}

// Size returns the number of cached values.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Contains reports whether a value is cached under t.
func (c *Cache) Contains(t Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[t]
	return ok
}

func (c *Cache) lookup(t Token) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[t]
	return v, ok
}

// do returns the value under t, computing it at most once across concurrent
// callers. The result is stored only while live reports true.
func (c *Cache) do(t Token, compute func() (any, error), live func() bool) (any, error) {
	if v, ok := c.lookup(t); ok {
		c.logger.Debug("returning memoized value", "token", t)
		return v, nil
	}
	v, err, _ := c.group.Do(t.String(), func() (any, error) {
		if v, ok := c.lookup(t); ok {
			return v, nil
		}
		c.logger.Debug("computing value", "token", t)
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if live() {
			c.values[t] = v
		}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

// Lazy is a deferred value. The runner resolves Lazy parameters before
// calling a benchmark unless the parameter is declared to take the Lazy
// itself.
type Lazy interface {
	Resolve(ctx context.Context) (any, error)
	ResultType() reflect.Type
}

// Memo is a deferred, cached computation of a T.
type Memo[T any] struct {
	cache  *Cache
	token  Token
	fn     func(ctx context.Context) (T, error)
	closed atomic.Bool
}

type cleanupArg struct {
	cache *Cache
	token Token
}

// New creates a memo of fn backed by cache. The cached value is evicted by
// Close, or when the memo becomes unreachable.
func New[T any](cache *Cache, fn func(ctx context.Context) (T, error)) *Memo[T] {
	m := &Memo[T]{cache: cache, token: nextToken(), fn: fn}
	runtime.AddCleanup(m, func(a cleanupArg) { a.cache.Evict(a.token) }, cleanupArg{cache: cache, token: m.token})
	return m
}

// Of is New for a function that cannot fail.
func Of[T any](cache *Cache, fn func() T) *Memo[T] {
	return New(cache, func(context.Context) (T, error) { return fn(), nil })
}

// Value returns the memoized value, computing it on first use. Errors are
// returned to every waiting caller and are not cached. Concurrent first
// callers share a single computation run with the first caller's context.
func (m *Memo[T]) Value(ctx context.Context) (T, error) {
	var zero T
	if m.closed.Load() {
		return zero, ErrClosed
	}
	v, err := m.cache.do(m.token, func() (any, error) {
		return m.fn(ctx)
	}, func() bool { return !m.closed.Load() })
	if err != nil {
		return zero, fmt.Errorf("memo %s: %w", m.token, err)
	}
	t, _ := v.(T)
	return t, nil
}

// Resolve implements Lazy.
func (m *Memo[T]) Resolve(ctx context.Context) (any, error) {
	return m.Value(ctx)
}

// ResultType implements Lazy.
func (m *Memo[T]) ResultType() reflect.Type { return reflect.TypeFor[T]() }

// Token returns the cache key of m.
func (m *Memo[T]) Token() Token { return m.token }

// Close evicts the cached value. Later calls to Value fail with ErrClosed.
func (m *Memo[T]) Close() error {
	m.cache.mu.Lock()
	m.closed.Store(true)
	m.cache.mu.Unlock()
	m.cache.Evict(m.token)
	return nil
}

func (m *Memo[T]) String() string {
	return fmt.Sprintf("memo(%s %s)", reflect.TypeFor[T](), m.token)
}
