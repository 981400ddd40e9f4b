package strata

import (
	"context"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the interface for caching query results.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// CacheKey identifies the result of one executed query.
type CacheKey struct {
	Transfer string // transfer type the rows are mapped to
	Dialect  string
	SQL      string
	Args     string // rendered bound arguments
	Limit    int
	Offset   int
}

// String returns the string representation of the cache key. All keys of
// one transfer type share the Prefix, so DeletePrefix invalidates them.
func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(k.Prefix())
	b.WriteString(k.Dialect)
	b.WriteByte(':')
	b.WriteString(k.SQL)
	b.WriteByte(':')
	b.WriteString(k.Args)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(k.Limit))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(k.Offset))
	return b.String()
}

// CachePrefix starts every cache key, so DeletePrefix(CachePrefix) drops
// all cached results.
const CachePrefix = "strata:"

// Prefix returns the key prefix of the transfer type.
func (k CacheKey) Prefix() string {
	return CachePrefix + k.Transfer + ":"
}

// DefaultCompiledCacheSize is the number of compiled models kept by
// NewCompiledCache when no size is given.
const DefaultCompiledCacheSize = 512

// CompiledCache holds compiled, immutable artifacts (query models, rendered
// statements) keyed by a string. It is safe for concurrent use; values must
// never be mutated after they are added.
type CompiledCache[V any] struct {
	lru *lru.Cache[string, V]
}

// NewCompiledCache returns a cache bounded to size entries. A non-positive
// size falls back to DefaultCompiledCacheSize.
func NewCompiledCache[V any](size int) (*CompiledCache[V], error) {
	if size <= 0 {
		size = DefaultCompiledCacheSize
	}
	c, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	return &CompiledCache[V]{lru: c}, nil
}

// Get returns the value stored under key.
func (c *CompiledCache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// GetOrAdd returns the cached value of key or, if absent, stores and returns
// the value produced by build. Concurrent builders of the same key may both
// run; the first stored value wins.
func (c *CompiledCache[V]) GetOrAdd(key string, build func() (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err := build()
	if err != nil {
		var zero V
		return zero, err
	}
	if prev, ok, _ := c.lru.PeekOrAdd(key, v); ok {
		return prev, nil
	}
	return v, nil
}

// Purge removes every entry, e.g. after the model was reloaded.
func (c *CompiledCache[V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached entries.
func (c *CompiledCache[V]) Len() int {
	return c.lru.Len()
}
