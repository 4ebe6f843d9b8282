// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package cache provides the fingerprinted analysis-result cache.
//
// Keys are SHA-256 digests over (component id, canonicalized inputs, ruleset
// version, tier digest). Entries are immutable: invalidation is by key
// non-existence, never by in-place mutation. Readers are lock-free through
// the underlying LRU; concurrent writers for the same key serialize and the
// second writer reuses the first's result.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the LRU when the caller does not configure one.
const DefaultCapacity = 4096

// Entry is one immutable cached artifact.
type Entry struct {
	Key   string
	Value any
	// Report carries the sanitization report of the parse that produced the
	// value, so cache hits surface the same modification notice as misses.
	Report any
}

// Backend is the storage interface for cached artifacts. The default is the
// in-memory LRU; tests substitute their own.
type Backend interface {
	Get(key string) (*Entry, bool)
	Add(key string, e *Entry)
	Purge()
	Len() int
}

type lruBackend struct {
	inner *lru.Cache[string, *Entry]
}

func (b *lruBackend) Get(key string) (*Entry, bool) { return b.inner.Get(key) }
func (b *lruBackend) Add(key string, e *Entry)      { b.inner.Add(key, e) }
func (b *lruBackend) Purge()                        { b.inner.Purge() }
func (b *lruBackend) Len() int                      { return b.inner.Len() }

// Cache memoizes component outputs.
type Cache struct {
	backend Backend

	mu      sync.Mutex
	pending map[string]*call
}

type call struct {
	done  chan struct{}
	entry *Entry
	err   error
}

// New creates a cache with the given capacity (<=0 uses DefaultCapacity).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	inner, err := lru.New[string, *Entry](capacity)
	if err != nil {
		// Capacity is validated above; lru only rejects non-positive sizes.
		panic(err)
	}
	return &Cache{
		backend: &lruBackend{inner: inner},
		pending: make(map[string]*call),
	}
}

// NewWithBackend creates a cache over a custom backend.
func NewWithBackend(b Backend) *Cache {
	return &Cache{backend: b, pending: make(map[string]*call)}
}

// Key derives the SHA-256 cache key for a component invocation. Parts must
// already be canonicalized by the caller (sorted, stable encodings).
func Key(componentID string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(componentID))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached entry for key.
func (c *Cache) Get(key string) (*Entry, bool) {
	e, ok := c.backend.Get(key)
	if ok {
		hitTotal.Inc()
	} else {
		missTotal.Inc()
	}
	return e, ok
}

// GetOrCompute returns the cached entry for key, computing and inserting it
// on miss. Concurrent callers for the same key serialize: exactly one runs
// compute, the rest reuse its result. The component surface is pure (output
// depends only on the key's inputs), so reuse is always safe.
func (c *Cache) GetOrCompute(key string, compute func() (*Entry, error)) (*Entry, error) {
	if e, ok := c.Get(key); ok {
		return e, nil
	}

	c.mu.Lock()
	if inflight, ok := c.pending[key]; ok {
		c.mu.Unlock()
		<-inflight.done
		return inflight.entry, inflight.err
	}
	// Another writer may have finished between the lock-free read and here.
	if e, ok := c.backend.Get(key); ok {
		c.mu.Unlock()
		return e, nil
	}
	inflight := &call{done: make(chan struct{})}
	c.pending[key] = inflight
	c.mu.Unlock()

	inflight.entry, inflight.err = compute()
	if inflight.err == nil && inflight.entry != nil {
		inflight.entry.Key = key
		c.backend.Add(key, inflight.entry)
	}

	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
	close(inflight.done)

	return inflight.entry, inflight.err
}

// Purge drops every entry.
func (c *Cache) Purge() { c.backend.Purge() }

// Len reports the live entry count.
func (c *Cache) Len() int { return c.backend.Len() }
