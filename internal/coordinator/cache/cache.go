// Package cache retains records for a bounded window after they settle.
// Entries are pinned while live and start their TTL only once expired.
package cache

import (
	"errors"
	"sync"
	"time"
)

// ErrEmptyID is returned when a record id is empty
var ErrEmptyID = errors.New("id cannot be empty")

// ErrNotFound is returned for unknown or evicted ids
var ErrNotFound = errors.New("record not found")

// DefaultCleanupInterval is how often expired entries are swept
const DefaultCleanupInterval = time.Minute

// ResultCache holds values by id with TTL-based expiration
type ResultCache[V any] struct {
	results  map[string]*CachedResult[V]
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	done     chan struct{} // Signal to stop cleanup goroutine
	stopOnce sync.Once
}

// CachedResult is a stored value with expiration metadata. A zero ExpiresAt
// means the entry is pinned.
type CachedResult[V any] struct {
	Value     V
	CachedAt  time.Time
	ExpiresAt time.Time
}

func (c *CachedResult[V]) expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Option configures a ResultCache
type Option func(*options)

type options struct {
	now      func() time.Time
	interval time.Duration
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCleanupInterval sets the sweep period. Zero disables the background loop.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// NewResultCache creates a cache whose expired entries live for ttl.
// Starts a background cleanup goroutine unless disabled.
func NewResultCache[V any](ttl time.Duration, opts ...Option) *ResultCache[V] {
	o := options{now: time.Now, interval: DefaultCleanupInterval}
	for _, opt := range opts {
		opt(&o)
	}
	rc := &ResultCache[V]{
		results: make(map[string]*CachedResult[V]),
		ttl:     ttl,
		now:     o.now,
		done:    make(chan struct{}),
	}
	if o.interval > 0 {
		go rc.cleanupLoop(o.interval)
	}
	return rc
}

// Store pins a value under id, replacing any previous one
func (rc *ResultCache[V]) Store(id string, value V) error {
	if id == "" {
		return ErrEmptyID
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.results[id] = &CachedResult[V]{Value: value, CachedAt: rc.now()}
	return nil
}

// Expire starts the TTL of a pinned entry. Already expiring entries keep
// their deadline.
func (rc *ResultCache[V]) Expire(id string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if cached, ok := rc.results[id]; ok && cached.ExpiresAt.IsZero() {
		cached.ExpiresAt = rc.now().Add(rc.ttl)
	}
}

// Get returns the value for id, or ErrNotFound if unknown or expired
func (rc *ResultCache[V]) Get(id string) (V, error) {
	var zero V
	if id == "" {
		return zero, ErrEmptyID
	}

	rc.mu.RLock()
	defer rc.mu.RUnlock()

	cached, exists := rc.results[id]
	if !exists || cached.expired(rc.now()) {
		return zero, ErrNotFound
	}
	return cached.Value, nil
}

// Delete removes an entry
func (rc *ResultCache[V]) Delete(id string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.results, id)
}

// Size returns the number of stored entries, expired ones included until swept
func (rc *ResultCache[V]) Size() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.results)
}

// Close stops the cleanup goroutine
func (rc *ResultCache[V]) Close() {
	rc.stopOnce.Do(func() { close(rc.done) })
}

func (rc *ResultCache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.Cleanup()
		case <-rc.done:
			return
		}
	}
}

// Cleanup evicts expired entries and returns how many were removed
func (rc *ResultCache[V]) Cleanup() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := rc.now()
	removed := 0
	for id, cached := range rc.results {
		if cached.expired(now) {
			delete(rc.results, id)
			removed++
		}
	}
	return removed
}
