// Package ratelimit implements per-session, per-category sliding-window
// admission control.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Category groups requests that share a budget
type Category string

// Built-in categories
const (
	CategoryChat          Category = "chat"
	CategoryToolExecution Category = "tool_execution"
	CategoryDocumentOps   Category = "document_ops"
	CategoryMCPOps        Category = "mcp_ops"
)

// ErrUnknownCategory is returned for categories without a configured budget
var ErrUnknownCategory = errors.New("unknown rate limit category")

// DefaultWindow is the rolling window the default budgets apply to
const DefaultWindow = time.Minute

// DefaultLimits returns the per-window budgets for the built-in categories
func DefaultLimits() map[Category]int {
	return map[Category]int{
		CategoryChat:          10,
		CategoryToolExecution: 5,
		CategoryDocumentOps:   20,
		CategoryMCPOps:        15,
	}
}

// Decision is the outcome of an admission check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is when the oldest counted request leaves the window
	Reset time.Time
}

type bucket struct {
	mu   sync.Mutex
	hits []time.Time
}

// prune drops hits outside the window; caller holds b.mu
func (b *bucket) prune(cutoff time.Time) {
	i := 0
	for i < len(b.hits) && !b.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.hits = append(b.hits[:0], b.hits[i:]...)
	}
}

// Limiter is safe for concurrent use. Each (session, category) bucket has its
// own lock; the bucket map is guarded separately.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]map[Category]*bucket
	limits  map[Category]int
	window  time.Duration
	now     func() time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithWindow overrides the rolling window
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithLimit sets the budget for one category. A limit <= 0 disables limiting
// for that category.
func WithLimit(category Category, limit int) Option {
	return func(l *Limiter) { l.limits[category] = limit }
}

// New creates a limiter with the default budgets, adjusted by opts
func New(opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]map[Category]*bucket),
		limits:  DefaultLimits(),
		window:  DefaultWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns the configured rolling window
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Limit returns the budget for a category
func (l *Limiter) Limit(category Category) (int, error) {
	limit, ok := l.limits[category]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	return limit, nil
}

// Admit counts one request if the budget allows it
func (l *Limiter) Admit(sessionID string, category Category) (Decision, error) {
	return l.check(sessionID, category, true)
}

// Peek reports the current budget without counting a request
func (l *Limiter) Peek(sessionID string, category Category) (Decision, error) {
	return l.check(sessionID, category, false)
}

func (l *Limiter) check(sessionID string, category Category, consume bool) (Decision, error) {
	limit, err := l.Limit(category)
	if err != nil {
		return Decision{}, err
	}
	now := l.now()
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: -1, Reset: now}, nil
	}

	b := l.bucket(sessionID, category, consume)
	if b == nil {
		return Decision{Allowed: true, Limit: limit, Remaining: limit, Reset: now.Add(l.window)}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now.Add(-l.window))
	d := Decision{Limit: limit}
	if len(b.hits) < limit {
		d.Allowed = true
		if consume {
			b.hits = append(b.hits, now)
		}
	}
	d.Remaining = max(limit-len(b.hits), 0)
	if len(b.hits) > 0 {
		d.Reset = b.hits[0].Add(l.window)
	} else {
		d.Reset = now.Add(l.window)
	}
	return d, nil
}

// bucket returns the bucket for a key, creating it when create is set
func (l *Limiter) bucket(sessionID string, category Category, create bool) *bucket {
	l.mu.RLock()
	b := l.buckets[sessionID][category]
	l.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	byCategory, ok := l.buckets[sessionID]
	if !ok {
		byCategory = make(map[Category]*bucket)
		l.buckets[sessionID] = byCategory
	}
	if b = byCategory[category]; b == nil {
		b = &bucket{}
		byCategory[category] = b
	}
	return b
}

// Forget drops every bucket of a session
func (l *Limiter) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.buckets, sessionID)
	l.mu.Unlock()
}

// Sessions returns the number of sessions holding buckets
func (l *Limiter) Sessions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
