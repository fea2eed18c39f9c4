package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAdmitExactBudget(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		d, err := l.Admit("s1", CategoryToolExecution)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 4-i, d.Remaining)
		clock.Advance(time.Second)
	}

	d, err := l.Admit("s1", CategoryToolExecution)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 5, d.Limit)
	assert.True(t, d.Reset.After(clock.Now()), "reset must be in the future")
}

func TestWindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now), WithLimit(CategoryChat, 2))

	first := clock.Now()
	_, _ = l.Admit("s1", CategoryChat)
	clock.Advance(30 * time.Second)
	_, _ = l.Admit("s1", CategoryChat)

	d, _ := l.Admit("s1", CategoryChat)
	require.False(t, d.Allowed)
	assert.Equal(t, first.Add(time.Minute), d.Reset)

	clock.Advance(30 * time.Second)
	d, _ = l.Admit("s1", CategoryChat)
	assert.True(t, d.Allowed, "oldest hit has left the window")
	assert.Equal(t, 0, d.Remaining)
}

func TestBucketsAreIndependent(t *testing.T) {
	l := New(WithLimit(CategoryToolExecution, 1))

	d, _ := l.Admit("s1", CategoryToolExecution)
	assert.True(t, d.Allowed)
	d, _ = l.Admit("s1", CategoryToolExecution)
	assert.False(t, d.Allowed)

	d, _ = l.Admit("s2", CategoryToolExecution)
	assert.True(t, d.Allowed, "other session has its own budget")
	d, _ = l.Admit("s1", CategoryChat)
	assert.True(t, d.Allowed, "other category has its own budget")
}

func TestPeekDoesNotConsume(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		d, err := l.Peek("s1", CategoryMCPOps)
		require.NoError(t, err)
		assert.Equal(t, 15, d.Remaining)
	}
	assert.Equal(t, 0, l.Sessions())

	_, _ = l.Admit("s1", CategoryMCPOps)
	d, _ := l.Peek("s1", CategoryMCPOps)
	assert.Equal(t, 14, d.Remaining)
}

func TestForget(t *testing.T) {
	l := New(WithLimit(CategoryChat, 1))
	_, _ = l.Admit("s1", CategoryChat)
	assert.Equal(t, 1, l.Sessions())

	l.Forget("s1")
	assert.Equal(t, 0, l.Sessions())
	d, _ := l.Admit("s1", CategoryChat)
	assert.True(t, d.Allowed)
}

func TestUnknownCategory(t *testing.T) {
	l := New()
	_, err := l.Admit("s1", Category("uploads"))
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestUnlimitedCategory(t *testing.T) {
	l := New(WithLimit(CategoryChat, 0))
	for i := 0; i < 100; i++ {
		d, err := l.Admit("s1", CategoryChat)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}

func TestConcurrentAdmitsSameSession(t *testing.T) {
	l := New(WithLimit(CategoryDocumentOps, 20))

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Admit("s1", CategoryDocumentOps)
			assert.NoError(t, err)
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(20), allowed.Load())
}

func TestAdmitsExactlyNWithinWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 25).Draw(t, "limit")
		requests := rapid.IntRange(0, 60).Draw(t, "requests")
		step := time.Duration(rapid.IntRange(0, 900).Draw(t, "step_ms")) * time.Millisecond

		clock := newFakeClock()
		l := New(WithClock(clock.Now), WithLimit(CategoryChat, limit))
		start := clock.Now()

		admitted := 0
		for i := 0; i < requests; i++ {
			if clock.Now().Sub(start) >= time.Minute {
				break
			}
			d, err := l.Admit("s", CategoryChat)
			if err != nil {
				t.Fatalf("admit: %v", err)
			}
			if d.Allowed {
				admitted++
			} else {
				if d.Remaining != 0 {
					t.Fatalf("rejected with remaining=%d", d.Remaining)
				}
				if !d.Reset.After(clock.Now()) {
					t.Fatalf("reset %v not after now %v", d.Reset, clock.Now())
				}
			}
			clock.Advance(step)
		}
		if admitted > limit {
			t.Fatalf("admitted %d with limit %d", admitted, limit)
		}
		attempted := requests
		if step > 0 {
			attempted = min(requests, int((time.Minute+step-1)/step))
		}
		if want := min(attempted, limit); admitted != want {
			t.Fatalf("admitted %d, want %d", admitted, want)
		}
	})
}
