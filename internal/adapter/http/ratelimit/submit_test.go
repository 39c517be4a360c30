package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(max int) (*SubmitLimiter, *clock) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewSubmitLimiter(max, time.Minute, 5*time.Minute)
	l.now = c.Now
	return l, c
}

func TestSubmitLimiter_AllowsUpToMax(t *testing.T) {
	l, _ := newTestLimiter(3)

	for i := 0; i < 3; i++ {
		allowed, wait := l.Allow("client1")
		assert.True(t, allowed)
		assert.Zero(t, wait)
	}

	allowed, wait := l.Allow("client1")
	assert.False(t, allowed)
	assert.Equal(t, 5*time.Minute, wait)
}

func TestSubmitLimiter_BlockCountsDown(t *testing.T) {
	l, c := newTestLimiter(1)
	l.Allow("client1")
	l.Allow("client1")

	c.Advance(2 * time.Minute)
	allowed, wait := l.Allow("client1")
	assert.False(t, allowed)
	assert.Equal(t, 3*time.Minute, wait)

	c.Advance(3 * time.Minute)
	allowed, _ = l.Allow("client1")
	assert.True(t, allowed)
}

func TestSubmitLimiter_WindowResets(t *testing.T) {
	l, c := newTestLimiter(2)
	l.Allow("client1")
	l.Allow("client1")

	c.Advance(time.Minute)
	allowed, _ := l.Allow("client1")
	assert.True(t, allowed)
}

func TestSubmitLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1)
	l.Allow("client1")

	allowed, _ := l.Allow("client1")
	assert.False(t, allowed)
	allowed, _ = l.Allow("client2")
	assert.True(t, allowed)

	l.Reset("client1")
	allowed, _ = l.Allow("client1")
	assert.True(t, allowed)
}

func TestSubmitLimiter_Disabled(t *testing.T) {
	l, _ := newTestLimiter(0)
	for i := 0; i < 100; i++ {
		allowed, _ := l.Allow("client1")
		assert.True(t, allowed)
	}

	var nilLimiter *SubmitLimiter
	allowed, _ := nilLimiter.Allow("client1")
	assert.True(t, allowed)
}

func TestSubmitLimiter_Prune(t *testing.T) {
	l, c := newTestLimiter(1)
	l.Allow("client1")
	l.Allow("client2")
	l.Allow("client2")

	c.Advance(3 * time.Minute)
	assert.Equal(t, 1, l.Prune(), "client2 is still blocked")

	c.Advance(3 * time.Minute)
	assert.Equal(t, 1, l.Prune())
}

func TestSubmitLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("client1"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
