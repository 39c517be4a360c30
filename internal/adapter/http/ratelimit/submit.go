// Package ratelimit throttles job submissions per client.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count        int
	start        time.Time
	blockedUntil time.Time
}

// SubmitLimiter allows at most maxPerWindow submissions per client in each
// window. A client that exceeds it is blocked for blockFor.
type SubmitLimiter struct {
	mu           sync.Mutex
	clients      map[string]*window
	maxPerWindow int
	window       time.Duration
	blockFor     time.Duration
	now          func() time.Time
}

func NewSubmitLimiter(maxPerWindow int, windowSize, blockFor time.Duration) *SubmitLimiter {
	return &SubmitLimiter{
		clients:      make(map[string]*window),
		maxPerWindow: maxPerWindow,
		window:       windowSize,
		blockFor:     blockFor,
		now:          time.Now,
	}
}

// Allow records one submission and reports whether it may proceed. When it
// may not, the returned duration is how long the client should wait.
// A limiter with maxPerWindow < 1 allows everything.
func (l *SubmitLimiter) Allow(clientID string) (bool, time.Duration) {
	if l == nil || l.maxPerWindow < 1 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[clientID]
	if !ok {
		w = &window{start: now}
		l.clients[clientID] = w
	}
	if now.Before(w.blockedUntil) {
		return false, w.blockedUntil.Sub(now)
	}
	if now.Sub(w.start) >= l.window {
		w.count = 0
		w.start = now
	}
	w.count++
	if w.count > l.maxPerWindow {
		w.blockedUntil = now.Add(l.blockFor)
		return false, l.blockFor
	}
	return true, 0
}

func (l *SubmitLimiter) Reset(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, clientID)
}

// Prune drops clients whose window and block have both lapsed.
func (l *SubmitLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for id, w := range l.clients {
		if now.Sub(w.start) > 2*l.window && now.After(w.blockedUntil) {
			delete(l.clients, id)
			n++
		}
	}
	return n
}

// Run prunes once a minute until ctx is done.
func (l *SubmitLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}
