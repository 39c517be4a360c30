package service

import (
	"fmt"
	"sync"

	"github.com/bnema/reelsub/internal/domain"
)

// anonymousClient groups submissions that carry no client id.
const anonymousClient = "anonymous"

// Admission caps the number of active jobs per client.
type Admission struct {
	mu     sync.Mutex
	active map[string]int
	limit  int
}

// NewAdmission returns a limiter; a limit below 1 disables it.
func NewAdmission(limit int) *Admission {
	return &Admission{active: make(map[string]int), limit: limit}
}

func clientKey(clientID string) string {
	if clientID == "" {
		return anonymousClient
	}
	return clientID
}

// Acquire reserves a slot for clientID or fails with domain.ErrConcurrencyLimit.
func (a *Admission) Acquire(clientID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := clientKey(clientID)
	if a.limit > 0 && a.active[key] >= a.limit {
		return fmt.Errorf("%w: client %s has %d active jobs", domain.ErrConcurrencyLimit, key, a.active[key])
	}
	a.active[key]++
	return nil
}

func (a *Admission) Release(clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := clientKey(clientID)
	if a.active[key] <= 1 {
		delete(a.active, key)
		return
	}
	a.active[key]--
}

func (a *Admission) Active(clientID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active[clientKey(clientID)]
}
