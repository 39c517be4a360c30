package service

import (
	"sync"

	"github.com/bnema/reelsub/internal/domain"
)

// Notification tells subscribers a job changed. It carries no event data;
// readers re-project from a fresh snapshot.
type Notification struct {
	JobID      string
	Status     domain.JobStatus
	Phase      domain.Phase
	Percentage float64
}

type EventBus struct {
	subscribers map[string][]chan Notification
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan Notification),
	}
}

func (eb *EventBus) Subscribe(jobID string) chan Notification {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Notification, 16)
	eb.subscribers[jobID] = append(eb.subscribers[jobID], ch)
	return ch
}

func (eb *EventBus) Unsubscribe(jobID string, ch chan Notification) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			eb.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(eb.subscribers[jobID]) == 0 {
		delete(eb.subscribers, jobID)
	}
}

func (eb *EventBus) Publish(job *domain.Job) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	n := Notification{JobID: job.ID, Status: job.Status, Phase: job.Phase, Percentage: job.Progress.Percentage}
	for _, ch := range eb.subscribers[job.ID] {
		select {
		case ch <- n:
		default:
			// Drop if the subscriber is slow; it polls anyway.
		}
	}
}

func (eb *EventBus) Subscribers(jobID string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[jobID])
}
