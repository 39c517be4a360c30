package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bnema/reelsub/internal/domain"
)

func TestEventBus_PublishReachesOnlyJobSubscribers(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe("job-a")
	b := bus.Subscribe("job-b")

	bus.Publish(&domain.Job{ID: "job-a", Status: domain.JobStatusRendering, Progress: domain.Progress{Percentage: 70}})

	select {
	case n := <-a:
		assert.Equal(t, "job-a", n.JobID)
		assert.Equal(t, domain.JobStatusRendering, n.Status)
		assert.Equal(t, 70.0, n.Percentage)
	default:
		t.Fatal("subscriber of job-a got nothing")
	}
	assert.Empty(t, b)
}

func TestEventBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("job")

	for range 100 {
		bus.Publish(&domain.Job{ID: "job"})
	}
	assert.Len(t, ch, cap(ch))
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	first := bus.Subscribe("job")
	second := bus.Subscribe("job")
	assert.Equal(t, 2, bus.Subscribers("job"))

	bus.Unsubscribe("job", first)
	assert.Equal(t, 1, bus.Subscribers("job"))
	_, open := <-first
	assert.False(t, open, "unsubscribed channel is closed")

	bus.Unsubscribe("job", second)
	assert.Zero(t, bus.Subscribers("job"))
}
