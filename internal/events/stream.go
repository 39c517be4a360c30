package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
	"github.com/bnema/reelsub/internal/service"
)

// Snapshotter returns a consistent copy of a job.
type Snapshotter interface {
	Get(id string) (*domain.Job, error)
}

type StreamOptions struct {
	PollInterval time.Duration
	Heartbeat    time.Duration
	// IdleTimeout closes a stream that delivered nothing but heartbeats for this long.
	IdleTimeout time.Duration
	// Grace is the pause between the terminal event and closing the stream.
	Grace time.Duration
}

func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		PollInterval: time.Second,
		Heartbeat:    2 * time.Second,
		IdleTimeout:  300 * time.Second,
		Grace:        time.Second,
	}
}

type Streamer struct {
	jobs Snapshotter
	bus  *service.EventBus
	opts StreamOptions
}

// NewStreamer builds a streamer. bus may be nil, in which case streams rely
// on polling alone.
func NewStreamer(jobs Snapshotter, bus *service.EventBus, opts StreamOptions) *Streamer {
	def := DefaultStreamOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = def.Heartbeat
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = def.IdleTimeout
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	return &Streamer{jobs: jobs, bus: bus, opts: opts}
}

// Stream emits the job's events matching q, oldest first, then only events
// strictly newer than the last one delivered. Terminal events are always
// delivered. The channel closes after the terminal event plus the grace
// delay, on idle timeout, or when ctx is done.
func (s *Streamer) Stream(ctx context.Context, id string, q Query) (<-chan domain.Event, error) {
	job, err := s.jobs.Get(id)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.Event)
	go s.run(ctx, job, q, out)
	return out, nil
}

func (s *Streamer) run(ctx context.Context, job *domain.Job, q Query, out chan<- domain.Event) {
	defer close(out)
	id := job.ID
	log := logger.Job(id)

	var notify chan service.Notification
	if s.bus != nil {
		notify = s.bus.Subscribe(id)
		defer s.bus.Unsubscribe(id, notify)
	}

	poll := time.NewTicker(s.opts.PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()
	idle := time.NewTimer(s.opts.IdleTimeout)
	defer idle.Stop()

	send := func(e domain.Event) bool {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var last time.Time
	// deliver sends what is new in j and reports whether the stream should end.
	deliver := func(j *domain.Job) bool {
		cutoff := last
		sent := false
		for _, e := range Project(j) {
			if !e.Timestamp.After(cutoff) {
				continue
			}
			if e.Timestamp.After(last) {
				last = e.Timestamp
			}
			if !e.Type.IsTerminal() && !q.Match(e) {
				continue
			}
			if !send(e) {
				return true
			}
			sent = true
		}
		if sent {
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.opts.IdleTimeout)
		}
		if !j.Status.IsTerminal() {
			return false
		}
		select {
		case <-time.After(s.opts.Grace):
		case <-ctx.Done():
		}
		return true
	}

	refresh := func() bool {
		j, err := s.jobs.Get(id)
		if err != nil {
			log.Debug().Err(err).Msg("closing event stream")
			return true
		}
		job = j
		return deliver(j)
	}

	if deliver(job) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			log.Debug().Dur("idle", s.opts.IdleTimeout).Msg("event stream idle timeout")
			return
		case <-poll.C:
			if refresh() {
				return
			}
		case _, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			if refresh() {
				return
			}
		case now := <-heartbeat.C:
			if !send(Heartbeat(job, now)) {
				return
			}
		}
	}
}

// Heartbeat carries the job's current status, phase and percentage. It is
// never part of a projection.
func Heartbeat(job *domain.Job, now time.Time) domain.Event {
	return domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventHeartbeat,
		Timestamp: now,
		Status:    job.Status,
		Phase:     job.Phase,
		Data: map[string]any{
			"status":     string(job.Status),
			"phase":      string(job.Phase),
			"percentage": job.Progress.Percentage,
		},
		Metadata: domain.EventMetadata{
			Severity: domain.SeverityDebug,
			Category: domain.CategorySystem,
			Language: job.Input.TargetLanguage,
		},
	}
}
