package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
	"github.com/bnema/reelsub/internal/port"
)

// maxTranslationSamples bounds the samples kept on a job.
const maxTranslationSamples = 3

var errJobFinished = errors.New("job finished")

// TimeoutReason is the failure reason recorded when a job outlives its deadline.
const TimeoutReason = "timeout"

type JobServiceOptions struct {
	Timeout   time.Duration
	Admission *Admission
	Bus       *EventBus
	Now       func() time.Time
}

// JobService is the job state machine. It is the only writer of jobs, owns
// each job's cancellation context and enforces the timeout deadline.
type JobService struct {
	store     port.JobStore
	bus       *EventBus
	admission *Admission
	timeout   time.Duration
	now       func() time.Time

	mu   sync.Mutex
	base context.Context
	runs map[string]*jobRun
}

type jobRun struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	timer  *time.Timer
	client string
}

func NewJobService(store port.JobStore, opts JobServiceOptions) *JobService {
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Bus == nil {
		opts.Bus = NewEventBus()
	}
	return &JobService{
		store:     store,
		bus:       opts.Bus,
		admission: opts.Admission,
		timeout:   opts.Timeout,
		now:       opts.Now,
		base:      context.Background(),
		runs:      make(map[string]*jobRun),
	}
}

func (s *JobService) Bus() *EventBus {
	return s.bus
}

// Create registers a queued job, reserving an admission slot for its client
// and arming the timeout supervisor.
func (s *JobService) Create(input domain.JobInput) (*domain.Job, error) {
	if s.admission != nil {
		if err := s.admission.Acquire(input.ClientID); err != nil {
			return nil, err
		}
	}
	job := domain.NewJob(input, s.now(), s.timeout)
	if err := s.store.Create(job); err != nil {
		if s.admission != nil {
			s.admission.Release(input.ClientID)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	ctx, cancel := context.WithCancelCause(s.base)
	run := &jobRun{ctx: ctx, cancel: cancel, client: input.ClientID}
	id := job.ID
	run.timer = time.AfterFunc(job.Metadata.TimeoutAt.Sub(s.now()), func() { s.expire(id) })

	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()

	logger.Job(id).Info().
		Str("language", logger.SanitizeForLog(input.TargetLanguage)).
		Str("client", logger.SanitizeForLog(input.ClientID)).
		Time("timeout_at", job.Metadata.TimeoutAt).
		Msg("job created")
	s.bus.Publish(job)
	return job, nil
}

// Context returns the job's cancellation context. It is cancelled with
// domain.ErrCancelled or domain.ErrTimeout when the job is stopped.
func (s *JobService) Context(id string) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		return run.ctx
	}
	ctx, cancel := context.WithCancelCause(s.base)
	cancel(domain.ErrJobNotFound)
	return ctx
}

func (s *JobService) Get(id string) (*domain.Job, error) {
	if err := domain.ValidateJobID(id); err != nil {
		return nil, err
	}
	return s.store.Get(id)
}

func (s *JobService) List() ([]*domain.Job, error) {
	return s.store.List()
}

// update runs fn under the job's write lock, rejects changes to terminal
// jobs, stamps UpdatedAt and notifies subscribers.
func (s *JobService) update(id string, fn func(job *domain.Job, now time.Time) error) (*domain.Job, error) {
	if err := domain.ValidateJobID(id); err != nil {
		return nil, err
	}
	var becameTerminal bool
	job, err := s.store.Update(id, func(j *domain.Job) error {
		if j.Status.IsTerminal() {
			return fmt.Errorf("%w: job is already %s", domain.ErrInvalidTransition, j.Status)
		}
		now := s.now()
		if err := fn(j, now); err != nil {
			return err
		}
		j.UpdatedAt = now
		becameTerminal = j.Status.IsTerminal()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(job)
	if becameTerminal {
		s.finish(job)
	}
	return job, nil
}

// Advance moves the job to next. The phase defaults to the status itself.
func (s *JobService) Advance(id string, next domain.JobStatus, phase domain.Phase, message string) (*domain.Job, error) {
	job, err := s.update(id, func(j *domain.Job, now time.Time) error {
		prev := j.Status
		if next == prev {
			return fmt.Errorf("%w: job is already %s", domain.ErrInvalidTransition, prev)
		}
		if err := j.SetState(next, phase, now); err != nil {
			return err
		}
		if prev == domain.JobStatusQueued && j.Metadata.ProcessingStartedAt.IsZero() {
			j.Metadata.ProcessingStartedAt = now
		}
		j.Progress.Message = message
		j.Progress.StepDetail = ""
		j.Metadata.StatusHistory = append(j.Metadata.StatusHistory, domain.StatusHistoryEntry{
			Status:    j.Status,
			Phase:     j.Phase,
			Message:   message,
			Timestamp: now,
		})
		setLanguageStatus(j, string(next), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Job(id).Info().Str("status", string(job.Status)).Str("phase", string(job.Phase)).Msg("job advanced")
	return job, nil
}

// EnterPhase records a sub-stage of the current status.
func (s *JobService) EnterPhase(id string, phase domain.Phase, message string) (*domain.Job, error) {
	return s.update(id, func(j *domain.Job, now time.Time) error {
		if phase.Status() != j.Status {
			return fmt.Errorf("%w: phase %q outside status %q", domain.ErrInvalidTransition, phase, j.Status)
		}
		if err := j.SetState(j.Status, phase, now); err != nil {
			return err
		}
		j.Progress.Message = message
		j.Metadata.ProgressSteps = append(j.Metadata.ProgressSteps, domain.ProgressStep{
			Phase:      phase,
			Percentage: j.Progress.Percentage,
			Message:    message,
			Timestamp:  now,
		})
		return nil
	})
}

// RecordProgress sets the overall percentage. Values are clamped to [0,100];
// a value below the last recorded one fails with domain.ErrProgressRegression.
func (s *JobService) RecordProgress(id string, percentage float64, message, stepDetail string) (*domain.Job, error) {
	return s.update(id, func(j *domain.Job, now time.Time) error {
		p := domain.Clamp(percentage, 0, 100)
		if p < j.Progress.Percentage {
			return fmt.Errorf("%w: %.2f after %.2f", domain.ErrProgressRegression, p, j.Progress.Percentage)
		}
		j.Progress.Percentage = p
		if message != "" {
			j.Progress.Message = message
		}
		j.Progress.StepDetail = stepDetail
		j.Metadata.ProgressSteps = append(j.Metadata.ProgressSteps, domain.ProgressStep{
			Phase:      j.Phase,
			Percentage: p,
			Message:    message,
			StepDetail: stepDetail,
			Timestamp:  now,
		})
		return nil
	})
}

// RecordPhaseProgress maps a phase-local percentage onto the job scale.
// Regressions within a phase are ignored rather than rejected.
func (s *JobService) RecordPhaseProgress(id string, phaseLocal float64, message string) (*domain.Job, error) {
	return s.update(id, func(j *domain.Job, now time.Time) error {
		local := domain.Clamp(phaseLocal, 0, 100)
		if local < j.Progress.PhaseProgress {
			return nil
		}
		j.Progress.PhaseProgress = local
		if overall := j.OverallPercentage(local); overall > j.Progress.Percentage {
			j.Progress.Percentage = overall
		}
		if message != "" {
			j.Progress.Message = message
		}
		return nil
	})
}

// AppendStatusHistory adds an audit entry. Terminal jobs are left untouched.
// Failures are logged, never returned.
func (s *JobService) AppendStatusHistory(id string, entry domain.StatusHistoryEntry) {
	_, err := s.update(id, func(j *domain.Job, now time.Time) error {
		if entry.Timestamp.IsZero() {
			entry.Timestamp = now
		}
		j.Metadata.StatusHistory = append(j.Metadata.StatusHistory, entry)
		return nil
	})
	if err != nil {
		logger.Job(id).Warn().Err(err).Msg("failed to append status history")
	}
}

// AddEvent appends a free-form annotation stamped with the job's current
// status and phase. Terminal jobs are left untouched. Failures are logged,
// never returned.
func (s *JobService) AddEvent(id string, a domain.Annotation) {
	if a.Type == "" {
		a.Type = domain.EventNotice
	}
	if a.Severity == "" {
		a.Severity = domain.SeverityInfo
	}
	_, err := s.update(id, func(j *domain.Job, now time.Time) error {
		if a.Timestamp.IsZero() {
			a.Timestamp = now
		}
		a.Status = j.Status
		a.Phase = j.Phase
		j.Metadata.Annotations = append(j.Metadata.Annotations, a)
		return nil
	})
	if err != nil {
		logger.Job(id).Warn().Err(err).Str("event", string(a.Type)).Msg("failed to add job event")
	}
}

func (s *JobService) RecordRetry(id string, attempt domain.RetryAttempt) {
	_, err := s.update(id, func(j *domain.Job, now time.Time) error {
		attempt.Timestamp = now
		j.Metadata.Retries = append(j.Metadata.Retries, attempt)
		j.Metadata.RetryCount++
		return nil
	})
	if err != nil {
		logger.Job(id).Warn().Err(err).Str("step", attempt.Step).Msg("failed to record retry")
	}
}

func (s *JobService) RecordDetection(id, language string, confidence float64, source string) error {
	_, err := s.update(id, func(j *domain.Job, now time.Time) error {
		j.Metadata.Detections = append(j.Metadata.Detections, domain.LanguageDetection{
			Language:   language,
			Confidence: confidence,
			Source:     source,
			Timestamp:  now,
		})
		return nil
	})
	return err
}

func (s *JobService) RecordValidation(id string, v domain.ValidationResult) error {
	_, err := s.update(id, func(j *domain.Job, now time.Time) error {
		v.Issues = append([]string(nil), v.Issues...)
		j.Output.Validation = &v
		j.Metadata.ValidatedAt = now
		return nil
	})
	return err
}

// RecordTranslationSample keeps the first few source/translation pairs.
func (s *JobService) RecordTranslationSample(id, source, translated string) error {
	_, err := s.update(id, func(j *domain.Job, now time.Time) error {
		if len(j.Metadata.TranslationSamples) >= maxTranslationSamples {
			return nil
		}
		j.Metadata.TranslationSamples = append(j.Metadata.TranslationSamples, domain.TranslationSample{
			Source:     source,
			Translated: translated,
			Timestamp:  now,
		})
		return nil
	})
	return err
}

func (s *JobService) RecordRenderProgress(id string, p domain.RenderProgress) error {
	_, err := s.update(id, func(j *domain.Job, now time.Time) error {
		p.Timestamp = now
		j.Metadata.RenderProgress = append(j.Metadata.RenderProgress, p)
		return nil
	})
	return err
}

func (s *JobService) RecordUploadProgress(id string, p domain.UploadProgress) error {
	_, err := s.update(id, func(j *domain.Job, now time.Time) error {
		p.Timestamp = now
		j.Metadata.UploadProgress = append(j.Metadata.UploadProgress, p)
		return nil
	})
	return err
}

// CompleteStep marks step done so a re-dispatch skips it.
func (s *JobService) CompleteStep(id, step string, elapsed time.Duration) error {
	_, err := s.update(id, func(j *domain.Job, _ time.Time) error {
		if !j.HasCompletedStep(step) {
			j.Metadata.CompletedSteps = append(j.Metadata.CompletedSteps, step)
		}
		if j.Output.Stats.StepMillis == nil {
			j.Output.Stats.StepMillis = make(map[string]int64)
		}
		j.Output.Stats.StepMillis[step] = elapsed.Milliseconds()
		return nil
	})
	return err
}

// UpdateOutput applies fn to the job's output record.
func (s *JobService) UpdateOutput(id string, fn func(out *domain.JobOutput)) error {
	_, err := s.update(id, func(j *domain.Job, _ time.Time) error {
		fn(&j.Output)
		return nil
	})
	return err
}

// Fail moves the job to failed, preserving the cause in job.Error and in the
// structured failure record.
func (s *JobService) Fail(id, step string, cause error) (*domain.Job, error) {
	kind := domain.Classify(cause)
	reason := string(kind)
	if kind == domain.ErrorKindTimeout {
		reason = TimeoutReason
	}
	job, err := s.update(id, func(j *domain.Job, now time.Time) error {
		if err := j.SetState(domain.JobStatusFailed, domain.PhaseFailed, now); err != nil {
			return err
		}
		j.Error = cause.Error()
		j.Progress.Message = "failed: " + step
		j.Metadata.ErrorCount++
		j.Metadata.Failure = &domain.Failure{
			Step:      step,
			Kind:      kind,
			Reason:    reason,
			Message:   cause.Error(),
			Timestamp: now,
		}
		j.Metadata.StatusHistory = append(j.Metadata.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.JobStatusFailed,
			Phase:     domain.PhaseFailed,
			Message:   cause.Error(),
			Reason:    reason,
			Timestamp: now,
		})
		setLanguageStatus(j, string(domain.JobStatusFailed), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Job(id).Error().
		Err(cause).
		Str("step", step).
		Str("kind", string(kind)).
		Msg("job failed")
	return job, nil
}

// Cancel stops a non-terminal job and cancels its in-flight work.
func (s *JobService) Cancel(id, reason string) (*domain.Job, error) {
	job, err := s.update(id, func(j *domain.Job, now time.Time) error {
		if err := j.SetState(domain.JobStatusCancelled, domain.PhaseCancelled, now); err != nil {
			return err
		}
		j.Progress.Message = "cancelled"
		j.Metadata.StatusHistory = append(j.Metadata.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.JobStatusCancelled,
			Phase:     domain.PhaseCancelled,
			Message:   "job cancelled",
			Reason:    reason,
			Timestamp: now,
		})
		setLanguageStatus(j, string(domain.JobStatusCancelled), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Job(id).Info().Str("reason", logger.SanitizeForLog(reason)).Msg("job cancelled")
	return job, nil
}

// expire fails a job that outlived its deadline, wherever it is in the pipeline.
func (s *JobService) expire(id string) {
	job, err := s.store.Get(id)
	if err != nil || job.Status.IsTerminal() {
		return
	}
	step := string(job.Status)
	timeoutErr := fmt.Errorf("%w after %s in %s", domain.ErrTimeout, s.timeout, job.Phase)
	if _, err := s.Fail(id, step, timeoutErr); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		logger.Job(id).Warn().Err(err).Msg("failed to expire job")
	}
}

// finish releases a terminal job's admission slot, timer and context.
func (s *JobService) finish(job *domain.Job) {
	s.mu.Lock()
	run, ok := s.runs[job.ID]
	delete(s.runs, job.ID)
	s.mu.Unlock()
	if !ok {
		return
	}
	run.timer.Stop()
	switch job.Status {
	case domain.JobStatusCancelled:
		run.cancel(domain.ErrCancelled)
	case domain.JobStatusFailed:
		if job.Metadata.Failure != nil && job.Metadata.Failure.Kind == domain.ErrorKindTimeout {
			run.cancel(domain.ErrTimeout)
		} else {
			run.cancel(errJobFinished)
		}
	default:
		run.cancel(errJobFinished)
	}
	if s.admission != nil {
		s.admission.Release(run.client)
	}
}

// Shutdown cancels every in-flight job context.
func (s *JobService) Shutdown() {
	s.mu.Lock()
	runs := s.runs
	s.runs = make(map[string]*jobRun)
	s.mu.Unlock()
	for _, run := range runs {
		run.timer.Stop()
		run.cancel(context.Canceled)
		if s.admission != nil {
			s.admission.Release(run.client)
		}
	}
}

func setLanguageStatus(j *domain.Job, status string, now time.Time) {
	for i := range j.Metadata.Languages {
		l := &j.Metadata.Languages[i]
		if l.Language != j.Input.TargetLanguage {
			continue
		}
		l.Status = status
		if domain.JobStatus(status).IsTerminal() {
			l.CompletedAt = now
		}
	}
}
