package domain

import (
	"fmt"
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusDownloading  JobStatus = "downloading"
	JobStatusProbing      JobStatus = "probing"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusTranslating  JobStatus = "translating"
	JobStatusRendering    JobStatus = "rendering"
	JobStatusUploading    JobStatus = "uploading"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// pipelineOrder is the forward path through the pipeline.
var pipelineOrder = []JobStatus{
	JobStatusQueued,
	JobStatusDownloading,
	JobStatusProbing,
	JobStatusTranscribing,
	JobStatusTranslating,
	JobStatusRendering,
	JobStatusUploading,
	JobStatusDone,
}

// statusBaseline is the overall percentage a job reaches when it enters a status.
var statusBaseline = map[JobStatus]float64{
	JobStatusQueued:       0,
	JobStatusDownloading:  5,
	JobStatusProbing:      10,
	JobStatusTranscribing: 15,
	JobStatusTranslating:  45,
	JobStatusRendering:    60,
	JobStatusUploading:    90,
	JobStatusDone:         100,
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCancelled
}

func (s JobStatus) IsValid() bool {
	if s == JobStatusFailed || s == JobStatusCancelled {
		return true
	}
	_, ok := statusBaseline[s]
	return ok
}

// CanTransition reports whether to is reachable from from in a single step.
// Failed and cancelled are reachable from any non-terminal status.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == JobStatusFailed || to == JobStatusCancelled {
		return true
	}
	for i, s := range pipelineOrder {
		if s == from {
			return i+1 < len(pipelineOrder) && pipelineOrder[i+1] == to
		}
	}
	return false
}

// Baseline returns the overall percentage associated with entering s, and
// the percentage at which the next status starts.
func (s JobStatus) Baseline() (start, end float64) {
	start = statusBaseline[s]
	end = 100
	for i, st := range pipelineOrder {
		if st == s && i+1 < len(pipelineOrder) {
			end = statusBaseline[pipelineOrder[i+1]]
		}
	}
	return start, end
}

// Phase is a pipeline sub-stage. Sub-phases are written "<status>.<detail>".
type Phase string

const (
	PhaseQueued         Phase = "queued"
	PhaseDownloading    Phase = "downloading"
	PhaseProbing        Phase = "probing"
	PhaseExtractAudio   Phase = "transcribing.extract_audio"
	PhaseSpeechToText   Phase = "transcribing.speech_to_text"
	PhaseQualityGate    Phase = "transcribing.quality_gate"
	PhaseTranslating    Phase = "translating"
	PhaseFontSelection  Phase = "rendering.font_selection"
	PhaseCaptionCompile Phase = "rendering.caption_compile"
	PhaseCaptionBurn    Phase = "rendering.caption_burn"
	PhaseOutputVerify   Phase = "rendering.output_verify"
	PhaseUploading      Phase = "uploading"
	PhaseUploadCaptions Phase = "uploading.captions"
	PhaseDone           Phase = "done"
	PhaseFailed         Phase = "failed"
	PhaseCancelled      Phase = "cancelled"
)

// Status returns the job status a phase belongs to.
func (p Phase) Status() JobStatus {
	head, _, _ := strings.Cut(string(p), ".")
	return JobStatus(head)
}

// DefaultPhase is the phase recorded when a status is entered without detail.
func DefaultPhase(s JobStatus) Phase {
	return Phase(s)
}

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func (q Quality) IsValid() bool {
	return q == QualityLow || q == QualityMedium || q == QualityHigh
}

type JobInput struct {
	TargetLanguage string  `json:"targetLanguage"`
	SourceLanguage string  `json:"sourceLanguage,omitempty"`
	SourceRef      string  `json:"sourceRef"`
	OriginalName   string  `json:"originalName,omitempty"`
	Format         string  `json:"format,omitempty"`
	Quality        Quality `json:"quality"`
	DisableAudio   bool    `json:"disableAudio,omitempty"`
	ClientID       string  `json:"clientId,omitempty"`
}

type ValidationResult struct {
	Passed             bool     `json:"passed"`
	WordCount          int      `json:"wordCount"`
	Confidence         float64  `json:"confidence"`
	DetectedLanguage   string   `json:"detectedLanguage,omitempty"`
	LanguageConfidence float64  `json:"languageConfidence"`
	Issues             []string `json:"issues,omitempty"`
}

type ProcessingStats struct {
	InputSize       int64              `json:"inputSize"`
	OutputSize      int64              `json:"outputSize"`
	DurationSeconds float64            `json:"durationSeconds"`
	CueCount        int                `json:"cueCount"`
	PrimaryFont     string             `json:"primaryFont,omitempty"`
	FontCoverage    float64            `json:"fontCoverage"`
	TranscriptCache bool               `json:"transcriptCacheHit"`
	StepMillis      map[string]int64   `json:"stepMillis,omitempty"`
	Costs           map[string]float64 `json:"costs,omitempty"`
}

type JobOutput struct {
	URL         string            `json:"url,omitempty"`
	DownloadURL string            `json:"downloadUrl,omitempty"`
	CaptionsURL string            `json:"captionsUrl,omitempty"`
	Stats       ProcessingStats   `json:"stats"`
	Validation  *ValidationResult `json:"validation,omitempty"`
}

type Progress struct {
	Percentage    float64 `json:"percentage"`
	Phase         Phase   `json:"phase"`
	PhaseProgress float64 `json:"phaseProgress"`
	Message       string  `json:"message,omitempty"`
	StepDetail    string  `json:"stepDetail,omitempty"`
}

type StatusHistoryEntry struct {
	Status    JobStatus `json:"status"`
	Phase     Phase     `json:"phase"`
	Message   string    `json:"message,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ProgressStep struct {
	Phase      Phase     `json:"phase"`
	Percentage float64   `json:"percentage"`
	Message    string    `json:"message,omitempty"`
	StepDetail string    `json:"stepDetail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type LanguageProcessing struct {
	Language    string    `json:"language"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

type RenderProgress struct {
	Percentage     float64   `json:"percentage"`
	OutTimeSeconds float64   `json:"outTimeSeconds"`
	Frame          int64     `json:"frame,omitempty"`
	Speed          string    `json:"speed,omitempty"`
	Attempt        int       `json:"attempt,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type UploadProgress struct {
	Percentage float64   `json:"percentage"`
	BytesSent  int64     `json:"bytesSent"`
	TotalBytes int64     `json:"totalBytes"`
	Object     string    `json:"object,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type TranslationSample struct {
	Source     string    `json:"source"`
	Translated string    `json:"translated"`
	Timestamp  time.Time `json:"timestamp"`
}

// RetryAttempt records one attempt of a retried step.
type RetryAttempt struct {
	Step        string        `json:"step"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"maxAttempts"`
	Delay       time.Duration `json:"delay"`
	Error       string        `json:"error,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

type LanguageDetection struct {
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

type Failure struct {
	Step      string    `json:"step"`
	Kind      ErrorKind `json:"kind"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Annotation is a free-form audit record appended with AddEvent.
type Annotation struct {
	Type      EventType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Tags      []string       `json:"tags,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	// Status and Phase are the job's state when the annotation was written.
	Status    JobStatus      `json:"status,omitempty"`
	Phase     Phase          `json:"phase,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type JobMetadata struct {
	Languages           []LanguageProcessing `json:"languages,omitempty"`
	EstimatedDuration   time.Duration        `json:"estimatedDuration"`
	ActualDuration      time.Duration        `json:"actualDuration"`
	RetryCount          int                  `json:"retryCount"`
	ErrorCount          int                  `json:"errorCount"`
	StatusHistory       []StatusHistoryEntry `json:"statusHistory"`
	ProgressSteps       []ProgressStep       `json:"progressSteps,omitempty"`
	RenderProgress      []RenderProgress     `json:"renderProgress,omitempty"`
	UploadProgress      []UploadProgress     `json:"uploadProgress,omitempty"`
	TranslationSamples  []TranslationSample  `json:"translationSamples,omitempty"`
	Retries             []RetryAttempt       `json:"retries,omitempty"`
	Detections          []LanguageDetection  `json:"detections,omitempty"`
	Annotations         []Annotation         `json:"annotations,omitempty"`
	CompletedSteps      []string             `json:"completedSteps,omitempty"`
	ProcessingStartedAt time.Time            `json:"processingStartedAt,omitzero"`
	ValidatedAt         time.Time            `json:"validatedAt,omitzero"`
	TimeoutAt           time.Time            `json:"timeoutAt"`
	Failure             *Failure             `json:"failure,omitempty"`
}

// Job is one localization request. Only the job state machine mutates it;
// everything else works on clones.
type Job struct {
	ID          string      `json:"id"`
	Status      JobStatus   `json:"status"`
	Phase       Phase       `json:"phase"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   time.Time   `json:"startedAt,omitzero"`
	CompletedAt time.Time   `json:"completedAt,omitzero"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Input       JobInput    `json:"input"`
	Output      JobOutput   `json:"output"`
	Error       string      `json:"error,omitempty"`
	Progress    Progress    `json:"progress"`
	Metadata    JobMetadata `json:"metadata"`
}

func NewJob(input JobInput, now time.Time, timeout time.Duration) *Job {
	job := &Job{
		ID:        NewJobID(),
		Status:    JobStatusQueued,
		Phase:     PhaseQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Input:     input,
		Progress: Progress{
			Phase:   PhaseQueued,
			Message: "queued",
		},
	}
	if job.Input.Quality == "" {
		job.Input.Quality = QualityMedium
	}
	job.Metadata.TimeoutAt = now.Add(timeout)
	job.Metadata.StatusHistory = []StatusHistoryEntry{{
		Status:    JobStatusQueued,
		Phase:     PhaseQueued,
		Message:   "job created",
		Timestamp: now,
	}}
	job.Metadata.Languages = []LanguageProcessing{{
		Language:  input.TargetLanguage,
		Status:    string(JobStatusQueued),
		StartedAt: now,
	}}
	return job
}

// SetState moves the job to status/phase after checking the transition and
// the status/phase consistency invariant.
func (j *Job) SetState(status JobStatus, phase Phase, now time.Time) error {
	if phase == "" {
		phase = DefaultPhase(status)
	}
	if phase.Status() != status {
		return fmt.Errorf("%w: phase %q does not belong to status %q", ErrInvalidTransition, phase, status)
	}
	if status != j.Status && !CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
	}
	if status == j.Status && j.Status.IsTerminal() {
		return fmt.Errorf("%w: job is already %s", ErrInvalidTransition, j.Status)
	}

	if j.StartedAt.IsZero() && status != JobStatusQueued {
		j.StartedAt = now
	}
	if status != j.Status {
		j.Progress.PhaseProgress = 0
	}
	j.Status = status
	j.Phase = phase
	j.Progress.Phase = phase
	if start, _ := status.Baseline(); start > j.Progress.Percentage && !status.IsTerminal() {
		j.Progress.Percentage = start
	}
	if status == JobStatusDone {
		j.Progress.Percentage = 100
		j.Progress.PhaseProgress = 100
	}
	if status.IsTerminal() {
		j.CompletedAt = now
		j.Metadata.ActualDuration = now.Sub(j.CreatedAt)
	}
	j.UpdatedAt = now
	return nil
}

// OverallPercentage maps a phase-local percentage onto the job-wide scale.
func (j *Job) OverallPercentage(phaseLocal float64) float64 {
	start, end := j.Status.Baseline()
	return start + (end-start)*Clamp(phaseLocal, 0, 100)/100
}

func (j *Job) HasCompletedStep(step string) bool {
	for _, s := range j.Metadata.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out to readers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Output.Validation != nil {
		v := *j.Output.Validation
		v.Issues = append([]string(nil), j.Output.Validation.Issues...)
		c.Output.Validation = &v
	}
	c.Output.Stats.StepMillis = cloneMap(j.Output.Stats.StepMillis)
	c.Output.Stats.Costs = cloneMap(j.Output.Stats.Costs)

	m := &c.Metadata
	m.Languages = append([]LanguageProcessing(nil), j.Metadata.Languages...)
	m.StatusHistory = append([]StatusHistoryEntry(nil), j.Metadata.StatusHistory...)
	m.ProgressSteps = append([]ProgressStep(nil), j.Metadata.ProgressSteps...)
	m.RenderProgress = append([]RenderProgress(nil), j.Metadata.RenderProgress...)
	m.UploadProgress = append([]UploadProgress(nil), j.Metadata.UploadProgress...)
	m.TranslationSamples = append([]TranslationSample(nil), j.Metadata.TranslationSamples...)
	m.Retries = append([]RetryAttempt(nil), j.Metadata.Retries...)
	m.Detections = append([]LanguageDetection(nil), j.Metadata.Detections...)
	m.CompletedSteps = append([]string(nil), j.Metadata.CompletedSteps...)
	m.Annotations = make([]Annotation, len(j.Metadata.Annotations))
	for i, a := range j.Metadata.Annotations {
		a.Tags = append([]string(nil), a.Tags...)
		a.Data = cloneMap(a.Data)
		m.Annotations[i] = a
	}
	if j.Metadata.Failure != nil {
		f := *j.Metadata.Failure
		m.Failure = &f
	}
	return &c
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	if in == nil {
		return nil
	}
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
