package domain

import "time"

type EventType string

const (
	EventJobCreated         EventType = "job.created"
	EventStatusChanged      EventType = "status.changed"
	EventProgressUpdated    EventType = "progress.updated"
	EventProcessingStarted  EventType = "processing.started"
	EventLanguageDetected   EventType = "language.detected"
	EventTranslationSample  EventType = "translation.sample"
	EventRenderProgress     EventType = "render.progress"
	EventUploadProgress     EventType = "upload.progress"
	EventValidationComplete EventType = "validation.completed"
	EventStepRetry          EventType = "step.retry"
	EventNotice             EventType = "notice"
	EventJobCompleted       EventType = "job.completed"
	EventJobFailed          EventType = "job.failed"
	EventJobTimeout         EventType = "job.timeout"
	EventJobCancelled       EventType = "job.cancelled"

	// EventHeartbeat only appears on live streams, never in a projection.
	EventHeartbeat EventType = "heartbeat"
)

var eventTypes = map[EventType]bool{
	EventJobCreated: true, EventStatusChanged: true, EventProgressUpdated: true,
	EventProcessingStarted: true, EventLanguageDetected: true, EventTranslationSample: true,
	EventRenderProgress: true, EventUploadProgress: true, EventValidationComplete: true,
	EventStepRetry: true, EventNotice: true, EventJobCompleted: true, EventJobFailed: true,
	EventJobTimeout: true, EventJobCancelled: true, EventHeartbeat: true,
}

func (t EventType) IsValid() bool { return eventTypes[t] }

// IsTerminal reports whether the event closes a job's stream.
func (t EventType) IsTerminal() bool {
	return t == EventJobCompleted || t == EventJobFailed || t == EventJobTimeout || t == EventJobCancelled
}

// IsProgressTick reports whether the event is a high-frequency progress tick.
func (t EventType) IsProgressTick() bool {
	return t == EventProgressUpdated || t == EventRenderProgress || t == EventUploadProgress
}

type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityDebug, SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}

type Category string

const (
	CategoryLifecycle     Category = "lifecycle"
	CategoryProgress      Category = "progress"
	CategoryTranscription Category = "transcription"
	CategoryTranslation   Category = "translation"
	CategoryRendering     Category = "rendering"
	CategoryUpload        Category = "upload"
	CategoryValidation    Category = "validation"
	CategorySystem        Category = "system"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryLifecycle, CategoryProgress, CategoryTranscription, CategoryTranslation,
		CategoryRendering, CategoryUpload, CategoryValidation, CategorySystem:
		return true
	}
	return false
}

type EventMetadata struct {
	Severity         Severity `json:"severity"`
	Category         Category `json:"category"`
	Tags             []string `json:"tags,omitempty"`
	Language         string   `json:"language,omitempty"`
	ProcessingTimeMs *int64   `json:"processingTime,omitempty"`
}

// Event is a derived view of a job fact. Events are never stored; they are
// rebuilt from job snapshots.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Status    JobStatus      `json:"status"`
	Phase     Phase          `json:"phase"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  EventMetadata  `json:"metadata"`
}
