// Package events derives a normalized, filterable event log from job
// snapshots. Nothing here is stored: every call re-projects.
package events

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/reelsub/internal/domain"
)

var namespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("reelsub.events"))

type dedupeKey struct {
	typ     domain.EventType
	subject string
	ts      int64
}

type projector struct {
	job    *domain.Job
	seen   map[dedupeKey]bool
	events []domain.Event
}

// emit appends one event unless an event with the same type, subject and
// timestamp was already emitted.
func (p *projector) emit(typ domain.EventType, subject string, ts time.Time, status domain.JobStatus, phase domain.Phase, meta domain.EventMetadata, data map[string]any) {
	if ts.IsZero() {
		return
	}
	key := dedupeKey{typ: typ, subject: subject, ts: ts.UnixNano()}
	if p.seen[key] {
		return
	}
	p.seen[key] = true
	if meta.Language == "" {
		meta.Language = p.job.Input.TargetLanguage
	}
	name := p.job.ID + "|" + string(typ) + "|" + subject + "|" + strconv.FormatInt(key.ts, 10)
	p.events = append(p.events, domain.Event{
		ID:        uuid.NewSHA1(namespace, []byte(name)).String(),
		Type:      typ,
		Timestamp: ts,
		Status:    status,
		Phase:     phase,
		Data:      data,
		Metadata:  meta,
	})
}

// Project returns every event derivable from job, oldest first. Projecting
// the same snapshot twice yields identical lists, ids included.
func Project(job *domain.Job) []domain.Event {
	if job == nil {
		return nil
	}
	p := &projector{job: job, seen: make(map[dedupeKey]bool)}
	m := job.Metadata

	p.emit(domain.EventJobCreated, job.ID, job.CreatedAt, domain.JobStatusQueued, domain.PhaseQueued,
		domain.EventMetadata{Severity: domain.SeverityInfo, Category: domain.CategoryLifecycle, Tags: []string{"job"}},
		map[string]any{
			"targetLanguage": job.Input.TargetLanguage,
			"quality":        string(job.Input.Quality),
			"timeoutAt":      m.TimeoutAt,
		})

	for i, h := range m.StatusHistory {
		if i == 0 && h.Status == domain.JobStatusQueued {
			continue
		}
		sev := domain.SeverityInfo
		switch h.Status {
		case domain.JobStatusFailed:
			sev = domain.SeverityError
		case domain.JobStatusCancelled:
			sev = domain.SeverityWarning
		case domain.JobStatusDone:
			sev = domain.SeveritySuccess
		}
		data := map[string]any{"status": string(h.Status), "phase": string(h.Phase)}
		if h.Message != "" {
			data["message"] = h.Message
		}
		if h.Reason != "" {
			data["reason"] = h.Reason
		}
		p.emit(domain.EventStatusChanged, string(h.Status)+"/"+string(h.Phase), h.Timestamp, h.Status, h.Phase,
			domain.EventMetadata{Severity: sev, Category: domain.CategoryLifecycle, Tags: []string{"status"}}, data)
	}

	p.emit(domain.EventProcessingStarted, job.ID, m.ProcessingStartedAt, domain.JobStatusDownloading, domain.PhaseDownloading,
		domain.EventMetadata{Severity: domain.SeverityInfo, Category: domain.CategoryLifecycle, Tags: []string{"job"}}, nil)

	for _, s := range m.ProgressSteps {
		data := map[string]any{"percentage": s.Percentage}
		if s.Message != "" {
			data["message"] = s.Message
		}
		if s.StepDetail != "" {
			data["stepDetail"] = s.StepDetail
		}
		p.emit(domain.EventProgressUpdated, fmt.Sprintf("%s|%.2f|%s", s.Phase, s.Percentage, s.Message), s.Timestamp,
			s.Phase.Status(), s.Phase,
			domain.EventMetadata{Severity: domain.SeverityDebug, Category: domain.CategoryProgress, Tags: []string{"progress"}}, data)
	}

	for _, d := range m.Detections {
		p.emit(domain.EventLanguageDetected, d.Language, d.Timestamp, domain.JobStatusTranscribing, domain.PhaseQualityGate,
			domain.EventMetadata{Severity: domain.SeverityInfo, Category: domain.CategoryTranscription, Tags: []string{"language"}, Language: d.Language},
			map[string]any{"language": d.Language, "confidence": d.Confidence, "source": d.Source})
	}

	if !m.ValidatedAt.IsZero() && job.Output.Validation != nil {
		v := job.Output.Validation
		sev := domain.SeveritySuccess
		if !v.Passed {
			sev = domain.SeverityWarning
		}
		data := map[string]any{
			"passed":             v.Passed,
			"wordCount":          v.WordCount,
			"confidence":         v.Confidence,
			"languageConfidence": v.LanguageConfidence,
		}
		if len(v.Issues) > 0 {
			data["issues"] = slices.Clone(v.Issues)
		}
		p.emit(domain.EventValidationComplete, job.ID, m.ValidatedAt, domain.JobStatusTranscribing, domain.PhaseQualityGate,
			domain.EventMetadata{Severity: sev, Category: domain.CategoryValidation, Tags: []string{"quality"}}, data)
	}

	for i, s := range m.TranslationSamples {
		p.emit(domain.EventTranslationSample, strconv.Itoa(i), s.Timestamp, domain.JobStatusTranslating, domain.PhaseTranslating,
			domain.EventMetadata{Severity: domain.SeverityInfo, Category: domain.CategoryTranslation, Tags: []string{"sample"}},
			map[string]any{"source": s.Source, "translated": s.Translated})
	}

	for _, r := range m.RenderProgress {
		data := map[string]any{"percentage": r.Percentage, "outTimeSeconds": r.OutTimeSeconds}
		if r.Frame > 0 {
			data["frame"] = r.Frame
		}
		if r.Speed != "" {
			data["speed"] = r.Speed
		}
		if r.Attempt > 0 {
			data["attempt"] = r.Attempt
		}
		p.emit(domain.EventRenderProgress, fmt.Sprintf("%d|%.2f", r.Attempt, r.Percentage), r.Timestamp,
			domain.JobStatusRendering, domain.PhaseCaptionBurn,
			domain.EventMetadata{Severity: domain.SeverityDebug, Category: domain.CategoryRendering, Tags: []string{"progress"}}, data)
	}

	for _, u := range m.UploadProgress {
		p.emit(domain.EventUploadProgress, fmt.Sprintf("%s|%d", u.Object, u.BytesSent), u.Timestamp,
			domain.JobStatusUploading, domain.PhaseUploading,
			domain.EventMetadata{Severity: domain.SeverityDebug, Category: domain.CategoryUpload, Tags: []string{"progress"}},
			map[string]any{"percentage": u.Percentage, "bytesSent": u.BytesSent, "totalBytes": u.TotalBytes, "object": u.Object})
	}

	for _, r := range m.Retries {
		data := map[string]any{
			"step":        r.Step,
			"attempt":     r.Attempt,
			"maxAttempts": r.MaxAttempts,
			"delayMs":     r.Delay.Milliseconds(),
		}
		if r.Error != "" {
			data["error"] = r.Error
		}
		status := stepStatus(r.Step)
		p.emit(domain.EventStepRetry, fmt.Sprintf("%s|%d", r.Step, r.Attempt), r.Timestamp, status, domain.DefaultPhase(status),
			domain.EventMetadata{Severity: domain.SeverityWarning, Category: stepCategory(r.Step), Tags: []string{"retry", r.Step}}, data)
	}

	for i, a := range m.Annotations {
		typ := a.Type
		if typ == "" || typ.IsTerminal() || typ == domain.EventHeartbeat {
			typ = domain.EventNotice
		}
		sev := a.Severity
		if !sev.IsValid() {
			sev = domain.SeverityInfo
		}
		data := map[string]any{"message": a.Message}
		for k, v := range a.Data {
			data[k] = v
		}
		status, phase := a.Status, a.Phase
		if status == "" {
			status, phase = job.Status, job.Phase
		}
		if phase == "" {
			phase = domain.DefaultPhase(status)
		}
		p.emit(typ, strconv.Itoa(i), a.Timestamp, status, phase,
			domain.EventMetadata{Severity: sev, Category: annotationCategory(a.Tags), Tags: slices.Clone(a.Tags)}, data)
	}

	projectTerminal(p, job)

	slices.SortStableFunc(p.events, func(a, b domain.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return p.events
}

func projectTerminal(p *projector, job *domain.Job) {
	if !job.Status.IsTerminal() || job.CompletedAt.IsZero() {
		return
	}
	elapsed := job.Metadata.ActualDuration.Milliseconds()
	meta := domain.EventMetadata{Category: domain.CategoryLifecycle, Tags: []string{"job", "terminal"}, ProcessingTimeMs: &elapsed}
	data := map[string]any{"percentage": job.Progress.Percentage}

	var typ domain.EventType
	switch job.Status {
	case domain.JobStatusDone:
		typ = domain.EventJobCompleted
		meta.Severity = domain.SeveritySuccess
		data["url"] = job.Output.URL
		if job.Output.DownloadURL != "" {
			data["downloadUrl"] = job.Output.DownloadURL
		}
		if job.Output.CaptionsURL != "" {
			data["captionsUrl"] = job.Output.CaptionsURL
		}
	case domain.JobStatusCancelled:
		typ = domain.EventJobCancelled
		meta.Severity = domain.SeverityWarning
	default:
		typ = domain.EventJobFailed
		meta.Severity = domain.SeverityError
		data["error"] = job.Error
		if f := job.Metadata.Failure; f != nil {
			if f.Kind == domain.ErrorKindTimeout {
				typ = domain.EventJobTimeout
			}
			data["step"] = f.Step
			data["kind"] = string(f.Kind)
			data["reason"] = f.Reason
		}
	}
	p.emit(typ, job.ID, job.CompletedAt, job.Status, job.Phase, meta, data)
}

func stepStatus(step string) domain.JobStatus {
	switch step {
	case "download":
		return domain.JobStatusDownloading
	case "probe":
		return domain.JobStatusProbing
	case "transcribe":
		return domain.JobStatusTranscribing
	case "translate":
		return domain.JobStatusTranslating
	case "render":
		return domain.JobStatusRendering
	case "upload":
		return domain.JobStatusUploading
	}
	return domain.JobStatusQueued
}

func stepCategory(step string) domain.Category {
	switch step {
	case "transcribe":
		return domain.CategoryTranscription
	case "translate":
		return domain.CategoryTranslation
	case "render":
		return domain.CategoryRendering
	case "upload":
		return domain.CategoryUpload
	}
	return domain.CategorySystem
}

// annotationCategory picks the first tag naming a category; "fonts" notes
// belong to rendering.
func annotationCategory(tags []string) domain.Category {
	for _, t := range tags {
		if c := domain.Category(t); c.IsValid() {
			return c
		}
		if t == "fonts" {
			return domain.CategoryRendering
		}
	}
	return domain.CategorySystem
}
