package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bnema/reelsub/internal/adapter/http/ratelimit"
	"github.com/bnema/reelsub/internal/adapter/http/validation"
	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/events"
	"github.com/bnema/reelsub/internal/fonts"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
)

// JobReader exposes job snapshots and cancellation.
type JobReader interface {
	Get(id string) (*domain.Job, error)
	List() ([]*domain.Job, error)
	Cancel(id, reason string) (*domain.Job, error)
}

type Submitter interface {
	Submit(input domain.JobInput) (*domain.Job, error)
}

type EventStreamer interface {
	Stream(ctx context.Context, id string, q events.Query) (<-chan domain.Event, error)
}

// ObjectOpener serves published artifacts by key.
type ObjectOpener interface {
	Open(key string) (*os.File, error)
}

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to a temp file.
const multipartMemory = 32 << 20

type Handlers struct {
	jobs        JobReader
	submitter   Submitter
	streamer    EventStreamer
	selector    *fonts.Selector
	objects     ObjectOpener
	limiter     *ratelimit.SubmitLimiter
	incomingDir string
	maxBytes    int64
	version     string
}

type submitRequest struct {
	SourceURL      string `json:"sourceUrl"`
	Language       string `json:"language"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
	Quality        string `json:"quality,omitempty"`
	DisableAudio   bool   `json:"disableAudio,omitempty"`
}

type jobList struct {
	Jobs  []*domain.Job `json:"jobs"`
	Total int           `json:"total"`
}

type languageInfo struct {
	Code      string           `json:"code"`
	Name      string           `json:"name"`
	Direction domain.Direction `json:"direction"`
	Script    string           `json:"script"`
	Complex   bool             `json:"complexScript"`
	Primary   []string         `json:"primaryFonts"`
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
	}
}

func (h *Handlers) Languages() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		configs := h.selector.Registry().Languages()
		out := make([]languageInfo, 0, len(configs))
		for _, c := range configs {
			out = append(out, languageInfo{
				Code:      c.Code,
				Name:      c.Name,
				Direction: c.Direction,
				Script:    c.Script,
				Complex:   c.Complex,
				Primary:   c.Primary,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"languages": out})
	}
}

// SubmitJob accepts either a multipart upload (field "file") or a JSON body
// naming a remote sourceUrl.
func (h *Handlers) SubmitJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := ClientID(r.Context())
		if ok, wait := h.limiter.Allow(client); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds()+0.5)))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error: "too many submissions, try again later",
				Kind:  domain.ErrorKindResourceLimit,
			})
			return
		}

		var (
			input    domain.JobInput
			uploaded string
			err      error
		)
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			input, uploaded, err = h.receiveUpload(w, r)
		} else {
			input, err = h.decodeSubmit(r)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		input.ClientID = client

		job, err := h.submitter.Submit(input)
		if err != nil {
			if uploaded != "" {
				_ = os.Remove(uploaded)
			}
			writeError(w, r, err)
			return
		}

		logger.Info().
			Str("job_id", job.ID).
			Str("client", logger.SanitizeForLog(client)).
			Str("language", job.Input.TargetLanguage).
			Msg("job submitted")
		w.Header().Set("Location", "/jobs/"+job.ID)
		writeJSON(w, http.StatusAccepted, job)
	}
}

func (h *Handlers) receiveUpload(w http.ResponseWriter, r *http.Request) (domain.JobInput, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return domain.JobInput{}, "", fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrFileTooLarge, h.maxBytes)
		}
		return domain.JobInput{}, "", fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return domain.JobInput{}, "", fmt.Errorf("%w: missing file field", domain.ErrInvalidRequest)
	}
	defer file.Close() //nolint:errcheck

	if header.Size > h.maxBytes {
		return domain.JobInput{}, "", fmt.Errorf("%w: upload is %d bytes, limit %d", domain.ErrFileTooLarge, header.Size, h.maxBytes)
	}

	input, err := h.buildInput(r.FormValue("language"), r.FormValue("sourceLanguage"), r.FormValue("quality"))
	if err != nil {
		return domain.JobInput{}, "", err
	}
	if v := r.FormValue("disableAudio"); v != "" {
		if input.DisableAudio, err = strconv.ParseBool(v); err != nil {
			return domain.JobInput{}, "", fmt.Errorf("%w: disableAudio: %w", domain.ErrInvalidRequest, err)
		}
	}

	vt, err := validation.DetectVideo(file)
	if err != nil {
		return domain.JobInput{}, "", err
	}

	if err := os.MkdirAll(h.incomingDir, 0o750); err != nil {
		return domain.JobInput{}, "", fmt.Errorf("create incoming dir: %w", err)
	}
	dst, err := os.CreateTemp(h.incomingDir, "upload-*"+vt.Ext)
	if err != nil {
		return domain.JobInput{}, "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return domain.JobInput{}, "", fmt.Errorf("save upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return domain.JobInput{}, "", fmt.Errorf("save upload: %w", err)
	}

	name := validation.SanitizeFilename(header.Filename)
	if filepath.Ext(name) == "" {
		name += vt.Ext
	}
	input.SourceRef = dst.Name()
	input.OriginalName = name
	input.Format = strings.TrimPrefix(vt.Ext, ".")
	return input, dst.Name(), nil
}

func (h *Handlers) decodeSubmit(r *http.Request) (domain.JobInput, error) {
	var req submitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return domain.JobInput{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if !strings.HasPrefix(req.SourceURL, "http://") && !strings.HasPrefix(req.SourceURL, "https://") {
		return domain.JobInput{}, fmt.Errorf("%w: sourceUrl must be an http(s) URL", domain.ErrInvalidRequest)
	}

	input, err := h.buildInput(req.Language, req.SourceLanguage, req.Quality)
	if err != nil {
		return domain.JobInput{}, err
	}
	input.SourceRef = req.SourceURL
	input.DisableAudio = req.DisableAudio
	return input, nil
}

func (h *Handlers) buildInput(language, sourceLanguage, quality string) (domain.JobInput, error) {
	registry := h.selector.Registry()
	target, ok := registry.Resolve(language)
	if !ok {
		return domain.JobInput{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, logger.SanitizeForLog(language))
	}
	q := domain.Quality(strings.ToLower(strings.TrimSpace(quality)))
	if q != "" && !q.IsValid() {
		return domain.JobInput{}, fmt.Errorf("%w: quality must be low, medium or high", domain.ErrInvalidRequest)
	}
	return domain.JobInput{
		TargetLanguage: target,
		SourceLanguage: strings.TrimSpace(sourceLanguage),
		Quality:        q,
	}, nil
}

// ListJobs returns jobs newest first, optionally filtered by ?status=.
func (h *Handlers) ListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := h.jobs.List()
		if err != nil {
			writeError(w, r, err)
			return
		}
		if status := r.URL.Query().Get("status"); status != "" {
			st := domain.JobStatus(status)
			if !st.IsValid() {
				writeError(w, r, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, logger.SanitizeForLog(status)))
				return
			}
			jobs = slices.DeleteFunc(jobs, func(j *domain.Job) bool { return j.Status != st })
		}
		slices.SortStableFunc(jobs, func(a, b *domain.Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
		if jobs == nil {
			jobs = []*domain.Job{}
		}
		writeJSON(w, http.StatusOK, jobList{Jobs: jobs, Total: len(jobs)})
	}
}

func (h *Handlers) GetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobs.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func (h *Handlers) CancelJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reason := strings.TrimSpace(r.URL.Query().Get("reason"))
		if reason == "" {
			reason = "cancelled by client"
		}
		job, err := h.jobs.Cancel(chi.URLParam(r, "id"), reason)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// JobEvents returns a filtered page of the job's projected events, or with
// ?stream=true an SSE stream of them.
func (h *Handlers) JobEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		values := r.URL.Query()
		stream := false
		if v := values.Get("stream"); v != "" {
			var err error
			if stream, err = strconv.ParseBool(v); err != nil {
				writeError(w, r, fmt.Errorf("%w: stream: %w", domain.ErrInvalidRequest, err))
				return
			}
		}
		q, err := events.ParseQuery(values)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if stream {
			h.streamEvents(w, r, id, q)
			return
		}

		job, err := h.jobs.Get(id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, events.Filter(events.Project(job), q))
	}
}

func (h *Handlers) SelectFont() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		decision, err := h.selector.Select(q.Get("text"), q.Get("lang"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, decision)
	}
}

func (h *Handlers) ValidateFont() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("font") == "" || q.Get("lang") == "" {
			writeError(w, r, fmt.Errorf("%w: font and lang are required", domain.ErrInvalidRequest))
			return
		}
		writeJSON(w, http.StatusOK, h.selector.Validate(q.Get("font"), q.Get("lang"), q.Get("text")))
	}
}

// Object serves a published artifact. ?download=<name> switches to an
// attachment with that filename.
func (h *Handlers) Object() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		f, err := h.objects.Open(key)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Debug().Err(err).Str("key", logger.SanitizeForLog(key)).Msg("open object")
			}
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "object not found"})
			return
		}
		defer f.Close() //nolint:errcheck

		info, err := f.Stat()
		if err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", objectContentType(key))
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		if name := r.URL.Query().Get("download"); name != "" {
			if name == "1" {
				name = key
			}
			w.Header().Set("Content-Disposition", validation.ContentDisposition(name, false))
		}
		http.ServeContent(w, r, key, info.ModTime(), f)
	}
}

func objectContentType(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".srt":
		return "application/x-subrip; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
