package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/bnema/reelsub/internal/captions"
	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/fonts"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
	"github.com/bnema/reelsub/internal/port"
	"github.com/bnema/reelsub/internal/render"
	"github.com/bnema/reelsub/internal/retry"
	"github.com/bnema/reelsub/internal/transcription"
)

// Pipeline step names. They key per-step retry policies and the job's
// completed-step list.
const (
	StepDownload   = "download"
	StepProbe      = "probe"
	StepTranscribe = "transcribe"
	StepTranslate  = "translate"
	StepRender     = "render"
	StepUpload     = "upload"
)

type PipelineDeps struct {
	Jobs        *JobService
	Filter      port.MediaFilter
	Transcriber *transcription.Controller
	Translator  port.Translator
	Selector    *fonts.Selector
	Loader      *fonts.Loader
	Compiler    *captions.Compiler
	Executor    *render.Executor
	Storage     port.ObjectStorage
	HTTPClient  *http.Client
}

type PipelineOptions struct {
	WorkDir string
	// IncomingDir holds staged uploads; sources there are moved, not copied.
	IncomingDir         string
	Workers             int
	QueueSize           int
	MaxSourceBytes      int64
	Probe               domain.ProbePolicy
	Retry               retry.Policy
	Steps               map[string]retry.Policy
	TranslationBatch    int
	TranslationParallel int
	MinFontCoverage     float64
	Style               captions.StyleConfig
}

// Pipeline runs jobs through download, probe, transcribe, translate, render
// and upload on a fixed pool of workers.
type Pipeline struct {
	deps  PipelineDeps
	opts  PipelineOptions
	queue chan string
	wg    sync.WaitGroup
}

type pipelineStep struct {
	name string
	run  func(ctx context.Context, r *jobRunState) error
}

// jobRunState carries artifacts between the steps of one run.
type jobRunState struct {
	id         string
	input      domain.JobInput
	dir        string
	source     string
	probe      *domain.ProbeResult
	sourceLang string
	segments   []domain.CaptionSegment
	captions   []domain.CaptionSegment
	desc       *captions.SubtitleDescription
	output     string
	budget     *transcription.Budget
}

func NewPipeline(deps PipelineDeps, opts PipelineOptions) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.TranslationBatch < 1 {
		opts.TranslationBatch = 40
	}
	if opts.TranslationParallel < 1 {
		opts.TranslationParallel = 1
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Pipeline{deps: deps, opts: opts, queue: make(chan string, opts.QueueSize)}
}

// Submit creates a job and queues it. Admission and queue capacity are
// checked before any external call is made.
func (p *Pipeline) Submit(input domain.JobInput) (*domain.Job, error) {
	job, err := p.deps.Jobs.Create(input)
	if err != nil {
		return nil, err
	}
	select {
	case p.queue <- job.ID:
		return job, nil
	default:
		full := fmt.Errorf("%w: pipeline queue is full", domain.ErrConcurrencyLimit)
		_, _ = p.deps.Jobs.Fail(job.ID, "queue", full)
		return nil, full
	}
}

func (p *Pipeline) Start(ctx context.Context) {
	for i := range p.opts.Workers {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
	logger.Info().Int("workers", p.opts.Workers).Msg("pipeline workers started")
}

// Wait blocks until every worker has returned after ctx was cancelled.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) runWorker(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Int("worker", n).Msg("worker shutting down")
			return
		case id := <-p.queue:
			p.process(id)
		}
	}
}

func (p *Pipeline) steps() []pipelineStep {
	return []pipelineStep{
		{StepDownload, p.download},
		{StepProbe, p.probeSource},
		{StepTranscribe, p.transcribe},
		{StepTranslate, p.translate},
		{StepRender, p.render},
		{StepUpload, p.upload},
	}
}

func (p *Pipeline) process(id string) {
	log := logger.Job(id)
	jobs := p.deps.Jobs
	job, err := jobs.Get(id)
	if err != nil {
		log.Warn().Err(err).Msg("dropping unknown job")
		return
	}
	if job.Status != domain.JobStatusQueued {
		log.Debug().Str("status", string(job.Status)).Msg("job already dispatched")
		return
	}

	ctx := jobs.Context(id)
	r := &jobRunState{
		id:     id,
		input:  job.Input,
		dir:    filepath.Join(p.opts.WorkDir, id),
		budget: &transcription.Budget{},
	}
	defer func() {
		if err := os.RemoveAll(r.dir); err != nil {
			log.Warn().Err(err).Msg("failed to remove work dir")
		}
	}()

	log.Info().Str("language", logger.SanitizeForLog(job.Input.TargetLanguage)).Msg("processing job")
	for _, st := range p.steps() {
		if job.HasCompletedStep(st.name) {
			continue
		}
		started := time.Now()
		if err := st.run(ctx, r); err != nil {
			p.fail(ctx, id, st.name, err)
			return
		}
		if err := jobs.CompleteStep(id, st.name, time.Since(started)); err != nil {
			p.fail(ctx, id, st.name, err)
			return
		}
	}
	if _, err := jobs.Advance(id, domain.JobStatusDone, domain.PhaseDone, "localized video ready"); err != nil {
		p.fail(ctx, id, StepUpload, err)
		return
	}
	log.Info().Msg("job completed")
}

// fail records err unless the job was already stopped by a cancel or timeout.
func (p *Pipeline) fail(ctx context.Context, id, step string, err error) {
	if ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", context.Cause(ctx), err)
	}
	if _, ferr := p.deps.Jobs.Fail(id, step, err); ferr != nil {
		if errors.Is(ferr, domain.ErrInvalidTransition) {
			logger.Job(id).Debug().Err(err).Str("step", step).Msg("step stopped after job ended")
			return
		}
		logger.Job(id).Error().Err(ferr).Msg("failed to record job failure")
	}
}

func (p *Pipeline) policy(step string) retry.Policy {
	if pol, ok := p.opts.Steps[step]; ok {
		return pol
	}
	return p.opts.Retry
}

// onRetry records every transient failure of a step as a retry on the job.
func (p *Pipeline) onRetry(id, step string) func(retry.Failure) {
	return func(f retry.Failure) {
		logger.Job(id).Warn().
			Err(f.Err).
			Str("step", step).
			Int("attempt", f.Attempt).
			Int("max_attempts", f.MaxAttempts).
			Dur("delay", f.Delay).
			Msg("step attempt failed")
		p.deps.Jobs.RecordRetry(id, domain.RetryAttempt{
			Step:        step,
			Attempt:     f.Attempt,
			MaxAttempts: f.MaxAttempts,
			Delay:       f.Delay,
			Error:       f.Err.Error(),
		})
	}
}

func (p *Pipeline) retrying(ctx context.Context, id, step string, fn retry.Func) error {
	_, err := p.policy(step).Do(ctx, fn, retry.Hooks{OnFailure: p.onRetry(id, step)})
	return err
}

func (p *Pipeline) download(ctx context.Context, r *jobRunState) error {
	if _, err := p.deps.Jobs.Advance(r.id, domain.JobStatusDownloading, domain.PhaseDownloading, "fetching source media"); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	r.source = filepath.Join(r.dir, "source"+sourceExt(r.input))

	ref := r.input.SourceRef
	if isRemote(ref) {
		return p.retrying(ctx, r.id, StepDownload, func(ctx context.Context, _ int) error {
			return p.fetch(ctx, ref, r.source)
		})
	}
	return p.copyLocal(ref, r.source)
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func sourceExt(input domain.JobInput) string {
	for _, name := range []string{input.OriginalName, input.SourceRef} {
		if ext := strings.ToLower(filepath.Ext(strings.SplitN(name, "?", 2)[0])); len(ext) > 1 && len(ext) <= 6 {
			return ext
		}
	}
	return ".mp4"
}

func (p *Pipeline) fetch(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: source url: %w", domain.ErrInvalidRequest, err)
	}
	resp, err := p.deps.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return domain.Transient(fmt.Errorf("download source: %w", err))
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return domain.Transient(fmt.Errorf("download source: status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: download source: status %d", domain.ErrInvalidRequest, resp.StatusCode)
	}
	if p.opts.MaxSourceBytes > 0 && resp.ContentLength > p.opts.MaxSourceBytes {
		return fmt.Errorf("%w: source is %d bytes", domain.ErrFileTooLarge, resp.ContentLength)
	}
	if err := p.writeLimited(resp.Body, dst); err != nil {
		if errors.Is(err, domain.ErrFileTooLarge) || ctx.Err() != nil {
			return err
		}
		return domain.Transient(err)
	}
	return nil
}

func (p *Pipeline) copyLocal(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: source: %w", domain.ErrInvalidRequest, err)
	}
	if p.opts.MaxSourceBytes > 0 && info.Size() > p.opts.MaxSourceBytes {
		return fmt.Errorf("%w: source is %d bytes", domain.ErrFileTooLarge, info.Size())
	}
	if p.opts.IncomingDir != "" && filepath.Dir(filepath.Clean(src)) == filepath.Clean(p.opts.IncomingDir) {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	return p.writeLimited(f, dst)
}

func (p *Pipeline) writeLimited(r io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create source copy: %w", err)
	}
	if p.opts.MaxSourceBytes > 0 {
		r = io.LimitReader(r, p.opts.MaxSourceBytes+1)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write source copy: %w", err)
	}
	if p.opts.MaxSourceBytes > 0 && n > p.opts.MaxSourceBytes {
		return fmt.Errorf("%w: source exceeds %d bytes", domain.ErrFileTooLarge, p.opts.MaxSourceBytes)
	}
	return nil
}

func (p *Pipeline) probeSource(ctx context.Context, r *jobRunState) error {
	if _, err := p.deps.Jobs.Advance(r.id, domain.JobStatusProbing, domain.PhaseProbing, "inspecting media"); err != nil {
		return err
	}
	res, err := p.deps.Filter.Probe(ctx, r.source)
	if err != nil {
		return err
	}
	if err := res.Validate(p.opts.Probe); err != nil {
		return err
	}
	r.probe = res

	var size int64
	if info, err := os.Stat(r.source); err == nil {
		size = info.Size()
	}
	duration := res.DurationSeconds()
	return p.deps.Jobs.UpdateOutput(r.id, func(out *domain.JobOutput) {
		out.Stats.InputSize = size
		out.Stats.DurationSeconds = duration
	})
}

func (p *Pipeline) transcribe(ctx context.Context, r *jobRunState) error {
	jobs := p.deps.Jobs
	if _, err := jobs.Advance(r.id, domain.JobStatusTranscribing, domain.PhaseExtractAudio, "extracting audio"); err != nil {
		return err
	}
	audio := filepath.Join(r.dir, "audio.wav")
	err := p.retrying(ctx, r.id, StepTranscribe, func(ctx context.Context, _ int) error {
		return p.deps.Filter.ExtractAudio(ctx, r.source, audio)
	})
	if err != nil {
		return err
	}

	if _, err := jobs.EnterPhase(r.id, domain.PhaseSpeechToText, "transcribing speech"); err != nil {
		return err
	}
	// The working copy and the extracted audio are new files on every run,
	// so the cache is keyed by the source content instead.
	fingerprint, err := transcription.ContentFingerprint(r.source)
	if err != nil {
		logger.Job(r.id).Warn().Err(err).Msg("fingerprint source, falling back to audio file signature")
	}
	res, terr := p.deps.Transcriber.Transcribe(ctx, transcription.Request{
		AudioPath:       audio,
		Fingerprint:     fingerprint,
		Language:        r.input.SourceLanguage,
		DurationSeconds: r.probe.DurationSeconds(),
		Budget:          r.budget,
		OnRetry:         p.onRetry(r.id, StepTranscribe),
	})
	if res == nil {
		return terr
	}

	rec := res.Record
	if _, err := jobs.EnterPhase(r.id, domain.PhaseQualityGate, "checking transcription quality"); err != nil {
		return err
	}
	if err := jobs.RecordValidation(r.id, res.Validation); err != nil {
		return err
	}
	if rec.Language != "" {
		if err := jobs.RecordDetection(r.id, rec.Language, rec.LanguageConfidence, "speech_to_text"); err != nil {
			return err
		}
	}
	err = jobs.UpdateOutput(r.id, func(out *domain.JobOutput) {
		out.Stats.TranscriptCache = rec.CacheHit
		if out.Stats.Costs == nil {
			out.Stats.Costs = make(map[string]float64)
		}
		out.Stats.Costs["transcription"] = rec.Cost
	})
	if err != nil {
		return err
	}
	if terr != nil {
		return terr
	}

	r.segments = rec.CaptionSegments()
	if len(r.segments) == 0 {
		return fmt.Errorf("%w: transcription produced no caption segments", domain.ErrQualityValidationFailed)
	}
	r.sourceLang = rec.Language
	if r.sourceLang == "" {
		r.sourceLang = r.input.SourceLanguage
	}
	return nil
}

// sameLanguage compares base languages, so "pt" matches "pt-BR".
func sameLanguage(a, b string) bool {
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}

func (p *Pipeline) translate(ctx context.Context, r *jobRunState) error {
	jobs := p.deps.Jobs
	target := r.input.TargetLanguage
	if _, err := jobs.Advance(r.id, domain.JobStatusTranslating, domain.PhaseTranslating, "translating captions"); err != nil {
		return err
	}

	texts := make([]string, len(r.segments))
	for i, seg := range r.segments {
		texts[i] = seg.Text
	}
	translated := make([]string, len(texts))

	if r.sourceLang != "" && sameLanguage(r.sourceLang, target) {
		copy(translated, texts)
		jobs.AddEvent(r.id, domain.Annotation{
			Type:     domain.EventNotice,
			Severity: domain.SeverityInfo,
			Message:  "speech is already in the target language; captions kept as transcribed",
			Tags:     []string{"translation"},
		})
	} else {
		batch := p.opts.TranslationBatch
		total := (len(texts) + batch - 1) / batch
		var done atomic.Int32

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.TranslationParallel)
		for start := 0; start < len(texts); start += batch {
			end := min(start+batch, len(texts))
			g.Go(func() error {
				err := p.retrying(gctx, r.id, StepTranslate, func(ctx context.Context, _ int) error {
					out, err := p.deps.Translator.Translate(ctx, texts[start:end], r.sourceLang, target)
					if err != nil {
						return err
					}
					if len(out) != end-start {
						return fmt.Errorf("%w: %d translations for %d captions", domain.ErrMalformedResponse, len(out), end-start)
					}
					copy(translated[start:end], out)
					return nil
				})
				if err != nil {
					return err
				}
				n := done.Add(1)
				_, _ = jobs.RecordPhaseProgress(r.id, float64(n)/float64(total)*100,
					fmt.Sprintf("translated batch %d/%d", n, total))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if len(texts) > 0 {
			logger.Job(r.id).Debug().
				Str("source", logger.Excerpt(texts[0], 60)).
				Str("translated", logger.Excerpt(translated[0], 60)).
				Int("captions", len(texts)).
				Msg("captions translated")
		}
		for i := 0; i < len(texts) && i < maxTranslationSamples; i++ {
			if err := jobs.RecordTranslationSample(r.id, texts[i], translated[i]); err != nil {
				return err
			}
		}
	}

	r.captions = make([]domain.CaptionSegment, len(r.segments))
	for i, seg := range r.segments {
		seg.Text = translated[i]
		seg.Language = target
		r.captions[i] = seg
	}
	return nil
}

func (p *Pipeline) render(ctx context.Context, r *jobRunState) error {
	jobs := p.deps.Jobs
	target := r.input.TargetLanguage
	if _, err := jobs.Advance(r.id, domain.JobStatusRendering, domain.PhaseFontSelection, "selecting fonts"); err != nil {
		return err
	}

	lines := make([]string, len(r.captions))
	for i, c := range r.captions {
		lines[i] = c.Text
	}
	decision, err := p.deps.Selector.Select(strings.Join(lines, "\n"), target)
	if err != nil {
		return err
	}
	err = jobs.UpdateOutput(r.id, func(out *domain.JobOutput) {
		out.Stats.PrimaryFont = decision.Primary
		out.Stats.FontCoverage = decision.Coverage.Percentage
	})
	if err != nil {
		return err
	}
	if len(decision.Warnings) > 0 {
		jobs.AddEvent(r.id, domain.Annotation{
			Type:     domain.EventNotice,
			Severity: domain.SeverityWarning,
			Message:  strings.Join(decision.Warnings, "; "),
			Tags:     []string{"fonts"},
			Data: map[string]any{
				"primary":  decision.Primary,
				"coverage": decision.Coverage.Percentage,
				"missing":  decision.Coverage.Missing,
			},
		})
	}
	if p.opts.MinFontCoverage > 0 && decision.Coverage.Percentage < p.opts.MinFontCoverage {
		return fmt.Errorf("%w: %.2f%% below %.2f%%", domain.ErrInsufficientCoverage,
			decision.Coverage.Percentage, p.opts.MinFontCoverage)
	}

	style := p.opts.Style
	if w, h := r.probe.Dimensions(); w > 0 && h > 0 {
		style.VideoWidth, style.VideoHeight = w, h
	}
	style.FontFile = p.fontFile(ctx, r.id, decision)

	if _, err := jobs.EnterPhase(r.id, domain.PhaseCaptionCompile, "laying out captions"); err != nil {
		return err
	}
	desc, err := p.deps.Compiler.Compile(r.captions, decision, style)
	if err != nil {
		return err
	}
	r.desc = desc
	cues := len(desc.Cues)
	if err := jobs.UpdateOutput(r.id, func(out *domain.JobOutput) { out.Stats.CueCount = cues }); err != nil {
		return err
	}

	if _, err := jobs.EnterPhase(r.id, domain.PhaseCaptionBurn, "burning captions"); err != nil {
		return err
	}
	r.output = filepath.Join(r.dir, "output.mp4")
	var (
		mu          sync.Mutex
		lastPct     = -1.0
		lastAttempt int
	)
	res, err := p.deps.Executor.Render(ctx, render.Request{
		JobID:           r.id,
		InputPath:       r.source,
		OutputPath:      r.output,
		Captions:        desc,
		Quality:         r.input.Quality,
		DisableAudio:    r.input.DisableAudio,
		DurationSeconds: r.probe.DurationSeconds(),
		OnProgress: func(bp port.BurnProgress, attempt int) {
			mu.Lock()
			if attempt != lastAttempt {
				lastAttempt, lastPct = attempt, -1
			}
			record := bp.Percentage >= 100 || bp.Percentage-lastPct >= 5
			if record {
				lastPct = bp.Percentage
			}
			mu.Unlock()
			if !record {
				return
			}
			_ = jobs.RecordRenderProgress(r.id, domain.RenderProgress{
				Percentage:     bp.Percentage,
				OutTimeSeconds: bp.OutTimeSeconds,
				Frame:          bp.Frame,
				Speed:          bp.Speed,
				Attempt:        attempt,
			})
			_, _ = jobs.RecordPhaseProgress(r.id, bp.Percentage, "")
		},
		OnRetry: p.onRetry(r.id, StepRender),
	})
	if err != nil {
		return err
	}

	if _, err := jobs.EnterPhase(r.id, domain.PhaseOutputVerify, fmt.Sprintf("output verified (%s)", domain.FormatSize(res.Size))); err != nil {
		return err
	}
	return jobs.UpdateOutput(r.id, func(out *domain.JobOutput) { out.Stats.OutputSize = res.Size })
}

// fontFile resolves the primary font payload. A missing file falls back to
// the family name, which the filter resolves through fontconfig.
func (p *Pipeline) fontFile(ctx context.Context, id string, decision domain.FontDecision) string {
	if p.deps.Loader == nil {
		return ""
	}
	lf, err := p.deps.Loader.Load(ctx, port.FontKey{Family: decision.Primary, Language: decision.Language})
	if err != nil {
		ev := logger.Job(id).Debug()
		if !errors.Is(err, fonts.ErrFontNotFound) {
			ev = logger.Job(id).Warn()
		}
		ev.Err(err).Str("font", decision.Primary).Msg("using font family name instead of file")
		return ""
	}
	return lf.Path
}

func (p *Pipeline) upload(ctx context.Context, r *jobRunState) error {
	jobs := p.deps.Jobs
	if _, err := jobs.Advance(r.id, domain.JobStatusUploading, domain.PhaseUploading, "publishing video"); err != nil {
		return err
	}

	info, err := os.Stat(r.output)
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}
	name := fmt.Sprintf("localized-%s.mp4", r.input.TargetLanguage)

	var video *port.StoredObject
	err = p.retrying(ctx, r.id, StepUpload, func(ctx context.Context, _ int) error {
		f, err := os.Open(r.output)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		pr := newProgressReader(f, info.Size(), func(sent, total int64) {
			pct := float64(sent) / float64(total) * 100
			_ = jobs.RecordUploadProgress(r.id, domain.UploadProgress{
				Percentage: pct,
				BytesSent:  sent,
				TotalBytes: total,
				Object:     name,
			})
			_, _ = jobs.RecordPhaseProgress(r.id, pct*0.8, "")
		})
		obj, err := p.deps.Storage.Upload(ctx, pr, name)
		if err != nil {
			return err
		}
		video = obj
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := jobs.EnterPhase(r.id, domain.PhaseUploadCaptions, "publishing captions"); err != nil {
		p.discard(r.id, video)
		return err
	}
	var srt bytes.Buffer
	if err := r.desc.WriteSRT(&srt); err != nil {
		p.discard(r.id, video)
		return fmt.Errorf("export captions: %w", err)
	}
	var sidecar *port.StoredObject
	err = p.retrying(ctx, r.id, StepUpload, func(ctx context.Context, _ int) error {
		obj, err := p.deps.Storage.Upload(ctx, bytes.NewReader(srt.Bytes()), fmt.Sprintf("captions-%s.srt", r.input.TargetLanguage))
		if err != nil {
			return err
		}
		sidecar = obj
		return nil
	})
	if err != nil {
		p.discard(r.id, video)
		return err
	}

	return jobs.UpdateOutput(r.id, func(out *domain.JobOutput) {
		out.URL = video.URL
		out.DownloadURL = video.DownloadURL
		out.CaptionsURL = sidecar.URL
	})
}

// discard removes an artifact uploaded by a run that then failed.
func (p *Pipeline) discard(id string, obj *port.StoredObject) {
	if obj == nil {
		return
	}
	if err := p.deps.Storage.Delete(context.Background(), obj.URL); err != nil {
		logger.Job(id).Warn().Err(err).Str("object", obj.Key).Msg("failed to discard partial upload")
	}
}

// progressReader reports cumulative bytes read at every 25% step.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	next   int64
	report func(sent, total int64)
}

func newProgressReader(r io.Reader, total int64, report func(sent, total int64)) *progressReader {
	return &progressReader{r: r, total: total, next: total / 4, report: report}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.sent += int64(n)
	if p.total > 0 && n > 0 && (p.sent >= p.next || p.sent >= p.total) {
		p.report(min(p.sent, p.total), p.total)
		step := max(p.total/4, 1)
		for p.next <= p.sent {
			p.next += step
		}
	}
	return n, err
}
