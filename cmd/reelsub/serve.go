package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/bnema/reelsub/config"
	httpadapter "github.com/bnema/reelsub/internal/adapter/http"
	"github.com/bnema/reelsub/internal/adapter/http/ratelimit"
	"github.com/bnema/reelsub/internal/adapter/mediafilter/ffmpeg"
	"github.com/bnema/reelsub/internal/adapter/openai"
	"github.com/bnema/reelsub/internal/adapter/storage/localfs"
	"github.com/bnema/reelsub/internal/adapter/storage/memory"
	sqlitestore "github.com/bnema/reelsub/internal/adapter/storage/sqlite"
	"github.com/bnema/reelsub/internal/captions"
	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/events"
	"github.com/bnema/reelsub/internal/fonts"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
	"github.com/bnema/reelsub/internal/port"
	"github.com/bnema/reelsub/internal/render"
	"github.com/bnema/reelsub/internal/retry"
	"github.com/bnema/reelsub/internal/service"
	"github.com/bnema/reelsub/internal/transcription"
)

const cachePurgeInterval = time.Hour

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the render workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func policyFrom(r config.Retry) retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay(),
		MaxDelay:    r.MaxDelay(),
		Factor:      r.Factor,
		Jitter:      true,
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	for _, dir := range []string{cfg.Server.DataDir, cfg.IncomingDir(), cfg.WorkDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	lock := flock.New(filepath.Join(cfg.Server.DataDir, "reelsub.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another reelsub instance is using %s", cfg.Server.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	cache, err := sqlitestore.NewStore(cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("open transcript cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	baseURL := cfg.Server.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	objects, err := localfs.NewStore(cfg.Server.DataDir, baseURL)
	if err != nil {
		return err
	}

	d := newDaemon(cfg, cache, objects)
	defer d.jobs.Shutdown()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d.pipeline.Start(ctx)
	go d.limiter.Run(ctx)
	go purgeCache(ctx, cache)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("data_dir", cfg.Server.DataDir).
			Int("workers", cfg.Server.Workers).
			Bool("auth", len(cfg.API.Keys) > 0).
			Msg("reelsub listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stop()
			d.pipeline.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	d.pipeline.Wait()
	logger.Info().Msg("shutdown complete")
	return nil
}

// purgeCache drops expired transcripts once an hour.
func purgeCache(ctx context.Context, cache *sqlitestore.Store) {
	ticker := time.NewTicker(cachePurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := cache.Purge(ctx, now)
			if err != nil {
				logger.Error().Err(err).Msg("transcript cache purge failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("purged", n).Msg("expired transcripts removed")
			}
		}
	}
}

// daemon is the wired service. The workers and the HTTP surface share one
// job service and one font selector.
type daemon struct {
	jobs     *service.JobService
	selector *fonts.Selector
	pipeline *service.Pipeline
	limiter  *ratelimit.SubmitLimiter
	server   *httpadapter.Server
}

func newDaemon(cfg *config.Config, cache port.TranscriptCache, objects *localfs.Store) *daemon {
	jobs := service.NewJobService(memory.NewStore(), service.JobServiceOptions{
		Timeout:   cfg.JobTimeout(),
		Admission: service.NewAdmission(cfg.Jobs.MaxActivePerClient),
	})

	stt := openai.NewSpeechToText(openai.Options{
		APIKey:         cfg.STT.APIKey,
		BaseURL:        cfg.STT.BaseURL,
		Model:          cfg.STT.Model,
		RequestTimeout: cfg.STT.Timeout(),
	})
	translator := openai.NewTranslator(openai.Options{
		APIKey:         cfg.Translator.APIKey,
		BaseURL:        cfg.Translator.BaseURL,
		Model:          cfg.Translator.Model,
		RequestTimeout: cfg.Translator.Timeout(),
	})
	filter := ffmpeg.NewFilter(cfg.Render.FFmpegPath, cfg.Render.FFprobePath)

	registry := fonts.DefaultRegistry()
	selector := fonts.NewSelector(registry)
	controller := transcription.NewController(stt, cache, transcription.Options{
		Policy: transcription.Policy{
			MinWords:              cfg.Transcription.MinWords,
			MinConfidence:         cfg.Transcription.MinConfidence,
			MinLanguageConfidence: cfg.Transcription.MinLanguageConfidence,
			LanguageFilter:        cfg.Transcription.LanguageFilter,
		},
		Retry:         policyFrom(cfg.StepRetry(service.StepTranscribe)),
		CostPerMinute: cfg.Transcription.CostPerMinute,
		CostLimit:     cfg.Transcription.CostLimit,
		CacheTTL:      cfg.CacheTTL(),
		Model:         cfg.STT.Model,
	})

	steps := make(map[string]retry.Policy, len(cfg.Steps))
	for name := range cfg.Steps {
		steps[name] = policyFrom(cfg.StepRetry(name))
	}
	style := captions.DefaultStyle()
	if cfg.Render.FontSize > 0 {
		style.FontSize = cfg.Render.FontSize
	}

	pipeline := service.NewPipeline(service.PipelineDeps{
		Jobs:        jobs,
		Filter:      filter,
		Transcriber: controller,
		Translator:  translator,
		Selector:    selector,
		Loader:      fonts.NewLoader(fonts.NewDirSource(cfg.Render.FontsDir)),
		Compiler:    captions.NewCompiler(registry),
		Executor:    render.NewExecutor(filter, policyFrom(cfg.StepRetry(service.StepRender)), cfg.WorkDir()),
		Storage:     objects,
		HTTPClient:  &http.Client{Timeout: time.Duration(cfg.Jobs.DownloadTimeout) * time.Second},
	}, service.PipelineOptions{
		WorkDir:        cfg.WorkDir(),
		IncomingDir:    cfg.IncomingDir(),
		Workers:        cfg.Server.Workers,
		MaxSourceBytes: cfg.MaxUploadBytes(),
		Probe: domain.ProbePolicy{
			MaxDurationSeconds: cfg.Jobs.MaxDurationSeconds,
			VideoCodecs:        domain.DefaultVideoCodecs,
			RequireAudio:       cfg.Jobs.RequireAudio,
		},
		Retry:               policyFrom(cfg.Retry),
		Steps:               steps,
		TranslationBatch:    cfg.Translation.BatchSize,
		TranslationParallel: cfg.Translation.Parallel,
		MinFontCoverage:     cfg.Render.MinFontCoverage,
		Style:               style,
	})

	limiter := ratelimit.NewSubmitLimiter(cfg.API.SubmitPerMinute, time.Minute,
		time.Duration(cfg.API.SubmitBlockSeconds)*time.Second)
	streamer := events.NewStreamer(jobs, jobs.Bus(), events.StreamOptions{
		PollInterval: cfg.Stream.PollInterval(),
		Heartbeat:    cfg.Stream.Heartbeat(),
		IdleTimeout:  cfg.Stream.IdleTimeout(),
		Grace:        cfg.Stream.Grace(),
	})
	server := httpadapter.NewServer(httpadapter.Deps{
		Jobs:      jobs,
		Submitter: pipeline,
		Streamer:  streamer,
		Selector:  selector,
		Objects:   objects,
		Limiter:   limiter,
	}, httpadapter.Options{
		IncomingDir:    cfg.IncomingDir(),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		APIKeys:        cfg.API.Keys,
		Version:        version,
	})

	return &daemon{
		jobs:     jobs,
		selector: selector,
		pipeline: pipeline,
		limiter:  limiter,
		server:   server,
	}
}
