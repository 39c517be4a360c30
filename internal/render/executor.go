package render

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bnema/reelsub/internal/captions"
	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
	"github.com/bnema/reelsub/internal/port"
	"github.com/bnema/reelsub/internal/retry"
)

var presets = map[domain.Quality]port.Encoding{
	domain.QualityLow:    {VideoBitrate: "1M", CRF: 28, Preset: "veryfast"},
	domain.QualityMedium: {VideoBitrate: "2500k", CRF: 23, Preset: "medium"},
	domain.QualityHigh:   {VideoBitrate: "5M", CRF: 18, Preset: "slow"},
}

// EncodingFor returns the encoder settings for a quality preset. An empty
// quality selects medium.
func EncodingFor(q domain.Quality) (port.Encoding, error) {
	if q == "" {
		q = domain.QualityMedium
	}
	enc, ok := presets[q]
	if !ok {
		return port.Encoding{}, fmt.Errorf("%w: unknown quality %q", domain.ErrInvalidRequest, q)
	}
	return enc, nil
}

type Request struct {
	JobID           string
	InputPath       string
	OutputPath      string
	Captions        *captions.SubtitleDescription
	Quality         domain.Quality
	DisableAudio    bool
	DurationSeconds float64
	OnProgress      func(p port.BurnProgress, attempt int)
	OnRetry         func(retry.Failure)
}

type Result struct {
	OutputPath string
	Size       int64
	Attempts   int
}

// Executor burns compiled captions into a video through the media filter.
type Executor struct {
	filter  port.MediaFilter
	policy  retry.Policy
	tempDir string
}

func NewExecutor(filter port.MediaFilter, policy retry.Policy, tempDir string) *Executor {
	return &Executor{filter: filter, policy: policy, tempDir: tempDir}
}

func (e *Executor) Render(ctx context.Context, req Request) (*Result, error) {
	if req.Captions == nil {
		return nil, fmt.Errorf("%w: no captions to render", domain.ErrInvalidRequest)
	}
	enc, err := EncodingFor(req.Quality)
	if err != nil {
		return nil, err
	}

	scriptPath, cleanup, err := req.Captions.WriteFilterScript(e.tempDir)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	log := logger.Job(req.JobID)
	burn := port.BurnRequest{
		InputPath:        req.InputPath,
		OutputPath:       req.OutputPath,
		FilterScriptPath: scriptPath,
		Encoding:         enc,
		CopyAudio:        !req.DisableAudio,
		DurationSeconds:  req.DurationSeconds,
	}

	attempts, err := e.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		log.Info().
			Int("attempt", attempt).
			Int("max_attempts", e.policy.MaxAttempts).
			Str("preset", enc.Preset).
			Int("cues", len(req.Captions.Cues)).
			Msg("render attempt")

		_ = os.Remove(req.OutputPath)
		return e.filter.Burn(ctx, burn, func(p port.BurnProgress) {
			if req.OnProgress != nil {
				req.OnProgress(p, attempt)
			}
		})
	}, retry.Hooks{OnFailure: func(f retry.Failure) {
		log.Warn().
			Err(f.Err).
			Int("attempt", f.Attempt).
			Int("max_attempts", f.MaxAttempts).
			Dur("delay", f.Delay).
			Msg("render attempt failed")
		if req.OnRetry != nil {
			req.OnRetry(f)
		}
	}})
	if err != nil {
		_ = os.Remove(req.OutputPath)
		return nil, fmt.Errorf("render: %w", err)
	}

	size, err := verifyOutput(req.OutputPath)
	if err != nil {
		_ = os.Remove(req.OutputPath)
		return nil, err
	}
	log.Info().Int64("size", size).Int("attempts", attempts).Msg("render completed")
	return &Result{OutputPath: req.OutputPath, Size: size, Attempts: attempts}, nil
}

// verifyOutput treats a missing or zero-byte artifact as a failed render.
func verifyOutput(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s missing", domain.ErrEmptyOutput, path)
	}
	if err != nil {
		return 0, fmt.Errorf("stat render output: %w", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s is empty", domain.ErrEmptyOutput, path)
	}
	return info.Size(), nil
}
