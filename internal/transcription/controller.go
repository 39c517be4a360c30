package transcription

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
	"github.com/bnema/reelsub/internal/port"
	"github.com/bnema/reelsub/internal/retry"
)

// wavBytesPerSecond is 16 kHz mono 16-bit PCM, the format the pipeline extracts.
const wavBytesPerSecond = 32000

var defaultGranularities = []string{"word", "segment"}

// Policy is the quality gate applied to every transcription.
type Policy struct {
	MinWords              int
	MinConfidence         float64
	MinLanguageConfidence float64
	// LanguageFilter, when set, restricts accepted detected languages.
	LanguageFilter []string
}

type Options struct {
	Policy        Policy
	Retry         retry.Policy
	CostPerMinute float64
	CostLimit     float64
	CacheTTL      time.Duration
	Model         string
	Now           func() time.Time
}

// Budget accumulates the estimated cost of external calls made for one job.
type Budget struct {
	mu    sync.Mutex
	spent float64
}

func (b *Budget) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}

// reserve adds cost if the result stays within limit. A zero limit disables the check.
func (b *Budget) reserve(cost, limit float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit > 0 && b.spent+cost > limit {
		return false
	}
	b.spent += cost
	return true
}

type Request struct {
	AudioPath string
	// Fingerprint identifies the media the audio was extracted from. When
	// empty the audio file's own size and modification time are used.
	Fingerprint     string
	Language        string
	DurationSeconds float64
	Options         domain.TranscribeOptions
	Budget          *Budget
	OnRetry         func(retry.Failure)
}

type Result struct {
	Record     *domain.TranscriptionRecord
	Validation domain.ValidationResult
}

type Controller struct {
	stt   port.SpeechToText
	cache port.TranscriptCache
	opts  Options
}

func NewController(stt port.SpeechToText, cache port.TranscriptCache, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Controller{stt: stt, cache: cache, opts: opts}
}

// FileFingerprint is the size and modification signature of a file.
func FileFingerprint(info os.FileInfo) string {
	return fmt.Sprintf("%d|%d", info.Size(), info.ModTime().UnixNano())
}

// ContentFingerprint is the size and blake2b digest of a file's content. It
// stays the same when identical media is copied or extracted again.
func ContentFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}
	return fmt.Sprintf("%d|%s", n, hex.EncodeToString(h.Sum(nil))), nil
}

// CacheKey combines a media fingerprint with the decoding options.
func CacheKey(fingerprint string, opts domain.TranscribeOptions) (string, error) {
	encoded, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("encode options: %w", err)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte(fingerprint))
	h.Write([]byte{'|'})
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Transcribe returns the cached transcription for the file when present and
// otherwise calls the speech-to-text collaborator, retrying transient errors.
// Results that fail the quality gate are returned with the gate's verdict and
// are never cached.
func (c *Controller) Transcribe(ctx context.Context, req Request) (*Result, error) {
	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	opts := c.decodingOptions(req)
	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = FileFingerprint(info)
	}
	key, err := CacheKey(fingerprint, opts)
	if err != nil {
		return nil, err
	}

	if cached := c.lookup(ctx, key); cached != nil {
		cached.CacheHit = true
		res := &Result{Record: cached, Validation: c.validate(cached, req.Language)}
		logger.Info().Str("cache_key", key[:16]).Bool("passed", res.Validation.Passed).Msg("transcript cache hit")
		return res, c.verdict(res.Validation)
	}

	duration := req.DurationSeconds
	if duration <= 0 {
		duration = float64(info.Size()) / wavBytesPerSecond
	}
	estimate := math.Ceil(duration/60*100) / 100 * c.opts.CostPerMinute
	budget := req.Budget
	if budget == nil {
		budget = &Budget{}
	}

	audio, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	var (
		resp *port.STTResponse
		cost float64
	)
	attempts, err := c.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if !budget.reserve(estimate, c.opts.CostLimit) {
			return fmt.Errorf("%w: spent %.4f, next call %.4f, limit %.4f",
				domain.ErrCostLimitExceeded, budget.Spent(), estimate, c.opts.CostLimit)
		}
		cost += estimate
		r, err := c.stt.Transcribe(ctx, port.STTRequest{
			Audio:                  audio,
			Filename:               filepath.Base(req.AudioPath),
			Language:               opts.Language,
			Model:                  opts.Model,
			Prompt:                 opts.Prompt,
			Temperature:            opts.Temperature,
			ResponseFormat:         opts.ResponseFormat,
			TimestampGranularities: opts.TimestampGranularities,
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, retry.Hooks{OnFailure: func(f retry.Failure) {
		logger.Warn().
			Err(f.Err).
			Int("attempt", f.Attempt).
			Int("max_attempts", f.MaxAttempts).
			Dur("delay", f.Delay).
			Msg("speech-to-text attempt failed")
		if req.OnRetry != nil {
			req.OnRetry(f)
		}
	}})
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("transcribe: %w: empty response", domain.ErrMalformedResponse)
	}

	now := c.opts.Now()
	record := c.buildRecord(key, resp, duration, now)
	record.Cost = cost
	record.RetryCount = attempts - 1

	res := &Result{Record: record, Validation: c.validate(record, req.Language)}
	if err := c.verdict(res.Validation); err != nil {
		return res, err
	}

	if c.cache != nil {
		stored := *record
		if err := c.cache.Put(ctx, &stored, c.opts.CacheTTL); err != nil {
			logger.Warn().Err(err).Msg("failed to store transcript in cache")
		}
	}
	return res, nil
}

func (c *Controller) decodingOptions(req Request) domain.TranscribeOptions {
	opts := req.Options
	if opts.Model == "" {
		opts.Model = c.opts.Model
	}
	if opts.Language == "" {
		opts.Language = req.Language
	}
	if opts.ResponseFormat == "" {
		opts.ResponseFormat = "verbose_json"
	}
	if len(opts.TimestampGranularities) == 0 {
		opts.TimestampGranularities = defaultGranularities
	}
	return opts
}

func (c *Controller) lookup(ctx context.Context, key string) *domain.TranscriptionRecord {
	if c.cache == nil {
		return nil
	}
	rec, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("transcript cache lookup failed")
		}
		return nil
	}
	if rec != nil && !rec.ExpiresAt.IsZero() && !c.opts.Now().Before(rec.ExpiresAt) {
		return nil
	}
	return rec
}

func (c *Controller) buildRecord(key string, resp *port.STTResponse, duration float64, now time.Time) *domain.TranscriptionRecord {
	rec := &domain.TranscriptionRecord{
		CacheKey:        key,
		Text:            strings.TrimSpace(resp.Text),
		Words:           resp.Words,
		Segments:        resp.Segments,
		Language:        strings.ToLower(resp.Language),
		DurationSeconds: duration,
		CreatedAt:       now,
	}
	if resp.Duration > 0 {
		rec.DurationSeconds = resp.Duration
	}
	if resp.LanguageProbability != nil {
		rec.LanguageConfidence = *resp.LanguageProbability
	}
	if conf, ok := overallConfidence(resp); ok {
		rec.Confidence = conf
		rec.QualityScore = math.Round(conf*10000) / 100
	}
	if c.opts.CacheTTL > 0 {
		rec.ExpiresAt = now.Add(c.opts.CacheTTL)
	}
	return rec
}

// overallConfidence prefers the provider's figure, then word, then segment averages.
func overallConfidence(resp *port.STTResponse) (float64, bool) {
	if resp.Confidence != nil {
		return *resp.Confidence, true
	}
	if len(resp.Words) > 0 {
		var sum float64
		for _, w := range resp.Words {
			sum += w.Confidence
		}
		return sum / float64(len(resp.Words)), true
	}
	if len(resp.Segments) > 0 {
		var sum float64
		for _, s := range resp.Segments {
			sum += s.Confidence
		}
		return sum / float64(len(resp.Segments)), true
	}
	return 0, false
}

func (c *Controller) validate(rec *domain.TranscriptionRecord, requested string) domain.ValidationResult {
	p := c.opts.Policy
	v := domain.ValidationResult{
		Passed:             true,
		WordCount:          rec.WordCount(),
		Confidence:         rec.Confidence,
		DetectedLanguage:   rec.Language,
		LanguageConfidence: rec.LanguageConfidence,
	}
	if v.WordCount < p.MinWords {
		v.Passed = false
		v.Issues = append(v.Issues, fmt.Sprintf("word count %d below minimum %d", v.WordCount, p.MinWords))
	}
	if p.MinConfidence > 0 && rec.Confidence < p.MinConfidence {
		v.Passed = false
		v.Issues = append(v.Issues, fmt.Sprintf("confidence %.2f below minimum %.2f", rec.Confidence, p.MinConfidence))
	}
	if len(p.LanguageFilter) > 0 {
		if rec.Language != "" && !slices.Contains(p.LanguageFilter, rec.Language) {
			v.Passed = false
			v.Issues = append(v.Issues, fmt.Sprintf("detected language %s not in filter", rec.Language))
		}
		if rec.LanguageConfidence < p.MinLanguageConfidence {
			v.Passed = false
			v.Issues = append(v.Issues, languageIssue(rec.LanguageConfidence, p.MinLanguageConfidence))
		}
	}
	return v
}

const languageIssuePrefix = "language confidence"

func languageIssue(got, min float64) string {
	return fmt.Sprintf("%s %.2f below minimum %.2f", languageIssuePrefix, got, min)
}

// verdict turns a failed validation into the matching error. Language
// confidence failures are reported only when they are the sole issue.
func (c *Controller) verdict(v domain.ValidationResult) error {
	if v.Passed {
		return nil
	}
	msg := strings.Join(v.Issues, "; ")
	if len(v.Issues) == 1 && strings.HasPrefix(v.Issues[0], languageIssuePrefix) {
		return fmt.Errorf("%w: %s", domain.ErrLanguageConfidenceTooLow, msg)
	}
	return fmt.Errorf("%w: %s", domain.ErrQualityValidationFailed, msg)
}
