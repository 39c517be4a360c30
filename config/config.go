package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/bnema/reelsub/internal/domain"
)

type Server struct {
	Port            int    `toml:"port"`
	DataDir         string `toml:"data_dir"`
	PublicBaseURL   string `toml:"public_base_url"`
	MaxUploadSizeMB int    `toml:"max_upload_size_mb"`
	Workers         int    `toml:"workers"`
}

type Jobs struct {
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	MaxActivePerClient int     `toml:"max_active_per_client"`
	MaxDurationSeconds float64 `toml:"max_duration_seconds"`
	RequireAudio       bool    `toml:"require_audio"`
	DownloadTimeout    int     `toml:"download_timeout_seconds"`
}

type Stream struct {
	HeartbeatSeconds   int `toml:"heartbeat_seconds"`
	IdleTimeoutSeconds int `toml:"idle_timeout_seconds"`
	PollIntervalMillis int `toml:"poll_interval_ms"`
	GraceMillis        int `toml:"grace_ms"`
}

// Provider holds connection settings for an OpenAI-compatible HTTP API.
type Provider struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type Transcription struct {
	MinWords              int      `toml:"min_words"`
	MinConfidence         float64  `toml:"min_confidence"`
	MinLanguageConfidence float64  `toml:"min_language_confidence"`
	LanguageFilter        []string `toml:"language_filter"`
	CostPerMinute         float64  `toml:"cost_per_minute"`
	CostLimit             float64  `toml:"cost_limit"`
	CacheTTLHours         int      `toml:"cache_ttl_hours"`
}

type Translation struct {
	BatchSize int `toml:"batch_size"`
	Parallel  int `toml:"parallel"`
}

type Retry struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelayMs int     `toml:"base_delay_ms"`
	MaxDelayMs  int     `toml:"max_delay_ms"`
	Factor      float64 `toml:"factor"`
}

type Render struct {
	Quality     string `toml:"quality"`
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	FontsDir    string `toml:"fonts_dir"`
	FontSize    int    `toml:"font_size"`
	// MinFontCoverage fails a job whose captions the chosen fonts cover
	// below this percentage. Zero disables the gate.
	MinFontCoverage float64 `toml:"min_font_coverage"`
}

// API controls access to the HTTP surface. With no keys configured the
// client id is the remote address.
type API struct {
	Keys               []string `toml:"keys"`
	SubmitPerMinute    int      `toml:"submit_per_minute"`
	SubmitBlockSeconds int      `toml:"submit_block_seconds"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is built from defaults, then an optional TOML file named by
// REELSUB_CONFIG, then environment variables (a .env file is read first).
type Config struct {
	Server        Server           `toml:"server"`
	Jobs          Jobs             `toml:"jobs"`
	Stream        Stream           `toml:"stream"`
	STT           Provider         `toml:"stt"`
	Translator    Provider         `toml:"translator"`
	Transcription Transcription    `toml:"transcription"`
	Translation   Translation      `toml:"translation"`
	Retry         Retry            `toml:"retry"`
	Steps         map[string]Retry `toml:"steps"`
	Render        Render           `toml:"render"`
	API           API              `toml:"api"`
	Logging       Logging          `toml:"logging"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:            7890,
			DataDir:         "/data",
			MaxUploadSizeMB: 500,
			Workers:         2,
		},
		Jobs: Jobs{
			TimeoutSeconds:     300,
			MaxActivePerClient: 2,
			MaxDurationSeconds: 600,
			RequireAudio:       true,
			DownloadTimeout:    60,
		},
		Stream: Stream{
			HeartbeatSeconds:   2,
			IdleTimeoutSeconds: 300,
			PollIntervalMillis: 500,
			GraceMillis:        1000,
		},
		STT: Provider{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "whisper-1",
			TimeoutSeconds: 120,
		},
		Translator: Provider{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
		},
		Transcription: Transcription{
			MinWords:              1,
			MinConfidence:         0.7,
			MinLanguageConfidence: 0.5,
			CostPerMinute:         0.006,
			CostLimit:             5,
			CacheTTLHours:         24 * 7,
		},
		Translation: Translation{BatchSize: 40, Parallel: 2},
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelayMs: 1000,
			MaxDelayMs:  30000,
			Factor:      2,
		},
		Render: Render{
			Quality:     string(domain.QualityMedium),
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			FontSize:    48,
		},
		API:     API{SubmitPerMinute: 10, SubmitBlockSeconds: 60},
		Logging: Logging{Level: "info"},
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(os.Getenv("REELSUB_CONFIG"))
}

// LoadFrom is Load with an explicit TOML path. An empty path skips the file.
func LoadFrom(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Render.FontsDir == "" {
		cfg.Render.FontsDir = filepath.Join(cfg.Server.DataDir, "fonts")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	setInt("PORT", &c.Server.Port)
	c.Server.DataDir = getEnv("DATA_DIR", c.Server.DataDir)
	c.Server.PublicBaseURL = getEnv("PUBLIC_BASE_URL", c.Server.PublicBaseURL)
	setInt("MAX_UPLOAD_SIZE_MB", &c.Server.MaxUploadSizeMB)
	setInt("WORKERS", &c.Server.Workers)

	setInt("JOB_TIMEOUT_SECONDS", &c.Jobs.TimeoutSeconds)
	setInt("MAX_ACTIVE_JOBS_PER_CLIENT", &c.Jobs.MaxActivePerClient)
	setFloat("MAX_DURATION_SECONDS", &c.Jobs.MaxDurationSeconds)
	setBool("REQUIRE_AUDIO", &c.Jobs.RequireAudio)

	setInt("STREAM_HEARTBEAT_SECONDS", &c.Stream.HeartbeatSeconds)
	setInt("STREAM_IDLE_TIMEOUT_SECONDS", &c.Stream.IdleTimeoutSeconds)

	c.STT.BaseURL = getEnv("STT_BASE_URL", c.STT.BaseURL)
	c.STT.APIKey = getEnv("STT_API_KEY", c.STT.APIKey)
	c.STT.Model = getEnv("STT_MODEL", c.STT.Model)
	c.Translator.BaseURL = getEnv("TRANSLATOR_BASE_URL", c.Translator.BaseURL)
	c.Translator.APIKey = getEnv("TRANSLATOR_API_KEY", c.Translator.APIKey)
	c.Translator.Model = getEnv("TRANSLATOR_MODEL", c.Translator.Model)

	setInt("TRANSCRIPTION_MIN_WORDS", &c.Transcription.MinWords)
	setFloat("TRANSCRIPTION_MIN_CONFIDENCE", &c.Transcription.MinConfidence)
	setFloat("TRANSCRIPTION_MIN_LANGUAGE_CONFIDENCE", &c.Transcription.MinLanguageConfidence)
	if v := os.Getenv("TRANSCRIPTION_LANGUAGE_FILTER"); v != "" {
		c.Transcription.LanguageFilter = splitList(v)
	}
	setFloat("TRANSCRIPTION_COST_PER_MINUTE", &c.Transcription.CostPerMinute)
	setFloat("TRANSCRIPTION_COST_LIMIT", &c.Transcription.CostLimit)
	setInt("TRANSCRIPT_CACHE_TTL_HOURS", &c.Transcription.CacheTTLHours)

	setInt("RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	setInt("RETRY_BASE_DELAY_MS", &c.Retry.BaseDelayMs)
	setInt("RETRY_MAX_DELAY_MS", &c.Retry.MaxDelayMs)
	setFloat("RETRY_FACTOR", &c.Retry.Factor)

	c.Render.Quality = getEnv("RENDER_QUALITY", c.Render.Quality)
	c.Render.FFmpegPath = getEnv("FFMPEG_PATH", c.Render.FFmpegPath)
	c.Render.FFprobePath = getEnv("FFPROBE_PATH", c.Render.FFprobePath)
	c.Render.FontsDir = getEnv("FONTS_DIR", c.Render.FontsDir)
	setFloat("MIN_FONT_COVERAGE", &c.Render.MinFontCoverage)

	setInt("TRANSLATION_BATCH_SIZE", &c.Translation.BatchSize)
	setInt("TRANSLATION_PARALLEL", &c.Translation.Parallel)

	if v := os.Getenv("API_KEYS"); v != "" {
		c.API.Keys = splitList(v)
	}
	setInt("SUBMIT_PER_MINUTE", &c.API.SubmitPerMinute)
	setInt("SUBMIT_BLOCK_SECONDS", &c.API.SubmitBlockSeconds)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if c.Server.DataDir == "" {
		errs = append(errs, fmt.Errorf("server.data_dir is required"))
	}
	if c.Server.MaxUploadSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_size_mb must be positive"))
	}
	if c.Server.Workers <= 0 {
		errs = append(errs, fmt.Errorf("server.workers must be positive"))
	}
	if c.Jobs.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("jobs.timeout_seconds must be positive"))
	}
	if c.Jobs.MaxActivePerClient <= 0 {
		errs = append(errs, fmt.Errorf("jobs.max_active_per_client must be positive"))
	}
	if c.Stream.HeartbeatSeconds <= 0 || c.Stream.IdleTimeoutSeconds <= 0 || c.Stream.PollIntervalMillis <= 0 {
		errs = append(errs, fmt.Errorf("stream intervals must be positive"))
	}
	for name, v := range map[string]float64{
		"transcription.min_confidence":          c.Transcription.MinConfidence,
		"transcription.min_language_confidence": c.Transcription.MinLanguageConfidence,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1]", name))
		}
	}
	if c.Transcription.CostLimit < 0 || c.Transcription.CostPerMinute < 0 {
		errs = append(errs, fmt.Errorf("transcription costs must not be negative"))
	}
	if err := c.Retry.validate("retry"); err != nil {
		errs = append(errs, err)
	}
	for step, r := range c.Steps {
		if err := r.merged(c.Retry).validate("steps." + step); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Render.MinFontCoverage < 0 || c.Render.MinFontCoverage > 100 {
		errs = append(errs, fmt.Errorf("render.min_font_coverage must be within [0,100]"))
	}
	if c.Translation.BatchSize <= 0 || c.Translation.Parallel <= 0 {
		errs = append(errs, fmt.Errorf("translation batch size and parallelism must be positive"))
	}
	if !domain.Quality(c.Render.Quality).IsValid() {
		errs = append(errs, fmt.Errorf("render.quality must be low, medium or high"))
	}
	return errors.Join(errs...)
}

func (r Retry) validate(prefix string) error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("%s.max_attempts must be at least 1", prefix)
	}
	if r.Factor < 1 {
		return fmt.Errorf("%s.factor must be >= 1", prefix)
	}
	if r.BaseDelayMs < 0 || r.MaxDelayMs < 0 {
		return fmt.Errorf("%s delays must not be negative", prefix)
	}
	return nil
}

// merged fills zero fields from base.
func (r Retry) merged(base Retry) Retry {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = base.MaxAttempts
	}
	if r.BaseDelayMs == 0 {
		r.BaseDelayMs = base.BaseDelayMs
	}
	if r.MaxDelayMs == 0 {
		r.MaxDelayMs = base.MaxDelayMs
	}
	if r.Factor == 0 {
		r.Factor = base.Factor
	}
	return r
}

// StepRetry returns the retry settings for a pipeline step.
func (c *Config) StepRetry(step string) Retry {
	if r, ok := c.Steps[step]; ok {
		return r.merged(c.Retry)
	}
	return c.Retry
}

func (r Retry) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMs) * time.Millisecond }
func (r Retry) MaxDelay() time.Duration  { return time.Duration(r.MaxDelayMs) * time.Millisecond }

func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Jobs.TimeoutSeconds) * time.Second
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadSizeMB) * 1024 * 1024
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Transcription.CacheTTLHours) * time.Hour
}

func (s Stream) Heartbeat() time.Duration   { return time.Duration(s.HeartbeatSeconds) * time.Second }
func (s Stream) IdleTimeout() time.Duration { return time.Duration(s.IdleTimeoutSeconds) * time.Second }
func (s Stream) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMillis) * time.Millisecond
}
func (s Stream) Grace() time.Duration { return time.Duration(s.GraceMillis) * time.Millisecond }

func (p Provider) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (c *Config) IncomingDir() string { return filepath.Join(c.Server.DataDir, "incoming") }
func (c *Config) WorkDir() string { return filepath.Join(c.Server.DataDir, "work") }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
