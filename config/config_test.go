package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REELSUB_CONFIG", "")
	t.Setenv("DATA_DIR", "/srv/reelsub")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7890, cfg.Server.Port)
	assert.Equal(t, 300*time.Second, cfg.JobTimeout())
	assert.Equal(t, 2*time.Second, cfg.Stream.Heartbeat())
	assert.Equal(t, 300*time.Second, cfg.Stream.IdleTimeout())
	assert.Equal(t, 2, cfg.Jobs.MaxActivePerClient)
	assert.Equal(t, "/srv/reelsub/fonts", cfg.Render.FontsDir)
	assert.Equal(t, int64(500*1024*1024), cfg.MaxUploadBytes())
	assert.Equal(t, "/srv/reelsub/incoming", cfg.IncomingDir())
	assert.Zero(t, cfg.Render.MinFontCoverage)
	assert.Empty(t, cfg.API.Keys)
}

func TestLoad_APIKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REELSUB_CONFIG", "")
	t.Setenv("API_KEYS", "alpha, beta,,")
	t.Setenv("SUBMIT_PER_MINUTE", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.API.Keys)
	assert.Equal(t, 3, cfg.API.SubmitPerMinute)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "reelsub.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9000
data_dir = "/var/lib/reelsub"

[transcription]
min_confidence = 0.8
language_filter = ["en", "vi"]

[steps.render]
max_attempts = 5
`), 0o644))

	t.Setenv("REELSUB_CONFIG", path)
	t.Setenv("PORT", "9100")
	t.Setenv("RETRY_BASE_DELAY_MS", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "/var/lib/reelsub", cfg.Server.DataDir)
	assert.Equal(t, 0.8, cfg.Transcription.MinConfidence)
	assert.Equal(t, []string{"en", "vi"}, cfg.Transcription.LanguageFilter)

	render := cfg.StepRetry("render")
	assert.Equal(t, 5, render.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, render.BaseDelay(), "unset step fields inherit the defaults")
	assert.Equal(t, 3, cfg.StepRetry("upload").MaxAttempts)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TRANSCRIPTION_LANGUAGE_FILTER=en, fr\n"), 0o644))
	t.Setenv("REELSUB_CONFIG", "")
	t.Setenv("TRANSCRIPTION_LANGUAGE_FILTER", "")
	// godotenv does not override variables that are already set, even empty ones.
	require.NoError(t, os.Unsetenv("TRANSCRIPTION_LANGUAGE_FILTER"))
	t.Cleanup(func() { _ = os.Unsetenv("TRANSCRIPTION_LANGUAGE_FILTER") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "fr"}, cfg.Transcription.LanguageFilter)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad port", "PORT", "abc"},
		{"port out of range", "PORT", "70000"},
		{"zero timeout", "JOB_TIMEOUT_SECONDS", "0"},
		{"confidence above one", "TRANSCRIPTION_MIN_CONFIDENCE", "1.5"},
		{"factor below one", "RETRY_FACTOR", "0.5"},
		{"unknown quality", "RENDER_QUALITY", "ultra"},
		{"bad bool", "REQUIRE_AUDIO", "maybe"},
		{"coverage above 100", "MIN_FONT_COVERAGE", "120"},
		{"zero batch", "TRANSLATION_BATCH_SIZE", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("REELSUB_CONFIG", "")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REELSUB_CONFIG", "/nonexistent/reelsub.toml")

	_, err := Load()
	assert.Error(t, err)
}
