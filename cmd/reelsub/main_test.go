package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlitestore "github.com/bnema/reelsub/internal/adapter/storage/sqlite"
	"github.com/bnema/reelsub/internal/domain"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("REELSUB_CONFIG", "")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("LOG_FORMAT", "json")
	return dir
}

func TestFontsSelect(t *testing.T) {
	isolate(t)

	out, err := runCommand(t, "fonts", "select", "--lang", "vi", "Xin chào")
	require.NoError(t, err)
	assert.Contains(t, out, "Primary")
	assert.Contains(t, out, "Coverage")
	assert.Contains(t, out, "ltr")
}

func TestFontsSelect_UnsupportedLanguage(t *testing.T) {
	isolate(t)

	_, err := runCommand(t, "fonts", "select", "--lang", "tlh", "Qapla'")
	assert.ErrorIs(t, err, domain.ErrUnsupportedLanguage)
}

func TestFontsValidate_DefaultsToConfiguredFonts(t *testing.T) {
	isolate(t)

	out, err := runCommand(t, "fonts", "validate", "--lang", "ar", "مرحبا")
	require.NoError(t, err)
	assert.Contains(t, out, "Score")
	assert.Contains(t, out, "Noto Sans Arabic")
}

func TestFontsLanguages(t *testing.T) {
	isolate(t)

	out, err := runCommand(t, "fonts", "languages")
	require.NoError(t, err)
	assert.Contains(t, out, "Vietnamese")
	assert.Contains(t, out, "rtl")
}

func TestCachePurge(t *testing.T) {
	dir := isolate(t)

	store, err := sqlitestore.NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), &domain.TranscriptionRecord{
		CacheKey:  "expired",
		Text:      "hello",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}, 0))
	require.NoError(t, store.Put(context.Background(), &domain.TranscriptionRecord{
		CacheKey:  "fresh",
		Text:      "hello",
		CreatedAt: time.Now(),
	}, time.Hour))
	require.NoError(t, store.Close())

	out, err := runCommand(t, "cache", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 1 expired transcripts")

	out, err = runCommand(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Cached transcripts: 1")
}

func TestInvalidConfigFails(t *testing.T) {
	isolate(t)
	t.Setenv("JOB_TIMEOUT_SECONDS", "0")

	_, err := runCommand(t, "cache", "stats")
	assert.Error(t, err)
}
