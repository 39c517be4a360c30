package fonts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/reelsub/internal/domain"
)

func TestSelector_Select(t *testing.T) {
	tests := []struct {
		name         string
		language     string
		text         string
		wantPrimary  string
		wantCoverage float64
		wantWarnings int
		wantStrategy domain.LoadingStrategy
	}{
		{"vietnamese diacritics", "vi", "Xin chào", "Be Vietnam Pro", 100, 0, domain.LoadingPreload},
		{"vietnamese full tones", "vi", "Tiếng Việt có dấu: ă â đ ê ô ơ ư", "Be Vietnam Pro", 100, 0, domain.LoadingPreload},
		{"plain english", "en", "Hello world", "Inter", 100, 0, domain.LoadingSwap},
		{"arabic is rtl and complex", "ar", "مرحبا بالعالم", "Noto Sans Arabic", 100, 2, domain.LoadingPreload},
		{"hebrew is rtl only", "he", "שלום", "Noto Sans Hebrew", 100, 1, domain.LoadingPreload},
		{"japanese kana", "ja", "こんにちは", "Noto Sans JP", 100, 0, domain.LoadingPreload},
		{"thai", "th", "สวัสดี", "Noto Sans Thai", 100, 1, domain.LoadingPreload},
		{"empty text", "de", "", "Inter", 100, 0, domain.LoadingLazy},
		{"region subtag", "pt-BR", "Olá", "Inter", 100, 0, domain.LoadingPreload},
	}

	sel := NewSelector(DefaultRegistry())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := sel.Select(tt.text, tt.language)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPrimary, d.Primary)
			assert.Equal(t, tt.wantCoverage, d.Coverage.Percentage)
			assert.Len(t, d.Warnings, tt.wantWarnings, "warnings: %v", d.Warnings)
			assert.Equal(t, tt.wantStrategy, d.LoadingStrategy)
			assert.NotContains(t, d.Fallbacks, d.Primary)
		})
	}
}

func TestSelector_SelectUnsupportedLanguage(t *testing.T) {
	sel := NewSelector(DefaultRegistry())
	_, err := sel.Select("hello", "xx")
	assert.ErrorIs(t, err, domain.ErrUnsupportedLanguage)

	_, err = sel.Select("hello", "")
	assert.ErrorIs(t, err, domain.ErrUnsupportedLanguage)
}

func TestSelector_CoverageFormula(t *testing.T) {
	sel := NewSelector(DefaultRegistry())
	inputs := []struct{ lang, text string }{
		{"en", "hi 😀"},
		{"en", "Привет"},
		{"ar", "abc مرحبا 🎬"},
		{"ko", "안녕 世界 ✓"},
		{"vi", "Xin chào"},
	}
	for _, in := range inputs {
		d, err := sel.Select(in.text, in.lang)
		require.NoError(t, err, in.text)
		total := len(DistinctRunes(in.text))
		assert.Equal(t, total, d.Coverage.Total)
		assert.Equal(t, total-d.Coverage.Supported, len(d.Coverage.Missing))
		assert.Equal(t, float64(d.Coverage.Supported)/float64(total)*100, d.Coverage.Percentage)
	}
}

func TestSelector_CoverageIsNotRounded(t *testing.T) {
	sel := NewSelector(DefaultRegistry())
	d, err := sel.Select("a😀🎬", "en")
	require.NoError(t, err)

	assert.Equal(t, 3, d.Coverage.Total)
	assert.Equal(t, 1, d.Coverage.Supported)
	assert.Equal(t, float64(1)/float64(3)*100, d.Coverage.Percentage)
	assert.NotEqual(t, 33.33, d.Coverage.Percentage)
	assert.Contains(t, d.Warnings, "low character coverage: 33.33%")
}

func TestSelector_LowCoverageWarns(t *testing.T) {
	sel := NewSelector(DefaultRegistry())
	d, err := sel.Select("hi 😀", "en")
	require.NoError(t, err)

	assert.Equal(t, 3, d.Coverage.Total)
	assert.Equal(t, 2, d.Coverage.Supported)
	assert.Equal(t, []string{"😀"}, d.Coverage.Missing)
	assert.Len(t, d.Warnings, 2)
}

func TestSelector_FallbackChain(t *testing.T) {
	sel := NewSelector(DefaultRegistry())

	d, err := sel.Select("Hello", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"Open Sans", "Noto Sans", "sans-serif", "serif", "monospace"}, d.Fallbacks)

	d, err = sel.Select("สวัสดี", "th")
	require.NoError(t, err)
	assert.Equal(t, []string{"Sarabun", "Noto Sans", "sans-serif", "serif", "monospace"}, d.Fallbacks)
}

func TestSelector_SecondaryWhenPrimaryListMisses(t *testing.T) {
	reg, err := NewRegistry(defaultFamilies, []LanguageConfig{{
		Code: "xx", Direction: domain.DirectionLTR, Script: "Latn",
		Primary:   []string{"Noto Sans Thai"},
		Secondary: []string{"Roboto", "Inter"},
	}})
	require.NoError(t, err)

	d, err := NewSelector(reg).Select("abc", "xx")
	require.NoError(t, err)
	assert.Equal(t, "Roboto", d.Primary)
	assert.Equal(t, []string{"Inter", "sans-serif", "serif", "monospace"}, d.Fallbacks)
}

func TestSelector_NoMatchDefaultsToFirstPrimary(t *testing.T) {
	sel := NewSelector(DefaultRegistry())
	d, err := sel.Select("😀🎬", "en")
	require.NoError(t, err)
	assert.Equal(t, "Inter", d.Primary)
	assert.Equal(t, 0.0, d.Coverage.Percentage)
}

func TestSelector_CachesDecisions(t *testing.T) {
	sel := NewSelector(DefaultRegistry())

	first, err := sel.Select("Xin chào", "vi")
	require.NoError(t, err)
	first.Fallbacks[0] = "mutated"

	second, err := sel.Select("Xin chào", "vi")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second.Fallbacks[0])
	assert.Equal(t, first.TextHash, second.TextHash)
	assert.Equal(t, 1, sel.CachedDecisions())

	_, err = sel.Select("Xin chào", "en")
	require.NoError(t, err)
	assert.Equal(t, 2, sel.CachedDecisions())
}

func TestTextHash_NormalizesNFC(t *testing.T) {
	composed := "ch\u00e0o"
	decomposed := "cha\u0300o"
	assert.Equal(t, TextHash(composed), TextHash(decomposed))
}

func TestSelector_Validate(t *testing.T) {
	sel := NewSelector(DefaultRegistry())

	tests := []struct {
		name       string
		font       string
		language   string
		text       string
		wantScore  int
		wantIssues bool
	}{
		{"primary with full coverage", "Noto Sans Arabic", "ar", "مرحبا", 100, false},
		{"unknown font", "Comic Sans", "en", "hello", 0, true},
		{"unknown language", "Inter", "xx", "hello", 0, true},
		{"wrong script", "Inter", "ar", "مرحبا", 0, true},
		{"generic family", "sans-serif", "en", "hello", 70, true},
		{"secondary font", "Roboto", "vi", "Xin chào", 90, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := sel.CachedDecisions()
			v := sel.Validate(tt.font, tt.language, tt.text)
			assert.Equal(t, tt.wantScore, v.Score)
			assert.Equal(t, tt.wantIssues, len(v.Issues) > 0, "issues: %v", v.Issues)
			assert.Equal(t, before, sel.CachedDecisions(), "validate must not touch the cache")
		})
	}
}
