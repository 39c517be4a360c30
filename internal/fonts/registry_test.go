package fonts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/reelsub/internal/domain"
)

func TestBlockOf(t *testing.T) {
	tests := []struct {
		r    rune
		want string
	}{
		{'A', BasicLatin},
		{'à', Latin1Supplement},
		{'đ', LatinExtendedA},
		{'ơ', LatinExtendedB},
		{'ế', LatinExtendedAdditional},
		{'Ж', Cyrillic},
		{'ש', Hebrew},
		{'م', Arabic},
		{'न', Devanagari},
		{'ก', Thai},
		{'あ', Hiragana},
		{'ア', Katakana},
		{'中', CJKUnifiedIdeographs},
		{'한', HangulSyllables},
		{'—', GeneralPunctuation},
		{'€', CurrencySymbols},
		{'😀', BlockOther},
		{0x0800, BlockOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BlockOf(tt.r), "rune %U", tt.r)
	}
}

func TestBlocksAreSorted(t *testing.T) {
	bs := Blocks()
	for i := 1; i < len(bs); i++ {
		assert.Greater(t, bs[i].Lo, bs[i-1].Hi, "%s overlaps %s", bs[i].Name, bs[i-1].Name)
	}
}

func TestDistinctRunes(t *testing.T) {
	assert.Equal(t, []rune{'a', 'b'}, DistinctRunes("a b\ta\nb"))
	assert.Equal(t, []rune{'\u00e0'}, DistinctRunes("a\u0300"), "decomposed input is composed first")
	assert.Empty(t, DistinctRunes("   "))
}

func TestRegistry_Language(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		code    string
		want    string
		wantErr bool
	}{
		{"vi", "vi", false},
		{"pt-BR", "pt", false},
		{"en-GB", "en", false},
		{"zh-TW", "zh-TW", false},
		{"zh-Hant", "zh-TW", false},
		{"zh-CN", "zh", false},
		{" ar ", "ar", false},
		{"klingon", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			cfg, err := reg.Language(tt.code)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnsupportedLanguage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Code)
		})
	}
}

func TestRegistry_DirectionsAndAnchors(t *testing.T) {
	reg := DefaultRegistry()

	ar, err := reg.Language("ar")
	require.NoError(t, err)
	assert.True(t, ar.IsRTL())
	assert.True(t, ar.Complex)
	assert.Equal(t, AnchorBottom, ar.VerticalAnchor())

	tw, err := reg.Language("zh-TW")
	require.NoError(t, err)
	assert.Equal(t, AnchorTop, tw.VerticalAnchor())
}

func TestNewRegistry_RejectsUnknownFamily(t *testing.T) {
	_, err := NewRegistry(defaultFamilies, []LanguageConfig{{Code: "xx", Primary: []string{"Missing Font"}}})
	assert.Error(t, err)

	_, err = NewRegistry(defaultFamilies, []LanguageConfig{{Code: "xx"}})
	assert.Error(t, err)
}

func TestRegistry_LanguagesSorted(t *testing.T) {
	langs := DefaultRegistry().Languages()
	require.NotEmpty(t, langs)
	for i := 1; i < len(langs); i++ {
		assert.Less(t, langs[i-1].Code, langs[i].Code)
	}
}
