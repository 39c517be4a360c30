package fonts

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/bnema/reelsub/internal/domain"
)

type Family struct {
	Name    string
	Generic bool
	Blocks  []string
	Weights []int
	Styles  []string
}

func (f Family) SupportsBlock(block string) bool {
	for _, b := range f.Blocks {
		if b == block {
			return true
		}
	}
	return false
}

func (f Family) SupportsRune(r rune) bool {
	return f.SupportsBlock(BlockOf(r))
}

type VerticalAnchor string

const (
	AnchorBottom VerticalAnchor = "bottom"
	AnchorTop    VerticalAnchor = "top"
)

// LanguageConfig is the typography profile for one language.
type LanguageConfig struct {
	Code      string           `json:"code"`
	Name      string           `json:"name"`
	Direction domain.Direction `json:"direction"`
	Script    string           `json:"script"`
	Complex   bool             `json:"complexScript"`
	Primary   []string         `json:"primary"`
	Secondary []string         `json:"secondary,omitempty"`
	Fallback  []string         `json:"fallback,omitempty"`
	// Vertical overrides the default bottom safe-area placement.
	Vertical VerticalAnchor `json:"vertical,omitempty"`
}

func (c LanguageConfig) IsRTL() bool {
	return c.Direction == domain.DirectionRTL
}

func (c LanguageConfig) VerticalAnchor() VerticalAnchor {
	if c.Vertical == "" {
		return AnchorBottom
	}
	return c.Vertical
}

var (
	latinCore  = []string{BasicLatin, Latin1Supplement, LatinExtendedA, LatinExtendedB, GeneralPunctuation, CurrencySymbols}
	latinFull  = append(append([]string{}, latinCore...), CombiningDiacriticals, LatinExtendedAdditional, SpacingModifiers)
	europeWide = append(append([]string{}, latinFull...), GreekCoptic, GreekExtended, Cyrillic)
	regular    = []int{400, 700}
	styles     = []string{"normal", "italic"}
)

func join(sets ...[]string) []string {
	var out []string
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

var defaultFamilies = []Family{
	{Name: "Inter", Blocks: europeWide, Weights: []int{400, 500, 700}, Styles: styles},
	{Name: "Roboto", Blocks: europeWide, Weights: regular, Styles: styles},
	{Name: "Open Sans", Blocks: join(europeWide, []string{Hebrew}), Weights: regular, Styles: styles},
	{Name: "Noto Sans", Blocks: join(europeWide, []string{IPAExtensions, Armenian, Georgian}), Weights: regular, Styles: styles},
	{Name: "Be Vietnam Pro", Blocks: latinFull, Weights: []int{400, 600, 700}, Styles: styles},
	{Name: "Noto Sans Arabic", Blocks: []string{Arabic, ArabicPresentationFormsA, ArabicPresentationFormsB, GeneralPunctuation}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Cairo", Blocks: join(latinCore[:3], []string{Arabic, ArabicPresentationFormsA, ArabicPresentationFormsB}), Weights: regular, Styles: []string{"normal"}},
	{Name: "Amiri", Blocks: join(latinCore[:2], []string{Arabic, ArabicPresentationFormsA, ArabicPresentationFormsB}), Weights: regular, Styles: styles},
	{Name: "Vazirmatn", Blocks: []string{BasicLatin, Arabic, ArabicPresentationFormsA, ArabicPresentationFormsB}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Noto Sans Hebrew", Blocks: []string{Hebrew, AlphabeticPresentation, GeneralPunctuation}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Rubik", Blocks: join(latinCore[:3], []string{Hebrew, Cyrillic}), Weights: regular, Styles: styles},
	{Name: "Noto Sans Devanagari", Blocks: []string{Devanagari, BasicLatin, GeneralPunctuation}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Hind", Blocks: join(latinCore[:3], []string{Devanagari}), Weights: regular, Styles: []string{"normal"}},
	{Name: "Noto Sans Bengali", Blocks: []string{Bengali, BasicLatin}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Noto Sans Tamil", Blocks: []string{Tamil, BasicLatin}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Noto Sans Thai", Blocks: []string{Thai}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Sarabun", Blocks: join(latinFull, []string{Thai}), Weights: regular, Styles: styles},
	{Name: "Noto Sans JP", Blocks: []string{BasicLatin, Latin1Supplement, GeneralPunctuation, CJKSymbolsPunctuation, Hiragana, Katakana, CJKUnifiedIdeographs, HalfwidthFullwidthForms}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Noto Sans KR", Blocks: []string{BasicLatin, Latin1Supplement, GeneralPunctuation, HangulJamo, HangulCompatibilityJamo, HangulSyllables, CJKSymbolsPunctuation, CJKUnifiedIdeographs, HalfwidthFullwidthForms}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Noto Sans SC", Blocks: []string{BasicLatin, Latin1Supplement, GeneralPunctuation, CJKSymbolsPunctuation, Hiragana, Katakana, CJKUnifiedIdeographs, HalfwidthFullwidthForms}, Weights: regular, Styles: []string{"normal"}},
	{Name: "Noto Sans TC", Blocks: []string{BasicLatin, Latin1Supplement, GeneralPunctuation, CJKSymbolsPunctuation, Hiragana, Katakana, CJKUnifiedIdeographs, HalfwidthFullwidthForms}, Weights: regular, Styles: []string{"normal"}},
	{Name: "sans-serif", Generic: true, Blocks: []string{BasicLatin, Latin1Supplement, GeneralPunctuation}},
	{Name: "serif", Generic: true, Blocks: []string{BasicLatin, Latin1Supplement, GeneralPunctuation}},
	{Name: "monospace", Generic: true, Blocks: []string{BasicLatin, Latin1Supplement, GeneralPunctuation}},
}

// GenericFamilies close every fallback chain.
var GenericFamilies = []string{"sans-serif", "serif", "monospace"}

func latin(code, name string) LanguageConfig {
	return LanguageConfig{
		Code: code, Name: name, Direction: domain.DirectionLTR, Script: "Latn",
		Primary: []string{"Inter", "Roboto"}, Secondary: []string{"Open Sans"}, Fallback: []string{"Noto Sans"},
	}
}

var defaultLanguages = []LanguageConfig{
	latin("en", "English"),
	latin("es", "Spanish"),
	latin("fr", "French"),
	latin("de", "German"),
	latin("it", "Italian"),
	latin("pt", "Portuguese"),
	latin("nl", "Dutch"),
	latin("pl", "Polish"),
	latin("tr", "Turkish"),
	latin("id", "Indonesian"),
	{
		Code: "vi", Name: "Vietnamese", Direction: domain.DirectionLTR, Script: "Latn",
		Primary: []string{"Be Vietnam Pro", "Noto Sans"}, Secondary: []string{"Roboto", "Inter"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "ru", Name: "Russian", Direction: domain.DirectionLTR, Script: "Cyrl",
		Primary: []string{"Roboto", "Noto Sans"}, Secondary: []string{"Inter"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "uk", Name: "Ukrainian", Direction: domain.DirectionLTR, Script: "Cyrl",
		Primary: []string{"Roboto", "Noto Sans"}, Secondary: []string{"Inter"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "el", Name: "Greek", Direction: domain.DirectionLTR, Script: "Grek",
		Primary: []string{"Noto Sans", "Roboto"}, Secondary: []string{"Open Sans"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "ar", Name: "Arabic", Direction: domain.DirectionRTL, Script: "Arab", Complex: true,
		Primary: []string{"Noto Sans Arabic", "Cairo"}, Secondary: []string{"Amiri", "Vazirmatn"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "fa", Name: "Persian", Direction: domain.DirectionRTL, Script: "Arab", Complex: true,
		Primary: []string{"Vazirmatn", "Noto Sans Arabic"}, Secondary: []string{"Amiri"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "ur", Name: "Urdu", Direction: domain.DirectionRTL, Script: "Arab", Complex: true,
		Primary: []string{"Noto Sans Arabic"}, Secondary: []string{"Amiri"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "he", Name: "Hebrew", Direction: domain.DirectionRTL, Script: "Hebr",
		Primary: []string{"Noto Sans Hebrew", "Rubik"}, Secondary: []string{"Open Sans"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "hi", Name: "Hindi", Direction: domain.DirectionLTR, Script: "Deva", Complex: true,
		Primary: []string{"Noto Sans Devanagari", "Hind"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "bn", Name: "Bengali", Direction: domain.DirectionLTR, Script: "Beng", Complex: true,
		Primary: []string{"Noto Sans Bengali"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "ta", Name: "Tamil", Direction: domain.DirectionLTR, Script: "Taml", Complex: true,
		Primary: []string{"Noto Sans Tamil"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "th", Name: "Thai", Direction: domain.DirectionLTR, Script: "Thai", Complex: true,
		Primary: []string{"Noto Sans Thai", "Sarabun"}, Secondary: []string{"Sarabun"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "ja", Name: "Japanese", Direction: domain.DirectionLTR, Script: "Jpan",
		Primary: []string{"Noto Sans JP"}, Secondary: []string{"Noto Sans SC"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "ko", Name: "Korean", Direction: domain.DirectionLTR, Script: "Kore",
		Primary: []string{"Noto Sans KR"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "zh", Name: "Chinese (Simplified)", Direction: domain.DirectionLTR, Script: "Hans",
		Primary: []string{"Noto Sans SC"}, Secondary: []string{"Noto Sans TC"}, Fallback: []string{"Noto Sans"},
	},
	{
		Code: "zh-TW", Name: "Chinese (Traditional)", Direction: domain.DirectionLTR, Script: "Hant",
		Primary: []string{"Noto Sans TC"}, Secondary: []string{"Noto Sans SC"}, Fallback: []string{"Noto Sans"},
		Vertical: AnchorTop,
	},
}

// Registry is the static catalog of font families and language profiles.
type Registry struct {
	families  map[string]Family
	languages map[string]LanguageConfig
}

func NewRegistry(families []Family, languages []LanguageConfig) (*Registry, error) {
	r := &Registry{
		families:  make(map[string]Family, len(families)),
		languages: make(map[string]LanguageConfig, len(languages)),
	}
	for _, f := range families {
		r.families[f.Name] = f
	}
	for _, l := range languages {
		if len(l.Primary) == 0 {
			return nil, fmt.Errorf("language %s: no primary fonts", l.Code)
		}
		for _, name := range join(l.Primary, l.Secondary, l.Fallback) {
			if _, ok := r.families[name]; !ok {
				return nil, fmt.Errorf("language %s: unknown font family %q", l.Code, name)
			}
		}
		r.languages[l.Code] = l
	}
	return r, nil
}

// DefaultRegistry returns the built-in catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultFamilies, defaultLanguages)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Family(name string) (Family, bool) {
	f, ok := r.families[name]
	return f, ok
}

// Language resolves code to its profile. Codes are canonicalized as BCP 47
// tags, so "pt-BR" resolves to "pt" and "zh-Hant" to "zh-TW".
func (r *Registry) Language(code string) (LanguageConfig, error) {
	key, ok := r.Resolve(code)
	if !ok {
		return LanguageConfig{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, code)
	}
	return r.languages[key], nil
}

func (r *Registry) Supports(code string) bool {
	_, ok := r.Resolve(code)
	return ok
}

// Resolve returns the registry key for code.
func (r *Registry) Resolve(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	if _, ok := r.languages[code]; ok {
		return code, true
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	script, _ := tag.Script()
	region, _ := tag.Region()
	candidates := []string{tag.String(), base.String() + "-" + region.String()}
	if script.String() == "Hant" {
		candidates = append(candidates, base.String()+"-TW")
	}
	candidates = append(candidates, base.String())
	for _, c := range candidates {
		if _, ok := r.languages[c]; ok {
			return c, true
		}
	}
	return "", false
}

// Languages lists all profiles ordered by code.
func (r *Registry) Languages() []LanguageConfig {
	out := make([]LanguageConfig, 0, len(r.languages))
	for _, l := range r.languages {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
