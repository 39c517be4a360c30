package fonts

import (
	"sort"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Block is a named Unicode block.
type Block struct {
	Name string
	Lo   rune
	Hi   rune
}

const BlockOther = "Other"

const (
	BasicLatin               = "Basic Latin"
	Latin1Supplement         = "Latin-1 Supplement"
	LatinExtendedA           = "Latin Extended-A"
	LatinExtendedB           = "Latin Extended-B"
	IPAExtensions            = "IPA Extensions"
	SpacingModifiers         = "Spacing Modifier Letters"
	CombiningDiacriticals    = "Combining Diacritical Marks"
	GreekCoptic              = "Greek and Coptic"
	Cyrillic                 = "Cyrillic"
	Armenian                 = "Armenian"
	Hebrew                   = "Hebrew"
	Arabic                   = "Arabic"
	Devanagari               = "Devanagari"
	Bengali                  = "Bengali"
	Tamil                    = "Tamil"
	Thai                     = "Thai"
	Georgian                 = "Georgian"
	HangulJamo               = "Hangul Jamo"
	LatinExtendedAdditional  = "Latin Extended Additional"
	GreekExtended            = "Greek Extended"
	GeneralPunctuation       = "General Punctuation"
	CurrencySymbols          = "Currency Symbols"
	CJKSymbolsPunctuation    = "CJK Symbols and Punctuation"
	Hiragana                 = "Hiragana"
	Katakana                 = "Katakana"
	HangulCompatibilityJamo  = "Hangul Compatibility Jamo"
	CJKUnifiedIdeographs     = "CJK Unified Ideographs"
	HangulSyllables          = "Hangul Syllables"
	AlphabeticPresentation   = "Alphabetic Presentation Forms"
	ArabicPresentationFormsA = "Arabic Presentation Forms-A"
	ArabicPresentationFormsB = "Arabic Presentation Forms-B"
	HalfwidthFullwidthForms  = "Halfwidth and Fullwidth Forms"
)

// blocks is sorted by Lo and non-overlapping.
var blocks = []Block{
	{BasicLatin, 0x0000, 0x007F},
	{Latin1Supplement, 0x0080, 0x00FF},
	{LatinExtendedA, 0x0100, 0x017F},
	{LatinExtendedB, 0x0180, 0x024F},
	{IPAExtensions, 0x0250, 0x02AF},
	{SpacingModifiers, 0x02B0, 0x02FF},
	{CombiningDiacriticals, 0x0300, 0x036F},
	{GreekCoptic, 0x0370, 0x03FF},
	{Cyrillic, 0x0400, 0x04FF},
	{Armenian, 0x0530, 0x058F},
	{Hebrew, 0x0590, 0x05FF},
	{Arabic, 0x0600, 0x06FF},
	{Devanagari, 0x0900, 0x097F},
	{Bengali, 0x0980, 0x09FF},
	{Tamil, 0x0B80, 0x0BFF},
	{Thai, 0x0E00, 0x0E7F},
	{Georgian, 0x10A0, 0x10FF},
	{HangulJamo, 0x1100, 0x11FF},
	{LatinExtendedAdditional, 0x1E00, 0x1EFF},
	{GreekExtended, 0x1F00, 0x1FFF},
	{GeneralPunctuation, 0x2000, 0x206F},
	{CurrencySymbols, 0x20A0, 0x20CF},
	{CJKSymbolsPunctuation, 0x3000, 0x303F},
	{Hiragana, 0x3040, 0x309F},
	{Katakana, 0x30A0, 0x30FF},
	{HangulCompatibilityJamo, 0x3130, 0x318F},
	{CJKUnifiedIdeographs, 0x4E00, 0x9FFF},
	{HangulSyllables, 0xAC00, 0xD7AF},
	{AlphabeticPresentation, 0xFB00, 0xFB4F},
	{ArabicPresentationFormsA, 0xFB50, 0xFDFF},
	{ArabicPresentationFormsB, 0xFE70, 0xFEFF},
	{HalfwidthFullwidthForms, 0xFF00, 0xFFEF},
}

// BlockOf returns the name of the block containing r, or BlockOther.
func BlockOf(r rune) string {
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].Hi >= r })
	if i < len(blocks) && blocks[i].Lo <= r {
		return blocks[i].Name
	}
	return BlockOther
}

// Blocks returns a copy of the block table.
func Blocks() []Block {
	return append([]Block(nil), blocks...)
}

// DistinctRunes returns the distinct renderable code points of text in first
// appearance order after NFC normalization. Whitespace and control
// characters need no glyph and are skipped.
func DistinctRunes(text string) []rune {
	seen := make(map[rune]struct{})
	var out []rune
	for _, r := range norm.NFC.String(text) {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// RequiredBlocks maps each distinct rune onto its block.
func RequiredBlocks(runes []rune) map[string]struct{} {
	out := make(map[string]struct{}, len(runes))
	for _, r := range runes {
		out[BlockOf(r)] = struct{}{}
	}
	return out
}
