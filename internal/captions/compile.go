package captions

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/fonts"
)

// charWidthFactor approximates an average glyph advance as a fraction of the font size.
const charWidthFactor = 0.6

type Align string

const (
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Line is one rendered text line of a cue.
type Line struct {
	Text    string
	Escaped string
	X       string
	Y       string
}

// Cue is a positioned caption with its background box.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
	Lines []Line
	Align Align
	BoxX  string
	BoxY  string
	BoxW  int
	BoxH  int
}

// SubtitleDescription is everything the render executor needs to burn captions.
type SubtitleDescription struct {
	Language  string
	Direction domain.Direction
	Script    string
	Shaping   bool
	Font      string
	Fallbacks []string
	FontFile  string
	Anchor    fonts.VerticalAnchor
	Style     StyleConfig
	Cues      []Cue
}

type Compiler struct {
	registry *fonts.Registry
}

func NewCompiler(registry *fonts.Registry) *Compiler {
	return &Compiler{registry: registry}
}

// Compile lays out segments using the font decision. Segments are normalized
// (sorted, overlaps trimmed) before layout and must then satisfy the track invariants.
func (c *Compiler) Compile(segments []domain.CaptionSegment, decision domain.FontDecision, style StyleConfig) (*SubtitleDescription, error) {
	cfg, err := c.registry.Language(decision.Language)
	if err != nil {
		return nil, err
	}
	normalized := domain.NormalizeSegments(segments)
	if err := domain.ValidateSegments(normalized); err != nil {
		return nil, err
	}
	style = style.withDefaults()

	desc := &SubtitleDescription{
		Language:  cfg.Code,
		Direction: cfg.Direction,
		Script:    cfg.Script,
		Shaping:   cfg.IsRTL() || cfg.Complex,
		Font:      decision.Primary,
		Fallbacks: append([]string(nil), decision.Fallbacks...),
		FontFile:  style.FontFile,
		Anchor:    cfg.VerticalAnchor(),
		Style:     style,
		Cues:      make([]Cue, 0, len(normalized)),
	}
	for i, seg := range normalized {
		desc.Cues = append(desc.Cues, layoutCue(i+1, seg, cfg, desc.Anchor, style))
	}
	return desc, nil
}

// EstimateWidth is the rendered width estimate for text: characters ×
// fontSize × 0.6, never below minWidth.
func EstimateWidth(text string, fontSize, minWidth int) int {
	w := int(math.Ceil(float64(utf8.RuneCountInString(text)) * float64(fontSize) * charWidthFactor))
	if w < minWidth {
		return minWidth
	}
	return w
}

// sideMargin is wider for complex scripts whose marks extend past the advance width.
func sideMargin(cfg fonts.LanguageConfig, style StyleConfig) int {
	m := style.SideMargin
	if cfg.Complex {
		m += style.FontSize / 4
	}
	return m
}

// edgeMargin is the distance between the caption block and the anchored edge.
func edgeMargin(cfg fonts.LanguageConfig, style StyleConfig) int {
	m := int(math.Round(float64(style.VideoHeight) * style.SafeAreaRatio))
	if cfg.Complex {
		m += style.FontSize / 5
	}
	return m
}

func layoutCue(index int, seg domain.CaptionSegment, cfg fonts.LanguageConfig, anchor fonts.VerticalAnchor, style StyleConfig) Cue {
	lines := wrap(seg.Text, style.MaxLineChars)
	lineHeight := int(math.Ceil(float64(style.FontSize) * style.LineSpacing))

	longest := ""
	for _, l := range lines {
		if utf8.RuneCountInString(l) > utf8.RuneCountInString(longest) {
			longest = l
		}
	}
	textW := EstimateWidth(longest, style.FontSize, style.MinBoxWidth)
	boxW := textW + 2*style.BoxPadding
	boxH := lineHeight*len(lines) + 2*style.BoxPadding

	cue := Cue{
		Index: index,
		Start: seg.Start,
		End:   seg.End,
		Text:  seg.Text,
		BoxW:  boxW,
		BoxH:  boxH,
	}

	margin := edgeMargin(cfg, style)
	var blockTop string
	if anchor == fonts.AnchorTop {
		blockTop = fmt.Sprintf("%d", margin)
		cue.BoxY = fmt.Sprintf("%d", margin-style.BoxPadding)
	} else {
		blockTop = fmt.Sprintf("h-%d", margin+lineHeight*len(lines))
		cue.BoxY = fmt.Sprintf("ih-%d", margin+lineHeight*len(lines)+style.BoxPadding)
	}

	if cfg.IsRTL() {
		side := sideMargin(cfg, style)
		cue.Align = AlignRight
		cue.BoxX = fmt.Sprintf("iw-%d", side+textW+style.BoxPadding)
		for i, l := range lines {
			cue.Lines = append(cue.Lines, Line{
				Text:    l,
				Escaped: EscapeFilterText(l),
				X:       fmt.Sprintf("w-text_w-%d", side),
				Y:       fmt.Sprintf("%s+%d", blockTop, i*lineHeight),
			})
		}
		return cue
	}

	cue.Align = AlignCenter
	cue.BoxX = fmt.Sprintf("(iw-%d)/2", boxW)
	for i, l := range lines {
		cue.Lines = append(cue.Lines, Line{
			Text:    l,
			Escaped: EscapeFilterText(l),
			X:       "(w-text_w)/2",
			Y:       fmt.Sprintf("%s+%d", blockTop, i*lineHeight),
		})
	}
	return cue
}

// wrap splits text on explicit newlines, then greedily on spaces so no line
// exceeds max runes where possible. Text without spaces (CJK, Thai) is split
// by rune count.
func wrap(text string, max int) []string {
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if max <= 0 || utf8.RuneCountInString(para) <= max {
			out = append(out, para)
			continue
		}
		words := strings.Fields(para)
		if len(words) == 1 {
			out = append(out, splitRunes(para, max)...)
			continue
		}
		line := ""
		for _, w := range words {
			switch {
			case line == "":
				line = w
			case utf8.RuneCountInString(line)+1+utf8.RuneCountInString(w) <= max:
				line += " " + w
			default:
				out = append(out, line)
				line = w
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitRunes(s string, max int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > max {
		out = append(out, string(runes[:max]))
		runes = runes[max:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
