package captions

// StyleConfig controls caption appearance. Pixel values refer to the output frame.
type StyleConfig struct {
	FontSize     int
	FontColor    string
	BoxColor     string
	BoxPadding   int
	BorderWidth  int
	BorderColor  string
	LineSpacing  float64
	MaxLineChars int
	// SafeAreaRatio reserves this fraction of the frame height between the
	// caption and the anchored edge.
	SafeAreaRatio float64
	SideMargin    int
	MinBoxWidth   int
	VideoWidth    int
	VideoHeight   int
	FontFile      string
}

func DefaultStyle() StyleConfig {
	return StyleConfig{
		FontSize:      48,
		FontColor:     "white",
		BoxColor:      "black@0.55",
		BoxPadding:    12,
		BorderWidth:   2,
		BorderColor:   "black@0.8",
		LineSpacing:   1.25,
		MaxLineChars:  42,
		SafeAreaRatio: 0.08,
		SideMargin:    48,
		MinBoxWidth:   160,
		VideoWidth:    1080,
		VideoHeight:   1920,
	}
}

// withDefaults fills unset fields from DefaultStyle.
func (s StyleConfig) withDefaults() StyleConfig {
	d := DefaultStyle()
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if s.FontColor == "" {
		s.FontColor = d.FontColor
	}
	if s.BoxColor == "" {
		s.BoxColor = d.BoxColor
	}
	if s.BoxPadding < 0 {
		s.BoxPadding = 0
	}
	if s.BorderColor == "" {
		s.BorderColor = d.BorderColor
	}
	if s.LineSpacing <= 0 {
		s.LineSpacing = d.LineSpacing
	}
	if s.SafeAreaRatio <= 0 {
		s.SafeAreaRatio = d.SafeAreaRatio
	}
	if s.SideMargin <= 0 {
		s.SideMargin = d.SideMargin
	}
	if s.MinBoxWidth <= 0 {
		s.MinBoxWidth = d.MinBoxWidth
	}
	if s.VideoWidth <= 0 || s.VideoHeight <= 0 {
		s.VideoWidth, s.VideoHeight = d.VideoWidth, d.VideoHeight
	}
	return s
}
