package captions

import (
	"fmt"
	"os"
	"strings"
)

// FilterGraph renders the description as a comma-separated ffmpeg video
// filter chain of drawbox and drawtext filters, one pair per cue line.
func (d *SubtitleDescription) FilterGraph() string {
	if len(d.Cues) == 0 {
		return "null"
	}
	s := d.Style
	var font string
	if d.FontFile != "" {
		font = "fontfile=" + EscapeFilterText(d.FontFile)
	} else {
		font = "font=" + EscapeFilterText(d.Font)
	}
	shaping := 0
	if d.Shaping {
		shaping = 1
	}

	var parts []string
	for _, cue := range d.Cues {
		enable := fmt.Sprintf("enable='between(t,%.3f,%.3f)'", cue.Start, cue.End)
		parts = append(parts, fmt.Sprintf("drawbox=x=%s:y=%s:w=%d:h=%d:color=%s:t=fill:%s",
			cue.BoxX, cue.BoxY, cue.BoxW, cue.BoxH, s.BoxColor, enable))
		for _, line := range cue.Lines {
			parts = append(parts, fmt.Sprintf(
				"drawtext=%s:text=%s:expansion=none:fontsize=%d:fontcolor=%s:borderw=%d:bordercolor=%s:text_shaping=%d:x=%s:y=%s:%s",
				font, line.Escaped, s.FontSize, s.FontColor, s.BorderWidth, s.BorderColor, shaping, line.X, line.Y, enable))
		}
	}
	return strings.Join(parts, ",\n")
}

// WriteFilterScript writes the filter graph to a temporary file in dir. The
// returned cleanup removes it and is safe to call more than once.
func (d *SubtitleDescription) WriteFilterScript(dir string) (string, func(), error) {
	f, err := os.CreateTemp(dir, "captions-*.filter")
	if err != nil {
		return "", func() {}, fmt.Errorf("create filter script: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.WriteString(d.FilterGraph()); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write filter script: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close filter script: %w", err)
	}
	return path, cleanup, nil
}
