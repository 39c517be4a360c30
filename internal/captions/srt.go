package captions

import (
	"fmt"
	"io"
	"strings"
)

func formatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	msTotal := int(seconds*1000 + 0.5)
	hours := msTotal / 3_600_000
	msTotal %= 3_600_000
	minutes := msTotal / 60_000
	msTotal %= 60_000
	secs := msTotal / 1_000
	millis := msTotal % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// WriteSRT exports the compiled cues as SubRip text.
func (d *SubtitleDescription) WriteSRT(w io.Writer) error {
	var sb strings.Builder
	for i, cue := range d.Cues {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d\n", cue.Index)
		fmt.Fprintf(&sb, "%s --> %s\n", formatSRTTimestamp(cue.Start), formatSRTTimestamp(cue.End))
		for _, l := range cue.Lines {
			sb.WriteString(l.Text)
			sb.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
