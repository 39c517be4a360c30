package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	NbStreams  int    `json:"nb_streams"`
}

type ProbeStream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	PixFmt     string `json:"pix_fmt"`
	RFrameRate string `json:"r_frame_rate"`
	Duration   string `json:"duration"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// ProbeResult is the subset of ffprobe's JSON output the pipeline relies on.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbePolicy bounds what the pipeline accepts as input media.
type ProbePolicy struct {
	MaxDurationSeconds float64
	VideoCodecs        []string
	RequireAudio       bool
}

var DefaultVideoCodecs = []string{"h264", "hevc", "vp8", "vp9", "av1", "mpeg4", "prores"}

const (
	oneKilobyte = 1024
	oneMegabyte = oneKilobyte * 1024
	oneGigabyte = oneMegabyte * 1024
)

func (p *ProbeResult) VideoStream() *ProbeStream {
	return p.firstStream("video")
}

func (p *ProbeResult) AudioStream() *ProbeStream {
	return p.firstStream("audio")
}

func (p *ProbeResult) firstStream(codecType string) *ProbeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == codecType {
			return &p.Streams[i]
		}
	}
	return nil
}

func (p *ProbeResult) Dimensions() (width, height int) {
	if vs := p.VideoStream(); vs != nil {
		return vs.Width, vs.Height
	}
	return 0, 0
}

// DurationSeconds prefers the container duration and falls back to the video stream.
func (p *ProbeResult) DurationSeconds() float64 {
	if d := ParseDuration(p.Format.Duration); d > 0 {
		return d
	}
	if vs := p.VideoStream(); vs != nil {
		return ParseDuration(vs.Duration)
	}
	return 0
}

// Validate applies the input policy. All violations are fatal for the job.
func (p *ProbeResult) Validate(policy ProbePolicy) error {
	vs := p.VideoStream()
	if vs == nil {
		return fmt.Errorf("%w: no video stream", ErrUnsupportedCodec)
	}
	codecs := policy.VideoCodecs
	if len(codecs) == 0 {
		codecs = DefaultVideoCodecs
	}
	if !slices.Contains(codecs, strings.ToLower(vs.CodecName)) {
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, vs.CodecName)
	}
	if policy.RequireAudio && p.AudioStream() == nil {
		return ErrMissingAudio
	}
	if policy.MaxDurationSeconds > 0 {
		if d := p.DurationSeconds(); d > policy.MaxDurationSeconds {
			return fmt.Errorf("%w: %s > %s", ErrDurationExceeded, FormatDuration(d), FormatDuration(policy.MaxDurationSeconds))
		}
	}
	return nil
}

func ParseFrameRate(fraction string) float64 {
	if fraction == "" || fraction == "0/0" {
		return 0
	}
	var num, den int
	if _, err := fmt.Sscanf(fraction, "%d/%d", &num, &den); err == nil && den > 0 {
		return float64(num) / float64(den)
	}
	return 0
}

func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "00:00"
	}
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

func ParseDuration(durationStr string) float64 {
	if durationStr == "" || durationStr == "N/A" {
		return 0
	}
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0
	}
	return duration
}

func FormatSize(bytes int64) string {
	if bytes < oneKilobyte {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < oneMegabyte {
		return fmt.Sprintf("%.1f KB", float64(bytes)/oneKilobyte)
	}
	if bytes < oneGigabyte {
		return fmt.Sprintf("%.1f MB", float64(bytes)/oneMegabyte)
	}
	return fmt.Sprintf("%.1f GB", float64(bytes)/oneGigabyte)
}
