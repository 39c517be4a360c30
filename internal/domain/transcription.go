package domain

import (
	"strings"
	"time"
)

type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type TranscriptSegment struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TranscribeOptions are the decoding options that take part in the cache key.
type TranscribeOptions struct {
	Model                  string   `json:"model"`
	Language               string   `json:"language,omitempty"`
	Prompt                 string   `json:"prompt,omitempty"`
	Temperature            float64  `json:"temperature"`
	ResponseFormat         string   `json:"responseFormat"`
	TimestampGranularities []string `json:"timestampGranularities"`
}

type TranscriptionRecord struct {
	CacheKey           string              `json:"cacheKey"`
	Text               string              `json:"text"`
	Words              []Word              `json:"words,omitempty"`
	Segments           []TranscriptSegment `json:"segments,omitempty"`
	Language           string              `json:"language"`
	LanguageConfidence float64             `json:"languageConfidence"`
	Confidence         float64             `json:"confidence"`
	QualityScore       float64             `json:"qualityScore"`
	Cost               float64             `json:"cost"`
	CacheHit           bool                `json:"cacheHit"`
	RetryCount         int                 `json:"retryCount"`
	DurationSeconds    float64             `json:"durationSeconds"`
	CreatedAt          time.Time           `json:"createdAt"`
	ExpiresAt          time.Time           `json:"expiresAt"`
}

// WordCount prefers word timestamps and falls back to whitespace splitting.
func (r *TranscriptionRecord) WordCount() int {
	if len(r.Words) > 0 {
		return len(r.Words)
	}
	return len(strings.Fields(r.Text))
}

// CaptionSegments converts transcript segments into caption segments.
func (r *TranscriptionRecord) CaptionSegments() []CaptionSegment {
	out := make([]CaptionSegment, 0, len(r.Segments))
	for _, seg := range r.Segments {
		conf := seg.Confidence
		out = append(out, CaptionSegment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       seg.Text,
			Language:   r.Language,
			Confidence: &conf,
		})
	}
	if len(out) == 0 && strings.TrimSpace(r.Text) != "" && r.DurationSeconds > 0 {
		out = append(out, CaptionSegment{Start: 0, End: r.DurationSeconds, Text: r.Text, Language: r.Language})
	}
	return NormalizeSegments(out)
}
