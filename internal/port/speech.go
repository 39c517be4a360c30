package port

import (
	"context"

	"github.com/bnema/reelsub/internal/domain"
)

type STTRequest struct {
	Audio                  []byte
	Filename               string
	Language               string
	Model                  string
	Prompt                 string
	Temperature            float64
	ResponseFormat         string
	TimestampGranularities []string
}

type STTResponse struct {
	Text                string
	Language            string
	Confidence          *float64
	LanguageProbability *float64
	Duration            float64
	Words               []domain.Word
	Segments            []domain.TranscriptSegment
}

// SpeechToText returns domain.Transient-wrapped errors for failures worth retrying.
type SpeechToText interface {
	Transcribe(ctx context.Context, req STTRequest) (*STTResponse, error)
}

type Translator interface {
	Translate(ctx context.Context, texts []string, source, target string) ([]string, error)
}
