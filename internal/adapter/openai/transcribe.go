package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
	"github.com/bnema/reelsub/internal/port"
)

const DefaultSTTModel = "whisper-1"

// SpeechToText implements port.SpeechToText over /audio/transcriptions.
type SpeechToText struct {
	*Client
}

func NewSpeechToText(opts Options) *SpeechToText {
	return &SpeechToText{Client: NewClient(opts, DefaultSTTModel)}
}

// transcriptionResponse is verbose_json. Confidence and language_probability
// come from compatible servers only; OpenAI omits them.
type transcriptionResponse struct {
	Text                string   `json:"text"`
	Language            string   `json:"language"`
	Duration            float64  `json:"duration"`
	Confidence          *float64 `json:"confidence"`
	LanguageProbability *float64 `json:"language_probability"`
	Words               []struct {
		Word        string   `json:"word"`
		Start       float64  `json:"start"`
		End         float64  `json:"end"`
		Probability *float64 `json:"probability"`
	} `json:"words"`
	Segments []struct {
		ID           int     `json:"id"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		Text         string  `json:"text"`
		AvgLogprob   float64 `json:"avg_logprob"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

func (s *SpeechToText) Transcribe(ctx context.Context, req port.STTRequest) (*port.STTResponse, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", domain.ErrInvalidRequest)
	}
	model := req.Model
	if model == "" {
		model = s.model
	}
	format := req.ResponseFormat
	if format == "" {
		format = "verbose_json"
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("openai: build form: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, fmt.Errorf("openai: build form: %w", err)
	}
	fields := [][2]string{
		{"model", model},
		{"response_format", format},
		{"temperature", strconv.FormatFloat(req.Temperature, 'f', -1, 64)},
	}
	if req.Language != "" {
		fields = append(fields, [2]string{"language", req.Language})
	}
	if req.Prompt != "" {
		fields = append(fields, [2]string{"prompt", req.Prompt})
	}
	for _, g := range req.TimestampGranularities {
		fields = append(fields, [2]string{"timestamp_granularities[]", g})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("openai: build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("openai: build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := s.do(httpReq)
	if err != nil {
		return nil, err
	}

	var decoded transcriptionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, malformed("decode transcription", err)
	}
	if strings.TrimSpace(decoded.Text) == "" && len(decoded.Segments) == 0 {
		return nil, malformed("transcription has no text", nil)
	}

	out := &port.STTResponse{
		Text:                strings.TrimSpace(decoded.Text),
		Language:            NormalizeLanguage(decoded.Language),
		Confidence:          decoded.Confidence,
		LanguageProbability: decoded.LanguageProbability,
		Duration:            decoded.Duration,
	}
	for _, w := range decoded.Words {
		conf := 1.0
		if w.Probability != nil {
			conf = *w.Probability
		}
		out.Words = append(out.Words, domain.Word{Text: strings.TrimSpace(w.Word), Start: w.Start, End: w.End, Confidence: conf})
	}
	for _, seg := range decoded.Segments {
		out.Segments = append(out.Segments, domain.TranscriptSegment{
			ID:         seg.ID,
			Start:      seg.Start,
			End:        seg.End,
			Text:       strings.TrimSpace(seg.Text),
			Confidence: segmentConfidence(seg.AvgLogprob, seg.NoSpeechProb),
		})
	}

	logger.Debug().
		Str("model", model).
		Str("language", out.Language).
		Int("segments", len(out.Segments)).
		Int("words", len(out.Words)).
		Msg("openai: transcription received")
	return out, nil
}

// segmentConfidence turns whisper's average log-probability into [0,1],
// discounted by the no-speech probability.
func segmentConfidence(avgLogprob, noSpeech float64) float64 {
	return domain.Clamp(math.Exp(avgLogprob)*(1-noSpeech), 0, 1)
}

var languageNames = func() map[string]string {
	names := make(map[string]string)
	namer := display.English.Languages()
	for _, code := range []string{
		"af", "ar", "bg", "bn", "ca", "cs", "da", "de", "el", "en", "es", "et", "fa", "fi", "fr",
		"he", "hi", "hr", "hu", "id", "it", "ja", "ko", "lt", "lv", "ms", "nl", "no", "pl", "pt",
		"ro", "ru", "sk", "sl", "sr", "sv", "sw", "ta", "th", "tl", "tr", "uk", "ur", "vi", "zh",
	} {
		names[strings.ToLower(namer.Name(language.MustParse(code)))] = code
	}
	return names
}()

// NormalizeLanguage maps whisper's language names ("vietnamese") and BCP 47
// codes ("vi", "pt-BR") onto a base language code.
func NormalizeLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if code, ok := languageNames[s]; ok {
		return code
	}
	if tag, err := language.Parse(s); err == nil {
		base, _ := tag.Base()
		return base.String()
	}
	return s
}

var _ port.SpeechToText = (*SpeechToText)(nil)
