package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bnema/reelsub/internal/infrastructure/logger"
	"github.com/bnema/reelsub/internal/port"
)

const DefaultTranslationModel = "gpt-4o-mini"

const translationPrompt = "You translate video captions. Translate every string of the JSON array " +
	"in the user message from %s to %s. Keep the meaning short enough to read on screen. " +
	`Reply with a JSON object {"translations": [...]} holding exactly %d strings in the same order.`

// Translator implements port.Translator over /chat/completions.
type Translator struct {
	*Client
}

func NewTranslator(opts Options) *Translator {
	return &Translator{Client: NewClient(opts, DefaultTranslationModel)}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (t *Translator) Translate(ctx context.Context, texts []string, source, target string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("openai: encode texts: %w", err)
	}
	if source == "" {
		source = "the detected source language"
	}
	payload := chatRequest{
		Model: t.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(translationPrompt, source, target, len(texts))},
			{Role: "user", Content: string(input)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	raw, err := t.do(httpReq)
	if err != nil {
		return nil, err
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, malformed("decode chat completion", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, malformed("chat completion has no choices", nil)
	}
	var content struct {
		Translations []string `json:"translations"`
	}
	if err := json.Unmarshal([]byte(decoded.Choices[0].Message.Content), &content); err != nil {
		return nil, malformed("decode translations", err)
	}
	if len(content.Translations) != len(texts) {
		return nil, malformed(fmt.Sprintf("got %d translations for %d captions", len(content.Translations), len(texts)), nil)
	}
	for i, s := range content.Translations {
		content.Translations[i] = strings.TrimSpace(s)
	}

	logger.Debug().
		Str("model", t.model).
		Str("target", target).
		Int("count", len(texts)).
		Msg("openai: batch translated")
	return content.Translations, nil
}

var _ port.Translator = (*Translator)(nil)
