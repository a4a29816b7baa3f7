// Package translate adds a post-completion translation pass over
// persisted transcript segments.
package translate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
)

// Translator converts a batch of texts into the target language,
// preserving order and count.
type Translator interface {
	Translate(ctx context.Context, texts []string, targetLang string) ([]string, error)
}

// OpenAITranslator batches segment texts through chat completion. The
// provider caps texts per call; larger inputs are split transparently.
type OpenAITranslator struct {
	client    *openai.Client
	model     string
	batchSize int
}

func NewOpenAITranslator(cfg config.ProviderConfig) *OpenAITranslator {
	batch := cfg.TranslateBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &OpenAITranslator{
		client:    openai.NewClient(cfg.OpenAIKey),
		model:     openai.GPT4oMini,
		batchSize: batch,
	}
}

func (t *OpenAITranslator) Translate(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(texts))
	for _, batch := range lo.Chunk(texts, t.batchSize) {
		translated, err := t.translateBatch(ctx, batch, targetLang)
		if err != nil {
			return nil, err
		}
		out = append(out, translated...)
	}
	return out, nil
}

func (t *OpenAITranslator) translateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	input, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("encode translation batch: %w", err)
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"You are a translation engine. Translate every string in the JSON array the user sends into %s. "+
						"Reply with only a JSON array of the translated strings, same length, same order.",
					targetLang),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: string(input),
			},
		},
	})
	if err != nil {
		return nil, apperr.Provider("translation request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.Provider("translation returned no choices", nil)
	}

	var translated []string
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &translated); err != nil {
		return nil, apperr.Provider("translation returned malformed output", err)
	}
	if len(translated) != len(texts) {
		return nil, apperr.Provider(
			fmt.Sprintf("translation returned %d texts for %d inputs", len(translated), len(texts)), nil)
	}
	return translated, nil
}

var _ Translator = (*OpenAITranslator)(nil)
