// Package transcribe turns Ready media into transcripts: provider
// invocation, chunked transcription with merge, and the job
// orchestration around them.
package transcribe

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/storage"
)

// Result is one provider invocation's output. Segment times are
// relative to the start of the submitted audio.
type Result struct {
	Text             string
	DetectedLanguage string
	Segments         []model.Segment
}

// Provider is the external speech-to-text collaborator.
type Provider interface {
	Transcribe(ctx context.Context, audioKey string, quality model.Quality, languageHint string) (*Result, error)
}

// OpenAIProvider runs transcription through the Whisper API, streaming
// audio straight from object storage.
type OpenAIProvider struct {
	client  *openai.Client
	objects storage.ObjectStorage
	model   string
}

func NewOpenAIProvider(cfg config.ProviderConfig, objects storage.ObjectStorage) *OpenAIProvider {
	return &OpenAIProvider{
		client:  openai.NewClient(cfg.OpenAIKey),
		objects: objects,
		model:   cfg.OpenAIModel,
	}
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, audioKey string, quality model.Quality, languageHint string) (*Result, error) {
	stream, err := p.objects.GetStream(ctx, audioKey)
	if err != nil {
		return nil, apperr.Provider("fetch audio for transcription", err)
	}
	defer stream.Close()

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       p.model,
		Reader:      stream,
		FilePath:    audioKey,
		Language:    languageHint,
		Temperature: temperatureFor(quality),
		Format:      openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Timeout("transcription timed out", err)
		}
		return nil, apperr.Provider("transcription request failed", err)
	}

	result := &Result{
		Text:             resp.Text,
		DetectedLanguage: resp.Language,
		Segments:         make([]model.Segment, 0, len(resp.Segments)),
	}
	for i, seg := range resp.Segments {
		result.Segments = append(result.Segments, model.Segment{
			Index:        i,
			Text:         seg.Text,
			StartSeconds: seg.Start,
			EndSeconds:   seg.End,
		})
	}
	return result, nil
}

// temperatureFor maps the quality tier onto sampling temperature: the
// accurate tier decodes greedily, fast trades determinism for speed.
func temperatureFor(q model.Quality) float32 {
	switch q {
	case model.QualityAccurate:
		return 0
	case model.QualityBalanced:
		return 0.2
	default:
		return 0.4
	}
}

var _ Provider = (*OpenAIProvider)(nil)
