// Package llm adapts hosted model APIs to the extraction and speech-to-text
// capabilities used by the capture pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-capture/internal/config"
	"github.com/dvloznov/finance-capture/internal/extraction"
)

// TranscribePrompt asks an audio-capable model for a plain transcript.
const TranscribePrompt = "Transcribe this voice note verbatim. Return only the transcript text, with no commentary."

// ErrEmptyTranscript is returned when speech-to-text produced no text.
var ErrEmptyTranscript = errors.New("llm: empty transcript")

// Transcriber turns a local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// NewCompleter builds the extraction capability selected by cfg.LLMProvider.
// It returns (nil, nil) for the "none" provider.
func NewCompleter(ctx context.Context, cfg *config.Config) (extraction.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAICompleter(NewOpenAIClient(cfg.OpenAIAPIKey, ""), cfg.OpenAITxnModel), nil
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("NewCompleter: %w", err)
		}
		return NewGeminiCompleter(client, cfg.GeminiModel), nil
	case config.ProviderNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("NewCompleter: unknown provider %q", cfg.LLMProvider)
}

// NewTranscriber builds the speech-to-text capability selected by
// cfg.STTProvider. It returns (nil, nil) for the "none" provider.
func NewTranscriber(ctx context.Context, cfg *config.Config) (Transcriber, error) {
	switch cfg.STTProvider {
	case config.ProviderOpenAI:
		return NewWhisperTranscriber(NewOpenAIClient(cfg.OpenAIAPIKey, ""), cfg.OpenAISTTModel), nil
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("NewTranscriber: %w", err)
		}
		return NewGeminiTranscriber(client, cfg.GeminiSTTModel), nil
	case config.ProviderNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("NewTranscriber: unknown provider %q", cfg.STTProvider)
}
