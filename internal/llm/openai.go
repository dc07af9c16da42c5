package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dvloznov/finance-capture/internal/extraction"
	openai "github.com/sashabaranov/go-openai"
)

// NewOpenAIClient creates a go-openai client. A non-empty baseURL overrides
// the API endpoint.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAICompleter implements extraction.Completer on chat completions.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer for the given chat model.
func NewOpenAICompleter(client *openai.Client, model string) *OpenAICompleter {
	return &OpenAICompleter{client: client, model: model}
}

// Complete sends prompt as a single user message in JSON-object mode.
func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.request(prompt))
	if err != nil {
		return "", fmt.Errorf("OpenAICompleter.Complete: create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", extraction.ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", extraction.ErrEmptyCompletion
	}
	return content, nil
}

func (o *OpenAICompleter) request(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		// go-openai drops a zero temperature from the request body.
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

// WhisperTranscriber implements speech-to-text on the audio transcription API.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber creates a transcriber for the given model.
func NewWhisperTranscriber(client *openai.Client, model string) *WhisperTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: client, model: model}
}

// Transcribe uploads the file at path and returns the recognised text.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("WhisperTranscriber.Transcribe: create transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
