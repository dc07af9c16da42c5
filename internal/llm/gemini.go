package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/finance-capture/internal/extraction"
	"google.golang.org/genai"
)

// voiceMIMEType is the container Telegram uses for voice notes.
const voiceMIMEType = "audio/ogg"

// NewGeminiClient creates a genai client. Credentials and backend come from
// the environment (GEMINI_API_KEY, or GOOGLE_CLOUD_PROJECT for Vertex AI).
// A non-empty baseURL overrides the API endpoint.
func NewGeminiClient(ctx context.Context, baseURL string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{}
	if baseURL != "" {
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = "test"
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}
	return client, nil
}

// GeminiCompleter implements extraction.Completer on Gemini.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates a completer for the given model.
func NewGeminiCompleter(client *genai.Client, model string) *GeminiCompleter {
	return &GeminiCompleter{client: client, model: model}
}

// Complete sends prompt as a single user message and asks for a JSON reply.
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("GeminiCompleter.Complete: generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", extraction.ErrEmptyCompletion
	}
	return text, nil
}

// GeminiTranscriber implements speech-to-text with Gemini audio understanding.
type GeminiTranscriber struct {
	client *genai.Client
	model  string
}

// NewGeminiTranscriber creates a transcriber for the given model.
func NewGeminiTranscriber(client *genai.Client, model string) *GeminiTranscriber {
	return &GeminiTranscriber{client: client, model: model}
}

// Transcribe uploads the audio file inline together with a transcription prompt.
func (g *GeminiTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("GeminiTranscriber.Transcribe: read audio: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(TranscribePrompt),
			genai.NewPartFromBytes(audio, voiceMIMEType),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("GeminiTranscriber.Transcribe: generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
