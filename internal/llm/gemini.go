package llm

import (
	"context"
	"fmt"
	"strings"

	"llm-task-manager/internal/config"

	"google.golang.org/genai"
)

type geminiBackend struct {
	client      *genai.Client
	model       string
	temperature float32
}

func newGeminiBackend(ctx context.Context, cfg config.LLMConfig) (*geminiBackend, error) {
	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	model := cfg.GeminiModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &geminiBackend{client: client, model: model, temperature: float32(cfg.Temperature)}, nil
}

func (b *geminiBackend) complete(ctx context.Context, system, text string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(text), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(b.temperature),
		CandidateCount:    1,
	})
	if err != nil {
		return "", fmt.Errorf("Gemini generate content failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrNoChoices
	}
	content := resp.Text()
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
