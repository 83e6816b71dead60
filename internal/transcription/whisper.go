// Package transcription turns recorded voice notes into text.
package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"llm-task-manager/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyTranscript is returned when the audio produced no text
var ErrEmptyTranscript = errors.New("transcription produced no text")

// Transcriber converts audio bytes to text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Whisper transcribes through the OpenAI audio API
type Whisper struct {
	client *openai.Client
	model  string
}

// NewWhisper creates a Whisper transcriber sharing the OpenAI credentials
func NewWhisper(llm config.LLMConfig, cfg config.TranscriptionConfig) *Whisper {
	clientConfig := openai.DefaultConfig(llm.OpenAIKey)
	if llm.OpenAIURL != "" {
		clientConfig.BaseURL = llm.OpenAIURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{client: openai.NewClientWithConfig(clientConfig), model: model}
}

// Transcribe sends audio to Whisper. filename carries the container format
// (e.g. voice.ogg) and defaults to voice.ogg.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "voice.ogg"
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
