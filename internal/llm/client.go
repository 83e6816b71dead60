// Package llm wraps the chat completion backends behind a prompt-in, text-out
// capability.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"llm-task-manager/internal/config"

	"go.uber.org/zap"
)

// DefaultSystemPrompt is the base instruction sent with every prompt
const DefaultSystemPrompt = "You are managing a task assignment system. Provide all response as JSON objects only.\n" +
	"In the event of errors or uncertain outcome, return the empty JSON object."

var (
	// ErrNoUsableOutput means the backend answered without anything to use
	ErrNoUsableOutput = errors.New("no usable output from language model")
	// ErrNoChoices is returned when the backend generated no candidates
	ErrNoChoices = fmt.Errorf("%w: no choices generated", ErrNoUsableOutput)
	// ErrEmptyResponse is returned when the first candidate has no content
	ErrEmptyResponse = fmt.Errorf("%w: empty response", ErrNoUsableOutput)
)

// Client is the prompt capability consumed by the pipeline
type Client interface {
	// Prompt sends text with the base system prompt
	Prompt(ctx context.Context, text string) (string, error)
	// PromptWithSystemInstruction layers instruction over the base system prompt
	PromptWithSystemInstruction(ctx context.Context, text, instruction string) (string, error)
}

// completer is the single call each backend implements
type completer interface {
	complete(ctx context.Context, system, text string) (string, error)
}

// LatencyObserver receives the duration of every backend call
type LatencyObserver func(provider string, d time.Duration)

// Service implements Client over a backend
type Service struct {
	backend    completer
	provider   string
	basePrompt string
	timeout    time.Duration
	observe    LatencyObserver
	logger     *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithBasePrompt replaces DefaultSystemPrompt
func WithBasePrompt(prompt string) Option {
	return func(s *Service) {
		if prompt != "" {
			s.basePrompt = prompt
		}
	}
}

// WithLatencyObserver reports backend call durations
func WithLatencyObserver(observe LatencyObserver) Option {
	return func(s *Service) { s.observe = observe }
}

// New creates a Client for the configured provider
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger, opts ...Option) (*Service, error) {
	var (
		backend completer
		err     error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		backend = newOpenAIBackend(cfg)
	case config.ProviderGemini:
		backend, err = newGeminiBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
	return newService(backend, cfg.Provider, cfg.Timeout, logger, opts...), nil
}

func newService(backend completer, provider string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		backend:    backend,
		provider:   provider,
		basePrompt: DefaultSystemPrompt,
		timeout:    timeout,
		logger:     logger.Named("llm"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prompt sends text with the base system prompt
func (s *Service) Prompt(ctx context.Context, text string) (string, error) {
	return s.call(ctx, s.basePrompt, text)
}

// PromptWithSystemInstruction places instruction before the base system prompt
func (s *Service) PromptWithSystemInstruction(ctx context.Context, text, instruction string) (string, error) {
	return s.call(ctx, instruction+"\n"+s.basePrompt, text)
}

func (s *Service) call(ctx context.Context, system, text string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.backend.complete(ctx, system, text)
	elapsed := time.Since(start)
	if s.observe != nil {
		s.observe(s.provider, elapsed)
	}
	if err != nil {
		s.logger.Warn("completion failed",
			zap.String("provider", s.provider),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", err
	}
	s.logger.Debug("completion",
		zap.String("provider", s.provider),
		zap.Duration("elapsed", elapsed),
		zap.Int("response_len", len(out)))
	return out, nil
}
