package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"llm-task-manager/internal/llm"
	"llm-task-manager/internal/validation"

	"go.uber.org/zap"
)

// ErrExtractionFailed means no response could be obtained from the LLM
var ErrExtractionFailed = errors.New("parameter extraction failed")

// DeserializationError carries a response that could not be parsed into an Extraction
type DeserializationError struct {
	Intent Intent
	Raw    string
	Err    error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("failed to deserialize %s parameters: %v (response preview: %s)", e.Intent, e.Err, preview(e.Raw))
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// DefaultExtractionInstruction introduces the schema in the system instruction
const DefaultExtractionInstruction = "You will be provided text content to parse for input parameters, per the following schema:"

// Extractor pulls a possibly partial parameter set for a known intent out of free text
type Extractor struct {
	client      llm.Client
	instruction string
	now         func() time.Time
	logger      *zap.Logger
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithClock sets the clock used to date relative expressions like "tomorrow"
func WithClock(now func() time.Time) ExtractorOption {
	return func(x *Extractor) { x.now = now }
}

// NewExtractor creates an extractor. instruction precedes the generated schema.
func NewExtractor(client llm.Client, instruction string, logger *zap.Logger, opts ...ExtractorOption) *Extractor {
	if instruction == "" {
		instruction = DefaultExtractionInstruction
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	x := &Extractor{
		client:      client,
		instruction: instruction,
		now:         time.Now,
		logger:      logger.Named("extractor"),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// dateLine anchors relative dates in the user's text to today
func dateLine(now time.Time) string {
	today := now.UTC()
	return fmt.Sprintf("Today is %s, %s (UTC). Resolve relative dates such as \"tomorrow\" or \"Friday\" against it and write every timestamp in RFC 3339.",
		today.Weekday(), today.Format(time.DateOnly))
}

// SystemInstruction builds the schema-bearing instruction for intent, dated today
func (x *Extractor) SystemInstruction(intent Intent) (string, error) {
	schema, err := SchemaJSON(intent)
	if err != nil {
		return "", err
	}
	return dateLine(x.now()) + "\n" + x.instruction + "\n" + string(schema), nil
}

// Extract asks the LLM for intent's parameters in text. Partial answers are
// valid results; completeness is not checked here.
func (x *Extractor) Extract(ctx context.Context, intent Intent, text string) (Extraction, error) {
	instruction, err := x.SystemInstruction(intent)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	raw, err := x.client.PromptWithSystemInstruction(ctx, text, instruction)
	if err != nil {
		x.logger.Warn("extraction prompt failed", zap.String("intent", string(intent)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	doc := stripCodeFences(raw)
	schema, _ := SchemaJSON(intent)
	if err := validation.ValidateDocument(doc, schema); err != nil {
		x.logger.Info("extraction failed schema validation", zap.String("intent", string(intent)), zap.Error(err))
		return nil, &DeserializationError{Intent: intent, Raw: raw, Err: err}
	}

	extraction, err := DecodeExtraction([]byte(doc))
	if err != nil {
		return nil, &DeserializationError{Intent: intent, Raw: raw, Err: err}
	}
	x.logger.Debug("extracted", zap.String("intent", string(intent)), zap.Stringer("params", extraction))
	return extraction, nil
}
