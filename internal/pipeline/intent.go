package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"llm-task-manager/internal/llm"

	"go.uber.org/zap"
)

// Intent is the closed set of task-management operations a turn can request
type Intent string

const (
	CreateNewTask      Intent = "CreateNewTask"
	ModifyExistingTask Intent = "ModifyExistingTask"
	DeleteTask         Intent = "DeleteTask"
	QueryTasks         Intent = "QueryTasks"
)

// Intents lists every Intent
var Intents = []Intent{CreateNewTask, ModifyExistingTask, DeleteTask, QueryTasks}

// Valid reports whether i is one of the four intents
func (i Intent) Valid() bool {
	switch i {
	case CreateNewTask, ModifyExistingTask, DeleteTask, QueryTasks:
		return true
	}
	return false
}

// Classification labels returned by the LLM
const (
	LabelCreateNewTask      = "create new task"
	LabelModifyExistingTask = "modify existing task"
	LabelDeleteTask         = "delete task"
	LabelQueryTasks         = "query tasks"
	LabelNoApparentIntent   = "no apparent intent"
)

var (
	// ErrNoApparentIntent means the classifier saw no task-management request
	ErrNoApparentIntent = errors.New("no apparent intent")
	// ErrClassificationFailed covers every other unusable classifier response
	ErrClassificationFailed = errors.New("intent classification failed")
)

// Classifier maps free text to an Intent with a single LLM prompt
type Classifier struct {
	client      llm.Client
	instruction string
	logger      *zap.Logger
}

// NewClassifier creates a classifier using the given system instruction
func NewClassifier(client llm.Client, instruction string, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		client:      client,
		instruction: instruction,
		logger:      logger.Named("classifier"),
	}
}

type classification struct {
	Intent *string `json:"intent"`
}

// Identify classifies text. The returned label is matched exactly; anything
// unrecognised is ErrClassificationFailed, never a default intent.
func (c *Classifier) Identify(ctx context.Context, text string) (Intent, error) {
	raw, err := c.client.PromptWithSystemInstruction(ctx, text, c.instruction)
	if err != nil {
		c.logger.Warn("classification prompt failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrClassificationFailed, err)
	}

	var parsed classification
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &parsed); err != nil || parsed.Intent == nil {
		c.logger.Warn("unparsable classification", zap.String("response", preview(raw)))
		return "", fmt.Errorf("%w: unparsable response %q", ErrClassificationFailed, preview(raw))
	}

	intent, err := intentForLabel(*parsed.Intent)
	if err != nil {
		c.logger.Info("classification rejected", zap.String("label", *parsed.Intent), zap.Error(err))
		return "", err
	}
	c.logger.Debug("classified", zap.String("intent", string(intent)))
	return intent, nil
}

func intentForLabel(label string) (Intent, error) {
	switch label {
	case LabelCreateNewTask:
		return CreateNewTask, nil
	case LabelModifyExistingTask:
		return ModifyExistingTask, nil
	case LabelDeleteTask:
		return DeleteTask, nil
	case LabelQueryTasks:
		return QueryTasks, nil
	case LabelNoApparentIntent:
		return "", ErrNoApparentIntent
	default:
		return "", fmt.Errorf("%w: unrecognised label %q", ErrClassificationFailed, label)
	}
}

// stripCodeFences removes a surrounding markdown code fence if present
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
		return strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		return strings.TrimSpace(s)
	}
	return s
}

func preview(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
