package database

import (
	"context"
	"errors"

	"llm-task-manager/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrTaskNotFound is returned when no task has the requested id
	ErrTaskNotFound = errors.New("task not found")
	// ErrConversationNotFound is returned when no state is stored for a key
	ErrConversationNotFound = errors.New("conversation not found")
)

// TaskRepository persists tasks. Save inserts or replaces by id.
type TaskRepository interface {
	Save(ctx context.Context, task models.Task) (models.Task, error)
	RetrieveByID(ctx context.Context, id uuid.UUID) (models.Task, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (models.Task, error)
	Find(ctx context.Context, filter models.FieldFilter) ([]models.Task, error)
}

// ConversationBlobs stores serialised conversation state by conversation key
type ConversationBlobs interface {
	LoadConversation(ctx context.Context, key string) ([]byte, error)
	SaveConversation(ctx context.Context, key string, state []byte) error
	DeleteConversation(ctx context.Context, key string) error
}
