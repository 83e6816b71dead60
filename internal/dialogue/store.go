package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"llm-task-manager/internal/database"
)

// ConversationStore keeps one State per conversation key. Load returns
// Idle() for unknown keys.
type ConversationStore interface {
	Load(ctx context.Context, key string) (State, error)
	Save(ctx context.Context, key string, state State) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps conversation state in process memory
type MemoryStore struct {
	states map[string]State
	mutex  sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Load implements ConversationStore
func (m *MemoryStore) Load(_ context.Context, key string) (State, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	state, ok := m.states[key]
	if !ok {
		return Idle(), nil
	}
	state.TurnLog = append([]string(nil), state.TurnLog...)
	return state, nil
}

// Save implements ConversationStore
func (m *MemoryStore) Save(_ context.Context, key string, state State) error {
	state.TurnLog = append([]string(nil), state.TurnLog...)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.states[key] = state
	return nil
}

// Delete implements ConversationStore
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.states, key)
	return nil
}

// BlobStore persists conversation state as JSON through a database backend
type BlobStore struct {
	blobs database.ConversationBlobs
}

// NewBlobStore wraps blobs, e.g. SQLite or MongoDB conversation storage
func NewBlobStore(blobs database.ConversationBlobs) *BlobStore {
	return &BlobStore{blobs: blobs}
}

// Load implements ConversationStore
func (b *BlobStore) Load(ctx context.Context, key string) (State, error) {
	data, err := b.blobs.LoadConversation(ctx, key)
	if errors.Is(err, database.ErrConversationNotFound) {
		return Idle(), nil
	}
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to decode conversation %s: %w", key, err)
	}
	return state, nil
}

// Save implements ConversationStore
func (b *BlobStore) Save(ctx context.Context, key string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", key, err)
	}
	return b.blobs.SaveConversation(ctx, key, data)
}

// Delete implements ConversationStore
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	return b.blobs.DeleteConversation(ctx, key)
}
