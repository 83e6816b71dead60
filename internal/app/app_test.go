package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"llm-task-manager/internal/config"
	"llm-task-manager/internal/dialogue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Provider:    config.ProviderOpenAI,
			OpenAIKey:   "sk-test",
			OpenAIModel: "gpt-3.5-turbo",
			Timeout:     time.Second,
		},
		Storage: config.StorageConfig{
			TaskStore:         config.StoreMemory,
			ConversationStore: config.StoreSQLite,
			SQLitePath:        filepath.Join(t.TempDir(), "conversations.db"),
		},
		JWT: config.JWTConfig{TTL: time.Hour},
	}
}

func TestBuildWiresComponents(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Machine)
	assert.NotNil(t, a.TaskService)
	assert.NotNil(t, a.Metrics)
	assert.NotEmpty(t, a.Prompts.ClassificationInstruction)

	token, err := a.JWT.GenerateToken("u1", "")
	require.NoError(t, err)
	_, err = a.JWT.ValidateToken(token)
	assert.NoError(t, err)

	state, err := a.Machine.State(context.Background(), "http:u1")
	require.NoError(t, err)
	assert.Equal(t, dialogue.ReceiveInput, state.Stage)
}

func TestBuildFailsOnBadPromptsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prompts.File = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}
