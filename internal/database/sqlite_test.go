package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseConversationBlobs(t *testing.T, blobs ConversationBlobs) {
	ctx := context.Background()

	_, err := blobs.LoadConversation(ctx, "telegram:1")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, blobs.SaveConversation(ctx, "telegram:1", []byte(`{"stage":"ValidateParams"}`)))
	require.NoError(t, blobs.SaveConversation(ctx, "telegram:1", []byte(`{"stage":"ReceiveInput"}`)))
	require.NoError(t, blobs.SaveConversation(ctx, "http:42", []byte(`{}`)))

	state, err := blobs.LoadConversation(ctx, "telegram:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"ReceiveInput"}`, string(state))

	require.NoError(t, blobs.DeleteConversation(ctx, "telegram:1"))
	_, err = blobs.LoadConversation(ctx, "telegram:1")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = blobs.LoadConversation(ctx, "http:42")
	assert.NoError(t, err)
}

func TestSQLiteConversationBlobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "conversations.db")
	blobs, err := OpenSQLite(context.Background(), path, nil)
	require.NoError(t, err)
	defer blobs.Close()

	exerciseConversationBlobs(t, blobs)
}

func TestSQLiteConversationBlobsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "conversations.db")

	blobs, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, blobs.SaveConversation(ctx, "telegram:7", []byte(`{"intent":"DeleteTask"}`)))
	require.NoError(t, blobs.Close())

	reopened, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	state, err := reopened.LoadConversation(ctx, "telegram:7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"intent":"DeleteTask"}`, string(state))
}
