package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"llm-task-manager/internal/database"
	"llm-task-manager/internal/dialogue"
	"llm-task-manager/internal/execution"
	"llm-task-manager/internal/llm/llmtest"
	"llm-task-manager/internal/models"
	"llm-task-manager/internal/pipeline"
	"llm-task-manager/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const classifyInstruction = "classify"

var (
	completeText = "create task: write report, due tomorrow, for Alice"
	partialText  = "create a task for Bob"
	responses    = map[string]map[bool]string{
		completeText: {
			true:  `{"intent":"create new task"}`,
			false: `{"intent":"CreateNewTask","params":{"description":"write report","due_date":"2025-03-02T00:00:00Z","assignee":"Alice"}}`,
		},
		partialText: {
			true:  `{"intent":"create new task"}`,
			false: `{"intent":"CreateNewTask","params":{"assignee":"Bob"}}`,
		},
	}
)

type transcript string

func (t transcript) Transcribe(context.Context, []byte, string) (string, error) {
	return string(t), nil
}

type testServer struct {
	router *gin.Engine
	jwt    *services.JWTService
	repo   *database.MemoryTaskRepository
}

func newTestServer(t *testing.T, issueTokens bool) *testServer {
	t.Helper()
	return newTestServerWithStore(t, issueTokens, dialogue.NewMemoryStore())
}

func newTestServerWithStore(t *testing.T, issueTokens bool, store dialogue.ConversationStore) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client := &llmtest.Client{Respond: func(text, instruction string) (string, error) {
		if out, ok := responses[text][instruction == classifyInstruction]; ok {
			return out, nil
		}
		return "", fmt.Errorf("unscripted %q", text)
	}}
	repo := database.NewMemoryTaskRepository()
	taskService := services.NewTaskService(repo)
	machine := dialogue.NewMachine(
		pipeline.NewClassifier(client, classifyInstruction, nil),
		pipeline.NewExtractor(client, "", nil),
		execution.NewRouter(taskService, nil),
		store,
		nil,
		dialogue.WithTranscriber(transcript(completeText)),
	)
	jwtService := services.NewJWTService("test-secret", time.Hour)
	metrics := services.NewTurnMetrics(nil, nil)
	handlers := NewHandlers(machine, taskService, jwtService, issueTokens, nil)
	return &testServer{
		router: SetupRoutes(handlers, jwtService, metrics.Handler()),
		jwt:    jwtService,
		repo:   repo,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.jwt.GenerateToken(userID, "")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.do(t, http.MethodPost, "/api/conversations/messages", models.MessageRequest{Text: completeText}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueToken(t *testing.T) {
	disabled := newTestServer(t, false)
	rec := disabled.do(t, http.MethodPost, "/auth/token", models.AuthRequest{UserID: "u1"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s := newTestServer(t, true)
	rec = s.do(t, http.MethodPost, "/auth/token", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/token", models.AuthRequest{UserID: "u1", UserName: "Alice"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	claims, err := s.jwt.ValidateToken(decode[models.AuthResponse](t, rec).Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
}

func TestSendMessageCreatesTask(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/conversations/messages", models.MessageRequest{Text: completeText}, "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	reply := decode[models.ReplyResponse](t, rec)
	assert.Equal(t, "ReceiveInput", reply.Stage)
	assert.Equal(t, "CreateNewTask", reply.Intent)
	require.Len(t, reply.Tasks, 1)
	assert.Equal(t, "Alice", reply.Tasks[0].Assignee)

	rec = s.do(t, http.MethodGet, "/api/tasks/"+reply.Tasks[0].ID.String(), nil, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "write report", decode[models.Task](t, rec).Description)
}

// noResetStore cannot delete conversations
type noResetStore struct{ *dialogue.MemoryStore }

func (noResetStore) Delete(context.Context, string) error {
	return fmt.Errorf("store down")
}

func TestExecutedMessageReportedDespiteStoreFailure(t *testing.T) {
	s := newTestServerWithStore(t, false, noResetStore{dialogue.NewMemoryStore()})

	rec := s.do(t, http.MethodPost, "/api/conversations/messages", models.MessageRequest{Text: completeText}, "u1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[models.ReplyResponse](t, rec)
	require.Len(t, reply.Tasks, 1)
	assert.Equal(t, "Alice", reply.Tasks[0].Assignee)

	rec = s.do(t, http.MethodPost, "/api/conversations/messages", models.MessageRequest{Text: "unscripted hello"}, "u1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSendMessageValidation(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.do(t, http.MethodPost, "/api/conversations/messages", map[string]string{"message": "hi"}, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationStatePerUser(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/conversations/messages", models.MessageRequest{Text: partialText}, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[models.ReplyResponse](t, rec)
	assert.Equal(t, "ValidateParams", reply.Stage)
	assert.Equal(t, []string{"description", "due_date"}, reply.Missing)

	rec = s.do(t, http.MethodGet, "/api/conversations/state", nil, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[models.ConversationStateResponse](t, rec)
	assert.Equal(t, "http:u1", state.Key)
	assert.Equal(t, "ValidateParams", state.Stage)
	assert.Equal(t, []string{partialText}, state.TurnLog)
	assert.Contains(t, state.Params, "assignee=Bob")

	rec = s.do(t, http.MethodGet, "/api/conversations/state", nil, "u2")
	other := decode[models.ConversationStateResponse](t, rec)
	assert.Equal(t, "ReceiveInput", other.Stage)
	assert.Empty(t, other.TurnLog)

	rec = s.do(t, http.MethodDelete, "/api/conversations/state", nil, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[models.ReplyResponse](t, rec).Text, "Cancelled")

	rec = s.do(t, http.MethodGet, "/api/conversations/state", nil, "u1")
	assert.Equal(t, "ReceiveInput", decode[models.ConversationStateResponse](t, rec).Stage)
}

func TestGetTaskErrors(t *testing.T) {
	s := newTestServer(t, false)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/tasks/not-a-uuid", nil, "u1").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/tasks/"+uuid.NewString(), nil, "u1").Code)
}

func TestSendVoice(t *testing.T) {
	s := newTestServer(t, false)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("audio", "note.ogg")
	require.NoError(t, err)
	_, err = part.Write([]byte("OggS"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	token, err := s.jwt.GenerateToken("u1", "")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/conversations/voice", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[models.ReplyResponse](t, rec)
	require.Len(t, reply.Tasks, 1)

	rec = s.do(t, http.MethodPost, "/api/conversations/voice", nil, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatWebSocket(t *testing.T) {
	s := newTestServer(t, false)
	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	token, err := s.jwt.GenerateToken("ws-user", "")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("$AUTH "+token)))
	_, ack, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "AUTH_SUCCESS", string(ack))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(partialText)))
	var reply models.ReplyResponse
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ValidateParams", reply.Stage)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("/cancel")))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ReceiveInput", reply.Stage)
}

func TestChatWebSocketRejectsBadToken(t *testing.T) {
	s := newTestServer(t, false)
	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("$AUTH nope")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(msg), "ERROR:"))
}
