package api

import (
	"errors"
	"io"
	"net/http"

	"llm-task-manager/internal/database"
	"llm-task-manager/internal/dialogue"
	"llm-task-manager/internal/middleware"
	"llm-task-manager/internal/models"
	"llm-task-manager/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxVoiceBytes caps uploaded voice notes (the Whisper API limit)
const MaxVoiceBytes = 25 << 20

// Handlers contains all HTTP handlers
type Handlers struct {
	machine     *dialogue.Machine
	taskService *services.TaskService
	jwtService  *services.JWTService
	issueTokens bool
	logger      *zap.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	machine *dialogue.Machine,
	taskService *services.TaskService,
	jwtService *services.JWTService,
	issueTokens bool,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		machine:     machine,
		taskService: taskService,
		jwtService:  jwtService,
		issueTokens: issueTokens,
		logger:      logger.Named("api"),
	}
}

// ConversationKey derives the conversation identity of an HTTP user
func ConversationKey(userID string) string {
	return "http:" + userID
}

// IssueTokenHandler handles POST /auth/token
func (h *Handlers) IssueTokenHandler(c *gin.Context) {
	if !h.issueTokens {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Not found"})
		return
	}

	var req models.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	token, err := h.jwtService.GenerateToken(req.UserID, req.UserName)
	if err != nil {
		h.logger.Error("failed to issue token", zap.String("user_id", req.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, models.AuthResponse{Token: token})
}

// SendMessageHandler handles POST /api/conversations/messages
func (h *Handlers) SendMessageHandler(c *gin.Context) {
	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	key := ConversationKey(middleware.GetUserID(c))
	reply, err := h.machine.HandleText(c.Request.Context(), key, req.Text)
	if err != nil {
		h.logger.Error("turn failed", zap.String("conversation", key), zap.Bool("executed", reply.Executed()), zap.Error(err))
		if !reply.Executed() {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Conversation unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, toReplyResponse(reply))
}

// SendVoiceHandler handles POST /api/conversations/voice (multipart field "audio")
func (h *Handlers) SendVoiceHandler(c *gin.Context) {
	header, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "audio file is required", Message: err.Error()})
		return
	}
	if header.Size > MaxVoiceBytes {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "audio file too large"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unreadable audio file", Message: err.Error()})
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(io.LimitReader(file, MaxVoiceBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unreadable audio file", Message: err.Error()})
		return
	}

	key := ConversationKey(middleware.GetUserID(c))
	reply, err := h.machine.HandleVoice(c.Request.Context(), key, audio, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Error("voice turn failed", zap.String("conversation", key), zap.Bool("executed", reply.Executed()), zap.Error(err))
		if !reply.Executed() {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Conversation unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, toReplyResponse(reply))
}

// GetStateHandler handles GET /api/conversations/state
func (h *Handlers) GetStateHandler(c *gin.Context) {
	key := ConversationKey(middleware.GetUserID(c))
	state, err := h.machine.State(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("failed to load conversation", zap.String("conversation", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Conversation unavailable"})
		return
	}

	response := models.ConversationStateResponse{
		Key:     key,
		Stage:   string(state.Stage),
		Intent:  string(state.Intent),
		TurnLog: state.TurnLog,
		Missing: state.Missing(),
	}
	if response.TurnLog == nil {
		response.TurnLog = []string{}
	}
	if state.Params != nil {
		response.Params = state.Params.String()
	}
	c.JSON(http.StatusOK, response)
}

// AbandonHandler handles DELETE /api/conversations/state
func (h *Handlers) AbandonHandler(c *gin.Context) {
	key := ConversationKey(middleware.GetUserID(c))
	reply, err := h.machine.Abandon(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("failed to reset conversation", zap.String("conversation", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Conversation unavailable"})
		return
	}
	c.JSON(http.StatusOK, toReplyResponse(reply))
}

// GetTaskHandler handles GET /api/tasks/:id
func (h *Handlers) GetTaskHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid task id"})
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), id)
	if errors.Is(err, database.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "task not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load task", zap.String("task_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load task"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func toReplyResponse(reply dialogue.Reply) models.ReplyResponse {
	response := models.ReplyResponse{
		Text:    reply.Text,
		Stage:   string(reply.Stage),
		Intent:  string(reply.Intent),
		Missing: reply.Missing,
		Defect:  reply.Defect,
	}
	if reply.Report != nil {
		response.Tasks = reply.Report.Tasks
	}
	return response
}
