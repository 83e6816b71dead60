package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"llm-task-manager/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsReadTimeout  = 5 * time.Minute
	wsWriteTimeout = 10 * time.Second
	wsAuthPrefix   = "$AUTH "
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatWebSocketHandler handles GET /chat/ws
// WebSocket protocol:
// 1. Client sends: $AUTH <jwt-token>
// 2. Server answers AUTH_SUCCESS or ERROR: <reason> and closes
// 3. Every later text frame is one conversation turn; the server answers
// each with one JSON ReplyResponse
func (h *Handlers) ChatWebSocketHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.String("client_ip", c.ClientIP()), zap.Error(err))
		return
	}
	defer conn.Close()

	userID, err := h.authenticate(conn)
	if err != nil {
		h.logger.Info("websocket authentication failed", zap.Error(err))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("ERROR: %v", err)))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("AUTH_SUCCESS")); err != nil {
		return
	}

	connectionID := uuid.New().String()
	key := ConversationKey(userID)
	logger := h.logger.With(zap.String("connection_id", connectionID), zap.String("conversation", key))
	logger.Info("websocket session established")

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	turns := 0
	for {
		if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			return
		}
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket error", zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		text := strings.TrimSpace(string(message))
		if text == "" {
			continue
		}

		reply, err := h.machine.HandleText(c.Request.Context(), key, text)
		var response any = toReplyResponse(reply)
		if err != nil {
			logger.Error("turn failed", zap.Bool("executed", reply.Executed()), zap.Error(err))
			if !reply.Executed() {
				response = models.ErrorResponse{Error: "Conversation unavailable"}
			}
		}
		turns++

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(response); err != nil {
			logger.Warn("failed to write reply", zap.Error(err))
			break
		}
	}
	logger.Info("websocket session closed", zap.Int("turns", turns))
}

// authenticate waits for and validates the $AUTH message
func (h *Handlers) authenticate(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(30 * time.Second)); err != nil {
		return "", err
	}
	messageType, message, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("failed to read auth message: %w", err)
	}
	if messageType != websocket.TextMessage {
		return "", errors.New("expected text message for authentication")
	}

	token, ok := strings.CutPrefix(strings.TrimSpace(string(message)), wsAuthPrefix)
	if !ok || strings.TrimSpace(token) == "" {
		return "", errors.New("first message must be $AUTH <token>")
	}
	claims, err := h.jwtService.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		return "", errors.New("invalid token")
	}
	return claims.UserID, nil
}
