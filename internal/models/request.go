package models

import "github.com/golang-jwt/jwt/v5"

// AuthRequest represents the request body for /auth/token
type AuthRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	UserName string `json:"user_name"`
}

// AuthResponse represents the response for /auth/token
type AuthResponse struct {
	Token string `json:"token"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	jwt.RegisteredClaims
}

// MessageRequest carries one text turn
type MessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// ReplyResponse is the outcome of one conversation turn
type ReplyResponse struct {
	Text    string   `json:"text"`
	Stage   string   `json:"stage"`
	Intent  string   `json:"intent,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Tasks   []Task   `json:"tasks,omitempty"`
	Defect  bool     `json:"defect,omitempty"`
}

// ConversationStateResponse exposes the stored dialogue state
type ConversationStateResponse struct {
	Key     string   `json:"key"`
	Stage   string   `json:"stage"`
	Intent  string   `json:"intent,omitempty"`
	TurnLog []string `json:"turnLog"`
	Params  string   `json:"params,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}
