package api

import (
	"net/http"
	"time"

	"llm-task-manager/internal/middleware"
	"llm-task-manager/internal/models"
	"llm-task-manager/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRoutes configures all API routes. metrics may be nil.
func SetupRoutes(handlers *Handlers, jwtService *services.JWTService, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(handlers.logger))

	// Add CORS middleware
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
	})
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	router.POST("/auth/token", handlers.IssueTokenHandler)

	// WebSocket clients authenticate in-band with $AUTH <token>
	router.GET("/chat/ws", handlers.ChatWebSocketHandler)

	api := router.Group("/api")
	api.Use(middleware.JWTAuth(jwtService))
	{
		conversations := api.Group("/conversations")
		{
			conversations.POST("/messages", handlers.SendMessageHandler)
			conversations.POST("/voice", handlers.SendVoiceHandler)
			conversations.GET("/state", handlers.GetStateHandler)
			conversations.DELETE("/state", handlers.AbandonHandler)
		}

		api.GET("/tasks/:id", handlers.GetTaskHandler)
	}

	return router
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
