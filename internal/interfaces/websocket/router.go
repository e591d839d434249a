package websocket

import (
	"github.com/gin-gonic/gin"

	"go-notification-realtime/internal/infrastructure/auth"
	"go-notification-realtime/internal/infrastructure/hub"
	"go-notification-realtime/internal/infrastructure/logger"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(logger logger.Logger, hubInstance *hub.Hub, tokens *auth.TokenService, rg *gin.RouterGroup) {
	wsHandler := NewWebSocketHandler(hubInstance, tokens, logger)

	// WebSocket connection endpoint
	wsGroup := rg.Group("/ws")
	wsGroup.GET("/:channel/:user_id", wsHandler.Connect)

	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
