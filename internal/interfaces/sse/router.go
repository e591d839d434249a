package sse

import (
	"github.com/gin-gonic/gin"

	"go-notification-realtime/internal/infrastructure/auth"
	"go-notification-realtime/internal/infrastructure/hub"
	"go-notification-realtime/internal/infrastructure/logger"
)

func InitSSERouter(logger logger.Logger, hubInstance *hub.Hub, tokens *auth.TokenService, rg *gin.RouterGroup) {
	sseHandler := NewServerSentEventHandler(hubInstance, tokens, logger)

	// SSE connection endpoint
	sseGroup := rg.Group("/sse")
	sseGroup.GET("/:channel/:user_id", sseHandler.Connect)

	apiGroup := rg.Group("/api/v1/sse")
	apiGroup.GET("/connections", sseHandler.GetConnections)
}
