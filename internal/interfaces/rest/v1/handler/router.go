package handler

import (
	"github.com/gin-gonic/gin"

	"go-notification-realtime/internal/application/facade"
	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/interfaces/rest/v1/middleware"
)

// InitEventRouter registers the publish endpoints behind limiter.
func InitEventRouter(logger logger.Logger, service *facade.NotificationService, limiter *middleware.RateLimiter, rg *gin.RouterGroup) {
	eventHandler := NewEventHandler(service, logger)

	apiGroup := rg.Group("/api/v1")
	if limiter != nil {
		apiGroup.Use(limiter.Handler())
	}
	apiGroup.POST("/events", eventHandler.PublishEvent)
	apiGroup.POST("/notifications", eventHandler.PublishNotification)
}
