package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-notification-realtime/internal/application/facade"
	"go-notification-realtime/internal/infrastructure/auth"
	"go-notification-realtime/internal/infrastructure/hub"
	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/interfaces/rest/v1/handler"
	"go-notification-realtime/internal/interfaces/rest/v1/middleware"
	"go-notification-realtime/internal/interfaces/sse"
	"go-notification-realtime/internal/interfaces/websocket"
)

type routerDeps struct {
	hub      *hub.Hub
	service  *facade.NotificationService
	tokens   *auth.TokenService
	limiter  *middleware.RateLimiter
	registry *prometheus.Registry
}

func InitRouter(deps routerDeps, log logger.Logger) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	// Health check endpoint
	rootGroup.GET("/hub/status", func(c *gin.Context) {
		stats := deps.hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"hub_running": deps.hub.IsRunning(),
			"stats":       stats.Data(),
		})
	})

	if deps.registry != nil {
		rootGroup.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{})))
	}

	handler.InitEventRouter(log, deps.service, deps.limiter, rootGroup)
	sse.InitSSERouter(log, deps.hub, deps.tokens, rootGroup)
	websocket.InitWebSocketRouter(log, deps.hub, deps.tokens, rootGroup)

	return router
}
