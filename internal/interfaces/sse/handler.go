package sse

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-notification-realtime/internal/infrastructure/auth"
	"go-notification-realtime/internal/infrastructure/hub"
	"go-notification-realtime/internal/infrastructure/logger"
)

type ServerSentEventHandler struct {
	hub    *hub.Hub
	tokens *auth.TokenService
	logger logger.Logger
}

func NewServerSentEventHandler(hubInstance *hub.Hub, tokens *auth.TokenService, logger logger.Logger) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:    hubInstance,
		tokens: tokens,
		logger: logger.WithField("handler", "sse"),
	}
}

// Connect streams the envelopes for /sse/:channel/:user_id until the client
// goes away. The stream is read-only; control messages need a websocket.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	channel, userID := c.Param("channel"), c.Param("user_id")
	log := h.logger.WithFields(logger.Fields{"channel": channel, "user_id": userID})

	if !h.hub.IsRunning() {
		log.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	if err := h.tokens.AuthorizeRequest(c.Request, userID, channel); err != nil {
		log.Warnf("Rejected SSE connection: %v", err)
		c.JSON(auth.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	conn := hub.NewSSEConnection(c.Request.Context(), uuid.NewString(), userID, channel, c.Writer, h.logger)

	if err := h.hub.RegisterConnection(conn); err != nil {
		log.Errorf("Failed to register connection: %v", err)
		_ = conn.Close()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register connection",
		})
		return
	}

	log.Infof("SSE connection %s connected and registered", conn.ID())
	conn.Serve()
	log.Infof("SSE connection %s disconnected", conn.ID())
}

// GetConnections returns information about SSE connections
func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnectionsByType(hub.TypeSSE)
	connectionInfo := make([]gin.H, len(connections))

	for i, conn := range connections {
		connectionInfo[i] = gin.H{
			"id":      conn.ID(),
			"type":    conn.Type(),
			"user_id": conn.UserID(),
			"channel": conn.Channel(),
			"closed":  conn.IsClosed(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connectionInfo,
		"hub_running":       h.hub.IsRunning(),
	})
}
