package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-notification-realtime/internal/infrastructure/auth"
	"go-notification-realtime/internal/infrastructure/hub"
	"go-notification-realtime/internal/infrastructure/logger"
)

// WebSocketHandler handles WebSocket connections and messages
type WebSocketHandler struct {
	hub      *hub.Hub
	tokens   *auth.TokenService
	logger   logger.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler instance. A nil
// token service disables authentication.
func NewWebSocketHandler(hubInstance *hub.Hub, tokens *auth.TokenService, logger logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hubInstance,
		tokens: tokens,
		logger: logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Channel access is guarded by tokens, not by origin.
				return true
			},
		},
	}
}

// Connect upgrades /ws/:channel/:user_id and serves the connection until
// either side closes it.
func (h *WebSocketHandler) Connect(c *gin.Context) {
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
		log.Warnf("Rejected WebSocket connection: %v", err)
		c.JSON(auth.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := hub.NewWebSocketConnection(uuid.NewString(), userID, channel, conn, h.hub.HandleInbound, h.logger)

	if err := h.hub.RegisterConnection(wsConn); err != nil {
		log.Errorf("Failed to register WebSocket connection: %v", err)
		wsConn.Close()
		<-wsConn.Done()
		return
	}

	log.Infof("WebSocket connection %s connected and registered", wsConn.ID())

	<-wsConn.Done()
	log.Infof("WebSocket connection %s disconnected", wsConn.ID())
}

// GetConnections returns information about WebSocket connections
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnectionsByType(hub.TypeWebSocket)
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
