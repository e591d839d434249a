package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-notification-realtime/internal/application/facade"
	"go-notification-realtime/internal/infrastructure/hub"
	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/envelope"
)

type EventHandler struct {
	service *facade.NotificationService
	logger  logger.Logger
}

// EventRequest publishes one envelope. Empty user_id or channel widens the
// audience to every user or every channel.
type EventRequest struct {
	Type    string         `json:"type" binding:"required"`
	Data    map[string]any `json:"data"`
	UserID  string         `json:"user_id"`
	Channel string         `json:"channel"`
}

type NotificationRequest struct {
	Title     string `json:"titre"`
	Message   string `json:"message"`
	Severity  string `json:"type"`
	ActionURL string `json:"action_url"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
}

func NewEventHandler(service *facade.NotificationService, logger logger.Logger) *EventHandler {
	return &EventHandler{
		service: service,
		logger:  logger.WithField("handler", "events"),
	}
}

// PublishEvent handles POST /api/v1/events.
func (h *EventHandler) PublishEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event format",
		})
		return
	}

	target := hub.Target{UserID: req.UserID, Channel: req.Channel}
	env := envelope.New(req.Type, req.Data)
	if err := h.service.Publish(c.Request.Context(), target, env); err != nil {
		h.fail(c, err)
		return
	}

	h.accepted(c, env, target)
}

// PublishNotification handles POST /api/v1/notifications.
func (h *EventHandler) PublishNotification(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid notification format",
		})
		return
	}

	target := hub.Target{UserID: req.UserID, Channel: req.Channel}
	err := h.service.Notify(c.Request.Context(), target, req.Title, req.Message, req.Severity, req.ActionURL)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "published",
		"type":   envelope.TypeNotification,
		"target": target.String(),
	})
}

func (h *EventHandler) accepted(c *gin.Context, env envelope.Envelope, target hub.Target) {
	c.JSON(http.StatusAccepted, gin.H{
		"status":    "published",
		"type":      env.Type,
		"target":    target.String(),
		"timestamp": env.Timestamp.Format(envelope.TimestampLayout),
	})
}

func (h *EventHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, facade.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, hub.ErrNotRunning), errors.Is(err, hub.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		h.logger.Errorf("Failed to publish event: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to publish event"})
	}
}
