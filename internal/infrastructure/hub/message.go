package hub

import (
	"context"
	"time"

	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/envelope"
)

var validator = envelope.NewValidator()

// HandleInbound answers the control envelopes clients send on a
// bidirectional connection:
//
//	ping        -> pong to the sender, echoing data.timestamp
//	mark_read   -> notification_read to every connection of the user
//	get_metrics -> metrics_update with hub statistics to the sender
//
// Anything else is answered with an error_reply envelope.
func (h *Hub) HandleInbound(conn Connection, env envelope.Envelope) {
	h.metrics.inbound(env.Type)
	log := h.logger.WithFields(logger.Fields{
		"connection_id": conn.ID(),
		"user_id":       conn.UserID(),
		"type":          env.Type,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch env.Type {
	case envelope.TypePing:
		pong := envelope.NewBuilder(envelope.TypePong)
		if ts, ok := env.Data.Value("timestamp"); ok {
			pong.WithField("timestamp", ts)
		}
		err = h.SendToConnection(ctx, conn.ID(), pong.Build())

	case envelope.TypeMarkRead:
		if !env.Data.Has(envelope.KeyNotificationID) {
			err = h.SendToConnection(ctx, conn.ID(), ErrorEnvelope("invalid_request", "notification_id is required"))
			break
		}
		h.notificationsRead.Add(1)
		id, _ := env.Data.Value(envelope.KeyNotificationID)
		log.Debugf("notification %v marked as read", id)
		read := envelope.NewBuilder(envelope.TypeNotificationRead).
			WithField(envelope.KeyNotificationID, id).
			Build()
		err = h.SendToUser(ctx, conn.UserID(), read)

	case envelope.TypeGetMetrics:
		err = h.SendToConnection(ctx, conn.ID(), envelope.MetricsUpdate(h.Stats().Data()))

	default:
		log.Debug("ignoring unsupported inbound message")
		err = h.SendToConnection(ctx, conn.ID(), ErrorEnvelope("unsupported_type", "unsupported message type "+env.Type))
	}

	if err != nil {
		log.Warnf("failed to answer inbound message: %v", err)
	}
}

// ErrorEnvelope builds an error reply.
func ErrorEnvelope(code, message string) envelope.Envelope {
	return envelope.NewBuilder(envelope.TypeError).
		WithField("code", code).
		WithField("message", message).
		Build()
}

// ValidateOutbound checks an envelope before it is published.
func ValidateOutbound(env envelope.Envelope) error {
	return validator.Validate(env)
}
