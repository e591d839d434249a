package facade

import (
	"context"
	"errors"
	"fmt"

	"go-notification-realtime/internal/infrastructure/hub"
	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/envelope"
)

var ErrInvalidEvent = errors.New("invalid event")

// Publisher delivers envelopes to the connections selected by a target.
type Publisher interface {
	Publish(ctx context.Context, target hub.Target, env envelope.Envelope) error
}

// NotificationService turns business events into envelopes and publishes
// them.
type NotificationService struct {
	publisher Publisher
	logger    logger.Logger
}

func NewNotificationService(publisher Publisher, logger logger.Logger) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		logger:    logger.WithField("service", "notification"),
	}
}

// Notify sends a generic notification. Severity falls back to "info".
func (s *NotificationService) Notify(ctx context.Context, target hub.Target, title, message, severity, actionURL string) error {
	if title == "" && message == "" {
		return fmt.Errorf("%w: notification needs a title or a message", ErrInvalidEvent)
	}
	if severity == "" {
		severity = "info"
	}
	return s.Publish(ctx, target, envelope.Notification(title, message, severity, actionURL))
}

func (s *NotificationService) StockAlert(ctx context.Context, target hub.Target, productName string, currentStock int) error {
	if productName == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidEvent)
	}
	if currentStock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidEvent)
	}
	return s.Publish(ctx, target, envelope.StockAlert(productName, currentStock))
}

func (s *NotificationService) PaymentReceived(ctx context.Context, target hub.Target, amount float64, method string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEvent)
	}
	return s.Publish(ctx, target, envelope.PaymentReceived(amount, method))
}

func (s *NotificationService) NewSale(ctx context.Context, target hub.Target, productName, customerName string, amount float64) error {
	if productName == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidEvent)
	}
	return s.Publish(ctx, target, envelope.NewSale(productName, customerName, amount))
}

func (s *NotificationService) MetricsUpdate(ctx context.Context, target hub.Target, metrics envelope.Data) error {
	return s.Publish(ctx, target, envelope.MetricsUpdate(metrics))
}

// Publish validates env and hands it to the publisher. Client control types
// cannot be published.
func (s *NotificationService) Publish(ctx context.Context, target hub.Target, env envelope.Envelope) error {
	if envelope.IsControl(env.Type) {
		return fmt.Errorf("%w: %s is a client control type", ErrInvalidEvent, env.Type)
	}
	if err := hub.ValidateOutbound(env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if err := s.publisher.Publish(ctx, target, env); err != nil {
		s.logger.Errorf("Failed to publish %s to %s: %v", env.Type, target, err)
		return err
	}

	s.logger.WithFields(logger.Fields{
		"type":   env.Type,
		"target": target.String(),
	}).Debug("event published")
	return nil
}
