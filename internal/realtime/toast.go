package realtime

import (
	"fmt"
	"strings"

	"go-notification-realtime/internal/realtime/envelope"
)

// Severity is the toast level.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ParseSeverity maps a free-form level to a Severity, falling back to info.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeveritySuccess:
		return SeveritySuccess
	case SeverityWarning:
		return SeverityWarning
	case SeverityError:
		return SeverityError
	default:
		return SeverityInfo
	}
}

// ToastAction is an optional navigation attached to a toast.
type ToastAction struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Toast is the payload of EventShowToast, shaped for a UI notification sink.
type Toast struct {
	Severity Severity     `json:"severity"`
	Title    string       `json:"title"`
	Message  string       `json:"message"`
	Action   *ToastAction `json:"action,omitempty"`
	// Source is the envelope type that produced the toast.
	Source envelope.Type `json:"source"`
}

func (t Toast) String() string {
	if t.Title == "" {
		return fmt.Sprintf("[%s] %s", t.Severity, t.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", t.Severity, t.Title, t.Message)
}

// toastBuilder derives the default toast for one business type.
type toastBuilder func(data envelope.Data) Toast

var builtinToasts = map[envelope.Type]toastBuilder{
	envelope.TypeNotification:    notificationToast,
	envelope.TypeStockAlert:      stockAlertToast,
	envelope.TypePaymentReceived: paymentReceivedToast,
	envelope.TypeNewSale:         newSaleToast,
}

func notificationToast(data envelope.Data) Toast {
	t := Toast{
		Severity: ParseSeverity(data.String(envelope.KeySeverity)),
		Title:    data.String(envelope.KeyTitle),
		Message:  data.String(envelope.KeyMessage),
		Source:   envelope.TypeNotification,
	}
	if url := data.String(envelope.KeyActionURL); url != "" {
		t.Action = &ToastAction{Label: "View", URL: url}
	}
	return t
}

func stockAlertToast(data envelope.Data) Toast {
	return Toast{
		Severity: SeverityWarning,
		Title:    "Low stock",
		Message: fmt.Sprintf("%s is running low: %s left in stock",
			data.String(envelope.KeyProductName), data.String(envelope.KeyCurrentStock)),
		Source: envelope.TypeStockAlert,
	}
}

func paymentReceivedToast(data envelope.Data) Toast {
	return Toast{
		Severity: SeveritySuccess,
		Title:    "Payment received",
		Message: fmt.Sprintf("Payment of %s received via %s",
			data.String(envelope.KeyAmount), data.String(envelope.KeyPaymentMethod)),
		Source: envelope.TypePaymentReceived,
	}
}

func newSaleToast(data envelope.Data) Toast {
	return Toast{
		Severity: SeveritySuccess,
		Title:    "New sale",
		Message: fmt.Sprintf("%s sold to %s for %s",
			data.String(envelope.KeyProductName), data.String(envelope.KeyCustomerName), data.String(envelope.KeyAmount)),
		Source: envelope.TypeNewSale,
	}
}
