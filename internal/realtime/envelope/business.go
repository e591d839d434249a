package envelope

// Payload keys understood by the built-in dispatcher handlers.
const (
	KeyTitle          = "titre"
	KeyMessage        = "message"
	KeySeverity       = "type"
	KeyActionURL      = "action_url"
	KeyProductName    = "product_name"
	KeyCurrentStock   = "current_stock"
	KeyAmount         = "amount"
	KeyPaymentMethod  = "payment_method"
	KeyCustomerName   = "customer_name"
	KeyNotificationID = "notification_id"
)

// Notification builds a generic user notification.
func Notification(title, message, severity, actionURL string) Envelope {
	b := NewBuilder(TypeNotification).
		WithField(KeyTitle, title).
		WithField(KeyMessage, message).
		WithField(KeySeverity, severity)
	if actionURL != "" {
		b.WithField(KeyActionURL, actionURL)
	}
	return b.Build()
}

// StockAlert reports a product running low.
func StockAlert(productName string, currentStock int) Envelope {
	return NewBuilder(TypeStockAlert).
		WithField(KeyProductName, productName).
		WithField(KeyCurrentStock, currentStock).
		Build()
}

// PaymentReceived reports an incoming payment.
func PaymentReceived(amount float64, method string) Envelope {
	return NewBuilder(TypePaymentReceived).
		WithField(KeyAmount, amount).
		WithField(KeyPaymentMethod, method).
		Build()
}

// NewSale reports a completed sale.
func NewSale(productName, customerName string, amount float64) Envelope {
	return NewBuilder(TypeNewSale).
		WithField(KeyProductName, productName).
		WithField(KeyCustomerName, customerName).
		WithField(KeyAmount, amount).
		Build()
}

// MetricsUpdate carries dashboard figures.
func MetricsUpdate(metrics Data) Envelope {
	return NewBuilder(TypeMetricsUpdate).WithData(metrics).Build()
}
