package outbox

import (
	"time"
)

// Event routing keys for order notifications consumed by the external
// email/notification dispatcher.
const (
	RoutingKeyOrderPaid    = "oms.order.paid"
	RoutingKeyOrderShipped = "oms.order.shipped"
)

// OutboxMessage represents a notification event waiting to be published to
// RabbitMQ. Rows are written in the same transaction as the state change
// they announce and published by the outbox worker.
type OutboxMessage struct {
	ID           int64
	ExchangeName string
	RoutingKey   string
	Payload      []byte
	ContentType  string
	RetryCount   int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextRetryAt  time.Time
}
