package providerevent

import (
	"time"

	"github.com/covacitrees/oms/internal/service/models/payment"
)

// ProviderEvent is a durably recorded payment outcome reported by a provider.
// The (Provider, ProviderTransactionID, Status) tuple is the idempotency key:
// redelivery of a tuple that is already recorded must be a no-op.
type ProviderEvent struct {
	ID                    int64            `json:"id"`
	Provider              payment.Provider `json:"provider"`
	ProviderTransactionID string           `json:"providerTransactionId"`
	Status                payment.Status   `json:"status"`
	Payload               []byte           `json:"-"`
	ReceivedAt            time.Time        `json:"receivedAt"`
}
