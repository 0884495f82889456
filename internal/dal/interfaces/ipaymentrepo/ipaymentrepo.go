package ipaymentrepo

import (
	"context"

	"github.com/covacitrees/oms/internal/service/models/payment"
)

// IPaymentRepository is an interface for the payment postgres repository.
// Payments are inserted and transitioned, never deleted.
type IPaymentRepository interface {
	Insert(ctx context.Context, p payment.Payment) (payment.Payment, error)
	GetByID(ctx context.Context, id string) (*payment.Payment, error)
	GetByProviderTransaction(ctx context.Context, provider payment.Provider, providerTransactionID string) (*payment.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]payment.Payment, error)
	Update(ctx context.Context, p *payment.Payment) error
}
