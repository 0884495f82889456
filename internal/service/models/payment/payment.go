package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/covacitrees/oms/internal/service/models/currency"
)

// Provider identifies an external payment processor.
type Provider string

const (
	ProviderCard         Provider = "card"
	ProviderWallet       Provider = "wallet"
	ProviderPaynet       Provider = "paynet"
	ProviderRunpay       Provider = "runpay"
	ProviderBankTransfer Provider = "bank_transfer"
)

var ErrInvalidProvider = errors.New("invalid payment provider")

func (p Provider) String() string {
	return string(p)
}

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderCard, ProviderWallet, ProviderPaynet, ProviderRunpay, ProviderBankTransfer:
		return Provider(s), nil
	default:
		return "", ErrInvalidProvider
	}
}

// Status is the ledger state of a payment attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid payment status %q", s)
	}
}

// Payment represents a single payment attempt against an order. Payments are
// never deleted, only transitioned, so the financial trail stays intact.
type Payment struct {
	ID                    string            `json:"id"`
	OrderID               string            `json:"orderId"`
	Provider              Provider          `json:"provider"`
	ProviderTransactionID string            `json:"providerTransactionId"`
	AmountCents           int64             `json:"amountCents"`
	Currency              currency.Currency `json:"currency"`
	Status                Status            `json:"status"`
	ProviderPayload       []byte            `json:"-"`
	FailureReason         string            `json:"failureReason,omitempty"`
	PaidAt                *time.Time        `json:"paidAt,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

// CanTransitionTo reports whether the ledger state machine permits moving
// from the current status to the target.
//
//	pending -> completed | failed
//	completed -> refunded
func (p *Payment) CanTransitionTo(target Status) bool {
	switch p.Status {
	case StatusPending:
		return target == StatusCompleted || target == StatusFailed
	case StatusCompleted:
		return target == StatusRefunded
	default:
		return false
	}
}
