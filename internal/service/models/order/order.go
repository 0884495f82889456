package order

import (
	"fmt"
	"time"

	"github.com/covacitrees/oms/internal/service/models/currency"
	"github.com/covacitrees/oms/internal/service/models/orderitem"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusProcessing      Status = "processing"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

// PaymentStatus is the financial state of an order, updated only by the
// reconciliation flow or an explicit admin override.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusPartial  PaymentStatus = "partial"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// ParseStatus parses a fulfillment status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusAwaitingPayment, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid order status %q", s)
	}
}

// ParsePaymentStatus parses a financial status string.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusPartial, PaymentStatusRefunded, PaymentStatusFailed:
		return PaymentStatus(s), nil
	default:
		return "", fmt.Errorf("invalid payment status %q", s)
	}
}

// Customer identifies who placed the order: a registered user or a guest.
// Exactly one of UserID or the guest fields is present.
type Customer struct {
	UserID     string `json:"userId,omitempty"`
	GuestName  string `json:"guestName,omitempty"`
	GuestEmail string `json:"guestEmail,omitempty"`
}

// IsGuest reports whether the order belongs to an unregistered customer.
func (c Customer) IsGuest() bool {
	return c.UserID == ""
}

// Email returns the address notifications and invoices go to.
func (c Customer) Email() string {
	return c.GuestEmail
}

// Invoice is the reference to a generated invoice document. It is populated
// asynchronously after creation; its absence is a valid state.
type Invoice struct {
	Number      string    `json:"number"`
	DocumentRef string    `json:"documentRef"`
	SentAt      time.Time `json:"sentAt"`
	SentTo      string    `json:"sentTo"`
}

// Order represents a customer order in the system.
type Order struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	Customer        Customer              `json:"customer"`
	TotalCents      int64                 `json:"totalCents"`
	Currency        currency.Currency     `json:"currency"`
	Status          Status                `json:"status"`
	PaymentStatus   PaymentStatus         `json:"paymentStatus"`
	PaymentID       string                `json:"paymentId,omitempty"`
	Invoice         *Invoice              `json:"invoice,omitempty"`
	ShippingAddress string                `json:"shippingAddress"`
	CustomerNotes   string                `json:"customerNotes,omitempty"`
	AdminNotes      string                `json:"adminNotes,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
	PaidAt          *time.Time            `json:"paidAt,omitempty"`
	ShippedAt       *time.Time            `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time            `json:"deliveredAt,omitempty"`
	Version         int64                 `json:"-"`
	OrderItems      []orderitem.OrderItem `json:"orderItems"`
}

// ItemsTotalCents sums the line subtotals of the order items.
func (o *Order) ItemsTotalCents() int64 {
	var total int64
	for _, item := range o.OrderItems {
		total += item.SubtotalCents()
	}

	return total
}

// RemainingCents returns the amount still payable given the cents already
// covered by completed payments.
func (o *Order) RemainingCents(coveredCents int64) int64 {
	remaining := o.TotalCents - coveredCents
	if remaining < 0 {
		return 0
	}

	return remaining
}

// CanCancel reports whether cancellation is legal from the current state.
func (o *Order) CanCancel() bool {
	switch o.Status {
	case StatusAwaitingPayment, StatusPaid, StatusProcessing:
		return true
	default:
		return false
	}
}

// fulfillmentNext is the legal admin-driven fulfillment progression.
var fulfillmentNext = map[Status]Status{
	StatusPaid:       StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// CanAdvanceTo reports whether the admin fulfillment path allows moving the
// order to the target status.
func (o *Order) CanAdvanceTo(target Status) bool {
	return fulfillmentNext[o.Status] == target
}
