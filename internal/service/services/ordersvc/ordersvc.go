// Package ordersvc owns the Order lifecycle: creation with atomic order
// number assignment, payment-driven status updates, cancellation and the
// admin fulfillment path.
package ordersvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/covacitrees/oms/internal/dal/interfaces/iorderitemrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/iorderrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/ioutboxrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/ipaymentrepo"
	"github.com/covacitrees/oms/internal/dal/postgres"
	"github.com/covacitrees/oms/internal/dal/uow"
	"github.com/covacitrees/oms/internal/service/errs"
	"github.com/covacitrees/oms/internal/service/models/currency"
	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/service/models/orderitem"
	"github.com/covacitrees/oms/internal/service/models/outbox"
	"github.com/covacitrees/oms/internal/service/models/payment"
)

// UnitOfWork is the transactional surface the service works against.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	OrderItemRepository() iorderitemrepo.IOrderItemRepository
	PaymentRepository() ipaymentrepo.IPaymentRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

// PaymentTx is the slice of an already-open unit of work ApplyPaymentEvent
// operates in. The reconciliation flow owns the transaction.
type PaymentTx interface {
	OrderRepository() iorderrepo.IOrderRepository
	PaymentRepository() ipaymentrepo.IPaymentRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

// invoiceTrigger requests invoice generation without blocking the caller.
type invoiceTrigger interface {
	Trigger(ord order.Order)
}

// OrderService is a service for managing orders.
type OrderService struct {
	pgClient *postgres.Client
	newUOW   func() UnitOfWork
	invoices invoiceTrigger
	now      func() time.Time
	newID    func() string
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newUOW == nil {
		panic("ordersvc: no unit of work source configured")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.pgClient = pgClient
		s.newUOW = func() UnitOfWork {
			return uow.NewUnitOfWork(pgClient)
		}
	}
}

// WithUnitOfWorkFactory overrides the unit of work source, used by tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(factory func() UnitOfWork) option {
	return func(s *OrderService) {
		s.newUOW = factory
	}
}

// WithInvoiceTrigger sets the post-creation invoice trigger.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithInvoiceTrigger(trigger invoiceTrigger) option {
	return func(s *OrderService) {
		s.invoices = trigger
	}
}

// WithClock overrides the service clock.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *OrderService) {
		s.now = now
	}
}

const (
	maxAddressLen = 1000
	maxNotesLen   = 2000
)

// CreateOrderItemModel is one cart line in a create order request.
type CreateOrderItemModel struct {
	ProductID      string
	Title          string
	Quantity       int
	UnitPriceCents int64
}

// CreateOrderModel is the validated input of CreateOrder.
type CreateOrderModel struct {
	Customer        order.Customer
	Items           []CreateOrderItemModel
	TotalCents      int64
	Currency        currency.Currency
	ShippingAddress string
	CustomerNotes   string
}

func (m *CreateOrderModel) validate() error {
	if len(m.Items) == 0 {
		return errs.NewValidation("items", "cart is empty")
	}

	var itemsTotal int64
	for i, item := range m.Items {
		if item.ProductID == "" {
			return errs.NewValidation(fmt.Sprintf("items[%d].productId", i), "is required")
		}
		if item.Title == "" {
			return errs.NewValidation(fmt.Sprintf("items[%d].title", i), "is required")
		}
		if item.Quantity <= 0 {
			return errs.NewValidation(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if item.UnitPriceCents < 0 {
			return errs.NewValidation(fmt.Sprintf("items[%d].unitPriceCents", i), "must not be negative")
		}
		itemsTotal += int64(item.Quantity) * item.UnitPriceCents
	}

	// Amounts are integral minor units, so equality is exact.
	if itemsTotal != m.TotalCents {
		return errs.NewValidation("totalCents", fmt.Sprintf(
			"does not match the sum of line subtotals (%d != %d)", m.TotalCents, itemsTotal,
		))
	}

	registered := m.Customer.UserID != ""
	guest := m.Customer.GuestEmail != "" || m.Customer.GuestName != ""
	switch {
	case registered && guest:
		return errs.NewValidation("customer", "cannot be both a registered user and a guest")
	case !registered && m.Customer.GuestEmail == "":
		return errs.NewValidation("customer", "guest orders require an email")
	}

	if m.ShippingAddress == "" {
		return errs.NewValidation("shippingAddress", "is required")
	}
	if len(m.ShippingAddress) > maxAddressLen {
		return errs.NewValidation("shippingAddress", "is too long")
	}
	if len(m.CustomerNotes) > maxNotesLen {
		return errs.NewValidation("customerNotes", "is too long")
	}

	return nil
}

// CreateOrder validates the cart, assigns an order number from the atomic
// per-period sequence and persists the order with its item snapshots. The
// invoice trigger fires after commit and never affects the result.
func (s *OrderService) CreateOrder(ctx context.Context, model CreateOrderModel) (*order.Order, error) {
	if err := model.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, err
	}
	defer work.Rollback(ctx)

	period := now.Format("200601")
	seq, err := work.OrderRepository().NextOrderNumber(ctx, period)
	if err != nil {
		return nil, err
	}

	ord := order.Order{
		ID:              s.newID(),
		OrderNumber:     fmt.Sprintf("ORD-%s-%04d", period, seq),
		Customer:        model.Customer,
		TotalCents:      model.TotalCents,
		Currency:        model.Currency,
		Status:          order.StatusAwaitingPayment,
		PaymentStatus:   order.PaymentStatusUnpaid,
		ShippingAddress: model.ShippingAddress,
		CustomerNotes:   model.CustomerNotes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := work.OrderRepository().Insert(ctx, ord); err != nil {
		return nil, err
	}

	items := make([]orderitem.OrderItem, len(model.Items))
	for i, item := range model.Items {
		items[i] = orderitem.OrderItem{
			OrderID:        ord.ID,
			ProductID:      item.ProductID,
			TitleSnapshot:  item.Title,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			PriceCurrency:  model.Currency,
			CreatedAt:      now,
		}
	}
	items, err = work.OrderItemRepository().BulkInsert(ctx, items)
	if err != nil {
		return nil, err
	}
	ord.OrderItems = items

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	if s.invoices != nil {
		s.invoices.Trigger(ord)
	}

	return &ord, nil
}

// ApplyPaymentEvent updates the order's financial and fulfillment state
// after the ledger durably recorded a payment transition. It runs inside the
// caller's transaction, which already holds the order row lock.
func (s *OrderService) ApplyPaymentEvent(ctx context.Context, work PaymentTx, p *payment.Payment) (*order.Order, error) {
	ord, err := work.OrderRepository().GetByID(ctx, p.OrderID, true)
	if err != nil {
		return nil, err
	}

	payments, err := work.PaymentRepository().ListByOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}

	var coveredCents int64
	var pendingAttempts int
	for _, attempt := range payments {
		switch attempt.Status {
		case payment.StatusCompleted:
			coveredCents += attempt.AmountCents
		case payment.StatusPending:
			pendingAttempts++
		}
	}

	switch p.Status {
	case payment.StatusCompleted:
		ord.PaymentID = p.ID
		if coveredCents >= ord.TotalCents {
			ord.PaymentStatus = order.PaymentStatusPaid
			if ord.Status == order.StatusAwaitingPayment {
				ord.Status = order.StatusPaid
			}
			if ord.PaidAt == nil {
				paidAt := s.now()
				ord.PaidAt = &paidAt
			}
			if err := s.enqueueOrderEvent(ctx, work.OutboxRepository(), outbox.RoutingKeyOrderPaid, ord); err != nil {
				return nil, err
			}
		} else {
			// Partial cover is financially distinct from paid: fulfillment
			// does not advance until an operator decides it should.
			ord.PaymentStatus = order.PaymentStatusPartial
		}

	case payment.StatusRefunded:
		ord.PaymentStatus = order.PaymentStatusRefunded

	case payment.StatusFailed:
		if coveredCents == 0 && pendingAttempts == 0 {
			ord.PaymentStatus = order.PaymentStatusFailed
		}

	default:
		return nil, fmt.Errorf("payment status %q carries no order effect", p.Status)
	}

	if err := work.OrderRepository().Update(ctx, ord); err != nil {
		return nil, err
	}

	return ord, nil
}

// Cancel marks the order cancelled. Cancelling a paid order only records
// intent; refunding the money is a separate ledger operation.
func (s *OrderService) Cancel(ctx context.Context, orderID, reason string) (*order.Order, error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, err
	}
	defer work.Rollback(ctx)

	ord, err := work.OrderRepository().GetByID(ctx, orderID, true)
	if err != nil {
		return nil, err
	}

	if !ord.CanCancel() {
		return nil, &errs.ConflictError{
			Entity: "order",
			From:   string(ord.Status),
			To:     string(order.StatusCancelled),
		}
	}

	ord.Status = order.StatusCancelled
	if reason != "" {
		ord.AdminNotes = appendNote(ord.AdminNotes, "cancelled: "+reason)
	}

	if err := work.OrderRepository().Update(ctx, ord); err != nil {
		return nil, err
	}
	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	return ord, nil
}

// UpdateFulfillment advances the admin-driven fulfillment path
// paid -> processing -> shipped -> delivered.
func (s *OrderService) UpdateFulfillment(ctx context.Context, orderID string, target order.Status, note string) (*order.Order, error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, err
	}
	defer work.Rollback(ctx)

	ord, err := work.OrderRepository().GetByID(ctx, orderID, true)
	if err != nil {
		return nil, err
	}

	if !ord.CanAdvanceTo(target) {
		return nil, &errs.ConflictError{Entity: "order", From: string(ord.Status), To: string(target)}
	}
	if ord.PaymentStatus != order.PaymentStatusPaid && ord.PaymentStatus != order.PaymentStatusPartial {
		return nil, &errs.ConflictError{Entity: "order", From: string(ord.Status), To: string(target)}
	}

	ord.Status = target
	now := s.now()
	switch target {
	case order.StatusShipped:
		if ord.ShippedAt == nil {
			ord.ShippedAt = &now
		}
		if err := s.enqueueOrderEvent(ctx, work.OutboxRepository(), outbox.RoutingKeyOrderShipped, ord); err != nil {
			return nil, err
		}
	case order.StatusDelivered:
		if ord.DeliveredAt == nil {
			ord.DeliveredAt = &now
		}
	}
	if note != "" {
		ord.AdminNotes = appendNote(ord.AdminNotes, note)
	}

	if err := work.OrderRepository().Update(ctx, ord); err != nil {
		return nil, err
	}
	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	return ord, nil
}

// GetOrder retrieves one order with its items.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	work := s.newUOW()

	ord, err := work.OrderRepository().GetByID(ctx, orderID, false)
	if err != nil {
		return nil, err
	}

	items, err := work.OrderItemRepository().QueryByOrderIDs(ctx, []string{ord.ID})
	if err != nil {
		return nil, err
	}
	ord.OrderItems = items

	return ord, nil
}

// GetOrders retrieves orders with their items based on filter.
func (s *OrderService) GetOrders(ctx context.Context, model order.QueryOrdersModel) ([]order.Order, error) {
	work := s.newUOW()

	orders, err := work.OrderRepository().Query(ctx, &model)
	if err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	orderIDs := make([]string, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
	}
	items, err := work.OrderItemRepository().QueryByOrderIDs(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		for _, item := range items {
			if item.OrderID == orders[i].ID {
				orders[i].OrderItems = append(orders[i].OrderItems, item)
			}
		}
	}

	return orders, nil
}

// orderEvent is the notification payload consumed by the external
// email/notification dispatcher.
type orderEvent struct {
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	TotalCents    int64  `json:"totalCents"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	OccurredAt    string `json:"occurredAt"`
}

func (s *OrderService) enqueueOrderEvent(ctx context.Context, repo ioutboxrepo.IOutboxRepository, routingKey string, ord *order.Order) error {
	now := s.now()
	payload, err := json.Marshal(orderEvent{
		OrderID:       ord.ID,
		OrderNumber:   ord.OrderNumber,
		CustomerEmail: ord.Customer.Email(),
		TotalCents:    ord.TotalCents,
		Currency:      ord.Currency.String(),
		Status:        string(ord.Status),
		PaymentStatus: string(ord.PaymentStatus),
		OccurredAt:    now.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	return repo.Insert(ctx, outbox.OutboxMessage{
		RoutingKey:  routingKey,
		Payload:     payload,
		ContentType: "application/json",
		MaxRetries:  10,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	})
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}

	return notes + "\n" + note
}
