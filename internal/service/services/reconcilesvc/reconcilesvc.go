// Package reconcilesvc coordinates payment attempts end to end: initiating
// them with the provider, confirming synchronous captures and reconciling
// asynchronous provider callbacks into the ledger and the order.
package reconcilesvc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/covacitrees/oms/internal/dal/interfaces/ieventrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/iorderrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/ioutboxrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/ipaymentrepo"
	"github.com/covacitrees/oms/internal/dal/postgres"
	"github.com/covacitrees/oms/internal/dal/uow"
	"github.com/covacitrees/oms/internal/providers"
	"github.com/covacitrees/oms/internal/service/errs"
	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/service/models/payment"
	"github.com/covacitrees/oms/internal/service/services/ledgersvc"
	"github.com/covacitrees/oms/internal/service/services/ordersvc"
)

// unitOfWork is the transactional surface the coordinator needs. It is a
// superset of what the ledger and order services require, so one open
// transaction serves the whole reconciliation.
type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	PaymentRepository() ipaymentrepo.IPaymentRepository
	ProviderEventRepository() ieventrepo.IProviderEventRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

// ReconcileService drives payment attempts against provider adapters and
// applies their outcomes atomically.
type ReconcileService struct {
	registry *providers.Registry
	ledger   *ledgersvc.LedgerService
	orders   *ordersvc.OrderService

	pgClient *postgres.Client
	newUOW   func() unitOfWork
	now      func() time.Time
	newID    func() string
}

// option is a function that configures the ReconcileService.
type option func(*ReconcileService)

// MustNewReconcileService creates a new ReconcileService.
func MustNewReconcileService(opts ...option) *ReconcileService {
	s := &ReconcileService{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newUOW == nil {
		panic("reconcilesvc: no unit of work source configured")
	}
	if s.registry == nil {
		panic("reconcilesvc: no provider registry configured")
	}
	if s.ledger == nil || s.orders == nil {
		panic("reconcilesvc: ledger and order services are required")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the ReconcileService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *ReconcileService) {
		s.pgClient = pgClient
		s.newUOW = func() unitOfWork {
			return uow.NewUnitOfWork(pgClient)
		}
	}
}

// WithUnitOfWorkFactory overrides the unit of work source, used by tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(factory func() unitOfWork) option {
	return func(s *ReconcileService) {
		s.newUOW = factory
	}
}

// WithRegistry sets the provider adapter registry.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRegistry(registry *providers.Registry) option {
	return func(s *ReconcileService) {
		s.registry = registry
	}
}

// WithLedger sets the payment ledger.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithLedger(ledger *ledgersvc.LedgerService) option {
	return func(s *ReconcileService) {
		s.ledger = ledger
	}
}

// WithOrderService sets the order lifecycle service.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderService(orders *ordersvc.OrderService) option {
	return func(s *ReconcileService) {
		s.orders = orders
	}
}

// WithClock overrides the service clock.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *ReconcileService) {
		s.now = now
	}
}

// InitiateOutcome is the result of starting a payment attempt: the pending
// ledger row plus whatever checkout material the provider handed back.
type InitiateOutcome struct {
	Payment  *payment.Payment
	Checkout *providers.InitiateResult
}

// Reconciled reports one applied (or replayed) provider event.
type Reconciled struct {
	Payment *payment.Payment
	Order   *order.Order
	Replay  bool
}

// InitiatePayment starts a payment attempt for the order's remaining amount.
// The provider is called before anything is persisted: if the provider never
// acknowledged the attempt, no pending payment exists to reconcile later.
func (s *ReconcileService) InitiatePayment(ctx context.Context, orderID string, providerName payment.Provider) (*InitiateOutcome, error) {
	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	work := s.newUOW()
	ord, err := work.OrderRepository().GetByID(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	if ord.Status == order.StatusCancelled {
		return nil, &errs.ConflictError{Entity: "order", From: string(ord.Status), To: "payment"}
	}

	attempts, err := work.PaymentRepository().ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var coveredCents int64
	for _, attempt := range attempts {
		if attempt.Status == payment.StatusCompleted {
			coveredCents += attempt.AmountCents
		}
	}
	remainingCents := ord.TotalCents - coveredCents
	if remainingCents <= 0 {
		return nil, &errs.ConflictError{Entity: "order", From: string(order.PaymentStatusPaid), To: "payment"}
	}

	checkout, err := adapter.Initiate(ctx, providers.InitiateRequest{
		OrderNumber:   ord.OrderNumber,
		AmountCents:   remainingCents,
		Currency:      ord.Currency,
		CustomerName:  ord.Customer.GuestName,
		CustomerEmail: ord.Customer.Email(),
	})
	if err != nil {
		return nil, &errs.ProviderError{Provider: providerName.String(), Op: "initiate", Err: err}
	}

	now := s.now()
	p := payment.Payment{
		ID:                    s.newID(),
		OrderID:               ord.ID,
		Provider:              providerName,
		ProviderTransactionID: checkout.ProviderTransactionID,
		AmountCents:           remainingCents,
		Currency:              ord.Currency,
		Status:                payment.StatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := work.Begin(ctx); err != nil {
		return nil, err
	}
	defer work.Rollback(ctx)
	if _, err := work.PaymentRepository().Insert(ctx, p); err != nil {
		return nil, err
	}
	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	return &InitiateOutcome{Payment: &p, Checkout: checkout}, nil
}

// HandleCapture synchronously confirms a payment attempt with the provider
// and applies the definitive outcome. A transport failure or a still-pending
// answer leaves the attempt untouched for a later callback to settle.
func (s *ReconcileService) HandleCapture(ctx context.Context, providerName payment.Provider, providerTransactionID string) (*Reconciled, error) {
	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	capture, err := adapter.Capture(ctx, providerTransactionID)
	if err != nil {
		return nil, &errs.ProviderError{Provider: providerName.String(), Op: "capture", Err: err}
	}

	if capture.Status == providers.OutcomePending {
		work := s.newUOW()
		p, err := work.PaymentRepository().GetByProviderTransaction(ctx, providerName, providerTransactionID)
		if err != nil {
			return nil, err
		}

		return &Reconciled{Payment: p, Replay: true}, nil
	}

	status, err := capture.Status.PaymentStatus()
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, ledgersvc.Event{
		Provider:              providerName,
		ProviderTransactionID: providerTransactionID,
		Status:                status,
		Payload:               capture.RawPayload,
	})
}

// HandleWebhook verifies a raw provider callback and reconciles it. Invalid
// signatures are rejected before any state is read, and events for unknown
// transactions surface as errs.ErrPaymentNotFound.
func (s *ReconcileService) HandleWebhook(ctx context.Context, providerName payment.Provider, rawBody []byte, headers http.Header) (*Reconciled, error) {
	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	callback, err := adapter.VerifyCallback(rawBody, headers)
	if err != nil {
		return nil, &errs.VerificationError{Provider: providerName.String(), Reason: err.Error()}
	}
	if !callback.Valid {
		return nil, &errs.VerificationError{Provider: providerName.String(), Reason: "signature mismatch"}
	}

	if callback.Status == providers.OutcomePending {
		// Nothing to reconcile yet, acknowledge so the provider stops
		// retrying.
		work := s.newUOW()
		p, err := work.PaymentRepository().GetByProviderTransaction(ctx, providerName, callback.ProviderTransactionID)
		if err != nil {
			return nil, err
		}

		return &Reconciled{Payment: p, Replay: true}, nil
	}

	status, err := callback.Status.PaymentStatus()
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, ledgersvc.Event{
		Provider:              providerName,
		ProviderTransactionID: callback.ProviderTransactionID,
		Status:                status,
		Payload:               callback.RawPayload,
	})
}

// RefundPayment drives a completed payment to refunded. The money movement
// happens against the provider outside this core; here the ledger records
// the outcome and the order's financial state follows.
func (s *ReconcileService) RefundPayment(ctx context.Context, paymentID, reason string) (*Reconciled, error) {
	work := s.newUOW()
	p, err := work.PaymentRepository().GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(refundRecord{
		PaymentID:  p.ID,
		Reason:     reason,
		RefundedAt: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, ledgersvc.RefundEvent(p, payload))
}

// refundRecord is the audit payload stored with an operator-driven refund,
// standing in for the provider callback other events carry.
type refundRecord struct {
	PaymentID  string `json:"paymentId"`
	Reason     string `json:"reason,omitempty"`
	RefundedAt string `json:"refundedAt"`
}

// apply reconciles one provider event, retrying a bounded number of times
// when a concurrent writer bumped the order version first.
func (s *ReconcileService) apply(ctx context.Context, ev ledgersvc.Event) (*Reconciled, error) {
	var out *Reconciled

	backoff := retry.WithMaxRetries(3, retry.NewExponential(25*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := s.applyOnce(ctx, ev)
		if errors.Is(err, errs.ErrConcurrencyConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		out = res

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *ReconcileService) applyOnce(ctx context.Context, ev ledgersvc.Event) (*Reconciled, error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, err
	}
	defer work.Rollback(ctx)

	applied, err := s.ledger.Apply(ctx, work, ev)
	if err != nil {
		if errs.IsAnomaly(err) {
			// The ledger recorded the suspicious event for audit. Keep that
			// row even though the payment stays terminal.
			if commitErr := work.Commit(ctx); commitErr != nil {
				return nil, commitErr
			}
		}

		return nil, err
	}

	if !applied.Newly {
		if err := work.Commit(ctx); err != nil {
			return nil, err
		}
		slog.Info("provider event replayed, no state changed",
			"provider", ev.Provider,
			"provider_transaction_id", ev.ProviderTransactionID,
			"status", ev.Status,
		)

		return &Reconciled{Payment: applied.Payment, Replay: true}, nil
	}

	ord, err := s.orders.ApplyPaymentEvent(ctx, work, applied.Payment)
	if err != nil {
		return nil, err
	}

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	return &Reconciled{Payment: applied.Payment, Order: ord, Replay: false}, nil
}
