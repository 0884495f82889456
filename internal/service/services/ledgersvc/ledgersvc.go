// Package ledgersvc owns Payment state transitions. Every provider outcome
// passes through Apply, which records the event durably before touching the
// payment, so redelivered events are detected and ignored.
package ledgersvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/covacitrees/oms/internal/dal/interfaces/ieventrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/ipaymentrepo"
	"github.com/covacitrees/oms/internal/service/errs"
	"github.com/covacitrees/oms/internal/service/models/payment"
	"github.com/covacitrees/oms/internal/service/models/providerevent"
)

// txContext is the slice of an in-flight unit of work the ledger needs.
type txContext interface {
	PaymentRepository() ipaymentrepo.IPaymentRepository
	ProviderEventRepository() ieventrepo.IProviderEventRepository
}

// Event is a verified provider outcome ready to be applied to the ledger.
type Event struct {
	Provider              payment.Provider
	ProviderTransactionID string
	Status                payment.Status
	Payload               []byte
	FailureReason         string
}

// Applied reports the result of applying an event. Newly is false when the
// event was a replay and nothing changed.
type Applied struct {
	Payment *payment.Payment
	Newly   bool
}

// LedgerService applies provider events to payments.
type LedgerService struct {
	now func() time.Time
}

// option is a function that configures the LedgerService.
type option func(*LedgerService)

// NewLedgerService creates a new LedgerService.
func NewLedgerService(opts ...option) *LedgerService {
	s := &LedgerService{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithClock overrides the ledger clock.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *LedgerService) {
		s.now = now
	}
}

// Apply transitions the payment identified by the event, exactly once per
// (provider, transaction, status) tuple. Callers run it inside a unit of
// work that already holds the per-order lock.
func (s *LedgerService) Apply(ctx context.Context, work txContext, ev Event) (*Applied, error) {
	switch ev.Status {
	case payment.StatusCompleted, payment.StatusFailed, payment.StatusRefunded:
	default:
		return nil, fmt.Errorf("event status %q cannot be applied to the ledger", ev.Status)
	}

	p, err := work.PaymentRepository().GetByProviderTransaction(ctx, ev.Provider, ev.ProviderTransactionID)
	if err != nil {
		return nil, err
	}

	newly, err := work.ProviderEventRepository().Record(ctx, providerevent.ProviderEvent{
		Provider:              ev.Provider,
		ProviderTransactionID: ev.ProviderTransactionID,
		Status:                ev.Status,
		Payload:               ev.Payload,
		ReceivedAt:            s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !newly {
		slog.Info("Replayed provider event ignored",
			"provider", ev.Provider,
			"transaction_id", ev.ProviderTransactionID,
			"status", ev.Status,
		)

		return &Applied{Payment: p, Newly: false}, nil
	}

	if p.Status == ev.Status {
		return &Applied{Payment: p, Newly: false}, nil
	}

	if !p.CanTransitionTo(ev.Status) {
		conflict := &errs.ConflictError{
			Entity: "payment",
			From:   string(p.Status),
			To:     string(ev.Status),
		}
		if p.Status == payment.StatusFailed && ev.Status == payment.StatusCompleted {
			// A success arriving after a recorded failure means provider
			// callbacks raced out of order. The terminal status stands and
			// the event goes to manual review.
			conflict.Anomaly = true
			slog.Error("Anomalous payment transition requires manual review",
				"payment_id", p.ID,
				"provider", ev.Provider,
				"transaction_id", ev.ProviderTransactionID,
				"recorded_status", p.Status,
				"event_status", ev.Status,
			)
		}

		return nil, conflict
	}

	p.Status = ev.Status
	p.ProviderPayload = ev.Payload
	switch ev.Status {
	case payment.StatusCompleted:
		paidAt := s.now()
		p.PaidAt = &paidAt
	case payment.StatusFailed:
		p.FailureReason = ev.FailureReason
		if p.FailureReason == "" {
			p.FailureReason = "provider reported failure"
		}
	}

	if err := work.PaymentRepository().Update(ctx, p); err != nil {
		return nil, err
	}

	return &Applied{Payment: p, Newly: true}, nil
}

// RefundEvent builds the ledger event that drives a completed payment to
// refunded. The refund itself is executed against the provider outside this
// core; the ledger only records the outcome.
func RefundEvent(p *payment.Payment, payload []byte) Event {
	return Event{
		Provider:              p.Provider,
		ProviderTransactionID: p.ProviderTransactionID,
		Status:                payment.StatusRefunded,
		Payload:               payload,
	}
}
