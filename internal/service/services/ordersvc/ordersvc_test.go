package ordersvc

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covacitrees/oms/internal/dal/interfaces/iorderitemrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/iorderrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/ioutboxrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/ipaymentrepo"
	"github.com/covacitrees/oms/internal/service/errs"
	"github.com/covacitrees/oms/internal/service/models/currency"
	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/service/models/orderitem"
	"github.com/covacitrees/oms/internal/service/models/outbox"
	"github.com/covacitrees/oms/internal/service/models/payment"
)

// memStore is an in-memory stand-in for the database shared by every unit
// of work a test service creates.
type memStore struct {
	orders   map[string]*order.Order
	items    []orderitem.OrderItem
	payments []payment.Payment
	outbox   []outbox.OutboxMessage
	seq      map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		orders: map[string]*order.Order{},
		seq:    map[string]int64{},
	}
}

type memUOW struct {
	store      *memStore
	committed  bool
	rolledBack bool
}

func (u *memUOW) Begin(context.Context) error { return nil }

func (u *memUOW) Commit(context.Context) error {
	u.committed = true

	return nil
}

func (u *memUOW) Rollback(context.Context) error {
	if !u.committed {
		u.rolledBack = true
	}

	return nil
}

func (u *memUOW) OrderRepository() iorderrepo.IOrderRepository {
	return &memOrderRepo{store: u.store}
}

func (u *memUOW) OrderItemRepository() iorderitemrepo.IOrderItemRepository {
	return &memOrderItemRepo{store: u.store}
}

func (u *memUOW) PaymentRepository() ipaymentrepo.IPaymentRepository {
	return &memPaymentRepo{store: u.store}
}

func (u *memUOW) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return &memOutboxRepo{store: u.store}
}

type memOrderRepo struct {
	store *memStore
}

func (r *memOrderRepo) Insert(_ context.Context, o order.Order) (order.Order, error) {
	r.store.orders[o.ID] = &o

	return o, nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id string, _ bool) (*order.Order, error) {
	o, ok := r.store.orders[id]
	if !ok {
		return nil, errs.ErrOrderNotFound
	}
	cp := *o

	return &cp, nil
}

func (r *memOrderRepo) Query(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	var out []order.Order
	for _, o := range r.store.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, *o)
	}

	return out, nil
}

func (r *memOrderRepo) Update(_ context.Context, o *order.Order) error {
	stored, ok := r.store.orders[o.ID]
	if !ok {
		return errs.ErrOrderNotFound
	}
	if stored.Version != o.Version {
		return errs.ErrConcurrencyConflict
	}
	o.Version++
	cp := *o
	r.store.orders[o.ID] = &cp

	return nil
}

func (r *memOrderRepo) SetInvoice(_ context.Context, orderID string, inv order.Invoice) error {
	o, ok := r.store.orders[orderID]
	if !ok {
		return errs.ErrOrderNotFound
	}
	o.Invoice = &inv

	return nil
}

func (r *memOrderRepo) NextOrderNumber(_ context.Context, period string) (int64, error) {
	r.store.seq[period]++

	return r.store.seq[period], nil
}

type memOrderItemRepo struct {
	store *memStore
}

func (r *memOrderItemRepo) BulkInsert(_ context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error) {
	for i := range items {
		items[i].ID = int64(len(r.store.items) + 1)
		r.store.items = append(r.store.items, items[i])
	}

	return items, nil
}

func (r *memOrderItemRepo) QueryByOrderIDs(_ context.Context, orderIDs []string) ([]orderitem.OrderItem, error) {
	var out []orderitem.OrderItem
	for _, item := range r.store.items {
		for _, id := range orderIDs {
			if item.OrderID == id {
				out = append(out, item)
			}
		}
	}

	return out, nil
}

type memPaymentRepo struct {
	store *memStore
}

func (r *memPaymentRepo) Insert(_ context.Context, p payment.Payment) (payment.Payment, error) {
	r.store.payments = append(r.store.payments, p)

	return p, nil
}

func (r *memPaymentRepo) GetByID(_ context.Context, id string) (*payment.Payment, error) {
	for i := range r.store.payments {
		if r.store.payments[i].ID == id {
			cp := r.store.payments[i]

			return &cp, nil
		}
	}

	return nil, errs.ErrPaymentNotFound
}

func (r *memPaymentRepo) GetByProviderTransaction(_ context.Context, provider payment.Provider, txID string) (*payment.Payment, error) {
	for i := range r.store.payments {
		if r.store.payments[i].Provider == provider && r.store.payments[i].ProviderTransactionID == txID {
			cp := r.store.payments[i]

			return &cp, nil
		}
	}

	return nil, errs.ErrPaymentNotFound
}

func (r *memPaymentRepo) ListByOrder(_ context.Context, orderID string) ([]payment.Payment, error) {
	var out []payment.Payment
	for _, p := range r.store.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}

	return out, nil
}

func (r *memPaymentRepo) Update(_ context.Context, p *payment.Payment) error {
	for i := range r.store.payments {
		if r.store.payments[i].ID == p.ID {
			r.store.payments[i] = *p

			return nil
		}
	}

	return errs.ErrPaymentNotFound
}

type memOutboxRepo struct {
	store *memStore
}

func (r *memOutboxRepo) Insert(_ context.Context, msg outbox.OutboxMessage) error {
	r.store.outbox = append(r.store.outbox, msg)

	return nil
}

func (r *memOutboxRepo) GetPendingMessages(context.Context, int) ([]outbox.OutboxMessage, error) {
	return r.store.outbox, nil
}

func (r *memOutboxRepo) Delete(context.Context, int64) error { return nil }

func (r *memOutboxRepo) UpdateRetry(context.Context, int64, int, string, time.Time) error {
	return nil
}

type recordingTrigger struct {
	triggered []order.Order
}

func (t *recordingTrigger) Trigger(ord order.Order) {
	t.triggered = append(t.triggered, ord)
}

func newTestService(store *memStore, opts ...option) *OrderService {
	base := []option{
		WithUnitOfWorkFactory(func() UnitOfWork {
			return &memUOW{store: store}
		}),
		WithClock(func() time.Time {
			return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
		}),
	}

	return MustNewOrderService(append(base, opts...)...)
}

func validCreateModel() CreateOrderModel {
	return CreateOrderModel{
		Customer: order.Customer{GuestName: "Ana Popescu", GuestEmail: "ana@example.md"},
		Items: []CreateOrderItemModel{
			{ProductID: "tree-thuja", Title: "Thuja occidentalis", Quantity: 2, UnitPriceCents: 5000},
		},
		TotalCents:      10000,
		Currency:        currency.CurrencyMDL,
		ShippingAddress: "str. Stefan cel Mare 1, Chisinau",
	}
}

func TestCreateOrderAssignsSequentialNumbers(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	first, err := svc.CreateOrder(context.Background(), validCreateModel())
	require.NoError(t, err)
	second, err := svc.CreateOrder(context.Background(), validCreateModel())
	require.NoError(t, err)

	assert.Equal(t, "ORD-202609-0001", first.OrderNumber)
	assert.Equal(t, "ORD-202609-0002", second.OrderNumber)
	assert.Equal(t, order.StatusAwaitingPayment, first.Status)
	assert.Equal(t, order.PaymentStatusUnpaid, first.PaymentStatus)
	require.Len(t, first.OrderItems, 1)
	assert.Equal(t, "Thuja occidentalis", first.OrderItems[0].TitleSnapshot)
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(m *CreateOrderModel)
	}{
		{name: "empty cart", mutate: func(m *CreateOrderModel) { m.Items = nil }},
		{name: "zero quantity", mutate: func(m *CreateOrderModel) { m.Items[0].Quantity = 0 }},
		{name: "negative price", mutate: func(m *CreateOrderModel) { m.Items[0].UnitPriceCents = -1 }},
		{name: "total mismatch", mutate: func(m *CreateOrderModel) { m.TotalCents = 9999 }},
		{name: "both identities", mutate: func(m *CreateOrderModel) { m.Customer.UserID = "user-1" }},
		{name: "guest without email", mutate: func(m *CreateOrderModel) { m.Customer.GuestEmail = "" }},
		{name: "missing address", mutate: func(m *CreateOrderModel) { m.ShippingAddress = "" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemStore()
			svc := newTestService(store)
			model := validCreateModel()
			tt.mutate(&model)

			_, err := svc.CreateOrder(context.Background(), model)

			var validationErr *errs.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Empty(t, store.orders, "nothing may be persisted on validation failure")
		})
	}
}

func TestCreateOrderFiresInvoiceTrigger(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	trigger := &recordingTrigger{}
	svc := newTestService(store, WithInvoiceTrigger(trigger))

	ord, err := svc.CreateOrder(context.Background(), validCreateModel())
	require.NoError(t, err)

	require.Len(t, trigger.triggered, 1)
	assert.Equal(t, ord.ID, trigger.triggered[0].ID)
}

func seedOrder(store *memStore, totalCents int64) *order.Order {
	ord := &order.Order{
		ID:            "ord-1",
		OrderNumber:   "ORD-202609-0001",
		Customer:      order.Customer{GuestEmail: "ana@example.md"},
		TotalCents:    totalCents,
		Currency:      currency.CurrencyMDL,
		Status:        order.StatusAwaitingPayment,
		PaymentStatus: order.PaymentStatusUnpaid,
	}
	store.orders[ord.ID] = ord

	return ord
}

func seedPayment(store *memStore, id string, status payment.Status, amountCents int64) *payment.Payment {
	p := payment.Payment{
		ID:                    id,
		OrderID:               "ord-1",
		Provider:              payment.ProviderCard,
		ProviderTransactionID: "pi_" + id,
		AmountCents:           amountCents,
		Currency:              currency.CurrencyMDL,
		Status:                status,
	}
	store.payments = append(store.payments, p)

	return &p
}

func TestApplyPaymentEventFullPayment(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedOrder(store, 10000)
	p := seedPayment(store, "pay-1", payment.StatusCompleted, 10000)
	svc := newTestService(store)

	ord, err := svc.ApplyPaymentEvent(context.Background(), &memUOW{store: store}, p)
	require.NoError(t, err)

	assert.Equal(t, order.PaymentStatusPaid, ord.PaymentStatus)
	assert.Equal(t, order.StatusPaid, ord.Status)
	require.NotNil(t, ord.PaidAt)
	assert.Equal(t, "pay-1", ord.PaymentID)

	require.Len(t, store.outbox, 1)
	assert.Equal(t, outbox.RoutingKeyOrderPaid, store.outbox[0].RoutingKey)
}

func TestApplyPaymentEventPartialPayment(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedOrder(store, 10000)
	p := seedPayment(store, "pay-1", payment.StatusCompleted, 4000)
	svc := newTestService(store)

	ord, err := svc.ApplyPaymentEvent(context.Background(), &memUOW{store: store}, p)
	require.NoError(t, err)

	assert.Equal(t, order.PaymentStatusPartial, ord.PaymentStatus)
	assert.Equal(t, order.StatusAwaitingPayment, ord.Status)
	assert.Nil(t, ord.PaidAt)
	assert.Empty(t, store.outbox)
}

func TestApplyPaymentEventFailedAttempts(t *testing.T) {
	t.Parallel()

	t.Run("sole failed attempt marks the order failed", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		seedOrder(store, 10000)
		p := seedPayment(store, "pay-1", payment.StatusFailed, 10000)
		svc := newTestService(store)

		ord, err := svc.ApplyPaymentEvent(context.Background(), &memUOW{store: store}, p)
		require.NoError(t, err)
		assert.Equal(t, order.PaymentStatusFailed, ord.PaymentStatus)
	})

	t.Run("failure with a pending sibling keeps the order open", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		seedOrder(store, 10000)
		seedPayment(store, "pay-1", payment.StatusPending, 10000)
		p := seedPayment(store, "pay-2", payment.StatusFailed, 10000)
		svc := newTestService(store)

		ord, err := svc.ApplyPaymentEvent(context.Background(), &memUOW{store: store}, p)
		require.NoError(t, err)
		assert.Equal(t, order.PaymentStatusUnpaid, ord.PaymentStatus)
	})
}

func TestApplyPaymentEventRefund(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	ord := seedOrder(store, 10000)
	ord.Status = order.StatusPaid
	ord.PaymentStatus = order.PaymentStatusPaid
	p := seedPayment(store, "pay-1", payment.StatusRefunded, 10000)
	svc := newTestService(store)

	updated, err := svc.ApplyPaymentEvent(context.Background(), &memUOW{store: store}, p)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatusRefunded, updated.PaymentStatus)
	assert.Equal(t, order.StatusPaid, updated.Status, "a refund does not rewind fulfillment by itself")
}

func TestCancel(t *testing.T) {
	t.Parallel()

	t.Run("awaiting payment cancels", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		seedOrder(store, 10000)
		svc := newTestService(store)

		ord, err := svc.Cancel(context.Background(), "ord-1", "customer changed their mind")
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, ord.Status)
		assert.Contains(t, ord.AdminNotes, "customer changed their mind")
	})

	t.Run("shipped rejects cancellation", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		ord := seedOrder(store, 10000)
		ord.Status = order.StatusShipped
		svc := newTestService(store)

		_, err := svc.Cancel(context.Background(), "ord-1", "")
		var conflict *errs.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, order.StatusShipped, store.orders["ord-1"].Status)
	})
}

func TestUpdateFulfillment(t *testing.T) {
	t.Parallel()

	setPaid := func(store *memStore) {
		store.orders["ord-1"].Status = order.StatusPaid
		store.orders["ord-1"].PaymentStatus = order.PaymentStatusPaid
	}

	t.Run("walks the whole path", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		seedOrder(store, 10000)
		setPaid(store)
		svc := newTestService(store)

		for i, target := range []order.Status{order.StatusProcessing, order.StatusShipped, order.StatusDelivered} {
			ord, err := svc.UpdateFulfillment(context.Background(), "ord-1", target, fmt.Sprintf("step %d", i))
			require.NoError(t, err)
			assert.Equal(t, target, ord.Status)
		}

		ord := store.orders["ord-1"]
		require.NotNil(t, ord.ShippedAt)
		require.NotNil(t, ord.DeliveredAt)
		require.Len(t, store.outbox, 1)
		assert.Equal(t, outbox.RoutingKeyOrderShipped, store.outbox[0].RoutingKey)
	})

	t.Run("rejects skipping a step", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		seedOrder(store, 10000)
		setPaid(store)
		svc := newTestService(store)

		_, err := svc.UpdateFulfillment(context.Background(), "ord-1", order.StatusShipped, "")
		var conflict *errs.ConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("rejects unpaid orders", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		ord := seedOrder(store, 10000)
		ord.Status = order.StatusPaid

		svc := newTestService(store)

		_, err := svc.UpdateFulfillment(context.Background(), "ord-1", order.StatusProcessing, "")
		var conflict *errs.ConflictError
		require.ErrorAs(t, err, &conflict)
	})
}

func TestGetOrdersFiltersByStatus(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	paid, err := svc.CreateOrder(context.Background(), validCreateModel())
	require.NoError(t, err)
	store.orders[paid.ID].Status = order.StatusPaid
	_, err = svc.CreateOrder(context.Background(), validCreateModel())
	require.NoError(t, err)

	status := order.StatusPaid
	orders, err := svc.GetOrders(context.Background(), order.QueryOrdersModel{Status: &status})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, paid.ID, orders[0].ID)
	require.Len(t, orders[0].OrderItems, 1)

	all, err := svc.GetOrders(context.Background(), order.QueryOrdersModel{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// lockedUOW serializes whole transactions around one shared mutex, the way
// the database serializes writers on the per-period sequence row.
type lockedUOW struct {
	memUOW
	mu       *sync.Mutex
	released bool
}

func (u *lockedUOW) Begin(ctx context.Context) error {
	u.mu.Lock()

	return u.memUOW.Begin(ctx)
}

func (u *lockedUOW) Commit(ctx context.Context) error {
	err := u.memUOW.Commit(ctx)
	u.release()

	return err
}

func (u *lockedUOW) Rollback(ctx context.Context) error {
	err := u.memUOW.Rollback(ctx)
	u.release()

	return err
}

func (u *lockedUOW) release() {
	if !u.released {
		u.released = true
		u.mu.Unlock()
	}
}

func TestCreateOrderConcurrentNumberAllocation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	var mu sync.Mutex
	svc := newTestService(store, WithUnitOfWorkFactory(func() UnitOfWork {
		return &lockedUOW{memUOW: memUOW{store: store}, mu: &mu}
	}))

	const workers = 16
	numbers := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ord, err := svc.CreateOrder(context.Background(), validCreateModel())
			if assert.NoError(t, err) {
				numbers <- ord.OrderNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]struct{}{}
	for number := range numbers {
		_, dup := seen[number]
		assert.False(t, dup, "order number %s was handed out twice", number)
		seen[number] = struct{}{}
	}
	assert.Len(t, seen, workers)
}
