package uow

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/covacitrees/oms/internal/dal/interfaces/ieventrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/iorderitemrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/iorderrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/ioutboxrepo"
	"github.com/covacitrees/oms/internal/dal/interfaces/ipaymentrepo"
	"github.com/covacitrees/oms/internal/dal/postgres"
	orderrepo "github.com/covacitrees/oms/internal/dal/repositories/order/postgres"
	orderitemrepo "github.com/covacitrees/oms/internal/dal/repositories/orderitem/postgres"
	outboxrepo "github.com/covacitrees/oms/internal/dal/repositories/outbox/postgres"
	paymentrepo "github.com/covacitrees/oms/internal/dal/repositories/payment/postgres"
	eventrepo "github.com/covacitrees/oms/internal/dal/repositories/providerevent/postgres"
)

// UnitOfWork groups repository operations into one database transaction.
// Before Begin the repositories run against the pool directly.
type UnitOfWork struct {
	pool *pgxpool.Pool
	tx   pgx.Tx

	orderRepo     iorderrepo.IOrderRepository
	orderItemRepo iorderitemrepo.IOrderItemRepository
	paymentRepo   ipaymentrepo.IPaymentRepository
	eventRepo     ieventrepo.IProviderEventRepository
	outboxRepo    ioutboxrepo.IOutboxRepository
}

func NewUnitOfWork(client *postgres.Client) *UnitOfWork {
	u := &UnitOfWork{pool: client.Pool()}
	u.bind(client.Pool())

	return u
}

func (u *UnitOfWork) bind(conn postgres.Querier) {
	u.orderRepo = orderrepo.NewPostgresOrderRepository(conn)
	u.orderItemRepo = orderitemrepo.NewPostgresOrderItemRepository(conn)
	u.paymentRepo = paymentrepo.NewPostgresPaymentRepository(conn)
	u.eventRepo = eventrepo.NewProviderEventRepository(conn)
	u.outboxRepo = outboxrepo.NewOutboxRepository(conn)
}

func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

func (u *UnitOfWork) OrderItemRepository() iorderitemrepo.IOrderItemRepository {
	return u.orderItemRepo
}

func (u *UnitOfWork) PaymentRepository() ipaymentrepo.IPaymentRepository {
	return u.paymentRepo
}

func (u *UnitOfWork) ProviderEventRepository() ieventrepo.IProviderEventRepository {
	return u.eventRepo
}

func (u *UnitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return u.outboxRepo
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return err
	}

	u.tx = tx
	u.bind(tx)

	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Commit(ctx)
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Rollback(ctx)
}
