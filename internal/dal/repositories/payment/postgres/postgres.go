package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/covacitrees/oms/internal/dal/postgres"
	"github.com/covacitrees/oms/internal/service/errs"
	"github.com/covacitrees/oms/internal/service/models/currency"
	"github.com/covacitrees/oms/internal/service/models/payment"
)

var paymentColumns = []string{
	"id",
	"order_id",
	"provider",
	"provider_transaction_id",
	"amount_cents",
	"currency",
	"status",
	"provider_payload",
	"failure_reason",
	"paid_at",
	"created_at",
	"updated_at",
}

// PaymentDal represents the payment data access layer model.
type PaymentDal struct {
	Id                    string
	OrderId               string
	Provider              string
	ProviderTransactionId string
	AmountCents           int64
	Currency              string
	Status                string
	ProviderPayload       []byte
	FailureReason         string
	PaidAt                *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ToModel converts PaymentDal to the service layer Payment model.
func (p *PaymentDal) ToModel() (*payment.Payment, error) {
	provider, err := payment.ParseProvider(p.Provider)
	if err != nil {
		return nil, err
	}
	status, err := payment.ParseStatus(p.Status)
	if err != nil {
		return nil, err
	}
	cur, err := currency.ParseCurrency(p.Currency)
	if err != nil {
		return nil, err
	}

	return &payment.Payment{
		ID:                    p.Id,
		OrderID:               p.OrderId,
		Provider:              provider,
		ProviderTransactionID: p.ProviderTransactionId,
		AmountCents:           p.AmountCents,
		Currency:              cur,
		Status:                status,
		ProviderPayload:       p.ProviderPayload,
		FailureReason:         p.FailureReason,
		PaidAt:                p.PaidAt,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}, nil
}

type PostgresPaymentRepository struct {
	conn postgres.Querier
}

func NewPostgresPaymentRepository(conn postgres.Querier) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		conn: conn,
	}
}

// Insert persists a new payment attempt.
func (r *PostgresPaymentRepository) Insert(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	query, args, err := sq.Insert("payments").
		Columns(paymentColumns...).
		Values(
			p.ID,
			p.OrderID,
			p.Provider.String(),
			p.ProviderTransactionID,
			p.AmountCents,
			p.Currency.String(),
			string(p.Status),
			p.ProviderPayload,
			p.FailureReason,
			p.PaidAt,
			p.CreatedAt,
			p.UpdatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return payment.Payment{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return payment.Payment{}, fmt.Errorf("failed to insert payment: %w", err)
	}

	return p, nil
}

// GetByID retrieves a payment by its identity.
func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

// GetByProviderTransaction retrieves a payment by the provider-assigned
// transaction identity.
func (r *PostgresPaymentRepository) GetByProviderTransaction(
	ctx context.Context,
	provider payment.Provider,
	providerTransactionID string,
) (*payment.Payment, error) {
	return r.getOne(ctx, sq.Eq{
		"provider":                provider.String(),
		"provider_transaction_id": providerTransactionID,
	})
}

func (r *PostgresPaymentRepository) getOne(ctx context.Context, where sq.Eq) (*payment.Payment, error) {
	query, args, err := sq.Select(paymentColumns...).
		From("payments").
		Where(where).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	dal, err := scanPayment(r.conn.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrPaymentNotFound
		}

		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	return dal.ToModel()
}

// ListByOrder retrieves every payment attempt recorded against an order,
// oldest first.
func (r *PostgresPaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]payment.Payment, error) {
	query, args, err := sq.Select(paymentColumns...).
		From("payments").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("created_at ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var result []payment.Payment
	for rows.Next() {
		dal, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert payment dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// Update writes back a transitioned payment.
func (r *PostgresPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	query, args, err := sq.Update("payments").
		Set("status", string(p.Status)).
		Set("provider_payload", p.ProviderPayload).
		Set("failure_reason", p.FailureReason).
		Set("paid_at", p.PaidAt).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": p.ID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrPaymentNotFound
	}

	return nil
}

func scanPayment(row pgx.Row) (*PaymentDal, error) {
	dal := &PaymentDal{}
	err := row.Scan(
		&dal.Id,
		&dal.OrderId,
		&dal.Provider,
		&dal.ProviderTransactionId,
		&dal.AmountCents,
		&dal.Currency,
		&dal.Status,
		&dal.ProviderPayload,
		&dal.FailureReason,
		&dal.PaidAt,
		&dal.CreatedAt,
		&dal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return dal, nil
}
