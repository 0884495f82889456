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
	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/service/models/orderitem"
)

// orderColumns is the column set scanned into OrderDal.
var orderColumns = []string{
	"id",
	"order_number",
	"user_id",
	"guest_name",
	"guest_email",
	"total_cents",
	"currency",
	"status",
	"payment_status",
	"payment_id",
	"invoice_number",
	"invoice_document_ref",
	"invoice_sent_at",
	"invoice_sent_to",
	"shipping_address",
	"customer_notes",
	"admin_notes",
	"created_at",
	"updated_at",
	"paid_at",
	"shipped_at",
	"delivered_at",
	"version",
}

// OrderDal represents the order data access layer model.
type OrderDal struct {
	Id                 string
	OrderNumber        string
	UserId             *string
	GuestName          *string
	GuestEmail         *string
	TotalCents         int64
	Currency           string
	Status             string
	PaymentStatus      string
	PaymentId          *string
	InvoiceNumber      *string
	InvoiceDocumentRef *string
	InvoiceSentAt      *time.Time
	InvoiceSentTo      *string
	ShippingAddress    string
	CustomerNotes      string
	AdminNotes         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PaidAt             *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	Version            int64
}

// ToModel converts OrderDal to the service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	cur, err := currency.ParseCurrency(o.Currency)
	if err != nil {
		return nil, err
	}
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return nil, err
	}

	model := &order.Order{
		ID:              o.Id,
		OrderNumber:     o.OrderNumber,
		TotalCents:      o.TotalCents,
		Currency:        cur,
		Status:          status,
		PaymentStatus:   order.PaymentStatus(o.PaymentStatus),
		ShippingAddress: o.ShippingAddress,
		CustomerNotes:   o.CustomerNotes,
		AdminNotes:      o.AdminNotes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		PaidAt:          o.PaidAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		Version:         o.Version,
		OrderItems:      []orderitem.OrderItem{},
	}

	if o.UserId != nil {
		model.Customer.UserID = *o.UserId
	}
	if o.GuestName != nil {
		model.Customer.GuestName = *o.GuestName
	}
	if o.GuestEmail != nil {
		model.Customer.GuestEmail = *o.GuestEmail
	}
	if o.PaymentId != nil {
		model.PaymentID = *o.PaymentId
	}
	if o.InvoiceNumber != nil && o.InvoiceSentAt != nil {
		model.Invoice = &order.Invoice{
			Number:      *o.InvoiceNumber,
			DocumentRef: deref(o.InvoiceDocumentRef),
			SentAt:      *o.InvoiceSentAt,
			SentTo:      deref(o.InvoiceSentTo),
		}
	}

	return model, nil
}

// OrderDalFromModel converts a service layer Order model to OrderDal.
func OrderDalFromModel(o *order.Order) *OrderDal {
	dal := &OrderDal{
		Id:              o.ID,
		OrderNumber:     o.OrderNumber,
		TotalCents:      o.TotalCents,
		Currency:        o.Currency.String(),
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		ShippingAddress: o.ShippingAddress,
		CustomerNotes:   o.CustomerNotes,
		AdminNotes:      o.AdminNotes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		PaidAt:          o.PaidAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		Version:         o.Version,
	}

	if o.Customer.UserID != "" {
		dal.UserId = &o.Customer.UserID
	}
	if o.Customer.GuestName != "" {
		dal.GuestName = &o.Customer.GuestName
	}
	if o.Customer.GuestEmail != "" {
		dal.GuestEmail = &o.Customer.GuestEmail
	}
	if o.PaymentID != "" {
		dal.PaymentId = &o.PaymentID
	}
	if o.Invoice != nil {
		dal.InvoiceNumber = &o.Invoice.Number
		dal.InvoiceDocumentRef = &o.Invoice.DocumentRef
		dal.InvoiceSentAt = &o.Invoice.SentAt
		dal.InvoiceSentTo = &o.Invoice.SentTo
	}

	return dal
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

type PostgresOrderRepository struct {
	conn postgres.Querier
}

func NewPostgresOrderRepository(conn postgres.Querier) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
	}
}

// Insert persists a new order row.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	dal := OrderDalFromModel(&o)

	query, args, err := sq.Insert("orders").
		Columns(orderColumns...).
		Values(
			dal.Id,
			dal.OrderNumber,
			dal.UserId,
			dal.GuestName,
			dal.GuestEmail,
			dal.TotalCents,
			dal.Currency,
			dal.Status,
			dal.PaymentStatus,
			dal.PaymentId,
			dal.InvoiceNumber,
			dal.InvoiceDocumentRef,
			dal.InvoiceSentAt,
			dal.InvoiceSentTo,
			dal.ShippingAddress,
			dal.CustomerNotes,
			dal.AdminNotes,
			dal.CreatedAt,
			dal.UpdatedAt,
			dal.PaidAt,
			dal.ShippedAt,
			dal.DeliveredAt,
			dal.Version,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	return o, nil
}

// GetByID retrieves a single order, optionally locking its row for the
// duration of the surrounding transaction.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string, forUpdate bool) (*order.Order, error) {
	builder := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar)
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	row := r.conn.QueryRow(ctx, query, args...)
	dal, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrOrderNotFound
		}

		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	return dal.ToModel()
}

// Query retrieves orders based on filter criteria.
func (r *PostgresOrderRepository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if len(filter.Ids) > 0 {
		builder = builder.Where(sq.Eq{"id": filter.Ids})
	}
	if len(filter.UserIds) > 0 {
		builder = builder.Where(sq.Eq{"user_id": filter.UserIds})
	}
	if filter.Status != nil {
		builder = builder.Where(sq.Eq{"status": *filter.Status})
	}
	if filter.PaymentStatus != nil {
		builder = builder.Where(sq.Eq{"payment_status": *filter.PaymentStatus})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		dal, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// Update writes the order back guarded by its version. A lost race surfaces
// as ErrConcurrencyConflict so callers can retry.
func (r *PostgresOrderRepository) Update(ctx context.Context, o *order.Order) error {
	dal := OrderDalFromModel(o)

	query, args, err := sq.Update("orders").
		Set("status", dal.Status).
		Set("payment_status", dal.PaymentStatus).
		Set("payment_id", dal.PaymentId).
		Set("admin_notes", dal.AdminNotes).
		Set("updated_at", time.Now()).
		Set("paid_at", dal.PaidAt).
		Set("shipped_at", dal.ShippedAt).
		Set("delivered_at", dal.DeliveredAt).
		Set("version", dal.Version+1).
		Where(sq.Eq{"id": dal.Id, "version": dal.Version}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrConcurrencyConflict
	}
	o.Version++

	return nil
}

// SetInvoice attaches the generated invoice reference to the order.
func (r *PostgresOrderRepository) SetInvoice(ctx context.Context, orderID string, inv order.Invoice) error {
	query, args, err := sq.Update("orders").
		Set("invoice_number", inv.Number).
		Set("invoice_document_ref", inv.DocumentRef).
		Set("invoice_sent_at", inv.SentAt).
		Set("invoice_sent_to", inv.SentTo).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": orderID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build invoice update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set order invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrOrderNotFound
	}

	return nil
}

// NextOrderNumber atomically increments and returns the per-period order
// counter. The upsert keeps two concurrent creations from ever reading the
// same value, which a read-then-increment scheme cannot guarantee.
func (r *PostgresOrderRepository) NextOrderNumber(ctx context.Context, period string) (int64, error) {
	query := `
		INSERT INTO order_number_seq (period, counter)
		VALUES ($1, 1)
		ON CONFLICT (period)
		DO UPDATE SET counter = order_number_seq.counter + 1
		RETURNING counter
	`

	var counter int64
	if err := r.conn.QueryRow(ctx, query, period).Scan(&counter); err != nil {
		return 0, fmt.Errorf("failed to advance order number sequence: %w", err)
	}

	return counter, nil
}

func scanOrder(row pgx.Row) (*OrderDal, error) {
	dal := &OrderDal{}
	err := row.Scan(
		&dal.Id,
		&dal.OrderNumber,
		&dal.UserId,
		&dal.GuestName,
		&dal.GuestEmail,
		&dal.TotalCents,
		&dal.Currency,
		&dal.Status,
		&dal.PaymentStatus,
		&dal.PaymentId,
		&dal.InvoiceNumber,
		&dal.InvoiceDocumentRef,
		&dal.InvoiceSentAt,
		&dal.InvoiceSentTo,
		&dal.ShippingAddress,
		&dal.CustomerNotes,
		&dal.AdminNotes,
		&dal.CreatedAt,
		&dal.UpdatedAt,
		&dal.PaidAt,
		&dal.ShippedAt,
		&dal.DeliveredAt,
		&dal.Version,
	)
	if err != nil {
		return nil, err
	}

	return dal, nil
}
