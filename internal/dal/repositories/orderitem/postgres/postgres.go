package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/covacitrees/oms/internal/dal/postgres"
	"github.com/covacitrees/oms/internal/service/models/currency"
	"github.com/covacitrees/oms/internal/service/models/orderitem"
)

// OrderItemDal represents the order item data access layer model.
type OrderItemDal struct {
	Id             int64
	OrderId        string
	ProductId      string
	TitleSnapshot  string
	Quantity       int
	UnitPriceCents int64
	PriceCurrency  string
	CreatedAt      time.Time
}

// ToModel converts OrderItemDal to the service layer OrderItem model.
func (i *OrderItemDal) ToModel() (*orderitem.OrderItem, error) {
	cur, err := currency.ParseCurrency(i.PriceCurrency)
	if err != nil {
		return nil, err
	}

	return &orderitem.OrderItem{
		ID:             i.Id,
		OrderID:        i.OrderId,
		ProductID:      i.ProductId,
		TitleSnapshot:  i.TitleSnapshot,
		Quantity:       i.Quantity,
		UnitPriceCents: i.UnitPriceCents,
		PriceCurrency:  cur,
		CreatedAt:      i.CreatedAt,
	}, nil
}

type PostgresOrderItemRepository struct {
	conn postgres.Querier
}

func NewPostgresOrderItemRepository(conn postgres.Querier) *PostgresOrderItemRepository {
	return &PostgresOrderItemRepository{
		conn: conn,
	}
}

// BulkInsert inserts snapshot rows for all items of newly created orders.
func (r *PostgresOrderItemRepository) BulkInsert(ctx context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error) {
	if len(items) == 0 {
		return []orderitem.OrderItem{}, nil
	}

	builder := sq.Insert("order_items").
		Columns(
			"order_id",
			"product_id",
			"title_snapshot",
			"quantity",
			"unit_price_cents",
			"price_currency",
			"created_at",
		).
		PlaceholderFormat(sq.Dollar).
		Suffix("RETURNING id")

	for _, item := range items {
		builder = builder.Values(
			item.OrderID,
			item.ProductID,
			item.TitleSnapshot,
			item.Quantity,
			item.UnitPriceCents,
			item.PriceCurrency.String(),
			item.CreatedAt,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk insert order items: %w", err)
	}
	defer rows.Close()

	result := make([]orderitem.OrderItem, 0, len(items))
	i := 0
	for rows.Next() {
		item := items[i]
		if err := rows.Scan(&item.ID); err != nil {
			return nil, fmt.Errorf("failed to scan order item id: %w", err)
		}
		result = append(result, item)
		i++
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// QueryByOrderIDs retrieves the items of the given orders.
func (r *PostgresOrderItemRepository) QueryByOrderIDs(ctx context.Context, orderIDs []string) ([]orderitem.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []orderitem.OrderItem{}, nil
	}

	query, args, err := sq.Select(
		"id",
		"order_id",
		"product_id",
		"title_snapshot",
		"quantity",
		"unit_price_cents",
		"price_currency",
		"created_at",
	).
		From("order_items").
		Where(sq.Eq{"order_id": orderIDs}).
		OrderBy("id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var result []orderitem.OrderItem
	for rows.Next() {
		var dal OrderItemDal
		err := rows.Scan(
			&dal.Id,
			&dal.OrderId,
			&dal.ProductId,
			&dal.TitleSnapshot,
			&dal.Quantity,
			&dal.UnitPriceCents,
			&dal.PriceCurrency,
			&dal.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order item dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
