package iorderrepo

import (
	"context"

	"github.com/covacitrees/oms/internal/service/models/order"
)

// IOrderRepository is an interface for the order postgres repository.
type IOrderRepository interface {
	Insert(ctx context.Context, o order.Order) (order.Order, error)
	GetByID(ctx context.Context, id string, forUpdate bool) (*order.Order, error)
	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
	Update(ctx context.Context, o *order.Order) error
	SetInvoice(ctx context.Context, orderID string, inv order.Invoice) error
	NextOrderNumber(ctx context.Context, period string) (int64, error)
}
