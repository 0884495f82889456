package orderitem

import (
	"time"

	"github.com/covacitrees/oms/internal/service/models/currency"
)

// OrderItem represents an item within an order. Title and price are
// snapshots taken at order creation: later catalog changes never touch them.
type OrderItem struct {
	ID             int64             `json:"id"`
	OrderID        string            `json:"orderId"`
	ProductID      string            `json:"productId"`
	TitleSnapshot  string            `json:"titleSnapshot"`
	Quantity       int               `json:"quantity"`
	UnitPriceCents int64             `json:"unitPriceCents"`
	PriceCurrency  currency.Currency `json:"priceCurrency"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// SubtotalCents returns quantity times unit price.
func (i OrderItem) SubtotalCents() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}
