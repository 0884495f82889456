package createorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/covacitrees/oms/internal/service/models/currency"
	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/service/services/ordersvc"
	"github.com/covacitrees/oms/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, model ordersvc.CreateOrderModel) (*order.Order, error)
}

// itemInCreateOrderRequest represents an item in a create order request.
type itemInCreateOrderRequest struct {
	ProductID      string `json:"productId"      validate:"required"`
	Title          string `json:"title"          validate:"required"`
	Quantity       int    `json:"quantity"       validate:"gt=0"`
	UnitPriceCents int64  `json:"unitPriceCents" validate:"gte=0"`
}

// customerInCreateOrderRequest identifies the buyer: a registered user ID or
// guest contact details, never both.
type customerInCreateOrderRequest struct {
	UserID     string `json:"userId"`
	GuestName  string `json:"guestName"`
	GuestEmail string `json:"guestEmail" validate:"omitempty,email"`
}

// createOrderRequest represents a create order request.
type createOrderRequest struct {
	Customer        customerInCreateOrderRequest `json:"customer"`
	Items           []itemInCreateOrderRequest   `json:"items"           validate:"required,min=1,dive"`
	TotalCents      int64                        `json:"totalCents"      validate:"gte=0"`
	Currency        string                       `json:"currency"        validate:"required"`
	ShippingAddress string                       `json:"shippingAddress" validate:"required"`
	CustomerNotes   string                       `json:"customerNotes"`
}

// Validate validates the create order request.
func (r *createOrderRequest) Validate() error {
	return validator.New().Struct(r)
}

// toModel converts createOrderRequest to ordersvc.CreateOrderModel.
func (r *createOrderRequest) toModel() (*ordersvc.CreateOrderModel, error) {
	cur, err := currency.ParseCurrency(r.Currency)
	if err != nil {
		return nil, err
	}

	items := make([]ordersvc.CreateOrderItemModel, len(r.Items))
	for i, item := range r.Items {
		items[i] = ordersvc.CreateOrderItemModel{
			ProductID:      item.ProductID,
			Title:          item.Title,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}

	return &ordersvc.CreateOrderModel{
		Customer: order.Customer{
			UserID:     r.Customer.UserID,
			GuestName:  r.Customer.GuestName,
			GuestEmail: r.Customer.GuestEmail,
		},
		Items:           items,
		TotalCents:      r.TotalCents,
		Currency:        cur,
		ShippingAddress: r.ShippingAddress,
		CustomerNotes:   r.CustomerNotes,
	}, nil
}

// CreateOrder handles the create order request.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	orderReq := createOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&orderReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request body for create order", "error", err)

		return
	}

	if err := orderReq.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error validating request body for create order", "error", err)

		return
	}

	model, err := orderReq.toModel()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error converting create order request to model", "error", err)

		return
	}

	ord, err := service.CreateOrder(r.Context(), *model)
	if err != nil {
		httperr.Write(w, r, err, "create order")

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(ord); err != nil {
		slog.Error("Error sending response for create order", "error", err)
	}
}
