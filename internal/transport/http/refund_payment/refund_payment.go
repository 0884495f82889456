package refundpayment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/covacitrees/oms/internal/service/services/reconcilesvc"
	"github.com/covacitrees/oms/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	RefundPayment(ctx context.Context, paymentID, reason string) (*reconcilesvc.Reconciled, error)
}

// refundPaymentRequest represents a refund payment request.
type refundPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	Reason    string `json:"reason"`
}

// Validate validates the refund payment request.
func (r *refundPaymentRequest) Validate() error {
	return validator.New().Struct(r)
}

// refundResponse reports the refunded attempt and the order it updated.
type refundResponse struct {
	PaymentID     string `json:"paymentId"`
	PaymentStatus string `json:"paymentStatus"`
	OrderID       string `json:"orderId,omitempty"`
	OrderStatus   string `json:"orderStatus,omitempty"`
	Replay        bool   `json:"replay"`
}

// RefundPayment handles the refund payment request.
func RefundPayment(w http.ResponseWriter, r *http.Request, service service) {
	req := refundPaymentRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request body for refund payment", "error", err)

		return
	}

	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error validating request body for refund payment", "error", err)

		return
	}

	res, err := service.RefundPayment(r.Context(), req.PaymentID, req.Reason)
	if err != nil {
		httperr.Write(w, r, err, "refund payment")

		return
	}

	resp := refundResponse{
		PaymentID:     res.Payment.ID,
		PaymentStatus: string(res.Payment.Status),
		Replay:        res.Replay,
	}
	if res.Order != nil {
		resp.OrderID = res.Order.ID
		resp.OrderStatus = string(res.Order.Status)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Error sending response for refund payment", "error", err)
	}
}
