package capturepayment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/covacitrees/oms/internal/service/models/payment"
	"github.com/covacitrees/oms/internal/service/services/reconcilesvc"
	"github.com/covacitrees/oms/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	HandleCapture(ctx context.Context, provider payment.Provider, providerTransactionID string) (*reconcilesvc.Reconciled, error)
}

// capturePaymentRequest represents a capture payment request.
type capturePaymentRequest struct {
	ProviderTransactionID string `json:"providerTransactionId" validate:"required"`
}

// Validate validates the capture payment request.
func (r *capturePaymentRequest) Validate() error {
	return validator.New().Struct(r)
}

// captureResponse reports the settled attempt and the order it updated.
type captureResponse struct {
	PaymentID     string `json:"paymentId"`
	PaymentStatus string `json:"paymentStatus"`
	OrderID       string `json:"orderId,omitempty"`
	OrderStatus   string `json:"orderStatus,omitempty"`
	Replay        bool   `json:"replay"`
}

// CapturePayment handles the capture payment request.
func CapturePayment(w http.ResponseWriter, r *http.Request, service service) {
	provider, err := payment.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error parsing provider for capture payment", "error", err)

		return
	}

	req := capturePaymentRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request body for capture payment", "error", err)

		return
	}

	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error validating request body for capture payment", "error", err)

		return
	}

	res, err := service.HandleCapture(r.Context(), provider, req.ProviderTransactionID)
	if err != nil {
		httperr.Write(w, r, err, "capture payment")

		return
	}

	resp := captureResponse{
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
		slog.Error("Error sending response for capture payment", "error", err)
	}
}
