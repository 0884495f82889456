package initiatepayment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covacitrees/oms/internal/service/models/payment"
	"github.com/covacitrees/oms/internal/service/services/reconcilesvc"
	"github.com/covacitrees/oms/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	InitiatePayment(ctx context.Context, orderID string, provider payment.Provider) (*reconcilesvc.InitiateOutcome, error)
}

// initiatePaymentRequest represents an initiate payment request.
type initiatePaymentRequest struct {
	Provider string `json:"provider"`
}

// initiatePaymentResponse carries the pending attempt and the provider's
// checkout material.
type initiatePaymentResponse struct {
	PaymentID             string            `json:"paymentId"`
	Provider              string            `json:"provider"`
	ProviderTransactionID string            `json:"providerTransactionId"`
	AmountCents           int64             `json:"amountCents"`
	Currency              string            `json:"currency"`
	Status                string            `json:"status"`
	RedirectURL           string            `json:"redirectUrl,omitempty"`
	ClientSecret          string            `json:"clientSecret,omitempty"`
	FormTarget            string            `json:"formTarget,omitempty"`
	FormFields            map[string]string `json:"formFields,omitempty"`
	Instructions          string            `json:"instructions,omitempty"`
}

// InitiatePayment handles the initiate payment request.
func InitiatePayment(w http.ResponseWriter, r *http.Request, service service) {
	orderID := chi.URLParam(r, "id")

	req := initiatePaymentRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request body for initiate payment", "error", err)

		return
	}

	provider, err := payment.ParseProvider(req.Provider)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error parsing provider for initiate payment", "error", err, "provider", req.Provider)

		return
	}

	outcome, err := service.InitiatePayment(r.Context(), orderID, provider)
	if err != nil {
		httperr.Write(w, r, err, "initiate payment")

		return
	}

	resp := initiatePaymentResponse{
		PaymentID:             outcome.Payment.ID,
		Provider:              outcome.Payment.Provider.String(),
		ProviderTransactionID: outcome.Payment.ProviderTransactionID,
		AmountCents:           outcome.Payment.AmountCents,
		Currency:              outcome.Payment.Currency.String(),
		Status:                string(outcome.Payment.Status),
		RedirectURL:           outcome.Checkout.RedirectURL,
		ClientSecret:          outcome.Checkout.ClientSecret,
		FormTarget:            outcome.Checkout.FormTarget,
		FormFields:            outcome.Checkout.FormFields,
		Instructions:          outcome.Checkout.Instructions,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Error sending response for initiate payment", "error", err)
	}
}
