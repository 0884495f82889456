package providerwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covacitrees/oms/internal/service/errs"
	"github.com/covacitrees/oms/internal/service/models/payment"
	"github.com/covacitrees/oms/internal/service/services/reconcilesvc"
	"github.com/covacitrees/oms/internal/transport/http/httperr"
)

// Providers cap callback bodies well below this.
const maxBodyBytes = 1 << 20

// service is an interface for the service layer.
type service interface {
	HandleWebhook(ctx context.Context, provider payment.Provider, rawBody []byte, headers http.Header) (*reconcilesvc.Reconciled, error)
}

// webhookResponse acknowledges a processed callback. Providers only care
// about the status code; the body helps debugging.
type webhookResponse struct {
	PaymentID     string `json:"paymentId"`
	PaymentStatus string `json:"paymentStatus"`
	Replay        bool   `json:"replay"`
}

// HandleWebhook handles an asynchronous provider callback. The body is read
// raw so adapters can verify the signature over the exact bytes sent.
func HandleWebhook(w http.ResponseWriter, r *http.Request, service service) {
	provider, err := payment.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		slog.Warn("Callback for unknown provider", "provider", chi.URLParam(r, "provider"))

		return
	}

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error reading callback body", "error", err, "provider", provider)

		return
	}

	res, err := service.HandleWebhook(r.Context(), provider, rawBody, r.Header)
	if err != nil {
		// An anomalous transition is already recorded for manual review;
		// acknowledge it so the provider stops retrying a callback that
		// will never change the payment.
		var conflict *errs.ConflictError
		if errors.As(err, &conflict) && conflict.Anomaly {
			slog.Warn("Acknowledged anomalous callback held for manual review",
				"provider", provider,
				"error", err,
			)
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(webhookResponse{PaymentStatus: conflict.From}); err != nil {
				slog.Error("Error sending response for provider callback", "error", err)
			}

			return
		}

		httperr.Write(w, r, err, "provider callback")

		return
	}

	resp := webhookResponse{
		PaymentID:     res.Payment.ID,
		PaymentStatus: string(res.Payment.Status),
		Replay:        res.Replay,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Error sending response for provider callback", "error", err)
	}
}
