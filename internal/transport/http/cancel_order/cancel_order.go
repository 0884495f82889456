package cancelorder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	Cancel(ctx context.Context, orderID, reason string) (*order.Order, error)
}

// cancelOrderRequest represents a cancel order request. The body is
// optional.
type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder handles the cancel order request.
func CancelOrder(w http.ResponseWriter, r *http.Request, service service) {
	orderID := chi.URLParam(r, "id")

	req := cancelOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request body for cancel order", "error", err)

		return
	}

	ord, err := service.Cancel(r.Context(), orderID, req.Reason)
	if err != nil {
		httperr.Write(w, r, err, "cancel order")

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ord); err != nil {
		slog.Error("Error sending response for cancel order", "error", err)
	}
}
