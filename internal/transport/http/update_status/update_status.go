package updatestatus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	UpdateFulfillment(ctx context.Context, orderID string, target order.Status, note string) (*order.Order, error)
}

// updateStatusRequest represents a fulfillment status update request.
type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note"`
}

// Validate validates the update status request.
func (r *updateStatusRequest) Validate() error {
	return validator.New().Struct(r)
}

// UpdateStatus handles the fulfillment status update request.
func UpdateStatus(w http.ResponseWriter, r *http.Request, service service) {
	orderID := chi.URLParam(r, "id")

	req := updateStatusRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request body for update status", "error", err)

		return
	}

	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error validating request body for update status", "error", err)

		return
	}

	target, err := order.ParseStatus(req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error parsing target status for update status", "error", err, "status", req.Status)

		return
	}

	ord, err := service.UpdateFulfillment(r.Context(), orderID, target, req.Note)
	if err != nil {
		httperr.Write(w, r, err, "update status")

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ord); err != nil {
		slog.Error("Error sending response for update status", "error", err)
	}
}
