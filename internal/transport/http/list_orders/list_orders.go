package listorders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/transport/http/httperr"
)

var errInvalidPagination = errors.New("limit must be in (0, 500] and offset must not be negative")

// service is an interface for the service layer.
type service interface {
	GetOrders(ctx context.Context, model order.QueryOrdersModel) ([]order.Order, error)
}

func parseQuery(r *http.Request) (*order.QueryOrdersModel, error) {
	q := r.URL.Query()
	model := order.QueryOrdersModel{
		Limit:  50,
		Offset: 0,
	}

	if ids := q.Get("ids"); ids != "" {
		model.Ids = strings.Split(ids, ",")
	}
	if userIDs := q.Get("userIds"); userIDs != "" {
		model.UserIds = strings.Split(userIDs, ",")
	}

	if raw := q.Get("status"); raw != "" {
		status, err := order.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		model.Status = &status
	}
	if raw := q.Get("paymentStatus"); raw != "" {
		status, err := order.ParsePaymentStatus(raw)
		if err != nil {
			return nil, err
		}
		model.PaymentStatus = &status
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 500 {
			return nil, errInvalidPagination
		}
		model.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, errInvalidPagination
		}
		model.Offset = offset
	}

	return &model, nil
}

// ListOrders handles the list orders request.
func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	model, err := parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error parsing query for list orders", "error", err)

		return
	}

	orders, err := service.GetOrders(r.Context(), *model)
	if err != nil {
		httperr.Write(w, r, err, "list orders")

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orders); err != nil {
		slog.Error("Error sending response for list orders", "error", err)
	}
}
