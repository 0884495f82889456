// Package httperr maps service errors onto HTTP status codes so handlers
// translate failures consistently.
package httperr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/covacitrees/oms/internal/service/errs"
)

// Status returns the HTTP status code for a service error.
func Status(err error) int {
	var (
		validationErr   *errs.ValidationError
		conflictErr     *errs.ConflictError
		verificationErr *errs.VerificationError
		providerErr     *errs.ProviderError
	)

	switch {
	case errors.Is(err, errs.ErrOrderNotFound), errors.Is(err, errs.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.As(err, &validationErr), errors.As(err, &verificationErr):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write logs the error and writes it with its mapped status code.
func Write(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Error handling "+op, "error", err)
	} else {
		slog.Warn("Rejected "+op, "error", err, "status", status)
	}

	http.Error(w, err.Error(), status)
}
