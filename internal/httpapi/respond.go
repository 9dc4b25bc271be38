package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/cartsync/internal/cartstore"
	"github.com/fjod/go_cart/cartsync/internal/checkout"
	"github.com/fjod/go_cart/cartsync/internal/history"
	"github.com/fjod/go_cart/cartsync/internal/remote"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleError maps engine errors to HTTP status codes.
func handleError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		validationErr *checkout.ValidationError
		stockErr      *checkout.StockChangedError
		creationErr   *checkout.OrderCreationError
	)

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: validationErr.Error(), Code: "validation_failed", Details: validationErr.Fields,
		})
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: stockErr.Error(), Code: "stock_changed", Details: stockErr.Changes,
		})
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		respondError(w, http.StatusConflict, "checkout_in_progress", err.Error())
	case errors.As(err, &creationErr):
		code := "order_creation_failed"
		if creationErr.Timeout() {
			code = "order_creation_timeout"
		}
		respondError(w, http.StatusBadGateway, code, "order could not be created, please retry")
	case errors.Is(err, cartstore.ErrLineNotFound), errors.Is(err, remote.ErrNotFound),
		errors.Is(err, history.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, cartstore.ErrInvalidLine):
		respondError(w, http.StatusBadRequest, "invalid_line", err.Error())
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "remote store unavailable")
	default:
		log.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
