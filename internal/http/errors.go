package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopease/cart/internal/repository"
	"github.com/shopease/cart/internal/service"
	"github.com/shopease/cart/pkg/cartapi"
)

var errUnauthenticated = errors.New("missing user authentication")

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.Any("err", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, cartapi.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps service and repository errors onto HTTP statuses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError

	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, cartapi.ErrorResponse{
			Error:   verr.Error(),
			Code:    "invalid_request",
			Details: strings.Join(verr.Fields, ","),
		})
	case errors.Is(err, repository.ErrItemExists):
		respondError(w, http.StatusBadRequest, "already_in_cart", err.Error())
	case errors.Is(err, repository.ErrQuantityLimit):
		respondError(w, http.StatusBadRequest, "quantity_limit", err.Error())
	case errors.Is(err, service.ErrOutOfStock):
		respondError(w, http.StatusBadRequest, "out_of_stock", err.Error())
	case errors.Is(err, repository.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "cart_not_found", err.Error())
	case errors.Is(err, service.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, errUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, errForeignOwner):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		respondError(w, http.StatusInternalServerError, "internal_error", "server error")
	}
}
