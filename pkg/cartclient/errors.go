package cartclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopease/cart/pkg/cartapi"
)

var (
	ErrValidation   = errors.New("invalid request")
	ErrConflict     = errors.New("already in cart")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrServer       = errors.New("cart service error")
)

// APIError is a non-2xx answer from the cart service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("cart service: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("cart service: %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match an APIError against the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.StatusCode == http.StatusBadRequest && e.Code == "already_in_cart"
	case ErrValidation:
		return e.StatusCode == http.StatusBadRequest && e.Code != "already_in_cart"
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrServer:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var resp cartapi.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		apiErr.Code = resp.Code
		apiErr.Message = resp.Error
		apiErr.Details = resp.Details
		return apiErr
	}

	apiErr.Message = http.StatusText(status)
	return apiErr
}
