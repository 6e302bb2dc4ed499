package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopease/cart/internal/domain"
	"github.com/shopease/cart/internal/service"
	"github.com/shopease/cart/pkg/cartapi"
	"github.com/shopease/cart/pkg/money"
)

// CartService is the part of service.CartService the handlers need.
type CartService interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	AddLineItem(ctx context.Context, in service.AddItemInput) (*domain.Cart, error)
	UpsertLineItem(ctx context.Context, in service.AddItemInput) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, ownerID, productID string, quantity int) (*domain.Cart, error)
	RemoveLineItem(ctx context.Context, ownerID, productID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	CountItems(ctx context.Context, ownerID string) (int, error)
}

type CartHandler struct {
	service     CartService
	timeout     time.Duration
	maxBodySize int64
}

func NewCartHandler(service CartService, timeout time.Duration, maxBodySize int64) *CartHandler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &CartHandler{
		service:     service,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// requestContext bounds the service call by the handler timeout. A zero
// timeout leaves only the request's own deadline, as the router does.
func (h *CartHandler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func toCartView(c *domain.Cart) cartapi.Cart {
	view := cartapi.Cart{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Items:     make([]cartapi.Item, len(c.Items)),
		Version:   c.Version,
		ItemCount: c.ItemCount(),
		Total:     c.Total().String(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}

	for i, item := range c.Items {
		view.Items[i] = cartapi.Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: int64(item.UnitPrice),
			Price:     item.UnitPrice.Format(money.DefaultCurrency),
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal().String(),
			AddedAt:   item.AddedAt,
		}
	}

	return view
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req cartapi.AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.authorize(ctx, req.OwnerID); err != nil {
		handleError(w, r, err)
		return
	}

	cart, err := h.service.AddLineItem(ctx, addItemInput(req))
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartapi.MutationResponse{
		Message: "Item added to cart",
		Cart:    toCartView(cart),
	})
}

func (h *CartHandler) UpsertItem(w http.ResponseWriter, r *http.Request) {
	var req cartapi.AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.authorize(ctx, req.OwnerID); err != nil {
		handleError(w, r, err)
		return
	}

	cart, err := h.service.UpsertLineItem(ctx, addItemInput(req))
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartapi.MutationResponse{
		Message: "Cart updated",
		Cart:    toCartView(cart),
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	ownerID := chi.URLParam(r, "ownerId")
	if err := h.authorize(ctx, ownerID); err != nil {
		handleError(w, r, err)
		return
	}

	cart, err := h.service.GetCart(ctx, ownerID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartView(cart))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req cartapi.UpdateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.authorize(ctx, req.OwnerID); err != nil {
		handleError(w, r, err)
		return
	}

	cart, err := h.service.UpdateQuantity(ctx, req.OwnerID, req.ProductID, req.Quantity)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartapi.MutationResponse{
		Message: "Cart updated",
		Cart:    toCartView(cart),
	})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	var req cartapi.RemoveItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.authorize(ctx, req.OwnerID); err != nil {
		handleError(w, r, err)
		return
	}

	cart, err := h.service.RemoveLineItem(ctx, req.OwnerID, req.ProductID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartapi.MutationResponse{
		Message: "Item removed from cart",
		Cart:    toCartView(cart),
	})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	var req cartapi.ClearCartRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.authorize(ctx, req.OwnerID); err != nil {
		handleError(w, r, err)
		return
	}

	cart, err := h.service.ClearCart(ctx, req.OwnerID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartapi.MutationResponse{
		Message: "Cart cleared",
		Cart:    toCartView(cart),
	})
}

func (h *CartHandler) CountItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	ownerID := chi.URLParam(r, "ownerId")
	if err := h.authorize(ctx, ownerID); err != nil {
		handleError(w, r, err)
		return
	}

	count, err := h.service.CountItems(ctx, ownerID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartapi.CountResponse{Count: count})
}

// decode reads a size-limited JSON body and writes the error response itself.
func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// authorize skips the ownership check for an empty owner so that the service
// reports it as a missing field.
func (h *CartHandler) authorize(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		if _, ok := IdentityFromContext(ctx); !ok {
			return errUnauthenticated
		}
		return nil
	}
	return authorizeOwner(ctx, ownerID)
}

func addItemInput(req cartapi.AddItemRequest) service.AddItemInput {
	return service.AddItemInput{
		OwnerID:   req.OwnerID,
		ProductID: req.ProductID,
		Name:      req.Name,
		Image:     req.Image,
		UnitPrice: string(req.UnitPrice),
		Quantity:  req.Quantity,
	}
}
