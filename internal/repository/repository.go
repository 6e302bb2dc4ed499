package repository

import (
	"context"
	"errors"

	"github.com/shopease/cart/internal/domain"
)

var (
	ErrCartNotFound  = errors.New("cart not found")
	ErrItemNotFound  = errors.New("item not found in cart")
	ErrItemExists    = errors.New("product is already in the cart")
	ErrQuantityLimit = errors.New("item quantity limit reached")
)

// CartRepository defines the interface for cart data operations.
// Every mutating call is a single atomic document update and returns the
// aggregate as it is after the update.
type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	// AddItem creates the cart on first use. Fails with ErrItemExists when the
	// product is already present.
	AddItem(ctx context.Context, ownerID string, item domain.CartItem) (*domain.Cart, error)
	// IncrementItem adds delta to an existing item. Fails with ErrItemNotFound
	// when the item (or the cart) is missing.
	IncrementItem(ctx context.Context, ownerID, productID string, delta int) (*domain.Cart, error)
	// UpdateItemQuantity is a no-op when the item is missing.
	UpdateItemQuantity(ctx context.Context, ownerID, productID string, quantity int) (*domain.Cart, error)
	// RemoveItem is a no-op when the item is missing.
	RemoveItem(ctx context.Context, ownerID, productID string) (*domain.Cart, error)
	// ClearCart empties the items but keeps the aggregate.
	ClearCart(ctx context.Context, ownerID string) (*domain.Cart, error)
}
