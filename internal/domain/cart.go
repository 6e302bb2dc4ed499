package domain

import (
	"time"

	"github.com/shopease/cart/pkg/money"
)

// MaxQuantity caps a single line item.
const MaxQuantity = 99

// Cart is the per-owner aggregate. There is at most one item per ProductID.
type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	OwnerID   string     `bson:"owner_id" json:"owner_id"`
	Items     []CartItem `bson:"items" json:"items"`
	Version   int64      `bson:"version" json:"version"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// CartItem is a line item. Name, Image and UnitPrice are a snapshot of the
// catalog entry taken when the item was added.
type CartItem struct {
	ProductID string      `bson:"product_id" json:"product_id"`
	Name      string      `bson:"name" json:"name"`
	Image     string      `bson:"image" json:"image"`
	UnitPrice money.Cents `bson:"unit_price" json:"unit_price"`
	Quantity  int         `bson:"quantity" json:"quantity"`
	AddedAt   time.Time   `bson:"added_at" json:"added_at"`
}

// EmptyCart is what an owner without a stored aggregate sees.
func EmptyCart(ownerID string) *Cart {
	return &Cart{
		OwnerID: ownerID,
		Items:   []CartItem{},
	}
}

// Find returns the item for productID, if present.
func (c *Cart) Find(productID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// ItemCount is the sum of all quantities.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Total is the sum of unit price times quantity.
func (c *Cart) Total() money.Cents {
	var total money.Cents
	for _, item := range c.Items {
		total += item.Subtotal()
	}
	return total
}

func (i CartItem) Subtotal() money.Cents {
	return i.UnitPrice.Times(i.Quantity)
}
