package cartclient

import (
	"github.com/shopease/cart/pkg/cartapi"
	"github.com/shopease/cart/pkg/money"
)

// DerivedCartView holds the values computed from the line items. It is never
// sent to the server.
type DerivedCartView struct {
	ItemCount int
	Total     money.Cents
}

// TotalString is the total with two decimals, e.g. "200.00".
func (v DerivedCartView) TotalString() string {
	return v.Total.String()
}

// Derive sums quantities and unit_price*quantity. Items without minor-unit
// prices fall back to their formatted price, and an unparseable one counts as 0.
func Derive(items []cartapi.Item) DerivedCartView {
	var v DerivedCartView
	for _, item := range items {
		price := money.Cents(item.UnitPrice)
		if price == 0 && item.Price != "" {
			price = money.ParseOrZero(item.Price)
		}
		v.ItemCount += item.Quantity
		v.Total += price.Times(item.Quantity)
	}
	return v
}

// Snapshot is what subscribers receive after every applied refresh.
type Snapshot struct {
	State   State
	OwnerID string
	Items   []cartapi.Item
	Version int64
	View    DerivedCartView
	Err     error
}
