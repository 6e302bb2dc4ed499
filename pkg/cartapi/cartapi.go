// Package cartapi holds the JSON shapes exchanged between the cart service
// and its clients.
package cartapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type AddItemRequest struct {
	OwnerID   string `json:"owner_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	UnitPrice Price  `json:"unit_price"`
	Quantity  int    `json:"quantity,omitempty"`
}

type UpdateQuantityRequest struct {
	OwnerID   string `json:"owner_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type RemoveItemRequest struct {
	OwnerID   string `json:"owner_id"`
	ProductID string `json:"product_id"`
}

type ClearCartRequest struct {
	OwnerID string `json:"owner_id"`
}

type Item struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	UnitPrice int64     `json:"unit_price"` // minor units
	Price     string    `json:"price"`
	Quantity  int       `json:"quantity"`
	Subtotal  string    `json:"subtotal"`
	AddedAt   time.Time `json:"added_at"`
}

type Cart struct {
	ID        string    `json:"id,omitempty"`
	OwnerID   string    `json:"owner_id"`
	Items     []Item    `json:"items"`
	Version   int64     `json:"version"`
	ItemCount int       `json:"item_count"`
	Total     string    `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MutationResponse struct {
	Message string `json:"message"`
	Cart    Cart   `json:"cart"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Price accepts either a JSON string ("Ksh 100") or a JSON number (100) and
// keeps its textual form for parsing by the service.
type Price string

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Price(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unit_price must be a string or a number: %w", err)
		}
		*p = Price(n.String())
	}
	return nil
}
