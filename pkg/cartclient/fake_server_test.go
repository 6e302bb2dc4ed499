package cartclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopease/cart/pkg/cartapi"
	"github.com/shopease/cart/pkg/money"
)

// fakeServer serves the cart routes from memory with the same status codes
// as the real service.
type fakeServer struct {
	mu        sync.RWMutex
	carts     map[string]*cartapi.Cart
	gets      int
	failGets  int
	lastToken string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	f := &fakeServer{carts: make(map[string]*cartapi.Cart)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cart/count/{ownerId}", f.count)
	mux.HandleFunc("GET /api/cart/{ownerId}", f.get)
	mux.HandleFunc("POST /api/cart/add", f.add)
	mux.HandleFunc("PUT /api/cart/update", f.update)
	mux.HandleFunc("DELETE /api/cart/remove", f.remove)
	mux.HandleFunc("DELETE /api/cart/clear", f.clear)

	srv := httptest.NewServer(f.auth(mux))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, cartapi.ErrorResponse{Error: "no token provided", Code: "unauthorized"})
			return
		}
		f.mu.Lock()
		f.lastToken = token
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *fakeServer) token() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastToken
}

func (f *fakeServer) getCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.gets
}

func (f *fakeServer) get(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failGets > 0 {
		f.failGets--
		writeJSON(w, http.StatusInternalServerError, cartapi.ErrorResponse{Error: "server error", Code: "internal_error"})
		return
	}
	writeJSON(w, http.StatusOK, f.view(r.PathValue("ownerId")))
}

func (f *fakeServer) count(w http.ResponseWriter, r *http.Request) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	writeJSON(w, http.StatusOK, cartapi.CountResponse{Count: f.view(r.PathValue("ownerId")).ItemCount})
}

func (f *fakeServer) add(w http.ResponseWriter, r *http.Request) {
	var req cartapi.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == "" || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, cartapi.ErrorResponse{Error: "missing required fields", Code: "invalid_request"})
		return
	}
	price, err := money.Parse(string(req.UnitPrice))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, cartapi.ErrorResponse{Error: "bad price", Code: "invalid_request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[req.OwnerID]
	if !ok {
		cart = &cartapi.Cart{OwnerID: req.OwnerID, Items: []cartapi.Item{}}
		f.carts[req.OwnerID] = cart
	}
	for _, item := range cart.Items {
		if item.ProductID == req.ProductID {
			writeJSON(w, http.StatusBadRequest, cartapi.ErrorResponse{Error: "product is already in the cart", Code: "already_in_cart"})
			return
		}
	}
	cart.Items = append(cart.Items, cartapi.Item{
		ProductID: req.ProductID,
		Name:      req.Name,
		Image:     req.Image,
		UnitPrice: int64(price),
		Quantity:  1,
	})
	cart.Version++
	writeJSON(w, http.StatusOK, cartapi.MutationResponse{Message: "Item added to cart", Cart: f.view(req.OwnerID)})
}

func (f *fakeServer) update(w http.ResponseWriter, r *http.Request) {
	var req cartapi.UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, cartapi.ErrorResponse{Error: "quantity must be between 1 and 99", Code: "invalid_request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[req.OwnerID]
	if !ok {
		writeJSON(w, http.StatusNotFound, cartapi.ErrorResponse{Error: "cart not found", Code: "cart_not_found"})
		return
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == req.ProductID {
			cart.Items[i].Quantity = req.Quantity
			cart.Version++
		}
	}
	writeJSON(w, http.StatusOK, cartapi.MutationResponse{Message: "Cart updated", Cart: f.view(req.OwnerID)})
}

func (f *fakeServer) remove(w http.ResponseWriter, r *http.Request) {
	var req cartapi.RemoveItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cartapi.ErrorResponse{Error: "invalid JSON body", Code: "invalid_request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[req.OwnerID]
	if !ok {
		writeJSON(w, http.StatusNotFound, cartapi.ErrorResponse{Error: "cart not found", Code: "cart_not_found"})
		return
	}
	kept := make([]cartapi.Item, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.ProductID != req.ProductID {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	cart.Version++
	writeJSON(w, http.StatusOK, cartapi.MutationResponse{Message: "Item removed from cart", Cart: f.view(req.OwnerID)})
}

func (f *fakeServer) clear(w http.ResponseWriter, r *http.Request) {
	var req cartapi.ClearCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cartapi.ErrorResponse{Error: "invalid JSON body", Code: "invalid_request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[req.OwnerID]
	if !ok {
		writeJSON(w, http.StatusNotFound, cartapi.ErrorResponse{Error: "cart not found", Code: "cart_not_found"})
		return
	}
	cart.Items = []cartapi.Item{}
	cart.Version++
	writeJSON(w, http.StatusOK, cartapi.MutationResponse{Message: "Cart cleared", Cart: f.view(req.OwnerID)})
}

// view must be called with mu held.
func (f *fakeServer) view(ownerID string) cartapi.Cart {
	cart, ok := f.carts[ownerID]
	if !ok {
		return cartapi.Cart{OwnerID: ownerID, Items: []cartapi.Item{}, Total: "0.00"}
	}
	out := *cart
	out.Items = append([]cartapi.Item(nil), cart.Items...)
	derived := Derive(out.Items)
	out.ItemCount = derived.ItemCount
	out.Total = derived.TotalString()
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
