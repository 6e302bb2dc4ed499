package cartclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopease/cart/pkg/cartapi"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addRequest(productID, price string) cartapi.AddItemRequest {
	return cartapi.AddItemRequest{
		OwnerID:   "u1",
		ProductID: productID,
		Name:      "Product " + productID,
		Image:     productID + ".jpg",
		UnitPrice: cartapi.Price(price),
	}
}

func TestClient_AddAndGet(t *testing.T) {
	fake, srv := newFakeServer(t)
	client := New(srv.URL, WithToken("tok"))
	ctx := context.Background()

	cart, err := client.AddItem(ctx, addRequest("p1", "Ksh 100"))
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "100.00", cart.Total)

	cart, err = client.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), cart.Items[0].UnitPrice)
	assert.Equal(t, "Bearer tok", fake.token())

	count, err := client.CountItems(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClient_ErrorMapping(t *testing.T) {
	_, srv := newFakeServer(t)
	client := New(srv.URL, WithToken("tok"))
	ctx := context.Background()

	_, err := client.AddItem(ctx, addRequest("p1", "Ksh 100"))
	require.NoError(t, err)

	_, err = client.AddItem(ctx, addRequest("p1", "Ksh 100"))
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrValidation)

	_, err = client.AddItem(ctx, cartapi.AddItemRequest{OwnerID: "u1"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = client.ClearCart(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "cart_not_found", apiErr.Code)
}

func TestClient_Unauthorized(t *testing.T) {
	_, srv := newFakeServer(t)
	client := New(srv.URL)

	_, err := client.GetCart(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, cartapi.ErrorResponse{Error: "down"})
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL, WithToken("tok"), WithBreaker(gobreaker.Settings{
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.GetCart(ctx, "u1")
		assert.ErrorIs(t, err, ErrServer)
	}

	_, err := client.GetCart(ctx, "u1")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "got %v", err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	_, srv := newFakeServer(t)
	client := New(srv.URL, WithToken("tok"), WithBreaker(gobreaker.Settings{
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.ClearCart(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	}

	_, err := client.GetCart(ctx, "u1")
	assert.NoError(t, err)
}
