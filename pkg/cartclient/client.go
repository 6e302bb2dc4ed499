// Package cartclient talks to the cart service over HTTP and keeps a
// client-side view of one owner's cart in sync with it.
package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopease/cart/pkg/cartapi"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseSize = 4 << 20

type response struct {
	status int
	body   []byte
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*response]
}

type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(st gobreaker.Settings) Option {
	return func(c *Client) { c.breaker = newBreaker(st) }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(gobreaker.Settings{Name: "cart-service"})
	}
	return c
}

func newBreaker(st gobreaker.Settings) *gobreaker.CircuitBreaker[*response] {
	if st.Name == "" {
		st.Name = "cart-service"
	}
	if st.Timeout == 0 {
		st.Timeout = 10 * time.Second
	}
	if st.ReadyToTrip == nil {
		st.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	if st.IsSuccessful == nil {
		// a cancelled call says nothing about the service's health
		st.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		}
	}
	if st.OnStateChange == nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}
	}
	return gobreaker.NewCircuitBreaker[*response](st)
}

func (c *Client) GetCart(ctx context.Context, ownerID string) (*cartapi.Cart, error) {
	var cart cartapi.Cart
	if err := c.do(ctx, http.MethodGet, "/api/cart/"+url.PathEscape(ownerID), nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem fails with ErrConflict when the product is already in the cart.
func (c *Client) AddItem(ctx context.Context, req cartapi.AddItemRequest) (*cartapi.Cart, error) {
	return c.mutate(ctx, http.MethodPost, "/api/cart/add", req)
}

// UpsertItem adds the product or increments its quantity by one.
func (c *Client) UpsertItem(ctx context.Context, req cartapi.AddItemRequest) (*cartapi.Cart, error) {
	return c.mutate(ctx, http.MethodPost, "/api/cart/upsert", req)
}

func (c *Client) UpdateQuantity(ctx context.Context, ownerID, productID string, quantity int) (*cartapi.Cart, error) {
	return c.mutate(ctx, http.MethodPut, "/api/cart/update", cartapi.UpdateQuantityRequest{
		OwnerID:   ownerID,
		ProductID: productID,
		Quantity:  quantity,
	})
}

func (c *Client) RemoveItem(ctx context.Context, ownerID, productID string) (*cartapi.Cart, error) {
	return c.mutate(ctx, http.MethodDelete, "/api/cart/remove", cartapi.RemoveItemRequest{
		OwnerID:   ownerID,
		ProductID: productID,
	})
}

func (c *Client) ClearCart(ctx context.Context, ownerID string) (*cartapi.Cart, error) {
	return c.mutate(ctx, http.MethodDelete, "/api/cart/clear", cartapi.ClearCartRequest{OwnerID: ownerID})
}

func (c *Client) CountItems(ctx context.Context, ownerID string) (int, error) {
	var resp cartapi.CountResponse
	if err := c.do(ctx, http.MethodGet, "/api/cart/count/"+url.PathEscape(ownerID), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) mutate(ctx context.Context, method, path string, body interface{}) (*cartapi.Cart, error) {
	var resp cartapi.MutationResponse
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Cart, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		r := &response{status: httpResp.StatusCode, body: data}
		if r.status >= http.StatusInternalServerError {
			return r, newAPIError(r.status, r.body)
		}
		return r, nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.status < 200 || resp.status >= 300 {
		return newAPIError(resp.status, resp.body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
