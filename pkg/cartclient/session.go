package cartclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopease/cart/pkg/cartapi"
	"github.com/shopease/cart/pkg/money"
)

type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Error
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNoCredentials  = errors.New("session has no owner")
	ErrInvalidProduct = errors.New("product needs an id and a valid price")
)

// API is the subset of *Client a Session drives.
type API interface {
	GetCart(ctx context.Context, ownerID string) (*cartapi.Cart, error)
	AddItem(ctx context.Context, req cartapi.AddItemRequest) (*cartapi.Cart, error)
	UpdateQuantity(ctx context.Context, ownerID, productID string, quantity int) (*cartapi.Cart, error)
	RemoveItem(ctx context.Context, ownerID, productID string) (*cartapi.Cart, error)
	ClearCart(ctx context.Context, ownerID string) (*cartapi.Cart, error)
}

// Product is a catalog entry as the storefront shows it. Price is the
// display string, e.g. "Ksh 1,200".
type Product struct {
	ID    string
	Name  string
	Image string
	Price string
}

// Session holds one owner's cart on the client side. Mutations go to the
// server first and the cart is then refetched; nothing is applied locally
// ahead of the server.
type Session struct {
	api     API
	ownerID string
	retries int
	backoff time.Duration
	log     *slog.Logger

	mu       sync.Mutex
	state    State
	cart     *cartapi.Cart
	err      error
	ticket   uint64
	cancel   context.CancelFunc
	nextSub  int
	handlers map[int]func(Snapshot)
}

type SessionOption func(*Session)

// WithRetries sets how many times a failed fetch is retried before the
// session enters the Error state.
func WithRetries(n int) SessionOption {
	return func(s *Session) {
		if n >= 0 {
			s.retries = n
		}
	}
}

func WithBackoff(d time.Duration) SessionOption {
	return func(s *Session) { s.backoff = d }
}

func WithLogger(log *slog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

func NewSession(api API, ownerID string, opts ...SessionOption) *Session {
	s := &Session{
		api:      api,
		ownerID:  ownerID,
		retries:  2,
		backoff:  200 * time.Millisecond,
		log:      slog.Default(),
		handlers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start performs the initial fetch. Without an owner the session stays
// Uninitialized.
func (s *Session) Start(ctx context.Context) error {
	if s.ownerID == "" {
		return ErrNoCredentials
	}
	return s.Refresh(ctx)
}

// Refresh refetches the cart. A newer refresh cancels this one, in which
// case Refresh returns nil and leaves the outcome to the newer call.
func (s *Session) Refresh(ctx context.Context) error {
	if s.ownerID == "" {
		return ErrNoCredentials
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticket := s.issue(cancel)
	cart, err := s.fetch(ctx)
	_, err = s.apply(ticket, cart, err)
	return err
}

// AddItem refetches the cart and then either raises the quantity of an item
// already present or adds the product with quantity 1.
func (s *Session) AddItem(ctx context.Context, p Product) error {
	if s.ownerID == "" {
		return ErrNoCredentials
	}
	if p.ID == "" {
		return ErrInvalidProduct
	}
	if _, err := money.Parse(p.Price); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}

	ticket := s.issue(nil)
	fresh, err := s.fetch(ctx)
	current, err := s.apply(ticket, fresh, err)
	if err != nil {
		return err
	}
	if current == nil {
		return context.Cause(ctx)
	}

	for _, item := range current.Items {
		if item.ProductID == p.ID {
			return s.UpdateQuantity(ctx, p.ID, item.Quantity+1)
		}
	}

	_, err = s.api.AddItem(ctx, cartapi.AddItemRequest{
		OwnerID:   s.ownerID,
		ProductID: p.ID,
		Name:      p.Name,
		Image:     p.Image,
		UnitPrice: cartapi.Price(p.Price),
	})
	if err != nil {
		return s.mutationFailed("add item", err)
	}
	return s.Refresh(ctx)
}

// UpdateQuantity never sends a quantity below 1.
func (s *Session) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	if s.ownerID == "" {
		return ErrNoCredentials
	}
	if quantity < 1 {
		quantity = 1
	}

	if _, err := s.api.UpdateQuantity(ctx, s.ownerID, productID, quantity); err != nil {
		return s.mutationFailed("update quantity", err)
	}
	return s.Refresh(ctx)
}

func (s *Session) RemoveItem(ctx context.Context, productID string) error {
	if s.ownerID == "" {
		return ErrNoCredentials
	}

	if _, err := s.api.RemoveItem(ctx, s.ownerID, productID); err != nil {
		return s.mutationFailed("remove item", err)
	}
	return s.Refresh(ctx)
}

// Clear empties the cart. A cart that was never created counts as cleared.
func (s *Session) Clear(ctx context.Context) error {
	if s.ownerID == "" {
		return ErrNoCredentials
	}

	if _, err := s.api.ClearCart(ctx, s.ownerID); err != nil && !errors.Is(err, ErrNotFound) {
		return s.mutationFailed("clear cart", err)
	}
	return s.Refresh(ctx)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err reports why the last refresh failed while the session is in Error.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// View returns the item count and total of the cart currently held.
func (s *Session) View() DerivedCartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart == nil {
		return DerivedCartView{}
	}
	return Derive(s.cart.Items)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to run after every applied refresh and after a
// refresh fails. The returned func unregisters it.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.handlers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

// issue hands out the next ticket and cancels the refresh in flight, if any.
func (s *Session) issue(cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.ticket++
	s.state = Loading
	return s.ticket
}

func (s *Session) fetch(ctx context.Context) (*cartapi.Cart, error) {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(s.backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		var cart *cartapi.Cart
		cart, err = s.api.GetCart(ctx, s.ownerID)
		if err == nil {
			return cart, nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		s.log.Warn("cart fetch failed",
			slog.String("owner_id", s.ownerID),
			slog.Int("attempt", attempt+1),
			slog.Any("err", err))
	}
	return nil, err
}

// apply stores a fetch result if it belongs to the newest ticket and is not
// older than the cart already held. It returns the fetched cart either way so
// callers can act on what the server said.
func (s *Session) apply(ticket uint64, cart *cartapi.Cart, fetchErr error) (*cartapi.Cart, error) {
	s.mu.Lock()

	if ticket != s.ticket {
		s.mu.Unlock()
		if fetchErr != nil && !errors.Is(fetchErr, context.Canceled) {
			return nil, fetchErr
		}
		return cart, nil
	}
	s.cancel = nil

	if fetchErr != nil {
		s.state = Error
		s.err = fetchErr
		snap, handlers := s.snapshotLocked(), s.handlersLocked()
		s.mu.Unlock()

		s.log.Error("cart refresh failed", slog.String("owner_id", s.ownerID), slog.Any("err", fetchErr))
		notify(handlers, snap)
		return nil, fetchErr
	}

	if s.cart == nil || cart.Version >= s.cart.Version {
		s.cart = cart
	}
	s.state = Ready
	s.err = nil
	snap, handlers := s.snapshotLocked(), s.handlersLocked()
	s.mu.Unlock()

	notify(handlers, snap)
	return cart, nil
}

// mutationFailed leaves the held cart and state untouched.
func (s *Session) mutationFailed(op string, err error) error {
	s.log.Warn("cart "+op+" failed", slog.String("owner_id", s.ownerID), slog.Any("err", err))
	return err
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:   s.state,
		OwnerID: s.ownerID,
		Err:     s.err,
	}
	if s.cart != nil {
		snap.Items = append([]cartapi.Item(nil), s.cart.Items...)
		snap.Version = s.cart.Version
		snap.View = Derive(s.cart.Items)
	}
	return snap
}

func (s *Session) handlersLocked() []func(Snapshot) {
	handlers := make([]func(Snapshot), 0, len(s.handlers))
	for _, fn := range s.handlers {
		handlers = append(handlers, fn)
	}
	return handlers
}

func notify(handlers []func(Snapshot), snap Snapshot) {
	for _, fn := range handlers {
		fn(snap)
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return errors.Is(apiErr, ErrServer)
	}
	return true
}
