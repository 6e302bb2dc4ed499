package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopease/cart/internal/cache"
	"github.com/shopease/cart/internal/catalog"
	"github.com/shopease/cart/internal/domain"
	"github.com/shopease/cart/internal/repository"
	"github.com/shopease/cart/pkg/money"
	"golang.org/x/sync/singleflight"
)

// AddItemInput carries a product snapshot taken by the caller. UnitPrice may
// be formatted, e.g. "Ksh 1,200".
type AddItemInput struct {
	OwnerID   string
	ProductID string
	Name      string
	Image     string
	UnitPrice string
	Quantity  int
}

const (
	readTimeout       = 5 * time.Second
	generationStripes = 256
)

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.Reader
	log     *slog.Logger
	sfg     singleflight.Group // coalesces concurrent cache misses per owner
	gens    [generationStripes]atomic.Uint64
}

// NewCartService wires the service. products may be nil, in which case
// product ids are not checked against the catalog.
func NewCartService(repo repository.CartRepository, cache cache.CartCache, products catalog.Reader, log *slog.Logger) *CartService {
	if log == nil {
		log = slog.Default()
	}
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: products,
		log:     log,
	}
}

func (s *CartService) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if err := requireFields(field{"owner_id", ownerID}); err != nil {
		return nil, err
	}

	ch := s.sfg.DoChan(ownerID, func() (interface{}, error) {
		// shared by every caller that joins, so it must not inherit the
		// first caller's cancellation
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readTimeout)
		defer cancel()
		return s.loadCart(readCtx, ownerID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Cart), nil
	}
}

// loadCart reads through the cache. A read that overlapped a mutation of the
// same cart is returned but never left in the cache.
func (s *CartService) loadCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	cart, err := s.cache.Get(ctx, ownerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn("cache get failed", slog.String("owner_id", ownerID), slog.Any("err", err))
	}

	gen := s.generation(ownerID).Load()
	cart, err = s.repo.GetCart(ctx, ownerID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.EmptyCart(ownerID), nil
	}
	if err != nil {
		return nil, err
	}
	if s.generation(ownerID).Load() != gen {
		return cart, nil
	}

	if err := s.cache.Set(ctx, ownerID, cart); err != nil {
		s.log.Warn("cache set failed", slog.String("owner_id", ownerID), slog.Any("err", err))
	}
	// an invalidation between the check above and Set would otherwise be lost
	if s.generation(ownerID).Load() != gen {
		s.deleteCached(ownerID)
	}
	return cart, nil
}

// AddLineItem appends a new item with the requested quantity (default 1).
// A product that is already in the cart is rejected with repository.ErrItemExists.
func (s *CartService) AddLineItem(ctx context.Context, in AddItemInput) (*domain.Cart, error) {
	item, err := s.prepareItem(ctx, in)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.AddItem(ctx, in.OwnerID, item)
	if err != nil {
		return nil, s.repoError("add item", err)
	}

	s.invalidateCache(in.OwnerID)
	return cart, nil
}

// UpsertLineItem increments the quantity of an existing item by one, or
// appends the item with quantity 1.
func (s *CartService) UpsertLineItem(ctx context.Context, in AddItemInput) (*domain.Cart, error) {
	in.Quantity = 1
	item, err := s.prepareItem(ctx, in)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.IncrementItem(ctx, in.OwnerID, in.ProductID, 1)
	if errors.Is(err, repository.ErrItemNotFound) {
		cart, err = s.repo.AddItem(ctx, in.OwnerID, item)
		if errors.Is(err, repository.ErrItemExists) {
			// lost a race with a concurrent add of the same product
			cart, err = s.repo.IncrementItem(ctx, in.OwnerID, in.ProductID, 1)
		}
	}
	if err != nil {
		return nil, s.repoError("upsert item", err)
	}

	s.invalidateCache(in.OwnerID)
	return cart, nil
}

// UpdateQuantity sets an item's quantity. An unknown product leaves the cart unchanged.
func (s *CartService) UpdateQuantity(ctx context.Context, ownerID, productID string, quantity int) (*domain.Cart, error) {
	if err := requireFields(field{"owner_id", ownerID}, field{"product_id", productID}); err != nil {
		return nil, err
	}
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	cart, err := s.repo.UpdateItemQuantity(ctx, ownerID, productID, quantity)
	if err != nil {
		return nil, s.repoError("update item quantity", err)
	}

	s.invalidateCache(ownerID)
	return cart, nil
}

// RemoveLineItem is idempotent for unknown products.
func (s *CartService) RemoveLineItem(ctx context.Context, ownerID, productID string) (*domain.Cart, error) {
	if err := requireFields(field{"owner_id", ownerID}, field{"product_id", productID}); err != nil {
		return nil, err
	}

	cart, err := s.repo.RemoveItem(ctx, ownerID, productID)
	if err != nil {
		return nil, s.repoError("remove item", err)
	}

	s.invalidateCache(ownerID)
	return cart, nil
}

// ClearCart empties the cart. Unlike GetCart it fails with
// repository.ErrCartNotFound when the owner has never added anything.
func (s *CartService) ClearCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if err := requireFields(field{"owner_id", ownerID}); err != nil {
		return nil, err
	}

	cart, err := s.repo.ClearCart(ctx, ownerID)
	if err != nil {
		return nil, s.repoError("clear cart", err)
	}

	s.invalidateCache(ownerID)
	return cart, nil
}

// ClearForCheckout empties the cart after an order was placed. A missing
// cart is not an error.
func (s *CartService) ClearForCheckout(ctx context.Context, ownerID string) error {
	_, err := s.repo.ClearCart(ctx, ownerID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return s.repoError("clear cart for checkout", err)
	}
	s.invalidateCache(ownerID)
	return nil
}

func (s *CartService) CountItems(ctx context.Context, ownerID string) (int, error) {
	cart, err := s.GetCart(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return cart.ItemCount(), nil
}

func (s *CartService) prepareItem(ctx context.Context, in AddItemInput) (domain.CartItem, error) {
	err := requireFields(
		field{"owner_id", in.OwnerID},
		field{"product_id", in.ProductID},
		field{"name", in.Name},
		field{"image", in.Image},
		field{"unit_price", in.UnitPrice},
	)
	if err != nil {
		return domain.CartItem{}, err
	}

	price, err := money.Parse(in.UnitPrice)
	if err != nil {
		return domain.CartItem{}, &ValidationError{
			Fields: []string{"unit_price"},
			Reason: fmt.Sprintf("unit_price %q must be a non-negative amount no greater than %s", in.UnitPrice, money.MaxAmount),
		}
	}

	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if err := validateQuantity(quantity); err != nil {
		return domain.CartItem{}, err
	}

	if err := s.checkProduct(ctx, in.ProductID); err != nil {
		return domain.CartItem{}, err
	}

	return domain.CartItem{
		ProductID: in.ProductID,
		Name:      in.Name,
		Image:     in.Image,
		UnitPrice: price,
		Quantity:  quantity,
	}, nil
}

func (s *CartService) checkProduct(ctx context.Context, productID string) error {
	if s.catalog == nil {
		return nil
	}

	p, err := s.catalog.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to validate product: %w", err)
	}
	if !p.InStock() {
		return ErrOutOfStock
	}
	return nil
}

func validateQuantity(quantity int) error {
	if quantity < 1 || quantity > domain.MaxQuantity {
		return &ValidationError{
			Fields: []string{"quantity"},
			Reason: fmt.Sprintf("quantity must be between 1 and %d", domain.MaxQuantity),
		}
	}
	return nil
}

// repoError logs failures that are not part of the cart's normal contract.
func (s *CartService) repoError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrItemExists),
		errors.Is(err, repository.ErrQuantityLimit):
	default:
		s.log.Error("repo "+op+" failed", slog.Any("err", err))
	}
	return err
}

// invalidateCache runs after every successful mutation. The generation is
// bumped before the delete so loadCart can tell its read went stale.
func (s *CartService) invalidateCache(ownerID string) {
	s.generation(ownerID).Add(1)
	s.sfg.Forget(ownerID)
	s.deleteCached(ownerID)
}

func (s *CartService) deleteCached(ownerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, ownerID); err != nil {
		s.log.Warn("cache invalidate failed", slog.String("owner_id", ownerID), slog.Any("err", err))
	}
}

// generation returns the mutation counter shared by ownerID's stripe.
// Owners that share a stripe only cost each other a skipped cache fill.
func (s *CartService) generation(ownerID string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ownerID))
	return &s.gens[h.Sum32()%generationStripes]
}
