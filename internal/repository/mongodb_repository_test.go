package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopease/cart/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (*MongoRepository, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, MongoConfig{URI: uri, Database: "testdb"})
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func item(productID string) domain.CartItem {
	return domain.CartItem{
		ProductID: productID,
		Name:      "Product " + productID,
		Image:     "/uploads/" + productID + ".png",
		UnitPrice: 10000,
		Quantity:  1,
	}
}

func TestGetCart_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	cart, err := repo.GetCart(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestAddItem_NewCart(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	cart, err := repo.AddItem(ctx, "user123", item("p1"))
	require.NoError(t, err)
	assert.Equal(t, "user123", cart.OwnerID)
	assert.Equal(t, int64(1), cart.Version)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p1", cart.Items[0].ProductID)
	assert.Equal(t, 1, cart.Items[0].Quantity)
	assert.False(t, cart.CreatedAt.IsZero())

	stored, err := repo.GetCart(ctx, "user123")
	require.NoError(t, err)
	assert.Equal(t, cart.Items[0].UnitPrice, stored.Items[0].UnitPrice)
}

func TestAddItem_Duplicate(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.AddItem(ctx, "user123", item("p1"))
	require.NoError(t, err)

	_, err = repo.AddItem(ctx, "user123", item("p1"))
	assert.ErrorIs(t, err, ErrItemExists)

	cart, err := repo.GetCart(ctx, "user123")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestAddItem_ConcurrentFirstAdds(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.AddItem(ctx, "racer", item(fmt.Sprintf("p%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	cart, err := repo.GetCart(ctx, "racer")
	require.NoError(t, err)
	assert.Len(t, cart.Items, n)
	assert.Equal(t, int64(n), cart.Version)
}

func TestIncrementItem(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.IncrementItem(ctx, "user123", "p1", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = repo.AddItem(ctx, "user123", item("p1"))
	require.NoError(t, err)

	cart, err := repo.IncrementItem(ctx, "user123", "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	_, err = repo.IncrementItem(ctx, "user123", "p2", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = repo.UpdateItemQuantity(ctx, "user123", "p1", domain.MaxQuantity)
	require.NoError(t, err)
	_, err = repo.IncrementItem(ctx, "user123", "p1", 1)
	assert.ErrorIs(t, err, ErrQuantityLimit)
}

func TestIncrementItem_Concurrent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.AddItem(ctx, "user123", item("p1"))
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errInc := repo.IncrementItem(ctx, "user123", "p1", 1)
			assert.NoError(t, errInc)
		}()
	}
	wg.Wait()

	cart, err := repo.GetCart(ctx, "user123")
	require.NoError(t, err)
	assert.Equal(t, n+1, cart.Items[0].Quantity)
}

func TestUpdateItemQuantity(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.UpdateItemQuantity(ctx, "user123", "p1", 3)
	assert.ErrorIs(t, err, ErrCartNotFound)

	_, err = repo.AddItem(ctx, "user123", item("p1"))
	require.NoError(t, err)

	cart, err := repo.UpdateItemQuantity(ctx, "user123", "p1", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, cart.Items[0].Quantity)

	unchanged, err := repo.UpdateItemQuantity(ctx, "user123", "missing", 4)
	require.NoError(t, err)
	assert.Equal(t, cart.Version, unchanged.Version)
	assert.Equal(t, cart.Items, unchanged.Items)
}

func TestRemoveItem(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.AddItem(ctx, "user123", item("p1"))
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, "user123", item("p2"))
	require.NoError(t, err)

	once, err := repo.RemoveItem(ctx, "user123", "p1")
	require.NoError(t, err)
	require.Len(t, once.Items, 1)
	assert.Equal(t, "p2", once.Items[0].ProductID)

	twice, err := repo.RemoveItem(ctx, "user123", "p1")
	require.NoError(t, err)
	assert.Equal(t, once.Items, twice.Items)
	assert.Equal(t, once.Version, twice.Version)

	_, err = repo.RemoveItem(ctx, "nobody", "p1")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestClearCart(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.ClearCart(ctx, "user123")
	assert.ErrorIs(t, err, ErrCartNotFound)

	_, err = repo.AddItem(ctx, "user123", item("p1"))
	require.NoError(t, err)

	cart, err := repo.ClearCart(ctx, "user123")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	// the aggregate survives clearing
	stored, err := repo.GetCart(ctx, "user123")
	require.NoError(t, err)
	assert.NotNil(t, stored.Items)
	assert.Empty(t, stored.Items)
}

func TestContextCancellation(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	time.Sleep(10 * time.Millisecond)

	_, err := repo.GetCart(ctx, "user123")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}
