package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopease/cart/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	collection *mongo.Collection
}

func (m MongoRepository) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	var cart domain.Cart

	filter := bson.M{"owner_id": ownerID}
	err := m.collection.FindOne(ctx, filter).Decode(&cart)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return normalize(&cart), nil
}

func (m MongoRepository) AddItem(ctx context.Context, ownerID string, item domain.CartItem) (*domain.Cart, error) {
	cart, err := m.pushItem(ctx, ownerID, item)
	if err == nil || !mongo.IsDuplicateKeyError(err) {
		return cart, err
	}

	// The upsert collides on owner_id either because the item is already
	// there or because a concurrent first add created the cart.
	existing, errGet := m.GetCart(ctx, ownerID)
	if errGet != nil {
		return nil, errGet
	}
	if _, ok := existing.Find(item.ProductID); ok {
		return nil, ErrItemExists
	}

	cart, err = m.pushItem(ctx, ownerID, item)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrItemExists
	}
	return cart, err
}

func (m MongoRepository) pushItem(ctx context.Context, ownerID string, item domain.CartItem) (*domain.Cart, error) {
	now := time.Now().UTC()
	item.AddedAt = now

	filter := bson.M{
		"owner_id":         ownerID,
		"items.product_id": bson.M{"$ne": item.ProductID},
	}
	update := bson.M{
		"$push":        bson.M{"items": item},
		"$inc":         bson.M{"version": 1},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var cart domain.Cart
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add item: %w", err)
	}

	return normalize(&cart), nil
}

func (m MongoRepository) IncrementItem(ctx context.Context, ownerID, productID string, delta int) (*domain.Cart, error) {
	filter := bson.M{
		"owner_id": ownerID,
		"items": bson.M{"$elemMatch": bson.M{
			"product_id": productID,
			"quantity":   bson.M{"$lte": domain.MaxQuantity - delta},
		}},
	}
	update := bson.M{
		"$inc": bson.M{"items.$.quantity": delta, "version": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	cart, err := m.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, errGet := m.GetCart(ctx, ownerID)
		if errGet != nil {
			if errors.Is(errGet, ErrCartNotFound) {
				return nil, ErrItemNotFound
			}
			return nil, errGet
		}
		if _, ok := existing.Find(productID); ok {
			return nil, ErrQuantityLimit
		}
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment item: %w", err)
	}

	return cart, nil
}

func (m MongoRepository) UpdateItemQuantity(ctx context.Context, ownerID, productID string, quantity int) (*domain.Cart, error) {
	filter := bson.M{
		"owner_id":         ownerID,
		"items.product_id": productID,
	}
	update := bson.M{
		"$set": bson.M{
			"items.$.quantity": quantity,
			"updated_at":       time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	cart, err := m.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// unknown product: leave the aggregate untouched
		return m.GetCart(ctx, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update item quantity: %w", err)
	}

	return cart, nil
}

func (m MongoRepository) RemoveItem(ctx context.Context, ownerID, productID string) (*domain.Cart, error) {
	filter := bson.M{
		"owner_id":         ownerID,
		"items.product_id": productID,
	}
	update := bson.M{
		"$pull": bson.M{"items": bson.M{"product_id": productID}},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}

	cart, err := m.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return m.GetCart(ctx, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to remove item: %w", err)
	}

	return cart, nil
}

func (m MongoRepository) ClearCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	filter := bson.M{"owner_id": ownerID}
	update := bson.M{
		"$set": bson.M{
			"items":      bson.A{},
			"updated_at": time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	cart, err := m.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	return cart, nil
}

func (m MongoRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*domain.Cart, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var cart domain.Cart
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart); err != nil {
		return nil, err
	}
	return normalize(&cart), nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func normalize(cart *domain.Cart) *domain.Cart {
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart
}

// NewMongoRepository stores carts in the "carts" collection.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}
