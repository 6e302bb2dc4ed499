// Package catalog reads product entries owned by the storefront admin. The
// cart only looks products up; it never writes them.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Name             string             `bson:"name"`
	Description      string             `bson:"description"`
	WasPrice         string             `bson:"wasPrice"`
	IsPrice          string             `bson:"isPrice"`
	Image            string             `bson:"image"`
	AdditionalImages []string           `bson:"additionalImages"`
	Stock            int                `bson:"stock"`
	Section          string             `bson:"section"`
}

func (p Product) InStock() bool {
	return p.Stock > 0
}

type Reader interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
}

type MongoCatalog struct {
	collection *mongo.Collection
}

func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{collection: db.Collection("products")}
}

func (c *MongoCatalog) GetProduct(ctx context.Context, id string) (*Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrProductNotFound
	}

	var p Product
	err = c.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}
