package store

import (
	"context"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
)

// CollectionSource lists the collections a scan should cover, in display
// order.
type CollectionSource interface {
	ListCollections(ctx context.Context) ([]model.CollectionRef, error)
}

// OwnedCollectionRepository provides access to the collections owned by an
// address.
type OwnedCollectionRepository interface {
	ListOwned(ctx context.Context, owner string) ([]model.OwnedCollection, error)
	Upsert(ctx context.Context, c *model.OwnedCollection) error
	Deactivate(ctx context.Context, owner, collection string) error
}
