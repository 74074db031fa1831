package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
)

// CollectionRepo stores the collections owned by an address. When a notify
// channel is set, every write also issues pg_notify with a JSON
// CollectionsChanged payload in the same transaction.
type CollectionRepo struct {
	db            *DB
	notifyChannel string
}

type CollectionRepoOption func(*CollectionRepo)

func WithNotifyChannel(channel string) CollectionRepoOption {
	return func(r *CollectionRepo) { r.notifyChannel = channel }
}

func NewCollectionRepo(db *DB, opts ...CollectionRepoOption) *CollectionRepo {
	r := &CollectionRepo{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *CollectionRepo) ListOwned(ctx context.Context, owner string) ([]model.OwnedCollection, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_address, collection_address, name, is_active, source, created_at, updated_at
		FROM owned_collections
		WHERE lower(owner_address) = lower($1) AND is_active = true
		ORDER BY position
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query owned collections: %w", err)
	}
	defer rows.Close()

	var out []model.OwnedCollection
	for rows.Next() {
		var c model.OwnedCollection
		if err := rows.Scan(
			&c.Owner, &c.Address, &c.Name, &c.IsActive, &c.Source, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan owned collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CollectionRepo) Upsert(ctx context.Context, c *model.OwnedCollection) error {
	source := c.Source
	if source == "" {
		source = model.CollectionSourceDB
	}
	owner := model.NormalizeAddress(c.Owner)
	address := model.NormalizeAddress(c.Address)

	return r.write(ctx, event.CollectionsChanged{Owner: owner, Collection: address, Reason: "upsert"}, `
		INSERT INTO owned_collections (owner_address, collection_address, name, is_active, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_address, collection_address) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, owned_collections.name),
			is_active = EXCLUDED.is_active,
			source = EXCLUDED.source,
			updated_at = now()
	`, owner, address, c.Name, c.IsActive, source)
}

func (r *CollectionRepo) Deactivate(ctx context.Context, owner, collection string) error {
	owner = model.NormalizeAddress(owner)
	collection = model.NormalizeAddress(collection)

	return r.write(ctx, event.CollectionsChanged{Owner: owner, Collection: collection, Reason: "deactivate"}, `
		UPDATE owned_collections
		SET is_active = false, updated_at = now()
		WHERE owner_address = $1 AND collection_address = $2
	`, owner, collection)
}

func (r *CollectionRepo) write(ctx context.Context, ev event.CollectionsChanged, query string, args ...any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", ev.Reason, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s owned collection: %w", ev.Reason, err)
	}

	if r.notifyChannel != "" {
		ev.At = time.Now().UTC()
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal notify payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", r.notifyChannel, string(payload)); err != nil {
			return fmt.Errorf("notify %s: %w", r.notifyChannel, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", ev.Reason, err)
	}
	return nil
}
