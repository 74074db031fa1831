package store

import (
	"context"
	"fmt"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
)

// StaticSource serves a fixed collection list, typically from the
// environment.
type StaticSource struct {
	refs []model.CollectionRef
}

// NewStaticSource normalizes addresses and drops duplicates, keeping the
// first occurrence.
func NewStaticSource(addresses []string) *StaticSource {
	return &StaticSource{refs: dedupe(addresses)}
}

func (s *StaticSource) ListCollections(ctx context.Context) ([]model.CollectionRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]model.CollectionRef(nil), s.refs...), nil
}

// OwnerSource lists the active collections of one owner from a repository.
type OwnerSource struct {
	repo  OwnedCollectionRepository
	owner string
}

func NewOwnerSource(repo OwnedCollectionRepository, owner string) *OwnerSource {
	return &OwnerSource{repo: repo, owner: model.NormalizeAddress(owner)}
}

func (s *OwnerSource) Owner() string {
	return s.owner
}

func (s *OwnerSource) ListCollections(ctx context.Context) ([]model.CollectionRef, error) {
	owned, err := s.repo.ListOwned(ctx, s.owner)
	if err != nil {
		return nil, fmt.Errorf("list collections of %s: %w", s.owner, err)
	}
	refs := make([]model.CollectionRef, 0, len(owned))
	seen := make(map[string]struct{}, len(owned))
	for _, o := range owned {
		if !o.IsActive {
			continue
		}
		ref := o.Ref()
		if _, dup := seen[ref.Address]; dup {
			continue
		}
		seen[ref.Address] = struct{}{}
		refs = append(refs, ref)
	}
	return refs, nil
}

func dedupe(addresses []string) []model.CollectionRef {
	refs := make([]model.CollectionRef, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		addr := model.NormalizeAddress(a)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		refs = append(refs, model.CollectionRef{Address: addr})
	}
	return refs
}
