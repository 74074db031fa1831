package model

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CollectionRef identifies an NFT collection contract. Address is the
// unique key and is kept in EIP-55 checksum form when it is a valid
// hex address.
type CollectionRef struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// OwnedCollection is a CollectionRef as stored for an owner.
type OwnedCollection struct {
	Owner     string           `db:"owner_address"`
	Address   string           `db:"collection_address"`
	Name      *string          `db:"name"`
	IsActive  bool             `db:"is_active"`
	Source    CollectionSource `db:"source"`
	CreatedAt time.Time        `db:"created_at"`
	UpdatedAt time.Time        `db:"updated_at"`
}

// Ref converts the stored row into a CollectionRef.
func (o OwnedCollection) Ref() CollectionRef {
	ref := CollectionRef{Address: NormalizeAddress(o.Address)}
	if o.Name != nil {
		ref.Name = *o.Name
	}
	return ref
}

// NormalizeAddress returns the checksummed form of a hex address. Values
// that are not hex addresses are only trimmed.
func NormalizeAddress(address string) string {
	trimmed := strings.TrimSpace(address)
	if common.IsHexAddress(trimmed) {
		return common.HexToAddress(trimmed).Hex()
	}
	return trimmed
}

// SameAddress compares two addresses the way the chain does: hex addresses
// by value, anything else case-insensitively.
func SameAddress(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(a, b)
}
