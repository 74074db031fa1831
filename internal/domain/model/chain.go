package model

type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBase     Chain = "base"
	ChainPolygon  Chain = "polygon"
	ChainArbitrum Chain = "arbitrum"
	ChainBSC      Chain = "bsc"
)

func (c Chain) String() string {
	return string(c)
}

// IsEVM reports whether c is a chain the marketplace client can talk to.
func (c Chain) IsEVM() bool {
	switch c {
	case ChainEthereum, ChainBase, ChainPolygon, ChainArbitrum, ChainBSC:
		return true
	}
	return false
}

// CollectionSource names where the scanned collection list comes from.
type CollectionSource string

const (
	CollectionSourceDB  CollectionSource = "db"
	CollectionSourceEnv CollectionSource = "env"
)
