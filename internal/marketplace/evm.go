package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/marketplace/ratelimit"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const defaultPageSize = 100

// ContractCaller is the read-only slice of an Ethereum client the provider
// needs. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EVMProvider reads listings from a MarketplaceV3 contract over JSON-RPC.
type EVMProvider struct {
	caller   ContractCaller
	contract common.Address
	chain    string
	pageSize int64
	limiter  *ratelimit.Limiter
	abi      abi.ABI
	logger   *slog.Logger
}

type Option func(*EVMProvider)

// WithPageSize bounds the id range requested per getAllValidListings call.
func WithPageSize(n int) Option {
	return func(p *EVMProvider) {
		if n > 0 {
			p.pageSize = int64(n)
		}
	}
}

// WithRateLimiter takes one token from l before every eth_call, so a fetch
// that pages through many ranges is throttled per request.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(p *EVMProvider) { p.limiter = l }
}

func NewEVMProvider(caller ContractCaller, contract common.Address, chain string, logger *slog.Logger, opts ...Option) (*EVMProvider, error) {
	if caller == nil {
		return nil, fmt.Errorf("marketplace: contract caller is nil")
	}
	if contract == (common.Address{}) {
		return nil, fmt.Errorf("marketplace: contract address is zero")
	}
	parsed, err := directListings()
	if err != nil {
		return nil, fmt.Errorf("marketplace: parse abi: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &EVMProvider{
		caller:   caller,
		contract: contract,
		chain:    chain,
		pageSize: defaultPageSize,
		abi:      parsed,
		logger:   logger.With("component", "marketplace", "contract", contract.Hex()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// DialEVMProvider connects to rpcURL and builds a provider for the
// marketplace at contractHex. The returned close func releases the client.
func DialEVMProvider(ctx context.Context, rpcURL, contractHex, chain string, logger *slog.Logger, opts ...Option) (*EVMProvider, func(), error) {
	if !common.IsHexAddress(contractHex) {
		return nil, nil, fmt.Errorf("marketplace: invalid contract address %q", contractHex)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("marketplace: dial %s: %w", rpcURL, err)
	}
	p, err := NewEVMProvider(client, common.HexToAddress(contractHex), chain, logger, opts...)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return p, client.Close, nil
}

func (p *EVMProvider) Chain() string {
	return p.chain
}

// FetchActiveListings pages through the listing id space and collects every
// listing the contract still considers valid.
func (p *EVMProvider) FetchActiveListings(ctx context.Context) ([]model.ListingRecord, error) {
	total, err := p.totalListings(ctx)
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		return []model.ListingRecord{}, nil
	}

	last := new(big.Int).Sub(total, big.NewInt(1))
	step := big.NewInt(p.pageSize)
	records := make([]model.ListingRecord, 0)
	for start := big.NewInt(0); start.Cmp(last) <= 0; start = new(big.Int).Add(start, step) {
		end := new(big.Int).Add(start, step)
		end.Sub(end, big.NewInt(1))
		if end.Cmp(last) > 0 {
			end = last
		}
		page, err := p.validListings(ctx, start, end)
		if err != nil {
			return nil, err
		}
		for _, l := range page {
			records = append(records, l.record())
		}
	}

	p.logger.Debug("fetched active listings", "total_ids", total.String(), "valid", len(records))
	return records, nil
}

func (p *EVMProvider) totalListings(ctx context.Context) (*big.Int, error) {
	data, err := p.call(ctx, methodTotalListings)
	if err != nil {
		return nil, err
	}
	total, err := unpackTotalListings(p.abi, data)
	if err != nil {
		return nil, fmt.Errorf("marketplace: %w", err)
	}
	return total, nil
}

func (p *EVMProvider) validListings(ctx context.Context, start, end *big.Int) ([]listingTuple, error) {
	data, err := p.call(ctx, methodGetAllValidListings, start, end)
	if err != nil {
		return nil, err
	}
	listings, err := unpackListings(p.abi, data)
	if err != nil {
		return nil, fmt.Errorf("marketplace: %w", err)
	}
	return listings, nil
}

func (p *EVMProvider) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	input, err := p.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("marketplace: pack %s: %w", method, err)
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("marketplace: %s: %w", method, err)
		}
	}
	contract := p.contract
	out, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	ratelimit.RecordRPCCall(p.chain, method, err)
	if err != nil {
		return nil, fmt.Errorf("marketplace: %s: %w", method, err)
	}
	return out, nil
}
