package indexer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

var ErrUnsupportedChain = errors.New("indexer: unsupported chain")

// TokenBalance is a raw balance row as the provider reports it.
// Balance may be base-10 or 0x-hex; it is parsed by the caller.
type TokenBalance struct {
	ContractAddress string
	Balance         string
	// Error is set when the provider could not read this balance.
	Error string
}

type TokenMetadata struct {
	Name     string
	Symbol   string
	Logo     string
	Decimals *int
	// PossibleSpam is nil when the provider has no opinion.
	PossibleSpam *bool
}

type NFT struct {
	ContractAddress string
	TokenID         string
	Name            string
	Image           string
	Balance         string
	PossibleSpam    *bool
}

// Client is the indexer capability consumed by the asset aggregator.
type Client interface {
	TokenBalances(ctx context.Context, chainID uint64, owner common.Address) ([]TokenBalance, error)
	TokenMetadata(ctx context.Context, chainID uint64, contract common.Address) (TokenMetadata, error)
	NFTs(ctx context.Context, chainID uint64, owner common.Address) ([]NFT, error)
}

// MetadataSource resolves token metadata only.
type MetadataSource interface {
	TokenMetadata(ctx context.Context, chainID uint64, contract common.Address) (TokenMetadata, error)
}

// Composite takes balances and NFTs from one client and metadata from another source.
type Composite struct {
	Client
	Metadata MetadataSource
}

func (c Composite) TokenMetadata(ctx context.Context, chainID uint64, contract common.Address) (TokenMetadata, error) {
	if c.Metadata == nil {
		return c.Client.TokenMetadata(ctx, chainID, contract)
	}
	return c.Metadata.TokenMetadata(ctx, chainID, contract)
}
