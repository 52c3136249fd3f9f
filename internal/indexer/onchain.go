package indexer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/qa_evm"

	"github.com/lack0fcode/destructorbr/internal/contracts"
)

// ClientSource hands out RPC clients per chain (see chains.Service).
type ClientSource interface {
	Client(ctx context.Context, chainID uint64) (qa_evm.BlockchainClient, error)
}

// OnChain reads token metadata straight from the ERC-20 contract.
type OnChain struct {
	clients ClientSource
}

func NewOnChain(clients ClientSource) *OnChain {
	return &OnChain{clients: clients}
}

func (o *OnChain) TokenMetadata(ctx context.Context, chainID uint64, contract common.Address) (TokenMetadata, error) {
	client, err := o.clients.Client(ctx, chainID)
	if err != nil {
		return TokenMetadata{}, err
	}

	token, err := contracts.NewERC20Caller(contract, client)
	if err != nil {
		return TokenMetadata{}, errors.Wrap(err, "bind erc20")
	}

	// name and symbol are optional in ERC-20; decimals is what we cannot guess
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return TokenMetadata{}, errors.Wrapf(err, "erc20 decimals %s", contract.Hex())
	}
	d := int(decimals)

	md := TokenMetadata{Decimals: &d}
	if name, err := token.Name(ctx); err == nil {
		md.Name = name
	}
	if symbol, err := token.Symbol(ctx); err == nil {
		md.Symbol = symbol
	}
	return md, nil
}
