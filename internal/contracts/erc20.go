package contracts

import (
	"context"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20Caller is a read-only binding around an ERC-20 token.
type ERC20Caller struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewERC20Caller(address common.Address, caller bind.ContractCaller) (*ERC20Caller, error) {
	if caller == nil {
		return nil, errors.New("nil contract caller")
	}
	parsed, err := erc20ABI()
	if err != nil {
		return nil, err
	}
	return &ERC20Caller{
		address:  address,
		contract: bind.NewBoundContract(address, *parsed, caller, nil, nil),
	}, nil
}

func (c *ERC20Caller) Address() common.Address { return c.address }

func (c *ERC20Caller) Name(ctx context.Context) (string, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "name"); err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *ERC20Caller) Symbol(ctx context.Context) (string, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "symbol"); err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *ERC20Caller) Decimals(ctx context.Context) (uint8, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (c *ERC20Caller) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *ERC20Caller) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
