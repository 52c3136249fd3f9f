package contracts

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20MetaData holds the subset of the ERC-20 interface the client touches.
var ERC20MetaData = &bind.MetaData{
	ABI: `[
{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"allowance","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"}
]`,
}

// BurnerMetaData is the BurnFi proxy surface.
var BurnerMetaData = &bind.MetaData{
	ABI: `[
{"type":"function","name":"burnTokens","inputs":[{"name":"tokens","type":"address[]"},{"name":"amounts","type":"uint256[]"}],"outputs":[],"stateMutability":"nonpayable"}
]`,
}

var ErrLengthMismatch = errors.New("tokens and amounts length mismatch")

func erc20ABI() (*abi.ABI, error) {
	parsed, err := ERC20MetaData.GetAbi()
	if err != nil {
		return nil, errors.Wrap(err, "parse erc20 abi")
	}
	return parsed, nil
}

func burnerABI() (*abi.ABI, error) {
	parsed, err := BurnerMetaData.GetAbi()
	if err != nil {
		return nil, errors.Wrap(err, "parse burner abi")
	}
	return parsed, nil
}

// PackApprove encodes approve(spender, amount). amount is in the token's smallest unit.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, errors.New("approve amount must be a non-negative integer")
	}
	parsed, err := erc20ABI()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("approve", spender, amount)
}

// UnpackApprove decodes approve calldata.
func UnpackApprove(data []byte) (common.Address, *big.Int, error) {
	parsed, err := erc20ABI()
	if err != nil {
		return common.Address{}, nil, err
	}
	args, err := unpackInputs(parsed, "approve", data)
	if err != nil {
		return common.Address{}, nil, err
	}
	spender := *abi.ConvertType(args[0], new(common.Address)).(*common.Address)
	amount := *abi.ConvertType(args[1], new(*big.Int)).(**big.Int)
	return spender, amount, nil
}

// PackBurnTokens encodes burnTokens(tokens, amounts). Both slices are index-aligned.
func PackBurnTokens(tokens []common.Address, amounts []*big.Int) ([]byte, error) {
	if len(tokens) != len(amounts) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d tokens, %d amounts", len(tokens), len(amounts))
	}
	if len(tokens) == 0 {
		return nil, errors.New("burnTokens needs at least one token")
	}
	for i, a := range amounts {
		if a == nil || a.Sign() <= 0 {
			return nil, errors.Newf("amount %d must be a positive integer", i)
		}
	}
	parsed, err := burnerABI()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("burnTokens", tokens, amounts)
}

// UnpackBurnTokens decodes burnTokens calldata.
func UnpackBurnTokens(data []byte) ([]common.Address, []*big.Int, error) {
	parsed, err := burnerABI()
	if err != nil {
		return nil, nil, err
	}
	args, err := unpackInputs(parsed, "burnTokens", data)
	if err != nil {
		return nil, nil, err
	}
	tokens := *abi.ConvertType(args[0], new([]common.Address)).(*[]common.Address)
	amounts := *abi.ConvertType(args[1], new([]*big.Int)).(*[]*big.Int)
	return tokens, amounts, nil
}

func unpackInputs(parsed *abi.ABI, name string, data []byte) ([]interface{}, error) {
	if len(data) < 4 {
		return nil, errors.New("calldata too short")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, errors.Wrap(err, "unknown selector")
	}
	if method.Name != name {
		return nil, errors.Newf("calldata is %s, not %s", method.Name, name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", name)
	}
	return args, nil
}

// MethodName names the known method a calldata selector belongs to, or "" if unknown.
func MethodName(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	for _, md := range []*bind.MetaData{ERC20MetaData, BurnerMetaData} {
		parsed, err := md.GetAbi()
		if err != nil {
			continue
		}
		if m, err := parsed.MethodById(data[:4]); err == nil {
			return m.Name
		}
	}
	return ""
}
