package signer

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/lack0fcode/destructorbr/internal/contracts"
)

// Backend is the RPC surface the keyed signer needs. qa_evm.BlockchainClient satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

const (
	fallbackGasLimit = 250_000
	minGasLimit      = 21_000
)

// Keyed signs with a local Wallet and broadcasts through Backend on one chain.
type Keyed struct {
	wallet    *Wallet
	backend   Backend
	chainID   *big.Int
	confirmer Confirmer

	// sendMu serializes nonce selection and broadcast.
	sendMu    sync.Mutex
	lastNonce uint64
	haveNonce bool

	pollInitial time.Duration
	pollMax     time.Duration
	pollStep    time.Duration
}

type KeyedOption func(*Keyed)

func WithConfirmer(c Confirmer) KeyedOption {
	return func(k *Keyed) {
		if c != nil {
			k.confirmer = c
		}
	}
}

// WithPolling sets the receipt poll schedule: start at initial, grow by step up to max.
// Non-positive delays keep the defaults.
func WithPolling(initial, step, maxDelay time.Duration) KeyedOption {
	return func(k *Keyed) {
		if initial > 0 {
			k.pollInitial = initial
		}
		if step >= 0 {
			k.pollStep = step
		}
		if maxDelay > 0 {
			k.pollMax = maxDelay
		}
	}
}

func NewKeyed(w *Wallet, backend Backend, chainID uint64, opts ...KeyedOption) (*Keyed, error) {
	if w == nil {
		return nil, errors.New("signer: wallet is nil")
	}
	if backend == nil {
		return nil, errors.New("signer: backend is nil")
	}
	if chainID == 0 {
		return nil, errors.New("signer: chain id is 0")
	}
	k := &Keyed{
		wallet:      w,
		backend:     backend,
		chainID:     new(big.Int).SetUint64(chainID),
		confirmer:   AutoConfirm{},
		pollInitial: 750 * time.Millisecond,
		pollStep:    250 * time.Millisecond,
		pollMax:     3 * time.Second,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

func (k *Keyed) Address() common.Address { return k.wallet.Address() }

func (k *Keyed) SignMessage(ctx context.Context, message string) ([]byte, error) {
	if err := k.confirmer.ConfirmMessage(ctx, message); err != nil {
		return nil, err
	}
	return k.wallet.SignText(ctx, message)
}

// SendContractCall builds an EIP-1559 transaction (legacy when the chain has no base fee),
// signs it with the wallet and broadcasts it.
func (k *Keyed) SendContractCall(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	from := k.wallet.Address()

	req := CallRequest{
		ChainID: k.chainID.Uint64(),
		From:    from,
		To:      to,
		Method:  contracts.MethodName(data),
		Data:    data,
	}
	if err := k.confirmer.ConfirmCall(ctx, req); err != nil {
		return common.Hash{}, err
	}

	k.sendMu.Lock()
	defer k.sendMu.Unlock()

	nonce, err := k.nextNonce(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}
	gasLimit := k.estimateGasLimit(ctx, from, to, data)

	tx, err := k.buildTx(ctx, nonce, gasLimit, to, data)
	if err != nil {
		return common.Hash{}, err
	}

	signer := types.LatestSignerForChainID(k.chainID)
	sig, err := k.wallet.SignHash(ctx, signer.Hash(tx).Bytes())
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign")
	}
	signed, err := tx.WithSignature(signer, sig)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "with signature")
	}

	if err := k.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "send transaction")
	}
	k.lastNonce, k.haveNonce = nonce, true

	log.Info("transaction sent", "chainId", k.chainID, "to", to.Hex(), "method", req.Method, "txHash", signed.Hash().Hex())
	return signed.Hash(), nil
}

// nextNonce takes the node's pending nonce unless it lags behind what this
// signer already broadcast. Callers hold sendMu.
func (k *Keyed) nextNonce(ctx context.Context, from common.Address) (uint64, error) {
	pending, err := k.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, errors.Wrap(err, "nonce")
	}
	if k.haveNonce && pending <= k.lastNonce {
		return k.lastNonce + 1, nil
	}
	return pending, nil
}

func (k *Keyed) buildTx(ctx context.Context, nonce, gasLimit uint64, to common.Address, data []byte) (*types.Transaction, error) {
	head, err := k.backend.HeaderByNumber(ctx, nil)
	if err == nil && head != nil && head.BaseFee != nil {
		tip, err := k.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "suggest tip")
		}
		// 2*base + tip, same headroom wallets use
		feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tip)

		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   k.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &to,
			Value:     big.NewInt(0),
			Data:      data,
		}), nil
	}

	gasPrice, err := k.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "gas price")
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	}), nil
}

func (k *Keyed) estimateGasLimit(ctx context.Context, from, to common.Address, data []byte) uint64 {
	est, err := k.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		log.Warn("gas estimate failed, using fallback", "to", to.Hex(), "error", err)
		return fallbackGasLimit
	}
	est += est / 10 // +10%
	if est < minGasLimit {
		est = minGasLimit
	}
	return est
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
// RPC errors are logged and retried on the same schedule.
func (k *Keyed) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	delay := k.pollInitial
	for {
		receipt, err := k.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			log.Warn("receipt poll failed, retrying", "chainId", k.chainID, "txHash", txHash.Hex(), "error", err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			if delay < k.pollMax {
				delay += k.pollStep
			}
		}
	}
}
