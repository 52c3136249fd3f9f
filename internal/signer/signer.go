package signer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrRejected means the user declined to sign or send.
var ErrRejected = errors.New("signer: request rejected by user")

// Signer is the wallet capability the session guard and burn orchestrator depend on.
type Signer interface {
	Address() common.Address
	SignMessage(ctx context.Context, message string) ([]byte, error)
	// SendContractCall broadcasts a zero-value call carrying data to `to`.
	SendContractCall(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	// WaitForReceipt blocks until the transaction is mined or ctx is done.
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type CallRequest struct {
	ChainID uint64
	From    common.Address
	To      common.Address
	Method  string
	Data    []byte
}

// Confirmer asks the user before anything is signed. Returning ErrRejected aborts.
type Confirmer interface {
	ConfirmMessage(ctx context.Context, message string) error
	ConfirmCall(ctx context.Context, req CallRequest) error
}

// AutoConfirm approves everything; for unattended runs and tests.
type AutoConfirm struct{}

func (AutoConfirm) ConfirmMessage(context.Context, string) error   { return nil }
func (AutoConfirm) ConfirmCall(context.Context, CallRequest) error { return nil }
