package signer

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

// BackendDialer returns the RPC backend for a chain.
type BackendDialer func(ctx context.Context, chainID uint64) (Backend, error)

// Local hands out Keyed signers for the daemon's own wallet, one per chain.
type Local struct {
	wallet    *Wallet
	dial      BackendDialer
	confirmer Confirmer
	opts      []KeyedOption

	mu   sync.Mutex
	byID map[uint64]*Keyed
}

func NewLocal(w *Wallet, dial BackendDialer, confirmer Confirmer, opts ...KeyedOption) (*Local, error) {
	if w == nil {
		return nil, errors.New("signer: wallet is nil")
	}
	if dial == nil {
		return nil, errors.New("signer: backend dialer is nil")
	}
	if confirmer == nil {
		confirmer = AutoConfirm{}
	}
	return &Local{
		wallet:    w,
		dial:      dial,
		confirmer: confirmer,
		opts:      opts,
		byID:      map[uint64]*Keyed{},
	}, nil
}

func (l *Local) Address() common.Address { return l.wallet.Address() }

// SignMessage signs a session challenge after the confirmer approves it.
func (l *Local) SignMessage(ctx context.Context, message string) ([]byte, error) {
	if err := l.confirmer.ConfirmMessage(ctx, message); err != nil {
		return nil, err
	}
	return l.wallet.SignText(ctx, message)
}

// ForChain returns the signer bound to chainID, dialing on first use.
func (l *Local) ForChain(ctx context.Context, chainID uint64) (Signer, error) {
	l.mu.Lock()
	if k, ok := l.byID[chainID]; ok {
		l.mu.Unlock()
		return k, nil
	}
	l.mu.Unlock()

	backend, err := l.dial(ctx, chainID)
	if err != nil {
		return nil, errors.Wrapf(err, "dial chain %d", chainID)
	}

	opts := append([]KeyedOption{WithConfirmer(l.confirmer)}, l.opts...)
	k, err := NewKeyed(l.wallet, backend, chainID, opts...)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.byID[chainID]; ok {
		return existing, nil
	}
	l.byID[chainID] = k
	return k, nil
}
