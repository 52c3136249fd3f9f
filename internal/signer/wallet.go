package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lack0fcode/destructorbr/internal/constants"
)

// Wallet is the locally held secp256k1 key, as stored in the keystore.
type Wallet struct {
	Version    int    `json:"version"`
	AddressHex string `json:"address"`
	PrivKeyHex string `json:"priv_key_hex"`
	CreatedAt  string `json:"created_at,omitempty"` // RFC3339
}

func NewRandomWallet() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return walletFromKey(key), nil
}

// WalletFromHex imports an existing private key (with or without 0x).
func WalletFromHex(privHex string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("import key: %w", err)
	}
	return walletFromKey(key), nil
}

func walletFromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		Version:    constants.SchemaV1,
		AddressHex: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivKeyHex: hex.EncodeToString(crypto.FromECDSA(key)),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

func (w *Wallet) Address() common.Address {
	return common.HexToAddress(w.AddressHex)
}

func (w *Wallet) privateKey() (*ecdsa.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(w.PrivKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid private key length: got %d want 32", len(b))
	}
	k, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("to ecdsa: %w", err)
	}
	return k, nil
}

// SignHash signs a 32 byte digest; V is 0/1.
func (w *Wallet) SignHash(_ context.Context, digest32 []byte) ([]byte, error) {
	if len(digest32) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest32))
	}
	key, err := w.privateKey()
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest32, key)
}

// SignText produces a personal_sign (EIP-191) signature with V as 27/28, like browser wallets.
func (w *Wallet) SignText(ctx context.Context, message string) ([]byte, error) {
	sig, err := w.SignHash(ctx, accounts.TextHash([]byte(message)))
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
