package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSignature = errors.New("session: signature does not match challenge address")

// Challenge is a message the wallet must sign before the session is trusted again.
type Challenge struct {
	ID       string         `json:"id"`
	Address  common.Address `json:"address"`
	ChainID  uint64         `json:"chainId"`
	Action   string         `json:"action"`
	Message  string         `json:"message"`
	IssuedAt time.Time      `json:"issuedAt"`
}

const actionConnecting = "connecting"

func switchingAction(network string) string {
	return "switching network to " + network
}

func buildMessage(c Challenge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Destructor: confirm %s\n\n", c.Action)
	fmt.Fprintf(&b, "Address: %s\n", c.Address.Hex())
	fmt.Fprintf(&b, "Chain ID: %d\n", c.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", c.ID)
	fmt.Fprintf(&b, "Issued At: %s", c.IssuedAt.UTC().Format(time.RFC3339))
	return b.String()
}

// verifySignature checks an EIP-191 personal_sign signature over message.
func verifySignature(address common.Address, message string, sig []byte) error {
	if len(sig) != crypto.SignatureLength {
		return errors.Wrapf(ErrInvalidSignature, "signature length %d", len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	// wallets return v as 27/28
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), s)
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if crypto.PubkeyToAddress(*pub) != address {
		return ErrInvalidSignature
	}
	return nil
}
