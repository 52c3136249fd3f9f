package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

type State string

const (
	StateAuthorized     State = "authorized"
	StateNeedsChallenge State = "needs_challenge"
	StateUnauthorized   State = "unauthorized"
)

var ErrStaleChallenge = errors.New("session: challenge is no longer current")

// Observation is what the wallet currently reports.
type Observation struct {
	Address common.Address `json:"address"`
	ChainID uint64         `json:"chainId"`
}

func (o Observation) disconnected() bool {
	return o.Address == (common.Address{})
}

type Decision struct {
	State     State      `json:"state"`
	Challenge *Challenge `json:"challenge,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

func (d Decision) Authorized() bool { return d.State == StateAuthorized }

type NetworkNamer interface {
	NetworkName(chainID uint64) string
}

// MessageSigner produces an EIP-191 signature over a text message.
type MessageSigner interface {
	SignMessage(ctx context.Context, message string) ([]byte, error)
}

type Snapshot struct {
	Observed   *Observation `json:"observed,omitempty"`
	Authorized *Observation `json:"authorized,omitempty"`
	Pending    *Challenge   `json:"pending,omitempty"`
	LastReason string       `json:"lastReason,omitempty"`
}

// Guard decides whether the current wallet/network pair may fetch data or send transactions.
// Any change of address or chain revokes trust until a fresh challenge is signed.
type Guard struct {
	mu    sync.Mutex
	names NetworkNamer
	now   func() time.Time

	observed   *Observation
	authorized *Observation
	pending    *Challenge
	lastReason string
}

func NewGuard(names NetworkNamer) *Guard {
	return &Guard{names: names, now: time.Now}
}

// Observe feeds the latest wallet state into the guard.
func (g *Guard) Observe(obs Observation) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if obs.disconnected() {
		g.resetLocked()
		return Decision{State: StateUnauthorized, Reason: "disconnected"}
	}

	if g.observed != nil && *g.observed == obs {
		if g.authorized != nil && *g.authorized == obs {
			return Decision{State: StateAuthorized}
		}
		if g.pending != nil {
			return needs(g.pending)
		}
		// rejected earlier; seeing the pair again is a new attempt
	}

	prev := g.observed
	g.observed = &obs
	if g.authorized != nil && *g.authorized != obs {
		log.Info("session authorization revoked", "address", obs.Address.Hex(), "chainId", obs.ChainID)
		g.authorized = nil
	}

	action := actionConnecting
	if prev != nil && prev.Address == obs.Address && prev.ChainID != obs.ChainID {
		action = switchingAction(g.networkName(obs.ChainID))
	}

	c := &Challenge{
		ID:       uuid.NewString(),
		Address:  obs.Address,
		ChainID:  obs.ChainID,
		Action:   action,
		IssuedAt: g.now().UTC(),
	}
	c.Message = buildMessage(*c)
	if g.pending != nil {
		log.Info("discarding stale challenge", "challengeId", g.pending.ID)
	}
	g.pending = c
	g.lastReason = ""

	log.Info("session challenge issued", "address", obs.Address.Hex(), "chainId", obs.ChainID, "action", action)
	return needs(c)
}

// Resolve completes a pending challenge with the wallet's signature.
func (g *Guard) Resolve(challengeID string, signature []byte) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil || g.pending.ID != challengeID {
		return g.currentLocked(), ErrStaleChallenge
	}

	c := g.pending
	if err := verifySignature(c.Address, c.Message, signature); err != nil {
		g.pending = nil
		g.lastReason = "invalid signature"
		log.Warn("session challenge failed", "address", c.Address.Hex(), "chainId", c.ChainID, "error", err)
		return Decision{State: StateUnauthorized, Reason: g.lastReason}, err
	}

	g.authorized = &Observation{Address: c.Address, ChainID: c.ChainID}
	g.pending = nil
	g.lastReason = ""
	log.Info("session authorized", "address", c.Address.Hex(), "chainId", c.ChainID)
	return Decision{State: StateAuthorized}, nil
}

// Reject records that the user declined to sign. There is no automatic retry.
func (g *Guard) Reject(challengeID, reason string) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil || g.pending.ID != challengeID {
		return g.currentLocked(), ErrStaleChallenge
	}
	if reason == "" {
		reason = "signature rejected"
	}
	log.Info("session challenge rejected", "address", g.pending.Address.Hex(), "chainId", g.pending.ChainID, "reason", reason)
	g.pending = nil
	g.lastReason = reason
	return Decision{State: StateUnauthorized, Reason: reason}, nil
}

// Check answers whether address on chainID may proceed right now.
func (g *Guard) Check(address common.Address, chainID uint64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	want := Observation{Address: address, ChainID: chainID}
	if g.observed == nil || *g.observed != want {
		return Decision{State: StateUnauthorized, Reason: "not the connected wallet or network"}
	}
	return g.currentLocked()
}

// Authorize observes obs and, if a challenge is needed, asks signer for it.
// The guard is not locked while the signer runs.
func (g *Guard) Authorize(ctx context.Context, obs Observation, signer MessageSigner) (Decision, error) {
	d := g.Observe(obs)
	if d.State != StateNeedsChallenge {
		return d, nil
	}

	sig, err := signer.SignMessage(ctx, d.Challenge.Message)
	if err != nil {
		rd, rerr := g.Reject(d.Challenge.ID, err.Error())
		if rerr != nil {
			return rd, rerr
		}
		return rd, errors.Wrap(err, "sign challenge")
	}
	return g.Resolve(d.Challenge.ID, sig)
}

// Watch applies each observation in order and emits the resulting decision.
func (g *Guard) Watch(ctx context.Context, in <-chan Observation) <-chan Decision {
	out := make(chan Decision)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case obs, ok := <-in:
				if !ok {
					return
				}
				d := g.Observe(obs)
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (g *Guard) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{LastReason: g.lastReason}
	if g.observed != nil {
		o := *g.observed
		s.Observed = &o
	}
	if g.authorized != nil {
		a := *g.authorized
		s.Authorized = &a
	}
	if g.pending != nil {
		c := *g.pending
		s.Pending = &c
	}
	return s
}

func (g *Guard) currentLocked() Decision {
	switch {
	case g.observed != nil && g.authorized != nil && *g.observed == *g.authorized:
		return Decision{State: StateAuthorized}
	case g.pending != nil:
		return needs(g.pending)
	default:
		return Decision{State: StateUnauthorized, Reason: g.lastReason}
	}
}

func (g *Guard) resetLocked() {
	if g.observed != nil {
		log.Info("session disconnected", "address", g.observed.Address.Hex())
	}
	g.observed = nil
	g.authorized = nil
	g.pending = nil
	g.lastReason = ""
}

func (g *Guard) networkName(chainID uint64) string {
	if g.names == nil {
		return "chain " + strconv.FormatUint(chainID, 10)
	}
	return g.names.NetworkName(chainID)
}

func needs(c *Challenge) Decision {
	cp := *c
	return Decision{State: StateNeedsChallenge, Challenge: &cp}
}
