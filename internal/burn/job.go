package burn

import (
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/lack0fcode/destructorbr/internal/assets"
)

var ErrInvalidJob = errors.New("burn: invalid job")

type StepKind string

const (
	StepResetAllowance   StepKind = "ResetAllowance"
	StepApproveAllowance StepKind = "ApproveAllowance"
	StepBurn             StepKind = "Burn"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusInFlight  Status = "InFlight"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
)

type Mode string

const (
	ModeSingle Mode = "single"
	ModeBatch  Mode = "batch"
)

// AssetRef is one token to burn. RawAmount is in the token's smallest unit and is
// exactly what goes on-chain; Decimals is for display only.
type AssetRef struct {
	ChainID   uint64
	Contract  common.Address
	RawAmount *big.Int
	Decimals  uint8
	Symbol    string
}

// FromRecord burns the full balance of a fungible asset record.
func FromRecord(r assets.AssetRecord) (AssetRef, error) {
	if r.Kind != assets.KindFungible {
		return AssetRef{}, errors.Wrapf(ErrInvalidJob, "%s is not a fungible token", r.ContractAddress)
	}
	if !common.IsHexAddress(r.ContractAddress) {
		return AssetRef{}, errors.Wrapf(ErrInvalidJob, "bad contract address %q", r.ContractAddress)
	}
	raw, ok := new(big.Int).SetString(r.RawBalance, 10)
	if !ok {
		return AssetRef{}, errors.Wrapf(ErrInvalidJob, "bad raw balance %q", r.RawBalance)
	}
	return AssetRef{
		ChainID:   r.ChainID,
		Contract:  common.HexToAddress(r.ContractAddress),
		RawAmount: raw,
		Decimals:  r.Decimals,
		Symbol:    r.Symbol,
	}, nil
}

func (a AssetRef) key() string {
	return assets.Key(a.ChainID, lower(a.Contract))
}

// Step is one on-chain transaction of a job.
type Step struct {
	Index       int            `json:"index"`
	Kind        StepKind       `json:"kind"`
	Asset       string         `json:"asset,omitempty"`
	Status      Status         `json:"status"`
	TxHash      string         `json:"txHash,omitempty"`
	ExplorerURL string         `json:"explorerUrl,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	contract    common.Address // zero for the burn step
}

// StepStatus is a single status transition, in the order it happened.
type StepStatus struct {
	JobID       string    `json:"jobId"`
	Index       int       `json:"index"`
	Kind        StepKind  `json:"kind"`
	Asset       string    `json:"asset,omitempty"`
	Status      Status    `json:"status"`
	TxHash      string    `json:"txHash,omitempty"`
	ExplorerURL string    `json:"explorerUrl,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// Job is an ordered reset -> approve -> burn sequence for one or more tokens on one chain.
type Job struct {
	ID      string
	ChainID uint64
	Mode    Mode
	Assets  []AssetRef

	mu      sync.Mutex
	steps   []Step
	events  []StepStatus
	changed chan struct{}
	started bool
	done    bool
	err     error
}

// NewJob validates assets and lays out steps. More than one asset means batch mode:
// reset and approve per asset, then a single burn with aligned arrays.
func NewJob(refs ...AssetRef) (*Job, error) {
	if len(refs) == 0 {
		return nil, errors.Wrap(ErrInvalidJob, "no assets")
	}

	chainID := refs[0].ChainID
	seen := map[common.Address]bool{}
	for i, a := range refs {
		if a.ChainID == 0 || a.ChainID != chainID {
			return nil, errors.Wrapf(ErrInvalidJob, "asset %d is on chain %d, job is on %d", i, a.ChainID, chainID)
		}
		if a.Contract == (common.Address{}) {
			return nil, errors.Wrapf(ErrInvalidJob, "asset %d has no contract", i)
		}
		if seen[a.Contract] {
			return nil, errors.Wrapf(ErrInvalidJob, "asset %s listed twice", a.Contract.Hex())
		}
		seen[a.Contract] = true
		if a.RawAmount == nil || a.RawAmount.Sign() <= 0 {
			return nil, errors.Wrapf(ErrInvalidJob, "asset %s amount must be a positive integer", a.Contract.Hex())
		}
	}

	j := &Job{
		ID:      uuid.NewString(),
		ChainID: chainID,
		Mode:    ModeSingle,
		Assets:  append([]AssetRef(nil), refs...),
		changed: make(chan struct{}),
	}
	if len(refs) > 1 {
		j.Mode = ModeBatch
	}

	for _, a := range refs {
		j.addStep(StepResetAllowance, a.Contract)
		j.addStep(StepApproveAllowance, a.Contract)
	}
	j.addStep(StepBurn, common.Address{})
	return j, nil
}

func (j *Job) addStep(kind StepKind, contract common.Address) {
	s := Step{Index: len(j.steps), Kind: kind, Status: StatusPending, contract: contract}
	if contract != (common.Address{}) {
		s.Asset = lower(contract)
	}
	j.steps = append(j.steps, s)
}

// Steps returns a copy of the current step states.
func (j *Job) Steps() []Step {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Step, len(j.steps))
	copy(out, j.steps)
	return out
}

// Terminal is true once any step failed or the last step succeeded.
func (j *Job) Terminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.terminalLocked()
}

func (j *Job) terminalLocked() bool {
	for _, s := range j.steps {
		if s.Status == StatusFailed {
			return true
		}
	}
	return j.steps[len(j.steps)-1].Status == StatusSucceeded
}

// Done reports whether the run has ended, terminal or abandoned.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

// Err is set when the run stopped without reaching a terminal state.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Events returns transitions recorded after `since`, a channel closed on the next change,
// and whether the run has ended.
func (j *Job) Events(since int) ([]StepStatus, <-chan struct{}, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if since < 0 {
		since = 0
	}
	var out []StepStatus
	if since < len(j.events) {
		out = append(out, j.events[since:]...)
	}
	return out, j.changed, j.done
}

type Snapshot struct {
	ID       string `json:"id"`
	ChainID  uint64 `json:"chainId"`
	Mode     Mode   `json:"mode"`
	Steps    []Step `json:"steps"`
	Terminal bool   `json:"terminal"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		ID:       j.ID,
		ChainID:  j.ChainID,
		Mode:     j.Mode,
		Steps:    append([]Step(nil), j.steps...),
		Terminal: j.terminalLocked(),
		Done:     j.done,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

func (j *Job) markStarted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return false
	}
	j.started = true
	return true
}

// transition updates step i and records the event.
func (j *Job) transition(i int, status Status, txHash, explorerURL, reason string) StepStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := &j.steps[i]
	s.Status = status
	if txHash != "" {
		s.TxHash = txHash
	}
	if explorerURL != "" {
		s.ExplorerURL = explorerURL
	}
	s.Reason = reason

	ev := StepStatus{
		JobID:       j.ID,
		Index:       i,
		Kind:        s.Kind,
		Asset:       s.Asset,
		Status:      status,
		TxHash:      s.TxHash,
		ExplorerURL: s.ExplorerURL,
		Reason:      reason,
		At:          time.Now().UTC(),
	}
	j.events = append(j.events, ev)
	j.notifyLocked()
	return ev
}

// setTxHash records a broadcast hash while the step is still in flight.
func (j *Job) setTxHash(i int, txHash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps[i].TxHash = txHash
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done = true
	j.err = err
	j.notifyLocked()
}

func (j *Job) notifyLocked() {
	close(j.changed)
	j.changed = make(chan struct{})
}
