package burn

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/lack0fcode/destructorbr/internal/contracts"
	"github.com/lack0fcode/destructorbr/internal/session"
	"github.com/lack0fcode/destructorbr/internal/signer"
)

var (
	ErrAssetBusy    = errors.New("burn: asset already has a job in flight")
	ErrUnauthorized = errors.New("burn: session is not authorized for this wallet and chain")
	ErrJobStarted   = errors.New("burn: job already started")
)

// Gate is consulted before a job starts and again before every send
// (see session.Guard).
type Gate interface {
	Check(address common.Address, chainID uint64) session.Decision
}

type Explorer interface {
	TxURL(chainID uint64, txHash string) string
}

type Config struct {
	Proxy    common.Address
	Gate     Gate
	Explorer Explorer
	// KeepJobs bounds how many finished jobs stay queryable.
	KeepJobs int
}

// Orchestrator runs burn jobs, at most one per asset at a time.
type Orchestrator struct {
	cfg Config

	mu       sync.Mutex
	inFlight map[string]string // asset key -> job id
	jobs     map[string]*Job
	finished []string
}

func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Proxy == (common.Address{}) {
		return nil, errors.New("burn: proxy address is empty")
	}
	if cfg.KeepJobs <= 0 {
		cfg.KeepJobs = 100
	}
	return &Orchestrator{
		cfg:      cfg,
		inFlight: map[string]string{},
		jobs:     map[string]*Job{},
	}, nil
}

func (o *Orchestrator) Proxy() common.Address { return o.cfg.Proxy }

// Job looks up a running or recently finished job.
func (o *Orchestrator) Job(id string) (*Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	return j, ok
}

// Burn starts job on its own goroutine and returns its status transitions.
// The channel is closed when the run ends; it never blocks the run.
func (o *Orchestrator) Burn(ctx context.Context, job *Job, s signer.Signer) (<-chan StepStatus, error) {
	if job == nil || s == nil {
		return nil, errors.Wrap(ErrInvalidJob, "nil job or signer")
	}
	if o.cfg.Gate != nil {
		if d := o.cfg.Gate.Check(s.Address(), job.ChainID); !d.Authorized() {
			return nil, errors.Wrapf(ErrUnauthorized, "%s on chain %d: %s", s.Address().Hex(), job.ChainID, d.State)
		}
	}
	if err := o.acquire(job); err != nil {
		return nil, err
	}
	if !job.markStarted() {
		o.unlock(job)
		return nil, ErrJobStarted
	}

	ch := make(chan StepStatus, 2*len(job.steps))
	go o.run(ctx, job, s, ch)
	return ch, nil
}

func (o *Orchestrator) acquire(job *Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, a := range job.Assets {
		if other, busy := o.inFlight[a.key()]; busy {
			return errors.Wrapf(ErrAssetBusy, "%s (job %s)", a.Contract.Hex(), other)
		}
	}
	for _, a := range job.Assets {
		o.inFlight[a.key()] = job.ID
	}
	o.jobs[job.ID] = job
	return nil
}

func (o *Orchestrator) unlock(job *Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unlockLocked(job)
}

func (o *Orchestrator) unlockLocked(job *Job) {
	for _, a := range job.Assets {
		if o.inFlight[a.key()] == job.ID {
			delete(o.inFlight, a.key())
		}
	}
}

func (o *Orchestrator) release(job *Job) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.unlockLocked(job)
	o.finished = append(o.finished, job.ID)
	for len(o.finished) > o.cfg.KeepJobs {
		delete(o.jobs, o.finished[0])
		o.finished = o.finished[1:]
	}
}

func (o *Orchestrator) run(ctx context.Context, job *Job, s signer.Signer, ch chan<- StepStatus) {
	var runErr error
	defer func() {
		job.finish(runErr)
		o.release(job)
		close(ch)
	}()

	log.Info("burn job started", "jobId", job.ID, "chainId", job.ChainID, "mode", job.Mode, "assets", len(job.Assets))

	for i := range job.steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			log.Warn("burn job abandoned", "jobId", job.ID, "step", i, "error", err)
			return
		}

		// the session can end between steps; later steps stay pending
		if o.cfg.Gate != nil && !o.cfg.Gate.Check(s.Address(), job.ChainID).Authorized() {
			runErr = errors.Wrapf(ErrUnauthorized, "session lost before step %d", i)
			log.Warn("burn job stopped: session no longer authorized", "jobId", job.ID, "step", i)
			return
		}

		step := job.steps[i]
		ch <- job.transition(i, StatusInFlight, "", "", "")

		to, data, err := o.calldata(job, step)
		if err != nil {
			ch <- o.fail(job, i, err.Error())
			return
		}

		txHash, err := s.SendContractCall(ctx, to, data)
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				return
			}
			reason := err.Error()
			if errors.Is(err, signer.ErrRejected) {
				reason = "rejected by user: " + reason
			}
			ch <- o.fail(job, i, reason)
			return
		}
		if txHash == (common.Hash{}) {
			ch <- o.fail(job, i, "signer returned no transaction hash")
			return
		}
		job.setTxHash(i, txHash.Hex())

		receipt, err := s.WaitForReceipt(ctx, txHash)
		if err != nil {
			// tx may still land; leave the step in flight
			runErr = err
			if ctx.Err() != nil {
				runErr = ctx.Err()
			}
			log.Warn("burn job stopped while waiting for receipt", "jobId", job.ID, "txHash", txHash.Hex(), "error", err)
			return
		}
		if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
			ch <- o.fail(job, i, "transaction reverted")
			return
		}

		url := ""
		if o.cfg.Explorer != nil {
			url = o.cfg.Explorer.TxURL(job.ChainID, txHash.Hex())
		}
		ch <- job.transition(i, StatusSucceeded, txHash.Hex(), url, "")
		log.Info("burn step succeeded", "jobId", job.ID, "step", step.Kind, "asset", step.Asset, "txHash", txHash.Hex())
	}

	log.Info("burn job completed", "jobId", job.ID)
}

func (o *Orchestrator) fail(job *Job, i int, reason string) StepStatus {
	log.Warn("burn step failed", "jobId", job.ID, "step", job.steps[i].Kind, "asset", job.steps[i].Asset, "reason", reason)
	return job.transition(i, StatusFailed, "", "", reason)
}

// calldata returns the target and encoded call for a step.
func (o *Orchestrator) calldata(job *Job, step Step) (common.Address, []byte, error) {
	switch step.Kind {
	case StepResetAllowance:
		data, err := contracts.PackApprove(o.cfg.Proxy, big.NewInt(0))
		return step.contract, data, err
	case StepApproveAllowance:
		ref, ok := job.asset(step.contract)
		if !ok {
			return common.Address{}, nil, errors.Newf("no asset for %s", step.contract.Hex())
		}
		data, err := contracts.PackApprove(o.cfg.Proxy, ref.RawAmount)
		return step.contract, data, err
	case StepBurn:
		tokens := make([]common.Address, len(job.Assets))
		amounts := make([]*big.Int, len(job.Assets))
		for i, a := range job.Assets {
			tokens[i] = a.Contract
			amounts[i] = new(big.Int).Set(a.RawAmount)
		}
		data, err := contracts.PackBurnTokens(tokens, amounts)
		return o.cfg.Proxy, data, err
	default:
		return common.Address{}, nil, errors.Newf("unknown step %q", step.Kind)
	}
}

func (j *Job) asset(contract common.Address) (AssetRef, bool) {
	for _, a := range j.Assets {
		if a.Contract == contract {
			return a, true
		}
	}
	return AssetRef{}, false
}

func lower(a common.Address) string {
	return strings.ToLower(a.Hex())
}
