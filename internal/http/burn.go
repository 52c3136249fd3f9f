package http

import (
	"context"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/lack0fcode/destructorbr/internal/assets"
	"github.com/lack0fcode/destructorbr/internal/burn"
	"github.com/lack0fcode/destructorbr/internal/chains"
)

type burnAssetReq struct {
	ContractAddress string `json:"contractAddress" binding:"required"`
	RawAmount       string `json:"rawAmount"       binding:"required"`
	Decimals        uint8  `json:"decimals"`
	Symbol          string `json:"symbol"`
}

type burnReq struct {
	ChainID       uint64         `json:"chainId" binding:"required"`
	Assets        []burnAssetReq `json:"assets"`
	FromSelection bool           `json:"fromSelection"`
}

type burnRes struct {
	JobID string        `json:"jobId"`
	Job   burn.Snapshot `json:"job"`
}

type streamMessage struct {
	Type  string           `json:"type"`
	Event *burn.StepStatus `json:"event,omitempty"`
	Job   *burn.Snapshot   `json:"job,omitempty"`
}

// POST /api/burn
func (s *Server) BurnStart(c *gin.Context) {
	if s.signer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{JSONKeyError: HTTPErrorNoLocalSignerText})
		return
	}
	var req burnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: err.Error()})
		return
	}
	if !s.registry.Supports(req.ChainID) {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: HTTPErrorUnsupportedChainText})
		return
	}

	owner := s.signer.Address()
	if d := s.guard.Check(owner, req.ChainID); !d.Authorized() {
		c.JSON(http.StatusUnauthorized, gin.H{JSONKeyError: HTTPErrorNotAuthorizedText, JSONKeyDecision: d})
		return
	}

	var (
		refs []burn.AssetRef
		ids  []string
		err  error
	)
	if req.FromSelection {
		refs, ids, err = s.selectedRefs(c.Request.Context(), owner, req.ChainID)
	} else {
		refs, err = explicitRefs(req.ChainID, req.Assets)
	}
	if err != nil {
		writeBurnError(c, err)
		return
	}

	job, err := burn.NewJob(refs...)
	if err != nil {
		writeBurnError(c, err)
		return
	}

	sg, err := s.signer.ForChain(c.Request.Context(), req.ChainID)
	if err != nil {
		log.Warn("signer unavailable", "chainId", req.ChainID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{JSONKeyError: err.Error()})
		return
	}

	// the job outlives this request
	ch, err := s.burner.Burn(s.ctx, job, sg)
	if err != nil {
		writeBurnError(c, err)
		return
	}
	go s.follow(job, ch, ids)

	c.JSON(http.StatusAccepted, burnRes{JobID: job.ID, Job: job.Snapshot()})
}

// GET /api/burn/:id
func (s *Server) BurnStatus(c *gin.Context) {
	job, ok := s.burner.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{JSONKeyError: HTTPErrorJobNotFoundText})
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}

// GET /api/burn/:id/stream
// Replays every recorded transition, then follows the job until it ends.
func (s *Server) BurnStream(c *gin.Context) {
	job, ok := s.burner.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{JSONKeyError: HTTPErrorJobNotFoundText})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("burn stream upgrade failed", "jobId", job.ID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// drain client frames so close and pong are processed
	go func() {
		defer cancel()
		conn.SetReadLimit(streamReadLimit)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	since := 0
	for {
		events, changed, done := job.Events(since)
		for i := range events {
			if err := writeStream(conn, streamMessage{Type: StreamMessageStep, Event: &events[i]}); err != nil {
				return
			}
		}
		since += len(events)

		if done {
			snap := job.Snapshot()
			if err := writeStream(conn, streamMessage{Type: StreamMessageDone, Job: &snap}); err != nil {
				return
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteTimeout))
			return
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return
		}
	}
}

func writeStream(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(msg)
}

// follow drains the run and, once every step succeeded, drops burned assets from the selection.
func (s *Server) follow(job *burn.Job, ch <-chan burn.StepStatus, ids []string) {
	for range ch {
	}
	if job.Err() != nil || !job.Terminal() {
		return
	}
	steps := job.Steps()
	if steps[len(steps)-1].Status == burn.StatusSucceeded && len(ids) > 0 {
		s.selection.Remove(ids...)
	}
}

// selectedRefs re-reads balances so the burn uses what the wallet holds now.
func (s *Server) selectedRefs(ctx context.Context, owner common.Address, chainID uint64) ([]burn.AssetRef, []string, error) {
	res, err := s.assets.FetchAssets(ctx, owner, chainID)
	if err != nil {
		return nil, nil, errors.Wrap(err, HTTPErrorAssetsLoadFailedText)
	}
	if res.Unsupported {
		return nil, nil, errors.Wrapf(chains.ErrUnsupportedChain, "chain %d", chainID)
	}

	var (
		refs []burn.AssetRef
		ids  []string
	)
	for _, r := range s.selection.Resolve(res.Assets) {
		if r.ChainID != chainID || r.Kind != assets.KindFungible {
			continue
		}
		ref, err := burn.FromRecord(r)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, ref)
		ids = append(ids, r.ID())
	}
	if len(refs) == 0 {
		return nil, nil, errors.Wrap(burn.ErrInvalidJob, HTTPErrorNothingSelectedText)
	}
	return refs, ids, nil
}

func explicitRefs(chainID uint64, in []burnAssetReq) ([]burn.AssetRef, error) {
	refs := make([]burn.AssetRef, 0, len(in))
	for _, a := range in {
		if !common.IsHexAddress(strings.TrimSpace(a.ContractAddress)) {
			return nil, errors.Wrapf(burn.ErrInvalidJob, "bad contract address %q", a.ContractAddress)
		}
		raw, ok := new(big.Int).SetString(strings.TrimSpace(a.RawAmount), 10)
		if !ok {
			return nil, errors.Wrapf(burn.ErrInvalidJob, "bad raw amount %q", a.RawAmount)
		}
		refs = append(refs, burn.AssetRef{
			ChainID:   chainID,
			Contract:  common.HexToAddress(a.ContractAddress),
			RawAmount: raw,
			Decimals:  a.Decimals,
			Symbol:    a.Symbol,
		})
	}
	return refs, nil
}

func writeBurnError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, burn.ErrInvalidJob), errors.Is(err, chains.ErrUnsupportedChain):
		status = http.StatusBadRequest
	case errors.Is(err, burn.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, burn.ErrAssetBusy), errors.Is(err, burn.ErrJobStarted):
		status = http.StatusConflict
	default:
		log.Warn("burn request failed", "error", err)
	}
	c.JSON(status, gin.H{JSONKeyError: err.Error()})
}
