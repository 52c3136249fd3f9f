package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/lack0fcode/destructorbr/internal/assets"
	"github.com/lack0fcode/destructorbr/internal/session"
	"github.com/lack0fcode/destructorbr/internal/signer"
)

// -------- DTOs --------

type chainView struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	ChainID     uint64 `json:"chainId"`
	ChainIDHex  string `json:"chainIdHex"`
	Explorer    string `json:"explorer"`
	Supported   bool   `json:"supported"`
}

type observeReq struct {
	Address string `json:"address"`
	ChainID uint64 `json:"chainId"`
}

type resolveReq struct {
	ChallengeID string `json:"challengeId" binding:"required"`
	Signature   string `json:"signature"   binding:"required"`
}

type rejectReq struct {
	ChallengeID string `json:"challengeId" binding:"required"`
	Reason      string `json:"reason"`
}

type signReq struct {
	ChallengeID string `json:"challengeId" binding:"required"`
}

type toggleReq struct {
	ID string `json:"id" binding:"required"`
}

type assetView struct {
	assets.AssetRecord
	Balance     string `json:"balance"`
	ExplorerURL string `json:"explorerUrl"`
	Selected    bool   `json:"selected"`
}

type assetsRes struct {
	Assets      []assetView         `json:"assets"`
	Unsupported bool                `json:"unsupported"`
	Diagnostics []assets.Diagnostic `json:"diagnostics,omitempty"`
}

// GET /api/health
func (s *Server) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/chains
func (s *Server) Chains(c *gin.Context) {
	nets := s.registry.Networks()
	out := make([]chainView, 0, len(nets))
	for _, n := range nets {
		out = append(out, chainView{
			Name:        n.Name,
			DisplayName: n.DisplayName,
			ChainID:     n.ChainID,
			ChainIDHex:  n.ChainIDHex,
			Explorer:    s.registry.ExplorerBase(n.ChainID),
			Supported:   s.registry.Supports(n.ChainID),
		})
	}
	c.JSON(http.StatusOK, gin.H{JSONKeyNetworks: out})
}

// GET /api/session
func (s *Server) SessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.guard.Snapshot())
}

// DELETE /api/session
func (s *Server) SessionDisconnect(c *gin.Context) {
	s.guard.Disconnect()
	s.selection.Clear()
	c.Status(http.StatusNoContent)
}

// POST /api/session/observe
// An empty address means the wallet disconnected.
func (s *Server) SessionObserve(c *gin.Context) {
	var req observeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: HTTPErrorInvalidJSONText})
		return
	}

	obs := session.Observation{ChainID: req.ChainID}
	if strings.TrimSpace(req.Address) != "" {
		addr, ok := parseAddress(req.Address)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: HTTPErrorInvalidAddressText})
			return
		}
		if req.ChainID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: HTTPErrorInvalidChainIDText})
			return
		}
		obs.Address = addr
	}

	prev := s.guard.Snapshot().Observed
	d := s.guard.Observe(obs)
	if prev != nil && (obs.Address == (common.Address{}) || prev.Address != obs.Address) {
		s.selection.Clear()
	}
	c.JSON(http.StatusOK, d)
}

// POST /api/session/resolve
func (s *Server) SessionResolve(c *gin.Context) {
	var req resolveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: err.Error()})
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: HTTPErrorInvalidSignatureText})
		return
	}

	d, err := s.guard.Resolve(req.ChallengeID, sig)
	writeDecision(c, d, err)
}

// POST /api/session/reject
func (s *Server) SessionReject(c *gin.Context) {
	var req rejectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: err.Error()})
		return
	}
	d, err := s.guard.Reject(req.ChallengeID, req.Reason)
	writeDecision(c, d, err)
}

// POST /api/session/sign
// Signs the pending challenge with the local wallet, when that wallet is the one challenged.
func (s *Server) SessionSign(c *gin.Context) {
	if s.signer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{JSONKeyError: HTTPErrorNoLocalSignerText})
		return
	}
	var req signReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: err.Error()})
		return
	}

	pending := s.guard.Snapshot().Pending
	if pending == nil || pending.ID != req.ChallengeID {
		c.JSON(http.StatusConflict, gin.H{JSONKeyError: session.ErrStaleChallenge.Error()})
		return
	}
	if pending.Address != s.signer.Address() {
		c.JSON(http.StatusForbidden, gin.H{JSONKeyError: HTTPErrorSignerMismatchText})
		return
	}

	sig, err := s.signer.SignMessage(c.Request.Context(), pending.Message)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, signer.ErrRejected) {
			reason = "signature rejected"
		}
		d, rerr := s.guard.Reject(req.ChallengeID, reason)
		writeDecision(c, d, rerr)
		return
	}

	d, err := s.guard.Resolve(req.ChallengeID, sig)
	writeDecision(c, d, err)
}

// GET /api/assets?address=&chainId=&includeNfts=&sort=&dir=
func (s *Server) Assets(c *gin.Context) {
	owner, ok := parseAddress(c.Query("address"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: HTTPErrorInvalidAddressText})
		return
	}
	chainID, err := strconv.ParseUint(c.Query("chainId"), 10, 64)
	if err != nil || chainID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: HTTPErrorInvalidChainIDText})
		return
	}
	key, err := assets.ParseSortKey(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: err.Error()})
		return
	}
	dir, err := assets.ParseDirection(c.Query("dir"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: err.Error()})
		return
	}
	includeNFTs := s.includeNFTs
	if raw := c.Query("includeNfts"); raw != "" {
		if includeNFTs, err = strconv.ParseBool(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: "invalid includeNfts"})
			return
		}
	}

	if d := s.guard.Check(owner, chainID); !d.Authorized() {
		c.JSON(http.StatusUnauthorized, gin.H{JSONKeyError: HTTPErrorNotAuthorizedText, JSONKeyDecision: d})
		return
	}

	res, err := s.assets.FetchAssets(c.Request.Context(), owner, chainID)
	if err != nil {
		log.Warn("asset fetch failed", "address", owner.Hex(), "chainId", chainID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{JSONKeyError: HTTPErrorAssetsLoadFailedText})
		return
	}

	records := res.Assets
	if !includeNFTs {
		records = fungibleOnly(records)
	}
	records = assets.Sort(records, key, dir)

	out := assetsRes{
		Assets:      make([]assetView, 0, len(records)),
		Unsupported: res.Unsupported,
		Diagnostics: res.Diagnostics,
	}
	for _, r := range records {
		out.Assets = append(out.Assets, assetView{
			AssetRecord: r,
			Balance:     r.FormattedBalance(balanceDisplayDecimals),
			ExplorerURL: s.registry.AddressURL(r.ChainID, r.ContractAddress),
			Selected:    s.selection.Contains(r.ID()),
		})
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/selection
func (s *Server) SelectionList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{JSONKeySelected: s.selection.Selected()})
}

// POST /api/selection/toggle
func (s *Server) SelectionToggle(c *gin.Context) {
	var req toggleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: err.Error()})
		return
	}
	selected := s.selection.Toggle(strings.ToLower(strings.TrimSpace(req.ID)))
	c.JSON(http.StatusOK, gin.H{
		"id":            req.ID,
		JSONKeySelected: selected,
		JSONKeyCount:    s.selection.Len(),
	})
}

// DELETE /api/selection
func (s *Server) SelectionClear(c *gin.Context) {
	s.selection.Clear()
	c.Status(http.StatusNoContent)
}

func writeDecision(c *gin.Context, d session.Decision, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, d)
	case errors.Is(err, session.ErrStaleChallenge):
		c.JSON(http.StatusConflict, gin.H{JSONKeyError: err.Error(), JSONKeyDecision: d})
	case errors.Is(err, session.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{JSONKeyError: HTTPErrorInvalidSignatureText, JSONKeyDecision: d})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{JSONKeyError: err.Error(), JSONKeyDecision: d})
	}
}

func parseAddress(raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(raw)
	return addr, addr != (common.Address{})
}

func fungibleOnly(in []assets.AssetRecord) []assets.AssetRecord {
	out := make([]assets.AssetRecord, 0, len(in))
	for _, r := range in {
		if r.Kind == assets.KindFungible {
			out = append(out, r)
		}
	}
	return out
}
