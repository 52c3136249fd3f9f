package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lack0fcode/destructorbr/internal/assets"
	"github.com/lack0fcode/destructorbr/internal/burn"
	"github.com/lack0fcode/destructorbr/internal/chains"
	"github.com/lack0fcode/destructorbr/internal/selection"
	"github.com/lack0fcode/destructorbr/internal/session"
	"github.com/lack0fcode/destructorbr/internal/signer"
)

const baseSepolia = 84532

var (
	proxyAddr = common.HexToAddress("0x9b9FEe4532170621b1016035617F320d7B2f9B8F")
	alphaAddr = "0x1111111111111111111111111111111111111111"
	betaAddr  = "0x2222222222222222222222222222222222222222"
	nftAddr   = "0x3333333333333333333333333333333333333333"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeAssets struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeAssets) FetchAssets(ctx context.Context, owner common.Address, chainID uint64) (assets.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if chainID != baseSepolia {
		return assets.Result{Unsupported: true}, nil
	}
	return assets.Result{Assets: []assets.AssetRecord{
		{Kind: assets.KindFungible, ChainID: chainID, ContractAddress: alphaAddr, DisplayName: "Alpha", Symbol: "ALP", RawBalance: "2000000000000000000", Decimals: 18},
		{Kind: assets.KindFungible, ChainID: chainID, ContractAddress: betaAddr, DisplayName: "beta", Symbol: "BET", RawBalance: "5", Decimals: 0},
		{Kind: assets.KindNonFungible, ChainID: chainID, ContractAddress: nftAddr, DisplayName: "Punks", Symbol: "NFT", RawBalance: "1"},
	}}, nil
}

type chainSigner struct {
	addr common.Address
	hold chan struct{}

	mu    sync.Mutex
	calls []common.Address
}

func (c *chainSigner) Address() common.Address { return c.addr }

func (c *chainSigner) SignMessage(ctx context.Context, message string) ([]byte, error) {
	return nil, signer.ErrRejected
}

func (c *chainSigner) SendContractCall(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, to)
	return common.BigToHash(big.NewInt(int64(len(c.calls)))), nil
}

func (c *chainSigner) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if c.hold != nil {
		select {
		case <-c.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &types.Receipt{TxHash: txHash, Status: types.ReceiptStatusSuccessful}, nil
}

func (c *chainSigner) sent() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]common.Address(nil), c.calls...)
}

type localSigner struct {
	wallet *signer.Wallet
	chain  *chainSigner
	reject bool
}

func (l *localSigner) Address() common.Address { return l.wallet.Address() }

func (l *localSigner) SignMessage(ctx context.Context, message string) ([]byte, error) {
	if l.reject {
		return nil, signer.ErrRejected
	}
	return l.wallet.SignText(ctx, message)
}

func (l *localSigner) ForChain(ctx context.Context, chainID uint64) (signer.Signer, error) {
	return l.chain, nil
}

type fixture struct {
	srv    *Server
	wallet *signer.Wallet
	local  *localSigner
	assets *fakeAssets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg, err := chains.NewRegistry(&chains.AllChainsConfig{Networks: map[string]chains.NetworkConfig{
		"base-sepolia": {
			DisplayName: "Base Sepolia",
			ChainID:     baseSepolia,
			IndexerURL:  "https://base-sepolia.g.alchemy.com/v2/secret",
		},
		"sepolia": {DisplayName: "Sepolia", ChainID: 11155111},
	}})
	require.NoError(t, err)

	w, err := signer.NewRandomWallet()
	require.NoError(t, err)

	guard := session.NewGuard(reg)
	orch, err := burn.NewOrchestrator(burn.Config{Proxy: proxyAddr, Gate: guard, Explorer: reg})
	require.NoError(t, err)

	local := &localSigner{wallet: w, chain: &chainSigner{addr: w.Address()}}
	fa := &fakeAssets{}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := NewServer(ctx, Options{
		Guard:          guard,
		Selection:      selection.New(),
		Assets:         fa,
		Burner:         orch,
		Registry:       reg,
		Signer:         local,
		AllowedOrigins: []string{"http://localhost:5173"},
		IncludeNFTs:    true,
	})
	require.NoError(t, err)
	return &fixture{srv: srv, wallet: w, local: local, assets: fa}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) observe(t *testing.T, chainID uint64) session.Decision {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/session/observe", gin.H{"address": f.wallet.Address().Hex(), "chainId": chainID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[session.Decision](t, rec)
}

func (f *fixture) authorize(t *testing.T, chainID uint64) {
	t.Helper()
	d := f.observe(t, chainID)
	require.Equal(t, session.StateNeedsChallenge, d.State)

	sig, err := f.wallet.SignText(context.Background(), d.Challenge.Message)
	require.NoError(t, err)
	rec := f.do(t, http.MethodPost, "/api/session/resolve", gin.H{"challengeId": d.Challenge.ID, "signature": hexutil.Encode(sig)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, session.StateAuthorized, decode[session.Decision](t, rec).State)
}

func assetsPath(addr common.Address, query string) string {
	p := "/api/assets?address=" + addr.Hex() + "&chainId=84532"
	if query != "" {
		p += "&" + query
	}
	return p
}

func TestHealthAndLoopback(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	remote := httptest.NewRecorder()
	f.srv.ServeHTTP(remote, req)
	require.Equal(t, http.StatusForbidden, remote.Code)
}

func TestChainsDoNotLeakIndexerURL(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/chains", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret")

	res := decode[struct {
		Networks []chainView `json:"networks"`
	}](t, rec)
	require.Len(t, res.Networks, 2)
	require.Equal(t, uint64(baseSepolia), res.Networks[0].ChainID)
	require.True(t, res.Networks[0].Supported)
	require.False(t, res.Networks[1].Supported)
	require.Equal(t, "0x14a34", res.Networks[0].ChainIDHex)
}

func TestAssetsRequireAuthorizedSession(t *testing.T) {
	f := newFixture(t)

	d := f.observe(t, baseSepolia)
	require.Equal(t, session.StateNeedsChallenge, d.State)
	require.Contains(t, d.Challenge.Message, "confirm connecting")

	rec := f.do(t, http.MethodGet, assetsPath(f.wallet.Address(), ""), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), string(session.StateNeedsChallenge))
	require.Zero(t, f.assets.calls)

	f.authorize(t, baseSepolia)

	rec = f.do(t, http.MethodGet, assetsPath(f.wallet.Address(), "sort=balance&dir=desc"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[assetsRes](t, rec)
	require.Len(t, res.Assets, 3)
	require.Equal(t, betaAddr, res.Assets[0].ContractAddress)
	require.Equal(t, "5", res.Assets[0].Balance)
	require.Equal(t, "2", res.Assets[1].Balance)
	require.Equal(t, "2000000000000000000", res.Assets[1].RawBalance)
	require.Contains(t, res.Assets[1].ExplorerURL, "/address/"+alphaAddr)

	rec = f.do(t, http.MethodGet, assetsPath(f.wallet.Address(), "includeNfts=false"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[assetsRes](t, rec).Assets, 2)

	rec = f.do(t, http.MethodGet, assetsPath(f.wallet.Address(), "sort=volume"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNetworkSwitchRevokesAuthorization(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, baseSepolia)

	d := f.observe(t, 11155111)
	require.Equal(t, session.StateNeedsChallenge, d.State)
	require.Contains(t, d.Challenge.Message, "switching network to Sepolia")

	rec := f.do(t, http.MethodGet, assetsPath(f.wallet.Address(), ""), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolveErrors(t *testing.T) {
	f := newFixture(t)
	d := f.observe(t, baseSepolia)

	rec := f.do(t, http.MethodPost, "/api/session/resolve", gin.H{"challengeId": "nope", "signature": "0x00"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/session/resolve", gin.H{"challengeId": d.Challenge.ID, "signature": "zz"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	other, err := signer.NewRandomWallet()
	require.NoError(t, err)
	sig, err := other.SignText(context.Background(), d.Challenge.Message)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/api/session/resolve", gin.H{"challengeId": d.Challenge.ID, "signature": hexutil.Encode(sig)})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, session.StateUnauthorized, decode[struct {
		Decision session.Decision `json:"decision"`
	}](t, rec).Decision.State)
}

func TestRejectChallenge(t *testing.T) {
	f := newFixture(t)
	d := f.observe(t, baseSepolia)

	rec := f.do(t, http.MethodPost, "/api/session/reject", gin.H{"challengeId": d.Challenge.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[session.Decision](t, rec)
	require.Equal(t, session.StateUnauthorized, got.State)
	require.Equal(t, "signature rejected", got.Reason)
}

func TestSessionSignWithLocalWallet(t *testing.T) {
	f := newFixture(t)
	d := f.observe(t, baseSepolia)

	rec := f.do(t, http.MethodPost, "/api/session/sign", gin.H{"challengeId": d.Challenge.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, session.StateAuthorized, decode[session.Decision](t, rec).State)

	rec = f.do(t, http.MethodGet, "/api/session", nil)
	snap := decode[session.Snapshot](t, rec)
	require.NotNil(t, snap.Authorized)
	require.Equal(t, f.wallet.Address(), snap.Authorized.Address)

	rec = f.do(t, http.MethodDelete, "/api/session", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/session", nil)
	require.Nil(t, decode[session.Snapshot](t, rec).Observed)
}

func TestSessionSignRejectedAndMismatch(t *testing.T) {
	f := newFixture(t)
	f.local.reject = true
	d := f.observe(t, baseSepolia)

	rec := f.do(t, http.MethodPost, "/api/session/sign", gin.H{"challengeId": d.Challenge.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, session.StateUnauthorized, decode[session.Decision](t, rec).State)

	other, err := signer.NewRandomWallet()
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/api/session/observe", gin.H{"address": other.Address().Hex(), "chainId": baseSepolia})
	d = decode[session.Decision](t, rec)
	rec = f.do(t, http.MethodPost, "/api/session/sign", gin.H{"challengeId": d.Challenge.ID})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSelectionEndpoints(t *testing.T) {
	f := newFixture(t)
	a := assets.Key(baseSepolia, alphaAddr)
	b := assets.Key(baseSepolia, betaAddr)

	for _, id := range []string{b, a} {
		rec := f.do(t, http.MethodPost, "/api/selection/toggle", gin.H{"id": id})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/api/selection", nil)
	require.Equal(t, []string{b, a}, decode[struct {
		Selected []string `json:"selected"`
	}](t, rec).Selected)

	rec = f.do(t, http.MethodPost, "/api/selection/toggle", gin.H{"id": b})
	require.Contains(t, rec.Body.String(), `"selected":false`)

	rec = f.do(t, http.MethodDelete, "/api/selection", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, f.srv.selection.Len())
}

func TestBurnFromSelection(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, baseSepolia)

	f.srv.selection.Toggle(assets.Key(baseSepolia, betaAddr))
	f.srv.selection.Toggle(assets.Key(baseSepolia, nftAddr))
	f.srv.selection.Toggle(assets.Key(baseSepolia, alphaAddr))

	rec := f.do(t, http.MethodPost, "/api/burn", gin.H{"chainId": baseSepolia, "fromSelection": true})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[burnRes](t, rec)
	require.Equal(t, burn.ModeBatch, res.Job.Mode)
	require.Len(t, res.Job.Steps, 5)

	require.Eventually(t, func() bool {
		return f.srv.selection.Len() == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{assets.Key(baseSepolia, nftAddr)}, f.srv.selection.Selected())

	calls := f.local.chain.sent()
	require.Equal(t, []common.Address{
		common.HexToAddress(betaAddr), common.HexToAddress(betaAddr),
		common.HexToAddress(alphaAddr), common.HexToAddress(alphaAddr),
		proxyAddr,
	}, calls)

	rec = f.do(t, http.MethodGet, "/api/burn/"+res.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[burn.Snapshot](t, rec)
	require.True(t, snap.Terminal)
	for _, st := range snap.Steps {
		require.Equal(t, burn.StatusSucceeded, st.Status)
		require.True(t, strings.HasPrefix(st.ExplorerURL, "https://base-sepolia"), st.ExplorerURL)
	}
}

func TestBurnRejectsUnauthorizedAndBusy(t *testing.T) {
	f := newFixture(t)
	body := gin.H{"chainId": baseSepolia, "assets": []gin.H{{"contractAddress": alphaAddr, "rawAmount": "10", "decimals": 18}}}

	rec := f.do(t, http.MethodPost, "/api/burn", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	f.authorize(t, baseSepolia)
	f.local.chain.hold = make(chan struct{})
	defer close(f.local.chain.hold)

	rec = f.do(t, http.MethodPost, "/api/burn", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/burn", body)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/burn", gin.H{"chainId": baseSepolia, "assets": []gin.H{{"contractAddress": betaAddr, "rawAmount": "0"}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/burn", gin.H{"chainId": 11155111, "fromSelection": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBurnStreamReplaysAndCloses(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, baseSepolia)

	rec := f.do(t, http.MethodPost, "/api/burn", gin.H{"chainId": baseSepolia, "assets": []gin.H{{"contractAddress": alphaAddr, "rawAmount": "7"}}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[burnRes](t, rec).JobID

	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/burn/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msgs []streamMessage
	for {
		var m streamMessage
		if err := conn.ReadJSON(&m); err != nil {
			break
		}
		msgs = append(msgs, m)
	}

	require.Len(t, msgs, 7)
	for _, m := range msgs[:6] {
		require.Equal(t, StreamMessageStep, m.Type)
		require.Equal(t, id, m.Event.JobID)
	}
	last := msgs[6]
	require.Equal(t, StreamMessageDone, last.Type)
	require.True(t, last.Job.Terminal)

	hdr := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	rec = f.do(t, http.MethodGet, "/api/burn/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
