package indexer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"

	"github.com/lack0fcode/destructorbr/internal/chains"
)

const maxPages = 25

// Endpoints resolves the indexer location for a chain.
type Endpoints interface {
	IndexerEndpoint(chainID uint64) (chains.Endpoint, bool)
}

type retryFunc func(ctx context.Context, desc string, fn func(ctx context.Context) error) error

func once(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Alchemy talks to Alchemy-compatible token (JSON-RPC) and NFT (REST) APIs.
type Alchemy struct {
	endpoints Endpoints
	http      *http.Client
	retry     retryFunc

	mu      sync.Mutex
	clients map[uint64]*rpc.Client
}

type Option func(*Alchemy)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Alchemy) { a.http = c }
}

// WithRetry retries failed provider calls with backoff between initial and max delay.
func WithRetry(initial, maxDelay time.Duration) Option {
	return func(a *Alchemy) {
		a.retry = func(ctx context.Context, desc string, fn func(ctx context.Context) error) error {
			cfg := retry.DefaultConfig()
			cfg.InitialDelayBeforeRetrying = initial
			cfg.MaxDelayBeforeRetrying = maxDelay
			_, err := retry.Retry(ctx, cfg,
				func(ctx context.Context) ([]interface{}, error) {
					return nil, fn(ctx)
				},
				nil, // always retry
				desc)
			return err
		}
	}
}

func NewAlchemy(endpoints Endpoints, opts ...Option) (*Alchemy, error) {
	if endpoints == nil {
		return nil, errors.New("indexer endpoints are nil")
	}
	a := &Alchemy{
		endpoints: endpoints,
		http:      &http.Client{Timeout: 15 * time.Second},
		retry:     once,
		clients:   make(map[uint64]*rpc.Client),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Alchemy) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, c := range a.clients {
		c.Close()
		delete(a.clients, id)
	}
}

func (a *Alchemy) rpcClient(ctx context.Context, chainID uint64) (*rpc.Client, error) {
	ep, ok := a.endpoints.IndexerEndpoint(chainID)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedChain, "chainId %d", chainID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c := a.clients[chainID]; c != nil {
		return c, nil
	}
	c, err := rpc.DialOptions(ctx, ep.RPCURL, rpc.WithHTTPClient(a.http))
	if err != nil {
		return nil, errors.Wrapf(err, "dial indexer for chain %d", chainID)
	}
	a.clients[chainID] = c
	return c, nil
}

type alchemyBalancesResp struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string  `json:"contractAddress"`
		TokenBalance    *string `json:"tokenBalance"`
		Error           *string `json:"error"`
	} `json:"tokenBalances"`
	PageKey string `json:"pageKey"`
}

func (a *Alchemy) TokenBalances(ctx context.Context, chainID uint64, owner common.Address) ([]TokenBalance, error) {
	client, err := a.rpcClient(ctx, chainID)
	if err != nil {
		return nil, err
	}

	var out []TokenBalance
	pageKey := ""
	for page := 0; page < maxPages; page++ {
		var resp alchemyBalancesResp
		params := []interface{}{owner.Hex(), "erc20"}
		if pageKey != "" {
			params = append(params, map[string]string{"pageKey": pageKey})
		}
		err := a.retry(ctx, "alchemy_getTokenBalances", func(ctx context.Context) error {
			return client.CallContext(ctx, &resp, "alchemy_getTokenBalances", params...)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "token balances for %s on chain %d", owner.Hex(), chainID)
		}

		for _, tb := range resp.TokenBalances {
			row := TokenBalance{ContractAddress: tb.ContractAddress}
			if tb.TokenBalance != nil {
				row.Balance = *tb.TokenBalance
			}
			if tb.Error != nil {
				row.Error = *tb.Error
			}
			out = append(out, row)
		}

		if resp.PageKey == "" {
			return out, nil
		}
		pageKey = resp.PageKey
	}

	log.Warn("token balance pagination truncated", "chainId", chainID, "owner", owner.Hex(), "pages", maxPages)
	return out, nil
}

type alchemyMetadataResp struct {
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
	Decimals *int    `json:"decimals"`
	Logo     *string `json:"logo"`
}

// TokenMetadata leaves PossibleSpam nil: alchemy_getTokenMetadata carries no
// spam verdict for fungible tokens, so callers fall back to name heuristics.
func (a *Alchemy) TokenMetadata(ctx context.Context, chainID uint64, contract common.Address) (TokenMetadata, error) {
	client, err := a.rpcClient(ctx, chainID)
	if err != nil {
		return TokenMetadata{}, err
	}

	var resp alchemyMetadataResp
	err = a.retry(ctx, "alchemy_getTokenMetadata", func(ctx context.Context) error {
		return client.CallContext(ctx, &resp, "alchemy_getTokenMetadata", contract.Hex())
	})
	if err != nil {
		return TokenMetadata{}, errors.Wrapf(err, "token metadata for %s on chain %d", contract.Hex(), chainID)
	}

	return TokenMetadata{
		Name:     deref(resp.Name),
		Symbol:   deref(resp.Symbol),
		Logo:     deref(resp.Logo),
		Decimals: resp.Decimals,
	}, nil
}

type alchemyNFTResp struct {
	OwnedNfts []struct {
		Contract struct {
			Address string `json:"address"`
		} `json:"contract"`
		ID struct {
			TokenID string `json:"tokenId"`
		} `json:"id"`
		Balance string `json:"balance"`
		Title   string `json:"title"`
		Media   []struct {
			Gateway string `json:"gateway"`
		} `json:"media"`
		Metadata struct {
			Name  string `json:"name"`
			Image string `json:"image"`
		} `json:"metadata"`
		ContractMetadata struct {
			Name string `json:"name"`
		} `json:"contractMetadata"`
		SpamInfo *struct {
			IsSpam string `json:"isSpam"`
		} `json:"spamInfo"`
	} `json:"ownedNfts"`
	PageKey string `json:"pageKey"`
}

func (a *Alchemy) NFTs(ctx context.Context, chainID uint64, owner common.Address) ([]NFT, error) {
	ep, ok := a.endpoints.IndexerEndpoint(chainID)
	if !ok || ep.NFTURL == "" {
		return nil, errors.Wrapf(ErrUnsupportedChain, "no nft endpoint for chainId %d", chainID)
	}

	var out []NFT
	pageKey := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("owner", owner.Hex())
		q.Set("withMetadata", "true")
		if pageKey != "" {
			q.Set("pageKey", pageKey)
		}
		reqURL := ep.NFTURL + "/getNFTs?" + q.Encode()

		var resp alchemyNFTResp
		err := a.retry(ctx, "alchemy getNFTs", func(ctx context.Context) error {
			return a.getJSON(ctx, reqURL, &resp)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "nfts for %s on chain %d", owner.Hex(), chainID)
		}

		for _, n := range resp.OwnedNfts {
			item := NFT{
				ContractAddress: n.Contract.Address,
				TokenID:         n.ID.TokenID,
				Balance:         n.Balance,
				Name:            firstNonEmpty(n.Title, n.Metadata.Name, n.ContractMetadata.Name),
				Image:           n.Metadata.Image,
			}
			if len(n.Media) > 0 && n.Media[0].Gateway != "" {
				item.Image = n.Media[0].Gateway
			}
			if n.SpamInfo != nil && n.SpamInfo.IsSpam != "" {
				spam := strings.EqualFold(n.SpamInfo.IsSpam, "true")
				item.PossibleSpam = &spam
			}
			out = append(out, item)
		}

		if resp.PageKey == "" {
			return out, nil
		}
		pageKey = resp.PageKey
	}

	log.Warn("nft pagination truncated", "chainId", chainID, "owner", owner.Hex(), "pages", maxPages)
	return out, nil
}

func (a *Alchemy) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
