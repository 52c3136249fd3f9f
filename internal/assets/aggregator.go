package assets

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/lack0fcode/destructorbr/internal/constants"
	"github.com/lack0fcode/destructorbr/internal/indexer"
)

// Networks tells the aggregator which chains have an indexer.
type Networks interface {
	Supports(chainID uint64) bool
}

type Options struct {
	IncludeNFTs bool
	// MaxConcurrency bounds parallel metadata lookups.
	MaxConcurrency int
	SpamKeywords   []string
}

// Aggregator builds the asset list for a wallet on one chain.
type Aggregator struct {
	networks Networks
	indexer  indexer.Client
	spam     SpamDetector
	opts     Options
}

func NewAggregator(networks Networks, idx indexer.Client, opts Options) (*Aggregator, error) {
	if networks == nil {
		return nil, fmt.Errorf("assets: networks is nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("assets: indexer is nil")
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	return &Aggregator{
		networks: networks,
		indexer:  idx,
		spam:     NewSpamDetector(opts.SpamKeywords),
		opts:     opts,
	}, nil
}

func (a *Aggregator) Spam() SpamDetector { return a.spam }

// FetchAssets lists the owner's holdings on chainID.
// Unsupported chains and provider failures are reported in the Result, not as errors.
func (a *Aggregator) FetchAssets(ctx context.Context, owner common.Address, chainID uint64) (Result, error) {
	if owner == (common.Address{}) {
		return Result{}, fmt.Errorf("assets: owner address is empty")
	}
	if !a.networks.Supports(chainID) {
		log.Warn("no indexer for chain", "chainId", chainID)
		return Result{Assets: []AssetRecord{}, Unsupported: true}, nil
	}

	var (
		tokens, nfts         []AssetRecord
		tokenDiags, nftDiags []Diagnostic
		wg                   conc.WaitGroup
	)
	wg.Go(func() {
		tokens, tokenDiags = a.fetchTokens(ctx, owner, chainID)
	})
	if a.opts.IncludeNFTs {
		wg.Go(func() {
			nfts, nftDiags = a.fetchNFTs(ctx, owner, chainID)
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return Result{
		Assets:      dedupe(append(tokens, nfts...)),
		Diagnostics: append(tokenDiags, nftDiags...),
	}, nil
}

type tokenCandidate struct {
	address common.Address
	raw     *big.Int
}

func (a *Aggregator) fetchTokens(ctx context.Context, owner common.Address, chainID uint64) ([]AssetRecord, []Diagnostic) {
	rows, err := a.indexer.TokenBalances(ctx, chainID, owner)
	if err != nil {
		log.Warn("token balance fetch failed", "chainId", chainID, "owner", owner.Hex(), "error", err)
		return nil, []Diagnostic{{Source: "tokens", Kind: DiagProviderFetchFailed, Message: err.Error()}}
	}

	var (
		diags      []Diagnostic
		candidates []tokenCandidate
	)
	for _, row := range rows {
		addr, ok := normalizeAddress(row.ContractAddress)
		if !ok || row.Error != "" {
			diags = append(diags, malformed("tokens", row.ContractAddress, "unreadable balance row"))
			continue
		}
		raw, ok := parseRawBalance(row.Balance)
		if !ok {
			diags = append(diags, malformed("tokens", row.ContractAddress, fmt.Sprintf("balance %q", row.Balance)))
			continue
		}
		if raw.Sign() == 0 {
			continue
		}
		candidates = append(candidates, tokenCandidate{address: addr, raw: raw})
	}

	results := make([]*AssetRecord, len(candidates))
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(a.opts.MaxConcurrency)
	for i, c := range candidates {
		p.Go(func() {
			md, err := a.indexer.TokenMetadata(ctx, chainID, c.address)
			if err != nil {
				log.Warn("dropping token without metadata", "chainId", chainID, "contract", c.address.Hex(), "error", err)
				mu.Lock()
				diags = append(diags, Diagnostic{Source: "metadata", Kind: DiagMetadataUnavailable, Message: c.address.Hex() + ": " + err.Error()})
				mu.Unlock()
				return
			}
			rec, ok := a.tokenRecord(chainID, c, md)
			if !ok {
				mu.Lock()
				diags = append(diags, malformed("metadata", c.address.Hex(), "decimals out of range"))
				mu.Unlock()
				return
			}
			results[i] = &rec
		})
	}
	p.Wait()

	out := make([]AssetRecord, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, diags
}

func (a *Aggregator) tokenRecord(chainID uint64, c tokenCandidate, md indexer.TokenMetadata) (AssetRecord, bool) {
	decimals := constants.DefaultDecimals
	if md.Decimals != nil {
		decimals = *md.Decimals
	}
	if decimals < 0 || decimals > 255 {
		return AssetRecord{}, false
	}

	return AssetRecord{
		Kind:            KindFungible,
		ChainID:         chainID,
		ContractAddress: strings.ToLower(c.address.Hex()),
		DisplayName:     orDefault(md.Name, constants.UnknownTokenName),
		Symbol:          orDefault(md.Symbol, constants.UnknownTokenSymbol),
		RawBalance:      c.raw.String(),
		Decimals:        uint8(decimals),
		LogoURL:         LogoOrPlaceholder(md.Logo),
		SpamFlag:        a.spam.Resolve(md.PossibleSpam, md.Name),
	}, true
}

func (a *Aggregator) fetchNFTs(ctx context.Context, owner common.Address, chainID uint64) ([]AssetRecord, []Diagnostic) {
	rows, err := a.indexer.NFTs(ctx, chainID, owner)
	if err != nil {
		log.Warn("nft fetch failed", "chainId", chainID, "owner", owner.Hex(), "error", err)
		return nil, []Diagnostic{{Source: "nfts", Kind: DiagProviderFetchFailed, Message: err.Error()}}
	}

	var (
		diags []Diagnostic
		order []string
		byKey = map[string]*AssetRecord{}
	)
	for _, n := range rows {
		addr, ok := normalizeAddress(n.ContractAddress)
		if !ok {
			diags = append(diags, malformed("nfts", n.ContractAddress, "invalid contract address"))
			continue
		}
		count := big.NewInt(1)
		if strings.TrimSpace(n.Balance) != "" {
			if count, ok = parseRawBalance(n.Balance); !ok {
				diags = append(diags, malformed("nfts", n.ContractAddress, fmt.Sprintf("balance %q", n.Balance)))
				continue
			}
		}
		if count.Sign() == 0 {
			continue
		}

		contract := strings.ToLower(addr.Hex())
		spam := a.spam.Resolve(n.PossibleSpam, n.Name)
		if existing, ok := byKey[contract]; ok {
			existing.RawBalance = new(big.Int).Add(existing.Raw(), count).String()
			existing.SpamFlag = existing.SpamFlag || spam
			continue
		}
		byKey[contract] = &AssetRecord{
			Kind:            KindNonFungible,
			ChainID:         chainID,
			ContractAddress: contract,
			DisplayName:     orDefault(n.Name, constants.UnknownTokenName),
			Symbol:          constants.UnknownTokenSymbol,
			RawBalance:      count.String(),
			Decimals:        0,
			LogoURL:         LogoOrPlaceholder(n.Image),
			SpamFlag:        spam,
		}
		order = append(order, contract)
	}

	out := make([]AssetRecord, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out, diags
}

// dedupe keeps the first record per (chain, contract).
func dedupe(records []AssetRecord) []AssetRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]AssetRecord, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID()]; dup {
			continue
		}
		seen[r.ID()] = struct{}{}
		out = append(out, r)
	}
	return out
}

func malformed(source, contract, msg string) Diagnostic {
	log.Warn("dropping malformed provider record", "source", source, "contract", contract, "reason", msg)
	return Diagnostic{Source: source, Kind: DiagMalformedProviderRecord, Message: contract + ": " + msg}
}

func normalizeAddress(raw string) (common.Address, bool) {
	a := strings.TrimSpace(raw)
	if a == "" {
		return common.Address{}, false
	}
	if !strings.HasPrefix(a, "0x") && !strings.HasPrefix(a, "0X") {
		a = "0x" + a
	}
	if !common.IsHexAddress(a) {
		return common.Address{}, false
	}
	return common.HexToAddress(a), true
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
