package chains

import (
	"math/big"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	utilsEth "github.com/quantumauth-io/quantum-go-utils/ethrpc"
)

var ErrUnsupportedChain = errors.New("unsupported chain")

// Registry is the static chain id -> network lookup built from config.
// It is read-only after construction.
type Registry struct {
	networks map[uint64]NetworkConfig
}

func NewRegistry(cfg *AllChainsConfig) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("chains config is nil")
	}

	r := &Registry{networks: make(map[uint64]NetworkConfig, len(cfg.Networks))}
	for name, n := range cfg.Networks {
		if n.ChainID == 0 {
			return nil, errors.Newf("network %q has no chainId", name)
		}
		if _, dup := r.networks[n.ChainID]; dup {
			return nil, errors.Newf("chainId %d configured twice", n.ChainID)
		}
		if strings.TrimSpace(n.ChainIDHex) == "" {
			n.ChainIDHex = utilsEth.BigToHexQuantity(new(big.Int).SetUint64(n.ChainID))
		}
		if strings.TrimSpace(n.Name) == "" {
			n.Name = name
		}
		r.networks[n.ChainID] = n
	}
	return r, nil
}

func (r *Registry) byID(chainID uint64) (NetworkConfig, bool) {
	if r == nil {
		return NetworkConfig{}, false
	}
	n, ok := r.networks[chainID]
	return n, ok
}

// Supports reports whether an indexer endpoint is registered for chainID.
func (r *Registry) Supports(chainID uint64) bool {
	_, ok := r.IndexerEndpoint(chainID)
	return ok
}

func (r *Registry) IndexerEndpoint(chainID uint64) (Endpoint, bool) {
	n, ok := r.byID(chainID)
	if !ok || strings.TrimSpace(n.IndexerURL) == "" {
		return Endpoint{}, false
	}
	return Endpoint{
		ChainID: chainID,
		RPCURL:  strings.TrimSpace(n.IndexerURL),
		NFTURL:  strings.TrimRight(strings.TrimSpace(n.NFTURL), "/"),
	}, true
}

// NetworkName returns a human readable name, or the decimal chain id when unknown.
func (r *Registry) NetworkName(chainID uint64) string {
	if n, ok := r.byID(chainID); ok {
		if n.DisplayName != "" {
			return n.DisplayName
		}
		return n.Name
	}
	return new(big.Int).SetUint64(chainID).String()
}

func (r *Registry) Network(chainID uint64) (NetworkConfig, error) {
	n, ok := r.byID(chainID)
	if !ok {
		return NetworkConfig{}, errors.Wrapf(ErrUnsupportedChain, "chainId %d", chainID)
	}
	return n, nil
}

// ChainIDFromHex resolves a 0x-prefixed chain id (as wallets report it).
func (r *Registry) ChainIDFromHex(chainIDHex string) (uint64, error) {
	want := strings.ToLower(utilsEth.NormalizeHex0x(strings.TrimSpace(chainIDHex)))
	for id, n := range r.networks {
		if strings.ToLower(utilsEth.NormalizeHex0x(n.ChainIDHex)) == want {
			return id, nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedChain, "chainIdHex %q", chainIDHex)
}

// Networks lists configured networks ordered by chain id.
func (r *Registry) Networks() []NetworkConfig {
	out := make([]NetworkConfig, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
