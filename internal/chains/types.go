package chains

import "strings"

type AllChainsConfig struct {
	Networks map[string]NetworkConfig `json:"networks" yaml:"networks" mapstructure:"networks"`
}

// NetworkConfig describes a network, its indexer endpoints and its RPC endpoints.
type NetworkConfig struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	DisplayName string `json:"displayName" yaml:"displayName" mapstructure:"displayName"`
	ChainID     uint64 `json:"chainId" yaml:"chainId" mapstructure:"chainId"`
	ChainIDHex  string `json:"chainIdHex" yaml:"chainIdHex" mapstructure:"chainIdHex"`
	Explorer    string `json:"explorer" yaml:"explorer" mapstructure:"explorer"`

	// AlchemySlug is the network part of the Alchemy host, e.g. "base-sepolia".
	AlchemySlug string `json:"alchemySlug" yaml:"alchemySlug" mapstructure:"alchemySlug"`
	IndexerURL  string `json:"indexerUrl" yaml:"indexerUrl" mapstructure:"indexerUrl"`
	NFTURL      string `json:"nftUrl" yaml:"nftUrl" mapstructure:"nftUrl"`

	RPCs []RPC `json:"rpcs" yaml:"rpcs" mapstructure:"rpcs"`
}

type RPC struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`
	URL  string `json:"url" yaml:"url" mapstructure:"url"`
}

// Endpoint is the indexer location for one chain.
type Endpoint struct {
	ChainID uint64
	RPCURL  string
	NFTURL  string
}

// Normalize lowercases network keys and fills names from the map key.
func (mc *AllChainsConfig) Normalize() {
	if mc == nil {
		return
	}
	normalized := make(map[string]NetworkConfig, len(mc.Networks))
	for name, n := range mc.Networks {
		key := strings.ToLower(strings.TrimSpace(name))
		n.Name = key
		if strings.TrimSpace(n.DisplayName) == "" {
			n.DisplayName = key
		}
		normalized[key] = n
	}
	mc.Networks = normalized
}

// InjectAlchemyKey derives indexer URLs for every network that names an Alchemy slug
// and does not already carry explicit URLs.
func (mc *AllChainsConfig) InjectAlchemyKey(key string) {
	key = strings.TrimSpace(key)
	if mc == nil || key == "" {
		return
	}
	for name, n := range mc.Networks {
		slug := strings.TrimSpace(n.AlchemySlug)
		if slug == "" {
			continue
		}
		if strings.TrimSpace(n.IndexerURL) == "" {
			n.IndexerURL = "https://" + slug + ".g.alchemy.com/v2/" + key
		}
		if strings.TrimSpace(n.NFTURL) == "" {
			n.NFTURL = "https://" + slug + ".g.alchemy.com/nft/v2/" + key
		}
		if len(n.RPCs) == 0 {
			n.RPCs = []RPC{{Name: "alchemy", URL: "https://" + slug + ".g.alchemy.com/v2/" + key}}
		}
		mc.Networks[name] = n
	}
}
