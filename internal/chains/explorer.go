package chains

import "strings"

// built-in explorers, used when a network has none configured
var explorerDefaults = map[uint64]string{
	1:        "https://etherscan.io",
	11155111: "https://sepolia.etherscan.io",
	84532:    "https://base-sepolia.blockscout.com",
	8453:     "https://basescan.org",
	10:       "https://optimistic.etherscan.io",
	42161:    "https://arbiscan.io",
	137:      "https://polygonscan.com",
}

const defaultExplorer = "https://etherscan.io"

// ExplorerBase returns the explorer for chainID, falling back to etherscan.
func (r *Registry) ExplorerBase(chainID uint64) string {
	if n, ok := r.byID(chainID); ok {
		if e := strings.TrimRight(strings.TrimSpace(n.Explorer), "/"); e != "" {
			return e
		}
	}
	if e, ok := explorerDefaults[chainID]; ok {
		return e
	}
	return defaultExplorer
}

func (r *Registry) TxURL(chainID uint64, txHash string) string {
	return r.ExplorerBase(chainID) + "/tx/" + strings.TrimSpace(txHash)
}

func (r *Registry) AddressURL(chainID uint64, address string) string {
	return r.ExplorerBase(chainID) + "/address/" + strings.TrimSpace(address)
}
