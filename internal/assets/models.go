package assets

import (
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindFungible    Kind = "fungible"
	KindNonFungible Kind = "nft"
)

// AssetRecord is one holding as shown to the user.
// ContractAddress is lowercase 0x hex; RawBalance is a base-10 integer in the smallest unit.
type AssetRecord struct {
	Kind            Kind   `json:"kind"`
	ChainID         uint64 `json:"chainId"`
	ContractAddress string `json:"contractAddress"`
	DisplayName     string `json:"displayName"`
	Symbol          string `json:"symbol"`
	RawBalance      string `json:"rawBalance"`
	Decimals        uint8  `json:"decimals"`
	LogoURL         string `json:"logoUrl"`
	SpamFlag        bool   `json:"spamFlag"`
}

// ID is the selection key of the record.
func (r AssetRecord) ID() string {
	return Key(r.ChainID, r.ContractAddress)
}

func Key(chainID uint64, contract string) string {
	return strconv.FormatUint(chainID, 10) + ":" + contract
}

// Raw returns RawBalance as an integer; zero when it does not parse.
func (r AssetRecord) Raw() *big.Int {
	v, ok := new(big.Int).SetString(r.RawBalance, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// Balance is the exact display value raw / 10^decimals. Never send it on-chain.
func (r AssetRecord) Balance() decimal.Decimal {
	return NormalizeBalance(r.Raw(), r.Decimals)
}

func (r AssetRecord) FormattedBalance(maxFrac int) string {
	return FormatBalance(r.Raw(), r.Decimals, maxFrac)
}

// Diagnostic explains why part of a fetch produced nothing.
type Diagnostic struct {
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	DiagProviderFetchFailed     = "ProviderFetchFailed"
	DiagMalformedProviderRecord = "MalformedProviderRecord"
	DiagMetadataUnavailable     = "MetadataUnavailable"
)

type Result struct {
	Assets      []AssetRecord `json:"assets"`
	Unsupported bool          `json:"unsupported"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
}
