package assets

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeBalance returns raw / 10^decimals without rounding.
func NormalizeBalance(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FormatBalance renders raw / 10^decimals cut (not rounded) to maxFrac
// fractional digits, with trailing zeros dropped.
func FormatBalance(amount *big.Int, decimals uint8, maxFrac int) string {
	if maxFrac < 0 {
		maxFrac = 0
	}
	return NormalizeBalance(amount, decimals).Truncate(int32(maxFrac)).String()
}

// parseRawBalance accepts base-10 or 0x-hex non-negative integers.
func parseRawBalance(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
		if s == "" {
			return nil, false
		}
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
