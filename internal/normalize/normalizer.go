// Package normalize converts explorer payload fields into canonical values:
// lower-case EVM identifiers and base-unit amounts scaled to display units.
// Amounts stay big.Int until the final conversion.
package normalize

import (
	"math/big"
	"strings"
)

// ParseAmount parses a non-negative base-unit amount in decimal or 0x-hex form.
// Empty input parses as zero.
func ParseAmount(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), true
	}
	base := 10
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		s = s[2:]
		base = 16
		if s == "" {
			return new(big.Int), true
		}
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// ToUnits scales a base-unit amount down by 10^decimals.
func ToUnits(raw *big.Int, decimals int) float64 {
	if raw == nil {
		return 0
	}
	if decimals <= 0 {
		f, _ := new(big.Float).SetInt(raw).Float64()
		return f
	}
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	q := new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetInt(den))
	f, _ := q.Float64()
	return f
}

// Units parses s and scales it, reporting false for malformed amounts.
func Units(s string, decimals int) (float64, bool) {
	raw, ok := ParseAmount(s)
	if !ok {
		return 0, false
	}
	return ToUnits(raw, decimals), true
}

// Gwei converts a wei-denominated gas price to gwei. Malformed input yields 0.
func Gwei(wei string) float64 {
	f, _ := Units(wei, 9)
	return f
}

// Identifier trims s and lower-cases it when the chain treats hex as case-insensitive.
func Identifier(s string, caseInsensitive bool) string {
	s = strings.TrimSpace(s)
	if caseInsensitive {
		return strings.ToLower(s)
	}
	return s
}
