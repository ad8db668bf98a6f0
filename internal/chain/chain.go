package chain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedChain is returned for any selector outside the supported set.
// Callers must treat it as fatal and abort before any network activity.
var ErrUnsupportedChain = errors.New("unsupported chain")

// Chain is the closed set of chains the tracer can fetch history for.
type Chain int

const (
	Unknown Chain = iota
	ETH
	TRON
)

type info struct {
	selector string
	symbol   string
	decimals int
}

var registry = map[Chain]info{
	ETH:  {selector: "eth", symbol: "ETH", decimals: 18},
	TRON: {selector: "tron", symbol: "USDT", decimals: 6},
}

// aliases accepted by Parse in addition to the canonical selector.
var aliases = map[string]Chain{
	"eth":      ETH,
	"ethereum": ETH,
	"tron":     TRON,
	"trx":      TRON,
}

// Parse maps a user-supplied selector to a Chain.
func Parse(s string) (Chain, error) {
	if c, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnsupportedChain, s)
}

// Supported lists canonical selectors in a stable order.
func Supported() []string {
	return []string{ETH.String(), TRON.String()}
}

// Validate reports ErrUnsupportedChain for values not in the registry.
func (c Chain) Validate() error {
	if _, ok := registry[c]; !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedChain, int(c))
	}
	return nil
}

func (c Chain) String() string {
	if i, ok := registry[c]; ok {
		return i.selector
	}
	return "unknown"
}

// Symbol is the display unit used in reports.
func (c Chain) Symbol() string { return registry[c].symbol }

// Decimals is the number of base units per display unit exponent
// (18 for wei -> ether, 6 for TRC-20 USDT).
func (c Chain) Decimals() int { return registry[c].decimals }

// IsEVM reports whether addresses and hashes are case-insensitive hex.
func (c Chain) IsEVM() bool { return c == ETH }
