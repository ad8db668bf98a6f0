// Package classify guesses which chain an address string belongs to. Prefix
// rules give a label; where a real decoder exists the label is confirmed
// with a checksum.
package classify

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/crypto/sha3"

	"github.com/AIAleph/chaintrace/internal/chain"
)

// Methods reported in Result.Method.
const (
	MethodChecksum = "checksum" // decoded and checksum verified
	MethodFormat   = "format"   // structurally valid, no checksum to verify
	MethodPattern  = "pattern"  // prefix match only
	MethodNone     = "none"
)

// UnknownLabel is reported when no rule matches.
const UnknownLabel = "Unknown Address Type"

// tronVersion is the Base58Check version byte of TRON mainnet addresses.
const tronVersion = 0x41

// Result is the classification of one address.
type Result struct {
	Address string `json:"address" yaml:"address"`
	Label   string `json:"label" yaml:"label"`
	Symbol  string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Method  string `json:"method" yaml:"method"`
	Valid   bool   `json:"valid" yaml:"valid"`
}

// Chain maps the result to a traceable chain, when one exists.
func (r Result) Chain() (chain.Chain, bool) {
	switch r.Symbol {
	case "ETH":
		return chain.ETH, true
	case "TRX":
		return chain.TRON, true
	}
	return chain.Unknown, false
}

func (r Result) String() string {
	if r.Method == MethodNone {
		return r.Label
	}
	return r.Label + " (" + r.Method + ")"
}

// Classifier labels a single address.
type Classifier interface {
	Classify(address string) Result
}

// Validator confirms a pattern match. It returns the method used and
// whether the address decoded.
type Validator func(address string) (string, bool)

// Rule labels addresses matching Pattern. A nil Check leaves the match
// unverified.
type Rule struct {
	Label   string
	Symbol  string
	Pattern *regexp.Regexp
	Check   Validator
}

// Rules is an ordered rule table; the first matching pattern wins.
type Rules []Rule

// Default is the built-in rule table.
var Default = Rules{
	{"Ethereum (ETH)", "ETH", regexp.MustCompile(`^0x`), validateEVM},
	{"Bitcoin (BTC)", "BTC", regexp.MustCompile(`^1|^3|^bc1`), validateBitcoin},
	{"Bitcoin Cash (BCH)", "BCH", regexp.MustCompile(`^bitcoincash:q`), nil},
	{"Cardano (ADA)", "ADA", regexp.MustCompile(`^addr`), nil},
	{"Cosmos (ATOM)", "ATOM", regexp.MustCompile(`^cosmos`), nil},
	{"Dash (DASH)", "DASH", regexp.MustCompile(`^X`), nil},
	{"Dogecoin (DOGE)", "DOGE", regexp.MustCompile(`^D`), nil},
	{"Litecoin (LTC)", "LTC", regexp.MustCompile(`^M|^L`), nil},
	{"Ripple (XRP)", "XRP", regexp.MustCompile(`^r`), nil},
	{"Stellar (XLM)", "XLM", regexp.MustCompile(`^G`), nil},
	{"Tezos (XTZ)", "XTZ", regexp.MustCompile(`^tz`), nil},
	{"Tron (TRX)", "TRX", regexp.MustCompile(`^T`), validateTron},
}

// Classify applies the rules in order.
func (rs Rules) Classify(address string) Result {
	address = strings.TrimSpace(address)
	for _, r := range rs {
		if !r.Pattern.MatchString(address) {
			continue
		}
		res := Result{Address: address, Label: r.Label, Symbol: r.Symbol, Method: MethodPattern}
		if r.Check != nil {
			if method, ok := r.Check(address); ok {
				res.Method = method
				res.Valid = true
			}
		}
		return res
	}
	return Result{Address: address, Label: UnknownLabel, Method: MethodNone}
}

// Classify labels address with the Default rules.
func Classify(address string) Result { return Default.Classify(address) }

// ClassifyList labels every comma-separated address in list, skipping blanks.
func ClassifyList(c Classifier, list string) []Result {
	var out []Result
	for _, a := range strings.Split(list, ",") {
		if a = strings.TrimSpace(a); a == "" {
			continue
		}
		out = append(out, c.Classify(a))
	}
	return out
}

func validateEVM(address string) (string, bool) {
	body := address[2:]
	if len(body) != 40 {
		return "", false
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", false
	}
	lower := strings.ToLower(body)
	if body == lower || body == strings.ToUpper(body) {
		return MethodFormat, true
	}
	return MethodChecksum, body == checksumHex(lower)
}

// checksumHex applies EIP-55 mixed-case encoding to a lower-case hex body.
func checksumHex(lower string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := h.Sum(nil)
	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

// ChecksumAddress returns the EIP-55 form of a 0x-prefixed hex address.
func ChecksumAddress(address string) string {
	if len(address) < 2 {
		return address
	}
	return "0x" + checksumHex(strings.ToLower(address[2:]))
}

func validateBitcoin(address string) (string, bool) {
	a, err := btcutil.DecodeAddress(address, &chaincfg.MainNetParams)
	if err != nil || !a.IsForNet(&chaincfg.MainNetParams) {
		return "", false
	}
	return MethodChecksum, true
}

func validateTron(address string) (string, bool) {
	payload, version, err := base58.CheckDecode(address)
	if err != nil || version != tronVersion || len(payload) != 20 {
		return "", false
	}
	return MethodChecksum, true
}
