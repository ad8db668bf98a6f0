package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/AIAleph/chaintrace/internal/chain"
)

// Source fetches the transaction history of one address on one chain.
// Implementations page internally and return records unfiltered; the graph
// builder decides which records are usable.
type Source interface {
	Transactions(ctx context.Context, address string) ([]Transaction, error)
}

// Transaction is one explorer record. Value, GasUsed and GasPrice are decimal
// base-unit strings as the explorer returns them; keep them as strings and
// decode to big.Int downstream.
type Transaction struct {
	Hash        string
	From        string
	To          string
	Value       string
	GasUsed     string
	GasPrice    string
	TimeStamp   int64 // unix seconds
	BlockNumber uint64
	IsError     bool
	Input       string
	Token       string // token symbol for token transfers, empty for native
}

// Valid reports whether the record carries the fields the graph requires.
func (t Transaction) Valid() bool {
	return t.Hash != "" && t.From != "" && t.To != ""
}

// FetchError marks a failed history fetch for one address. It is recoverable:
// the branch rooted at Address is pruned and the build continues.
type FetchError struct {
	Address string
	Chain   chain.Chain
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s transactions for %s: %v", e.Chain, e.Address, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, address string) ([]Transaction, error)

func (f SourceFunc) Transactions(ctx context.Context, address string) ([]Transaction, error) {
	return f(ctx, address)
}

func deriveLabel(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if u, err := url.Parse(endpoint); err == nil {
		u.User = nil
		if u.Host != "" {
			return u.Host
		}
		if u.Scheme == "" {
			return endpoint
		}
		return u.String()
	}
	return endpoint
}
