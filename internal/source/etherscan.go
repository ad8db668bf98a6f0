package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AIAleph/chaintrace/internal/logging"
	"github.com/AIAleph/chaintrace/internal/normalize"
)

type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanTx struct {
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	GasPrice    string `json:"gasPrice"`
	GasUsed     string `json:"gasUsed"`
	IsError     string `json:"isError"`
	Input       string `json:"input"`
}

// etherscan lists external transactions through the account/txlist endpoint.
type etherscan struct {
	base     string
	apiKey   string
	label    string
	pageSize int
	maxPages int
	c        *client
}

// NewEtherscan builds a Source for Etherscan-compatible explorers.
func NewEtherscan(cfg Config) (Source, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("empty etherscan endpoint")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("etherscan endpoint: %w", err)
	}
	cfg = cfg.withDefaults()
	return &etherscan{
		base:     base,
		apiKey:   cfg.APIKey,
		label:    deriveLabel(base),
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		c:        newClient(cfg.Client, cfg.Limiter, cfg.Retries, cfg.Backoff),
	}, nil
}

func (e *etherscan) pageURL(address string, page int) string {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", strconv.Itoa(page))
	q.Set("offset", strconv.Itoa(e.pageSize))
	q.Set("sort", "asc")
	if e.apiKey != "" {
		q.Set("apikey", e.apiKey)
	}
	sep := "?"
	if strings.Contains(e.base, "?") {
		sep = "&"
	}
	return e.base + sep + q.Encode()
}

// decodeEtherscanPage converts one envelope. "No transactions found" is an empty page;
// throttling responses are retried.
func decodeEtherscanPage(b []byte) ([]etherscanTx, error) {
	var env etherscanEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Status == "1" {
		var rows []etherscanTx
		if err := json.Unmarshal(env.Result, &rows); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		return rows, nil
	}
	if strings.HasPrefix(strings.ToLower(env.Message), "no transactions found") {
		return nil, nil
	}
	var detail string
	_ = json.Unmarshal(env.Result, &detail)
	err := fmt.Errorf("etherscan status %q: %s %s", env.Status, env.Message, detail)
	if strings.Contains(strings.ToLower(detail), "rate limit") {
		return nil, &retryableError{err: err}
	}
	return nil, err
}

func convertEtherscan(r etherscanTx) Transaction {
	ts, _ := strconv.ParseInt(strings.TrimSpace(r.TimeStamp), 10, 64)
	blk, _ := strconv.ParseUint(strings.TrimSpace(r.BlockNumber), 10, 64)
	return Transaction{
		Hash:        normalize.Identifier(r.Hash, true),
		From:        normalize.Identifier(r.From, true),
		To:          normalize.Identifier(r.To, true),
		Value:       strings.TrimSpace(r.Value),
		GasUsed:     strings.TrimSpace(r.GasUsed),
		GasPrice:    strings.TrimSpace(r.GasPrice),
		TimeStamp:   ts,
		BlockNumber: blk,
		IsError:     r.IsError == "1",
		Input:       r.Input,
	}
}

// Transactions pages through txlist until a short page or MaxPages. A failure
// after at least one page returns the partial history and logs a warning.
func (e *etherscan) Transactions(ctx context.Context, address string) (result []Transaction, err error) {
	address = normalize.Identifier(address, true)
	start := time.Now()
	pages := 0
	var partialErr error
	defer func() {
		fields := []any{
			"provider", e.label,
			"address", address,
			"pages", pages,
			"tx_returned", len(result),
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		logger := logging.Component("source.etherscan")
		switch {
		case err != nil:
			logger.Warn("txlist_failed", append(fields, "error", err.Error())...)
		case partialErr != nil:
			logger.Warn("txlist_partial", append(fields, "error", partialErr.Error())...)
		default:
			logger.Debug("txlist", fields...)
		}
	}()

	for page := 1; page <= e.maxPages; page++ {
		var rows []etherscanTx
		callErr := e.c.get(ctx, e.pageURL(address, page), func(b []byte) error {
			var decErr error
			rows, decErr = decodeEtherscanPage(b)
			return decErr
		})
		if callErr != nil {
			if len(result) == 0 {
				return nil, callErr
			}
			partialErr = errors.Join(partialErr, fmt.Errorf("page %d: %w", page, callErr))
			break
		}
		pages++
		for _, r := range rows {
			result = append(result, convertEtherscan(r))
		}
		if len(rows) < e.pageSize {
			break
		}
	}
	return result, nil
}
