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

// DefaultTronContract is the TRC-20 USDT contract; TronGrid filters transfers to it.
const DefaultTronContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

type tronPage struct {
	Data    []tronTx `json:"data"`
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Meta    struct {
		Fingerprint string `json:"fingerprint"`
		PageSize    int    `json:"page_size"`
	} `json:"meta"`
}

type tronTx struct {
	TransactionID  string `json:"transaction_id"`
	BlockTimestamp int64  `json:"block_timestamp"`
	From           string `json:"from"`
	To             string `json:"to"`
	Type           string `json:"type"`
	Value          string `json:"value"`
	TokenInfo      struct {
		Symbol   string `json:"symbol"`
		Address  string `json:"address"`
		Decimals int    `json:"decimals"`
	} `json:"token_info"`
}

// trongrid lists TRC-20 transfers through /v1/accounts/{address}/transactions/trc20.
type trongrid struct {
	base     string
	contract string
	label    string
	pageSize int
	maxPages int
	c        *client
}

// NewTronGrid builds a Source for the TronGrid v1 API.
func NewTronGrid(cfg Config) (Source, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("empty trongrid endpoint")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("trongrid endpoint: %w", err)
	}
	cfg = cfg.withDefaults()
	if cfg.PageSize > 200 {
		// TronGrid caps limit at 200.
		cfg.PageSize = 200
	}
	c := newClient(cfg.Client, cfg.Limiter, cfg.Retries, cfg.Backoff)
	if cfg.APIKey != "" {
		c.header.Set("TRON-PRO-API-KEY", cfg.APIKey)
	}
	return &trongrid{
		base:     base,
		contract: cfg.Contract,
		label:    deriveLabel(base),
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		c:        c,
	}, nil
}

func (t *trongrid) pageURL(address, fingerprint string) string {
	q := url.Values{}
	q.Set("only_confirmed", "true")
	q.Set("limit", strconv.Itoa(t.pageSize))
	if t.contract != "" {
		q.Set("contract_address", t.contract)
	}
	if fingerprint != "" {
		q.Set("fingerprint", fingerprint)
	}
	return t.base + "/v1/accounts/" + url.PathEscape(address) + "/transactions/trc20?" + q.Encode()
}

func decodeTronPage(b []byte) (tronPage, error) {
	var p tronPage
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode page: %w", err)
	}
	if !p.Success {
		msg := p.Error
		if msg == "" {
			msg = "success=false"
		}
		return p, fmt.Errorf("trongrid: %s", msg)
	}
	return p, nil
}

func convertTron(r tronTx) Transaction {
	return Transaction{
		Hash:      normalize.Identifier(r.TransactionID, false),
		From:      normalize.Identifier(r.From, false),
		To:        normalize.Identifier(r.To, false),
		Value:     strings.TrimSpace(r.Value),
		TimeStamp: r.BlockTimestamp / 1000,
		Token:     r.TokenInfo.Symbol,
	}
}

// Transactions follows meta.fingerprint until the history is exhausted or
// MaxPages is reached.
func (t *trongrid) Transactions(ctx context.Context, address string) (result []Transaction, err error) {
	address = normalize.Identifier(address, false)
	start := time.Now()
	pages := 0
	var partialErr error
	defer func() {
		fields := []any{
			"provider", t.label,
			"address", address,
			"pages", pages,
			"tx_returned", len(result),
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		logger := logging.Component("source.trongrid")
		switch {
		case err != nil:
			logger.Warn("trc20_failed", append(fields, "error", err.Error())...)
		case partialErr != nil:
			logger.Warn("trc20_partial", append(fields, "error", partialErr.Error())...)
		default:
			logger.Debug("trc20", fields...)
		}
	}()

	fingerprint := ""
	for pages < t.maxPages {
		var page tronPage
		callErr := t.c.get(ctx, t.pageURL(address, fingerprint), func(b []byte) error {
			var decErr error
			page, decErr = decodeTronPage(b)
			return decErr
		})
		if callErr != nil {
			if len(result) == 0 {
				return nil, callErr
			}
			partialErr = errors.Join(partialErr, fmt.Errorf("page %d: %w", pages+1, callErr))
			break
		}
		pages++
		for _, r := range page.Data {
			result = append(result, convertTron(r))
		}
		if page.Meta.Fingerprint == "" || page.Meta.Fingerprint == fingerprint || len(page.Data) == 0 {
			break
		}
		fingerprint = page.Meta.Fingerprint
	}
	return result, nil
}
