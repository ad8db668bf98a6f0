package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AIAleph/chaintrace/internal/chain"
	"github.com/AIAleph/chaintrace/internal/config"
)

func TestNewUnsupportedChain(t *testing.T) {
	if _, err := New(chain.Unknown, Config{BaseURL: "http://x"}); !errors.Is(err, chain.ErrUnsupportedChain) {
		t.Fatalf("expected ErrUnsupportedChain, got %v", err)
	}
}

func TestNewPerChain(t *testing.T) {
	eth, err := New(chain.ETH, Config{BaseURL: "http://x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := eth.(*etherscan); !ok {
		t.Fatalf("eth source is %T", eth)
	}
	tron, err := New(chain.TRON, Config{BaseURL: "http://y"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tron.(*trongrid); !ok {
		t.Fatalf("tron source is %T", tron)
	}
}

func TestConfigFor(t *testing.T) {
	cfg := config.Config{
		EtherscanURL: "https://e", EtherscanAPIKey: "ek",
		TronGridURL: "https://t", TronGridAPIKey: "tk", TronContract: "TC",
		PageSize: 50, MaxPages: 3, HTTPRetries: 4, HTTPBackoffBase: time.Second,
		FetchTimeout: 7 * time.Second,
	}
	e := ConfigFor(chain.ETH, cfg)
	if e.BaseURL != "https://e" || e.APIKey != "ek" || e.Contract != "" || e.PageSize != 50 || e.Retries != 4 {
		t.Fatalf("eth config: %+v", e)
	}
	if e.Client == nil || e.Client.Timeout != 7*time.Second || e.Limiter == nil {
		t.Fatalf("eth config transport: %+v", e)
	}
	tr := ConfigFor(chain.TRON, cfg)
	if tr.BaseURL != "https://t" || tr.APIKey != "tk" || tr.Contract != "TC" {
		t.Fatalf("tron config: %+v", tr)
	}
}

func TestFetchErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	fe := &FetchError{Address: "0xa", Chain: chain.ETH, Err: base}
	if !errors.Is(fe, base) {
		t.Fatal("FetchError should unwrap")
	}
	if fe.Error() != "fetch eth transactions for 0xa: boom" {
		t.Fatalf("unexpected message %q", fe.Error())
	}
}

func TestSourceFunc(t *testing.T) {
	f := SourceFunc(func(ctx context.Context, a string) ([]Transaction, error) {
		return []Transaction{{Hash: "h", From: a, To: "b"}}, nil
	})
	out, err := f.Transactions(context.Background(), "a")
	if err != nil || len(out) != 1 || !out[0].Valid() {
		t.Fatalf("out=%v err=%v", out, err)
	}
}

func TestDeriveLabel(t *testing.T) {
	if got := deriveLabel("https://user:pw@api.etherscan.io/api"); got != "api.etherscan.io" {
		t.Fatalf("label=%q", got)
	}
	if got := deriveLabel(""); got != "" {
		t.Fatalf("empty label=%q", got)
	}
}
