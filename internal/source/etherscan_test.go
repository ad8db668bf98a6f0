package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/AIAleph/chaintrace/fixtures/explorer"
)

type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func mkResp(code int, body []byte) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{"Content-Type": []string{"application/json"}}}
}

func newTestEtherscan(t *testing.T, pageSize int, rt rtFunc) Source {
	t.Helper()
	s, err := NewEtherscan(Config{
		BaseURL:  "http://unit-test/api",
		APIKey:   "k",
		PageSize: pageSize,
		MaxPages: 5,
		Retries:  2,
		Backoff:  1,
		Client:   &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEtherscan_TxList(t *testing.T) {
	var gotQuery string
	s := newTestEtherscan(t, 1000, func(r *http.Request) (*http.Response, error) {
		gotQuery = r.URL.RawQuery
		return mkResp(200, explorer.EtherscanTxList), nil
	})
	out, err := s.Transactions(context.Background(), "0xA000000000000000000000000000000000000001")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 txs, got %d", len(out))
	}
	for _, want := range []string{"module=account", "action=txlist", "apikey=k", "page=1", "offset=1000", "sort=asc",
		"address=0xa000000000000000000000000000000000000001"} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}
	first := out[0]
	if first.Hash != "0xaa11" || first.From != "0xa000000000000000000000000000000000000001" || first.Value != "1000000000000000000" {
		t.Fatalf("unexpected conversion: %+v", first)
	}
	if first.TimeStamp != 1654646411 || first.BlockNumber != 14923692 || first.GasUsed != "21000" || first.GasPrice != "20000000000" {
		t.Fatalf("unexpected metadata: %+v", first)
	}
	if !out[1].IsError || out[0].IsError {
		t.Fatalf("isError mapping wrong: %+v", out)
	}
	// contract creation has no receiver; the builder filters it, the source does not.
	if out[2].To != "" || out[2].Valid() {
		t.Fatalf("contract creation should be invalid: %+v", out[2])
	}
}

func TestEtherscan_NoTransactions(t *testing.T) {
	s := newTestEtherscan(t, 1000, func(r *http.Request) (*http.Response, error) {
		return mkResp(200, explorer.EtherscanEmpty), nil
	})
	out, err := s.Transactions(context.Background(), "0xabc")
	if err != nil || len(out) != 0 {
		t.Fatalf("empty history: out=%v err=%v", out, err)
	}
}

func TestEtherscan_NotOKIsNotRetried(t *testing.T) {
	var calls int32
	s := newTestEtherscan(t, 1000, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return mkResp(200, []byte(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`)), nil
	})
	_, err := s.Transactions(context.Background(), "0xabc")
	if err == nil || !strings.Contains(err.Error(), "Invalid API Key") {
		t.Fatalf("expected NOTOK error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestEtherscan_RateLimitIsRetried(t *testing.T) {
	var calls int32
	s := newTestEtherscan(t, 1000, func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return mkResp(200, []byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)), nil
		}
		return mkResp(200, explorer.EtherscanTxList), nil
	})
	out, err := s.Transactions(context.Background(), "0xabc")
	if err != nil || len(out) != 3 || calls != 2 {
		t.Fatalf("out=%d err=%v calls=%d", len(out), err, calls)
	}
}

func TestEtherscan_HTTPRetries(t *testing.T) {
	cases := []struct {
		name      string
		firstCode int
		wantCalls int32
		wantErr   bool
	}{
		{"5xx retried", 502, 2, false},
		{"429 retried", 429, 2, false},
		{"4xx not retried", 400, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			s := newTestEtherscan(t, 1000, func(r *http.Request) (*http.Response, error) {
				if atomic.AddInt32(&calls, 1) == 1 {
					return mkResp(tc.firstCode, []byte("nope")), nil
				}
				return mkResp(200, explorer.EtherscanTxList), nil
			})
			_, err := s.Transactions(context.Background(), "0xabc")
			if (err != nil) != tc.wantErr || calls != tc.wantCalls {
				t.Fatalf("err=%v calls=%d", err, calls)
			}
		})
	}
}

func TestEtherscan_NetworkErrorExhaustsRetries(t *testing.T) {
	var calls int32
	s := newTestEtherscan(t, 1000, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection reset")
	})
	if _, err := s.Transactions(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestEtherscan_MalformedJSONNotRetried(t *testing.T) {
	var calls int32
	s := newTestEtherscan(t, 1000, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return mkResp(200, []byte("{not json")), nil
	})
	if _, err := s.Transactions(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected decode error")
	}
	if calls != 1 {
		t.Fatalf("decode errors should not be retried, calls=%d", calls)
	}
}

func page(rows ...string) []byte {
	var parts []string
	for _, h := range rows {
		parts = append(parts, fmt.Sprintf(`{"hash":%q,"from":"0xa","to":"0xb","value":"1","timeStamp":"1","blockNumber":"1"}`, h))
	}
	return []byte(`{"status":"1","message":"OK","result":[` + strings.Join(parts, ",") + `]}`)
}

func TestEtherscan_PaginationPartial(t *testing.T) {
	s := newTestEtherscan(t, 2, func(r *http.Request) (*http.Response, error) {
		switch r.URL.Query().Get("page") {
		case "1":
			return mkResp(200, page("0x1", "0x2")), nil
		case "2":
			return mkResp(200, page("0x3", "0x4")), nil
		default:
			return mkResp(400, []byte("bad page")), nil
		}
	})
	out, err := s.Transactions(context.Background(), "0xa")
	if err != nil {
		t.Fatalf("partial history should not error: %v", err)
	}
	if len(out) != 4 || out[3].Hash != "0x4" {
		t.Fatalf("unexpected partial result: %+v", out)
	}
}

func TestEtherscan_PaginationStopsOnShortPage(t *testing.T) {
	var calls int32
	s := newTestEtherscan(t, 2, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("page") == "1" {
			return mkResp(200, page("0x1", "0x2")), nil
		}
		return mkResp(200, page("0x3")), nil
	})
	out, err := s.Transactions(context.Background(), "0xa")
	if err != nil || len(out) != 3 || calls != 2 {
		t.Fatalf("out=%d err=%v calls=%d", len(out), err, calls)
	}
}

func TestEtherscan_ContextCanceled(t *testing.T) {
	s := newTestEtherscan(t, 1000, func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Transactions(ctx, "0xa"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewEtherscanRequiresEndpoint(t *testing.T) {
	if _, err := NewEtherscan(Config{}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
