package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBodyBytes = 32 << 20

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// statusError is a non-2xx explorer response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("http %d: %s", e.code, e.body) }

// retryableError marks API-level failures (e.g. explorer throttling inside a
// 200 response) that deserve another attempt.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// decodeError is a well-formed HTTP exchange whose payload was rejected.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isRetriable(err error) bool {
	var de *decodeError
	if errors.As(err, &de) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Network/transport errors are retriable by default
	return true
}

// client performs rate-limited GETs with exponential backoff on 429/5xx,
// network failures and retryableError results from decode.
type client struct {
	hc          httpDoer
	limiter     Limiter
	header      http.Header
	maxRetries  int
	backoffBase time.Duration
}

func newClient(hc *http.Client, limiter Limiter, retries int, backoff time.Duration) *client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if limiter == nil {
		limiter = unlimited{}
	}
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &client{hc: hc, limiter: limiter, header: http.Header{}, maxRetries: retries, backoffBase: backoff}
}

// get fetches u and hands the body to decode. decode may return a
// retryableError to request another attempt.
func (c *client) get(ctx context.Context, u string, decode func([]byte) error) error {
	var lastErr error
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = c.once(ctx, u, decode)
		if lastErr == nil {
			return nil
		}
		if !isRetriable(lastErr) {
			return lastErr
		}
		// Backoff before next attempt
		if attempt < attempts-1 {
			d := c.backoffBase * (1 << attempt)
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return lastErr
}

func (c *client) once(ctx context.Context, u string, decode func([]byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return &statusError{code: resp.StatusCode, body: string(b)}
	}
	if err := decode(b); err != nil {
		var re *retryableError
		if errors.As(err, &re) {
			return err
		}
		return &decodeError{err: err}
	}
	return nil
}
