// Package binance adapts the Binance spot API to the engine's ports:
// historical candles and instrument metadata over REST, live prices over
// the combined-stream websocket, and order submission with the typed
// outcome classification the execution engine depends on.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRESTBase = "https://api.binance.com"

	// Rate limits at 60% of the documented weight budget (6000/min).
	marketRatePerSec = 20
	orderRatePerSec  = 8

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	recvWindowMs = 5000
)

// Client is the Binance REST client with rate limiting, request signing
// and bounded retries for idempotent market-data calls. Order endpoints
// are never retried here; the execution engine owns that decision.
type Client struct {
	http          *http.Client
	base          string
	apiKey        string
	apiSecret     string
	marketLimiter *rate.Limiter
	orderLimiter  *rate.Limiter
}

// NewClient creates a Client. An empty base falls back to production;
// keys may be empty for market-data-only use.
func NewClient(base, apiKey, apiSecret string) *Client {
	if base == "" {
		base = defaultRESTBase
	}
	return &Client{
		http:          &http.Client{Timeout: 10 * time.Second},
		base:          base,
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		marketLimiter: rate.NewLimiter(marketRatePerSec, 10),
		orderLimiter:  rate.NewLimiter(orderRatePerSec, 4),
	}
}

// apiError is a Binance error payload ({"code":-1013,"msg":"..."}).
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e apiError) Error() string {
	return fmt.Sprintf("binance: api error %d: %s", e.Code, e.Msg)
}

// statusError wraps a non-2xx response so callers can classify it.
type statusError struct {
	status int
	api    apiError
}

func (e statusError) Error() string {
	if e.api.Code != 0 {
		return fmt.Sprintf("binance: status %d: %s", e.status, e.api.Error())
	}
	return fmt.Sprintf("binance: status %d", e.status)
}

// get does a public GET with rate limiting and retries.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.marketLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		err := c.do(ctx, http.MethodGet, path, params, false, out)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == maxRetries {
			return err
		}
		slog.Warn("binance: retrying request", "path", path, "attempt", attempt+1, "err", err)
		c.sleep(ctx, attempt)
	}
	return fmt.Errorf("binance: exhausted %d retries on %s", maxRetries, path)
}

// signedOnce does a single authenticated request with no retry. Order
// placement goes through here: a lost response must surface as an error
// for ghost verification, never be silently resubmitted.
func (c *Client) signedOnce(ctx context.Context, method, path string, params url.Values, out any) error {
	if err := c.orderLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return c.do(ctx, method, path, params, true, out)
}

// signedGet does an authenticated GET with retries (safe: read-only).
func (c *Client) signedGet(ctx context.Context, path string, params url.Values, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.marketLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		err := c.do(ctx, http.MethodGet, path, params, true, out)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == maxRetries {
			return err
		}
		c.sleep(ctx, attempt)
	}
	return fmt.Errorf("binance: exhausted %d retries on %s", maxRetries, path)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.Itoa(recvWindowMs))
		params.Set("signature", c.sign(params.Encode()))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		return statusError{status: resp.StatusCode, api: apiErr}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sign computes the HMAC-SHA256 signature over the query string.
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// retryable reports whether an error is safe to retry: network failures
// and server-side statuses, not client errors.
func retryable(err error) bool {
	var se statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	// Anything that never produced a status is a transport failure.
	return true
}

// sleep waits with exponential backoff, respecting the context.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
