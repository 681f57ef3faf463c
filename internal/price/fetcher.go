package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	apiKeyHeader   = "x-cg-demo-api-key"
)

// ErrRateLimited is returned when CoinGecko answers 429.
var ErrRateLimited = errors.New("price feed rate limited")

// HTTPError is a non-200 answer from the price feed.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("price feed: HTTP %d", e.Status)
	}
	return fmt.Sprintf("price feed: HTTP %d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	if e.Status == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// gas token of every registry chain
var coinGeckoIDs = map[string]string{
	"ethereum": "ethereum",
	"base":     "ethereum",
	"optimism": "ethereum",
	"arbitrum": "ethereum",
	"zora":     "ethereum",
}

// Supported reports whether chainName has a known price feed.
func Supported(chainName string) bool {
	_, ok := coinGeckoIDs[strings.ToLower(chainName)]
	return ok
}

// Fetcher quotes native gas tokens from CoinGecko's simple/price endpoint.
type Fetcher struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	currency string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithAPIKey sends a CoinGecko demo key with every request.
func WithAPIKey(key string) FetcherOption {
	return func(f *Fetcher) { f.apiKey = strings.TrimSpace(key) }
}

// WithBaseURL points the fetcher at another CoinGecko-compatible API.
func WithBaseURL(u string) FetcherOption {
	return func(f *Fetcher) { f.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// NewFetcher quotes in currency, "usd" when empty.
func NewFetcher(currency string, opts ...FetcherOption) *Fetcher {
	if currency == "" {
		currency = "usd"
	}
	f := &Fetcher{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  defaultBaseURL,
		currency: strings.ToLower(currency),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Currency is the lowercase quote currency.
func (f *Fetcher) Currency() string { return f.currency }

// GetPrice returns the price of chainName's native token.
func (f *Fetcher) GetPrice(ctx context.Context, chainName string) (float64, error) {
	id, ok := coinGeckoIDs[strings.ToLower(chainName)]
	if !ok {
		return 0, fmt.Errorf("no price feed for chain %q", chainName)
	}

	q := url.Values{"ids": {id}, "vs_currencies": {f.currency}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set(apiKeyHeader, f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching %s price: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("reading price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, httpError(resp.StatusCode, body)
	}

	// {"ethereum":{"usd":1234.56}}
	var raw map[string]map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("parsing price response: %w", err)
	}
	p, ok := raw[id][f.currency]
	if !ok {
		return 0, fmt.Errorf("no %s quote for %s", f.currency, id)
	}
	return p, nil
}

// httpError pulls the message out of either of CoinGecko's error shapes.
func httpError(status int, body []byte) *HTTPError {
	var payload struct {
		Error  string `json:"error"`
		Status struct {
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	}
	e := &HTTPError{Status: status}
	if json.Unmarshal(body, &payload) == nil {
		e.Message = payload.Error
		if e.Message == "" {
			e.Message = payload.Status.ErrorMessage
		}
	}
	return e
}
