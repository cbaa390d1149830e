package clob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	baseURL = "https://clob.polymarket.com"

	headerAPIKey     = "POLY-API-KEY"
	headerSignature  = "POLY-SIGNATURE"
	headerTimestamp  = "POLY-TIMESTAMP"
	headerPassphrase = "POLY-PASSPHRASE"

	defaultTimeout = 5 * time.Second
	warmupInterval = 60 * time.Second

	// Rate budgets below the documented API limits:
	// price endpoints 500 req/10s, order posting 3500 req/10s burst.
	dataRatePerSec  = 40
	orderRatePerSec = 100
)

// Credentials are the L2 API credentials used on order endpoints.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Empty reports whether no credentials are set.
func (c Credentials) Empty() bool {
	return c.APIKey == "" && c.Secret == "" && c.Passphrase == ""
}

// Client is the CLOB REST client: midpoint price lookups (single and
// batched), order books, and authenticated order submission.
type Client struct {
	creds       Credentials
	httpClient  *http.Client
	baseURL     string
	dataLimiter *rate.Limiter
	postLimiter *rate.Limiter

	warmupMu   sync.Mutex
	lastWarmup time.Time
}

// NewClient creates a CLOB client. Credentials may be empty for
// price-only use; order submission then fails with ErrNoCredentials.
func NewClient(creds Credentials) *Client {
	return &Client{
		creds:       creds,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     baseURL,
		dataLimiter: rate.NewLimiter(dataRatePerSec, 10),
		postLimiter: rate.NewLimiter(orderRatePerSec, 20),
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// WithHTTPClient sets a custom HTTP client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// Midpoint fetches the midpoint price for one token.
func (c *Client) Midpoint(ctx context.Context, tokenID string) (float64, error) {
	var out struct {
		Mid string `json:"mid"`
	}
	path := "/midpoint?token_id=" + tokenID
	if err := c.getJSON(ctx, path, &out); err != nil {
		return 0, err
	}
	mid, err := strconv.ParseFloat(out.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed midpoint %q: %w", out.Mid, err)
	}
	if mid < 0 || mid > 1 {
		return 0, fmt.Errorf("midpoint %v out of range", mid)
	}
	return mid, nil
}

// midpointParam is one entry of the batched midpoint request body.
type midpointParam struct {
	TokenID string `json:"token_id"`
}

// Midpoints fetches midpoints for several tokens in one request.
// Tokens with no midpoint, or with an out-of-range value, are omitted
// from the result rather than reported as an error.
func (c *Client) Midpoints(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	if len(tokenIDs) == 0 {
		return map[string]float64{}, nil
	}

	params := make([]midpointParam, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		params = append(params, midpointParam{TokenID: id})
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal midpoints request: %w", err)
	}

	if err := c.dataLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/midpoints", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("midpoints request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode midpoints response: %w", err)
	}

	prices := make(map[string]float64, len(raw))
	for id, s := range raw {
		mid, err := strconv.ParseFloat(s, 64)
		if err != nil {
			log.Printf("[clob] skipping malformed midpoint for %.10s...: %q", id, s)
			continue
		}
		if mid < 0 || mid > 1 {
			log.Printf("[clob] skipping out-of-range midpoint for %.10s...: %v", id, mid)
			continue
		}
		prices[id] = mid
	}
	return prices, nil
}

// Book fetches the order book for a token.
func (c *Client) Book(ctx context.Context, tokenID string) (*OrderBook, error) {
	var book OrderBook
	if err := c.getJSON(ctx, "/book?token_id="+tokenID, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Ok performs a lightweight health request. Used to keep the
// connection pool warm so the first order after an idle period does
// not pay TLS handshake latency.
func (c *Client) Ok(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ok", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Warmup runs Ok at most once per warmupInterval.
func (c *Client) Warmup(ctx context.Context) {
	c.warmupMu.Lock()
	due := time.Since(c.lastWarmup) >= warmupInterval
	if due {
		c.lastWarmup = time.Now()
	}
	c.warmupMu.Unlock()

	if !due {
		return
	}
	if err := c.Ok(ctx); err != nil {
		log.Printf("[clob] warmup failed: %v", err)
	}
}

// ErrNoCredentials is returned when order submission is attempted
// without L2 API credentials.
var ErrNoCredentials = &APIError{Code: 0, Message: "no CLOB API credentials configured"}

// PostOrder submits a signed order.
func (c *Client) PostOrder(ctx context.Context, order *OrderRequest) (*OrderResponse, error) {
	if c.creds.Empty() {
		return nil, ErrNoCredentials
	}

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	if err := c.postLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.doSigned(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return nil, fmt.Errorf("post order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var orderResp OrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	return &orderResp, nil
}

// CancelOrder cancels a resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.creds.Empty() {
		return ErrNoCredentials
	}

	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return err
	}

	resp, err := c.doSigned(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.parseError(resp)
	}
	return nil
}

// getJSON performs a rate-limited GET and decodes the JSON body.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.dataLimiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doSigned performs an HMAC-authenticated request.
func (c *Client) doSigned(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, c.creds.APIKey)
	req.Header.Set(headerSignature, c.sign(timestamp, method, path, body))
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerPassphrase, c.creds.Passphrase)

	return c.httpClient.Do(req)
}

// sign generates the HMAC-SHA256 signature for a request.
func (c *Client) sign(timestamp, method, path string, body []byte) string {
	message := timestamp + method + path + string(body)
	h := hmac.New(sha256.New, []byte(c.creds.Secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// parseError extracts error information from a failed response.
func (c *Client) parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	apiErr.Code = resp.StatusCode
	return &apiErr
}
