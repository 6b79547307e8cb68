package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public mempool.space API.
const DefaultBaseURL = "https://mempool.space/api"

// Client reads network and price data from a mempool.space compatible API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
}

// NewClient creates a client. A nil limiter allows 10 requests per minute.
func NewClient(baseURL string, limiter *RateLimiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limiter == nil {
		limiter = NewRateLimiter(10, time.Minute)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
	}
}

// GetHashrate returns the 3 day network hashrate and difficulty series.
func (c *Client) GetHashrate(ctx context.Context) (*HashrateResponse, error) {
	var out HashrateResponse
	if err := c.getJSON(ctx, "/v1/mining/hashrate/3d", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPrices returns the current BTC prices.
func (c *Client) GetPrices(ctx context.Context) (*Prices, error) {
	var out Prices
	if err := c.getJSON(ctx, "/v1/prices", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDifficultyAdjustment returns the current epoch progress, including the
// observed average block time.
func (c *Client) GetDifficultyAdjustment(ctx context.Context) (*DifficultyAdjustment, error) {
	var out DifficultyAdjustment
	if err := c.getJSON(ctx, "/v1/difficulty-adjustment", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBlockFees24h returns average block fees over the last day.
func (c *Client) GetBlockFees24h(ctx context.Context) ([]BlockFees, error) {
	var out []BlockFees
	if err := c.getJSON(ctx, "/v1/mining/blocks/fees/24h", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTipHeight returns the current chain tip height.
func (c *Client) GetTipHeight(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block height: %w", err)
	}
	return height, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mempool API error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
