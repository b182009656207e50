// Package ledger adapts the autonomous agent runtime to the coordination
// substrate: a JSON-RPC/WS ledger that accepts signed instructions and
// publishes task/commitment events.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/logging"
	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/ratelimit"
)

// Client provides JSON-RPC access to the coordination substrate.
type Client struct {
	limiter    ratelimit.Waiter
	rpcURL     string
	httpClient *http.Client
	network    string
	logger     *logging.Logger

	treasury *treasuryInfo
}

type treasuryInfo struct {
	address string
	fetched time.Time
}

// Config holds client configuration.
type Config struct {
	RPCURL     string
	Network    string
	Timeout    time.Duration
	HTTPClient *http.Client // optional custom client
	Logger     *logging.Logger

	// RateLimit bounds how often Call may submit to the substrate. The
	// zero value disables submission throttling.
	RateLimit ratelimit.Config
}

// NewClient creates a new ledger RPC client.
func NewClient(cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("ledger RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	var limiter ratelimit.Waiter = ratelimit.Unlimited()
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RateLimit)
	}

	return &Client{
		limiter:    limiter,
		rpcURL:     rpcURL,
		httpClient: httpClient,
		network:    cfg.Network,
		logger:     logger,
	}, nil
}

// Network returns the configured substrate network name.
func (c *Client) Network() string { return c.network }

// RPCRequest represents a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse represents a JSON-RPC response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error. Code maps onto the ledger error
// taxonomy (6000-6077).
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call makes an RPC call to the coordination substrate, pacing submissions
// against the configured rate limit before dialing out.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req := RPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rpc http error %d", resp.StatusCode)
	}

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	c.logger.LogLedgerInstruction(ctx, method, "", nil)
	_ = start
	return rpcResp.Result, nil
}

// FetchTreasury returns the substrate's treasury address, caching after the
// first successful fetch ("Treasury is cached after first
// fetch").
func (c *Client) FetchTreasury(ctx context.Context) (string, error) {
	if c.treasury != nil {
		return c.treasury.address, nil
	}

	result, err := c.Call(ctx, "getTreasury", nil)
	if err != nil {
		return "", err
	}

	var address string
	if err := json.Unmarshal(result, &address); err != nil {
		return "", fmt.Errorf("decode treasury: %w", err)
	}

	c.treasury = &treasuryInfo{address: address, fetched: time.Now()}
	return address, nil
}
