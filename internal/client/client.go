// Package client is a typed SDK for the trading service's HTTP API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"stock-sim-go/internal/engine"
	"stock-sim-go/internal/models"
	"stock-sim-go/internal/server"
)

// Interface defines the client operations, so callers can be tested against
// a mock.
type Interface interface {
	Authenticate(ctx context.Context) error
	GetUser(ctx context.Context) (*server.UserResponse, error)
	SubmitTrade(ctx context.Context, req engine.Request) (*engine.Outcome, error)
	Portfolio(ctx context.Context, stock string) ([]models.Position, error)
	Transactions(ctx context.Context, stock, side string) ([]models.Trade, error)
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Client is a REST client for the trading service.
// It implements the Interface.
type Client struct {
	client  *resty.Client
	apiKey  string
	token   string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ Interface = (*Client)(nil)

// New creates a client for the service at baseURL authenticating as apiKey.
func New(baseURL, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		client:  resty.New().SetBaseURL(baseURL),
		apiKey:  apiKey,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// doRequest applies the rate limit and runs the request, turning non-2xx
// responses into *APIError. Callers that set their own error target keep it.
func (c *Client) doRequest(ctx context.Context, method, path string, req *resty.Request) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var body errorBody
	if req.Error == nil {
		req.SetError(&body)
	}
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		msg := body.Error
		if msg == "" {
			msg = resp.Status()
		}
		return resp, &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return resp, nil
}

// Authenticate obtains a fresh session token and stores it on the client for
// subsequent calls.
func (c *Client) Authenticate(ctx context.Context) error {
	var result server.AuthResponse
	req := c.client.R().
		SetQueryParam("api_key", c.apiKey).
		SetResult(&result)

	if _, err := c.doRequest(ctx, resty.MethodPost, "/authenticate", req); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	c.token = result.Token
	c.logger.Info("Authenticated with trading service",
		zap.Time("token_expiry", time.Unix(result.ExpiresAt, 0)))
	return nil
}

// GetUser fetches the authenticated participant's name, team and balance.
func (c *Client) GetUser(ctx context.Context) (*server.UserResponse, error) {
	var result server.UserResponse
	req := c.authedRequest().SetResult(&result)

	if _, err := c.doRequest(ctx, resty.MethodGet, "/user", req); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &result, nil
}

// SubmitTrade sends a trade for execution. A rejected trade is returned as
// an unsuccessful Outcome, not an error; only auth, transport and service
// failures surface as errors.
func (c *Client) SubmitTrade(ctx context.Context, tradeReq engine.Request) (*engine.Outcome, error) {
	var result engine.Outcome
	req := c.authedRequest().
		SetBody(tradeReq).
		SetResult(&result).
		SetError(&result)

	resp, err := c.doRequest(ctx, resty.MethodPost, "/trade", req)
	if err != nil {
		// A 400 carrying a structured outcome is a validation rejection.
		if resp != nil && resp.StatusCode() == http.StatusBadRequest && result.Reason != "" {
			return &result, nil
		}
		return nil, fmt.Errorf("failed to submit trade: %w", err)
	}
	return &result, nil
}

// Portfolio returns current positions, optionally filtered to one stock.
func (c *Client) Portfolio(ctx context.Context, stock string) ([]models.Position, error) {
	var result []models.Position
	req := c.authedRequest().SetResult(&result)
	if stock != "" {
		req.SetQueryParam("stock", stock)
	}

	if _, err := c.doRequest(ctx, resty.MethodGet, "/api/portfolio", req); err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return result, nil
}

// Transactions returns trade history most-recent-first, optionally filtered
// by stock and side.
func (c *Client) Transactions(ctx context.Context, stock, side string) ([]models.Trade, error) {
	var result []models.Trade
	req := c.authedRequest().SetResult(&result)
	if stock != "" {
		req.SetQueryParam("stock", stock)
	}
	if side != "" {
		req.SetQueryParam("type", side)
	}

	if _, err := c.doRequest(ctx, resty.MethodGet, "/api/transaction", req); err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return result, nil
}

func (c *Client) authedRequest() *resty.Request {
	return c.client.R().
		SetHeader("Api-Key", c.apiKey).
		SetHeader("Token", c.token)
}
