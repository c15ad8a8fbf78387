package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client provides typed access to the ledger API for the command line.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// LoginResponse is the body returned by POST /login.
type LoginResponse struct {
	Message   string `json:"message"`
	Role      string `json:"role"`
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", body, "", &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

// Transaction mirrors a transfer record.
type Transaction struct {
	ID         string          `json:"id"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Amount     decimal.Decimal `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
}

// TransferInput is the body of POST /transfer.
type TransferInput struct {
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Amount     decimal.Decimal `json:"amount"`
	Secret     string          `json:"secret"`
}

// Transfer submits a transfer. The secret is the sender's password.
func (c *Client) Transfer(ctx context.Context, input TransferInput) (Transaction, error) {
	var resp struct {
		Message     string      `json:"message"`
		Transaction Transaction `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodPost, "/transfer", input, "", &resp); err != nil {
		return Transaction{}, err
	}
	return resp.Transaction, nil
}

// Sent lists transfers sent by accountID.
func (c *Client) Sent(ctx context.Context, token, accountID string) ([]Transaction, error) {
	return c.list(ctx, token, "/transactions/sender/"+url.PathEscape(accountID))
}

// Received lists transfers received by accountID.
func (c *Client) Received(ctx context.Context, token, accountID string) ([]Transaction, error) {
	return c.list(ctx, token, "/transactions/receiver/"+url.PathEscape(accountID))
}

// All lists every transfer. Requires an employee token.
func (c *Client) All(ctx context.Context, token string) ([]Transaction, error) {
	return c.list(ctx, token, "/transactions")
}

func (c *Client) list(ctx context.Context, token, path string) ([]Transaction, error) {
	var out []Transaction
	if err := c.do(ctx, http.MethodGet, path, nil, token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Account is the public account view.
type Account struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	Role             string          `json:"role"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Version          int64           `json:"version"`
}

// GetAccount fetches an account view.
func (c *Client) GetAccount(ctx context.Context, token, accountID string) (Account, error) {
	var out Account
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID), nil, token, &out); err != nil {
		return Account{}, err
	}
	return out, nil
}
