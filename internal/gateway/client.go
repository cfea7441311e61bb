package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencustody/recon/internal/logging"
)

// Client talks to the custody backend's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Gateway = (*Client)(nil)

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type intentionPayload struct {
	ID        string          `json:"id"`
	Currency  string          `json:"currency"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Address   string          `json:"address"`
}

func (c *Client) PollDeposits(ctx context.Context) ([]DepositIntention, error) {
	var payload []intentionPayload
	if err := c.get(ctx, "/api/gate/v1/deposits/intentions", nil, &payload); err != nil {
		return nil, fmt.Errorf("PollDeposits: %w", err)
	}

	intentions := make([]DepositIntention, 0, len(payload))
	for _, p := range payload {
		intentions = append(intentions, DepositIntention{
			ID:        p.ID,
			Currency:  p.Currency,
			InvoiceID: p.InvoiceID,
			Amount:    p.Amount,
			Address:   p.Address,
		})
	}
	return intentions, nil
}

type withdrawNoticePayload struct {
	WithdrawID string          `json:"withdraw_id"`
	Amount     decimal.Decimal `json:"amount"`
	IsDone     bool            `json:"is_done"`
}

func (c *Client) PollWithdraws(ctx context.Context) ([]WithdrawNotice, error) {
	var payload []withdrawNoticePayload
	if err := c.get(ctx, "/api/gate/v1/withdraws/pending", nil, &payload); err != nil {
		return nil, fmt.Errorf("PollWithdraws: %w", err)
	}

	notices := make([]WithdrawNotice, 0, len(payload))
	for _, p := range payload {
		notices = append(notices, WithdrawNotice{
			WithdrawID: p.WithdrawID,
			Amount:     p.Amount,
			IsDone:     p.IsDone,
		})
	}
	return notices, nil
}

type invoicePayload struct {
	ID    string `json:"id"`
	Links []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"links"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *Client) CreateInvoice(ctx context.Context, amount decimal.Decimal, currencyID, comment string) (*Invoice, error) {
	req := map[string]any{
		"amount":      amount,
		"currency_id": currencyID,
		"comment":     comment,
	}
	var payload invoicePayload
	if err := c.post(ctx, "/api/gate/v1/invoices", req, &payload); err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}

	inv := &Invoice{ID: payload.ID, ExpiresAt: payload.ExpiresAt}
	for _, l := range payload.Links {
		inv.Links = append(inv.Links, InvoiceLink{Type: l.Type, URL: l.URL})
	}
	return inv, nil
}

type chainTxPayload struct {
	TxID        string          `json:"txid"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Amount      decimal.Decimal `json:"amount"`
	BlockNumber *int64          `json:"block_number"`
	Status      string          `json:"status"`
}

func (c *Client) CreateTransaction(ctx context.Context, key, toAddress, cryptocurrency string, amount decimal.Decimal) (*ChainTx, error) {
	req := map[string]any{
		"key":            key,
		"to_address":     toAddress,
		"cryptocurrency": cryptocurrency,
		"amount":         amount,
	}
	var payload chainTxPayload
	if err := c.post(ctx, "/api/gate/v1/transactions", req, &payload); err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	return &ChainTx{
		TxID:        payload.TxID,
		FromAddress: payload.FromAddress,
		ToAddress:   payload.ToAddress,
		Amount:      payload.Amount,
		BlockNumber: payload.BlockNumber,
		Status:      payload.Status,
	}, nil
}

func (c *Client) LoadBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	var payload struct {
		Amount decimal.Decimal `json:"amount"`
	}
	q := url.Values{"currency": {currency}}
	if err := c.get(ctx, "/api/gate/v1/balance", q, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("LoadBalance: %w", err)
	}
	return payload.Amount, nil
}

func (c *Client) LoadBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var payload map[string]decimal.Decimal
	if err := c.get(ctx, "/api/gate/v1/balances", nil, &payload); err != nil {
		return nil, fmt.Errorf("LoadBalances: %w", err)
	}
	return payload, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("get: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("post: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("post: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	log := logging.FromContext(req.Context())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do: send: %w", err)
	}
	defer resp.Body.Close()

	log.Debug("gateway response",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("do: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("do: decode: %w", err)
	}
	return nil
}
