package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to the payment-gateway bridge: confirming inbound M-Pesa
// payments during token purchases and initiating outbound payouts during
// redemptions. It satisfies both the purchase verifier and the payout
// gateway interfaces.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

type verifyRequest struct {
	TransactionCode string `json:"transaction_code"`
	AmountCents     int64  `json:"amount_cents"`
	Phone           string `json:"phone"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
}

// Verify confirms that an M-Pesa confirmation code corresponds to a payment
// of at least amountCents from the given phone.
func (c *Client) Verify(ctx context.Context, code string, amountCents int64, phone string) (bool, error) {
	var resp verifyResponse
	if err := c.post(ctx, "/v1/verify", verifyRequest{
		TransactionCode: code,
		AmountCents:     amountCents,
		Phone:           phone,
	}, &resp); err != nil {
		return false, err
	}
	if !resp.Verified {
		c.Logger.Warn("mpesa verification declined", "code", code, "reason", resp.Reason)
	}
	return resp.Verified, nil
}

type payoutRequest struct {
	Phone       string `json:"phone"`
	AmountCents int64  `json:"amount_cents"`
}

type payoutResponse struct {
	GatewayRef string `json:"gateway_ref"`
	Status     string `json:"status"`
}

// Payout initiates a B2C cash transfer. The returned reference identifies
// the transfer at the gateway; final confirmation arrives on the callback
// endpoint.
func (c *Client) Payout(ctx context.Context, phone string, amountCents int64) (string, error) {
	var resp payoutResponse
	if err := c.post(ctx, "/v1/payouts", payoutRequest{
		Phone:       phone,
		AmountCents: amountCents,
	}, &resp); err != nil {
		return "", err
	}
	if resp.Status == "rejected" {
		return "", fmt.Errorf("payout rejected by gateway")
	}
	return resp.GatewayRef, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
