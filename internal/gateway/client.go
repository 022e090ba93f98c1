package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/jettravel/backend/config"
	"github.com/jettravel/backend/internal/domain"
)

// Client talks to the payment processor's REST API. Amounts cross the wire in
// minor units.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	http        *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

type initializeRequest struct {
	Reference   string `json:"reference"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeResponse struct {
	Status bool   `json:"status"`
	Msg    string `json:"message"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (c *Client) InitializeTransaction(ctx context.Context, reference string, amount float64, currency, email string) (*domain.TransactionInit, error) {
	payload := initializeRequest{
		Reference:   reference,
		Amount:      int64(math.Round(amount * 100)),
		Currency:    currency,
		Email:       email,
		CallbackURL: c.callbackURL,
	}

	var resp initializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("gateway rejected transaction %s: %s", reference, resp.Msg)
	}
	return &domain.TransactionInit{
		AuthorizationURL: resp.Data.AuthorizationURL,
		AccessCode:       resp.Data.AccessCode,
		Reference:        resp.Data.Reference,
	}, nil
}

type verifyResponse struct {
	Status bool   `json:"status"`
	Msg    string `json:"message"`
	Data   struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		PaidAt          string `json:"paid_at"`
		Channel         string `json:"channel"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*domain.GatewayStatus, error) {
	var resp verifyResponse
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("gateway could not verify transaction %s: %s", reference, resp.Msg)
	}
	return &domain.GatewayStatus{
		Reference:       resp.Data.Reference,
		Status:          resp.Data.Status,
		Amount:          resp.Data.Amount,
		Currency:        resp.Data.Currency,
		PaidAt:          resp.Data.PaidAt,
		Channel:         resp.Data.Channel,
		GatewayResponse: resp.Data.GatewayResponse,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d for %s %s", resp.StatusCode, method, path)
	}
	return json.Unmarshal(raw, out)
}
