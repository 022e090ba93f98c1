package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jettravel/backend/config"
	"github.com/jettravel/backend/internal/domain"
)

// Client talks to the flight inventory/pricing provider. Calls fail closed on
// the HTTP timeout so a booking is never left dangling behind a hung call.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// PriceOffer asks the provider to re-price the candidate offer. A 410 from
// the provider means the offer is gone and the caller should re-search.
func (c *Client) PriceOffer(ctx context.Context, offer domain.FlightOffer) (*domain.FlightOffer, error) {
	body, status, err := c.post(ctx, fmt.Sprintf("/v1/offers/%s/price", offer.ID), offer)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusGone:
		return nil, &domain.UpstreamError{Code: domain.CodeOfferExpired, Op: "offer " + offer.ID + " is no longer available"}
	case status < 200 || status >= 300:
		return nil, fmt.Errorf("provider pricing returned %d: %s", status, truncate(body))
	}

	var priced domain.FlightOffer
	if err := json.Unmarshal(body, &priced); err != nil {
		return nil, fmt.Errorf("decode priced offer: %w", err)
	}
	if err := priced.Validate(); err != nil {
		return nil, fmt.Errorf("provider returned malformed offer: %w", err)
	}
	return &priced, nil
}

type createOrderRequest struct {
	Offer     domain.FlightOffer `json:"offer"`
	Travelers []domain.Passenger `json:"travelers"`
}

type createOrderResponse struct {
	OrderID string          `json:"order_id"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) CreateOrder(ctx context.Context, offer domain.FlightOffer, travelers []domain.Passenger) (string, json.RawMessage, error) {
	body, status, err := c.post(ctx, "/v1/orders", createOrderRequest{Offer: offer, Travelers: travelers})
	if err != nil {
		return "", nil, err
	}
	if status < 200 || status >= 300 {
		return "", nil, fmt.Errorf("provider order creation returned %d: %s", status, truncate(body))
	}

	var resp createOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, fmt.Errorf("decode provider order: %w", err)
	}
	if resp.OrderID == "" {
		return "", nil, fmt.Errorf("provider order response missing order id")
	}
	return resp.OrderID, resp.Data, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Api-Secret", c.apiSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
