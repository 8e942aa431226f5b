package payments

import (
	"bytes"
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
	TestBaseURL = "https://test.dodopayments.com"
	LiveBaseURL = "https://live.dodopayments.com"
)

var ErrNotConfigured = errors.New("payments client not configured")

// APIError is a non-2xx answer from the payments API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payments api: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the DodoPayments REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient returns nil when apiKey is empty so callers can treat the
// provider as optional.
func NewClient(apiKey, mode string) *Client {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	base := TestBaseURL
	if mode == "live" {
		base = LiveBaseURL
	}
	return &Client{
		baseURL: base,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type Billing struct {
	City    string `json:"city"`
	Country string `json:"country"`
	State   string `json:"state"`
	Street  string `json:"street"`
	Zipcode string `json:"zipcode"`
}

type ProductItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreatePaymentRequest struct {
	Billing     Billing           `json:"billing"`
	Customer    Customer          `json:"customer"`
	ProductCart []ProductItem     `json:"product_cart"`
	PaymentLink bool              `json:"payment_link"`
	ReturnURL   string            `json:"return_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type CreatePaymentResponse struct {
	PaymentID    string `json:"payment_id"`
	PaymentLink  string `json:"payment_link"`
	ClientSecret string `json:"client_secret,omitempty"`
}

func (c *Client) CreatePayment(ctx context.Context, in CreatePaymentRequest) (CreatePaymentResponse, error) {
	if c == nil {
		return CreatePaymentResponse{}, ErrNotConfigured
	}
	var out CreatePaymentResponse
	if err := c.do(ctx, http.MethodPost, "/payments", in, &out); err != nil {
		return CreatePaymentResponse{}, err
	}
	if out.PaymentID == "" {
		return CreatePaymentResponse{}, errors.New("payments api: response has no payment_id")
	}
	return out, nil
}

// GetPayment fetches the authoritative payment record, including metadata
// and customer email.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (PaymentData, error) {
	if c == nil {
		return PaymentData{}, ErrNotConfigured
	}
	if paymentID == "" {
		return PaymentData{}, errors.New("payment id required")
	}
	var out PaymentData
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return PaymentData{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal payments request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build payments request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send payments request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read payments response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payments response: %w", err)
	}
	return nil
}
