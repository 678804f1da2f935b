package yookassa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/config"
	"marzban-vpn-bot/internal/constants"
	errs "marzban-vpn-bot/internal/errors"
)

const defaultBaseURL = "https://api.yookassa.ru"

// Payment statuses reported by the provider
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// Client represents a YooKassa API client
type Client struct {
	httpClient *resty.Client
	cfg        config.PaymentsConfig
	baseURL    string
	logger     *logrus.Logger
}

// Amount represents a money value with its currency
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Confirmation represents the redirect confirmation of a payment
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// Payment represents a provider-side payment object
type Payment struct {
	ID           string                 `json:"id"`
	Status       string                 `json:"status"`
	Paid         bool                   `json:"paid"`
	Amount       Amount                 `json:"amount"`
	Description  string                 `json:"description,omitempty"`
	Confirmation *Confirmation          `json:"confirmation,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    string                 `json:"created_at,omitempty"`
}

// createRequest represents the POST /v3/payments body
type createRequest struct {
	Amount       Amount                 `json:"amount"`
	Capture      bool                   `json:"capture"`
	Confirmation Confirmation           `json:"confirmation"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewClient creates a new YooKassa API client
func NewClient(cfg config.PaymentsConfig, logger *logrus.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(constants.DefaultTimeout * time.Second).
		SetBasicAuth(cfg.ShopID, cfg.SecretKey)

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		baseURL:    defaultBaseURL,
		logger:     logger,
	}
}

// SetBaseURL overrides the API endpoint, used by tests
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// CreatePayment initiates a checkout with redirect confirmation. The
// idempotence key makes retried creates safe on the provider side.
func (c *Client) CreatePayment(ctx context.Context, amount float64, description, idempotenceKey string, metadata map[string]interface{}) (*Payment, error) {
	body := createRequest{
		Amount: Amount{
			Value:    fmt.Sprintf("%.2f", amount),
			Currency: "RUB",
		},
		Capture: true,
		Confirmation: Confirmation{
			Type:      "redirect",
			ReturnURL: c.cfg.ReturnURL,
		},
		Description: description,
		Metadata:    metadata,
	}

	c.logger.Infof("Creating payment of %.2f RUB: %s", amount, description)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Idempotence-Key", idempotenceKey).
		SetBody(body).
		Post(c.baseURL + "/v3/payments")

	if err != nil {
		return nil, &errs.TransportError{Operation: "create payment", Cause: err.Error()}
	}

	return parsePayment("create payment", resp.StatusCode(), resp.Body())
}

// GetPayment fetches the current state of a payment by its provider ID
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.baseURL + "/v3/payments/" + paymentID)

	if err != nil {
		return nil, &errs.TransportError{Operation: "get payment", Cause: err.Error()}
	}

	return parsePayment("get payment", resp.StatusCode(), resp.Body())
}

// ConfirmationURL returns the checkout URL the user must visit
func (p *Payment) ConfirmationURL() string {
	if p.Confirmation == nil {
		return ""
	}
	return p.Confirmation.ConfirmationURL
}

// parsePayment maps the provider response onto a Payment or a typed error
func parsePayment(operation string, status int, body []byte) (*Payment, error) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &errs.AuthError{Operation: operation}
	case status == http.StatusNotFound:
		return nil, &errs.NotFoundError{Entity: "payment", Key: operation}
	case status < 200 || status >= 300:
		return nil, &errs.HTTPError{Operation: operation, Code: status, Body: string(body)}
	}

	var payment Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, &errs.HTTPError{Operation: operation, Code: status, Body: "unparseable response"}
	}
	return &payment, nil
}
