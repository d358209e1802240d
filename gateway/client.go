package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/warp/enrollment-engine/core"
)

const ProviderStripe = "stripe"

// Client calls a Stripe-compatible payment-intents endpoint.
type Client struct {
	http *resty.Client
}

type ClientConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.SecretKey).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: rc}
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateChargeIntent(ctx context.Context, req ChargeRequest) (*ChargeIntent, error) {
	const op = "create charge intent"

	form := map[string]string{
		"amount":   strconv.FormatInt(MinorUnits(req.Amount), 10),
		"currency": req.Currency,
	}
	for k, v := range req.Metadata {
		form["metadata["+k+"]"] = v
	}

	var out intentResponse
	var apiErr errorResponse
	r := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		SetError(&apiErr)
	if req.IdempotencyKey != "" {
		r.SetHeader("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := r.Post("/v1/payment_intents")
	if err != nil {
		return nil, &core.GatewayError{Op: op, Err: err}
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return nil, &core.GatewayError{Op: op, StatusCode: resp.StatusCode(), Err: errors.New(msg)}
	}
	if out.ID == "" || out.ClientSecret == "" {
		return nil, &core.GatewayError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("incomplete intent response")}
	}

	return &ChargeIntent{
		ID:           out.ID,
		ClientSecret: out.ClientSecret,
		Status:       out.Status,
		Provider:     ProviderStripe,
	}, nil
}
