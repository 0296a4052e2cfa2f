// Package vtpass is a gateway.Provider for the VTpass bill-payment API.
package vtpass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fastprodman/billwallet/internal/config"
	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/shopspring/decimal"
)

const Name = "vtpass"

// DefaultTimeout is used when the configured timeout is zero.
const DefaultTimeout = 30 * time.Second

var _ gateway.Provider = (*Client)(nil)

type Client struct {
	baseURL           string
	apiKey            string
	secretKey         string
	declinesOnTimeout bool
	http              *http.Client
}

func New(cfg config.VTpassConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:            cfg.APIKey,
		secretKey:         cfg.SecretKey,
		declinesOnTimeout: cfg.DeclinesOnTimeout,
		http:              &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return Name }

type payRequest struct {
	RequestID     string      `json:"request_id"`
	ServiceID     string      `json:"serviceID"`
	BillersCode   string      `json:"billersCode,omitempty"`
	VariationCode string      `json:"variation_code,omitempty"`
	Amount        json.Number `json:"amount"`
	Phone         string      `json:"phone"`
}

type requeryRequest struct {
	RequestID string `json:"request_id"`
}

type response struct {
	Code                string `json:"code"`
	ResponseDescription string `json:"response_description"`
	RequestID           string `json:"requestId"`
	PurchasedCode       string `json:"purchased_code"`
	Content             struct {
		Transactions struct {
			Status        string `json:"status"`
			ProductName   string `json:"product_name"`
			TransactionID string `json:"transactionId"`
		} `json:"transactions"`
	} `json:"content"`
}

// Purchase submits a payment. On transport failure the returned outcome is
// pending together with the error. When the account declines on timeout, a
// timeout before the request was written is failed instead.
func (c *Client) Purchase(ctx context.Context, req gateway.Request) (gateway.Outcome, error) {
	body := payRequest{
		RequestID:     req.Reference,
		ServiceID:     req.ServiceCode,
		BillersCode:   req.Recipient,
		VariationCode: req.VariationCode,
		Amount:        json.Number(decimal.New(req.Amount, -2).StringFixed(2)),
		Phone:         req.Phone,
	}

	out, err := c.call(ctx, "/api/pay", body)
	if err != nil {
		return gateway.TransportOutcome(err, c.declinesOnTimeout), fmt.Errorf("vtpass pay: %w", err)
	}

	return out, nil
}

// Requery asks for the current state of an earlier request. Transport
// failures are always pending here since nothing new was submitted.
func (c *Client) Requery(ctx context.Context, reference string) (gateway.Outcome, error) {
	out, err := c.call(ctx, "/api/requery", requeryRequest{RequestID: reference})
	if err != nil {
		return gateway.TransportOutcome(err, false), fmt.Errorf("vtpass requery: %w", err)
	}

	return out, nil
}

func (c *Client) call(ctx context.Context, path string, payload any) (gateway.Outcome, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return gateway.Outcome{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return gateway.Outcome{}, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("secret-key", c.secretKey)

	// Any written byte may reach the provider, so headers count as sent.
	var sent atomic.Bool
	req = req.WithContext(httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteHeaders: func() { sent.Store(true) },
		WroteRequest: func(httptrace.WroteRequestInfo) { sent.Store(true) },
	}))

	resp, err := c.http.Do(req)
	if err != nil {
		return gateway.Outcome{}, transportError(err, sent.Load())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gateway.Outcome{}, transportError(err, true)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return gateway.Outcome{}, fmt.Errorf("%w: http %d", gateway.ErrGatewayUnknown, resp.StatusCode)
	}

	var r response

	err = json.Unmarshal(raw, &r)
	if err != nil || r.Code == "" {
		if resp.StatusCode >= http.StatusBadRequest {
			// Rejected before processing.
			return gateway.Outcome{
				Class:       gateway.Failed,
				Code:        fmt.Sprintf("http_%d", resp.StatusCode),
				Description: http.StatusText(resp.StatusCode),
			}, nil
		}

		return gateway.Outcome{}, fmt.Errorf("%w: undecodable response (http %d)", gateway.ErrGatewayUnknown, resp.StatusCode)
	}

	return toOutcome(r), nil
}

func toOutcome(r response) gateway.Outcome {
	out := gateway.Outcome{
		Class:       gateway.Classify(r.Code),
		Code:        r.Code,
		Description: r.ResponseDescription,
		Payload:     map[string]any{"provider": Name},
	}

	tx := r.Content.Transactions

	if out.Class == gateway.Success {
		switch strings.ToLower(tx.Status) {
		case "pending", "initiated":
			out.Class = gateway.Pending
		case "failed", "reversed":
			out.Class = gateway.Failed
		}
	}

	if tx.TransactionID != "" {
		out.Payload["provider_transaction_id"] = tx.TransactionID
	}
	if tx.Status != "" {
		out.Payload["provider_status"] = tx.Status
	}
	if tx.ProductName != "" {
		out.Payload["product_name"] = tx.ProductName
	}
	if r.PurchasedCode != "" {
		out.Payload["purchased_code"] = r.PurchasedCode
	}
	if r.ResponseDescription != "" {
		out.Payload["response_description"] = r.ResponseDescription
	}

	return out
}

func transportError(err error, sent bool) error {
	kind := gateway.ErrGatewayUnknown

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = gateway.ErrGatewayTimeout
	}

	if !sent {
		return fmt.Errorf("%w: %w: %v", kind, gateway.ErrNotSent, err)
	}

	return fmt.Errorf("%w: %v", kind, err)
}
