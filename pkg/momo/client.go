// Package momo is the outbound client for the mobile-money "receive money"
// API. Calls never return an error: configuration gaps, transport failures and
// non-2xx replies are all reported on the result.
package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/towndrop-backend/pkg/fieldpath"
	"github.com/angelmondragon/towndrop-backend/pkg/metrics"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultDescription = "Goods payment"
	maxResponseBytes   = 1 << 20
)

// Config carries the processor credentials and endpoint.
type Config struct {
	ClientID        string
	ClientSecret    string
	ReceiveMoneyURL string
	Timeout         time.Duration
}

// ReceiveMoneyRequest asks the processor to pull Amount from Destination.
type ReceiveMoneyRequest struct {
	Destination     string
	Amount          string
	ClientReference string
	CallbackURL     string
	Description     string
}

// ReceiveMoneyResult is stored verbatim into the payment ledger for audit.
type ReceiveMoneyResult struct {
	Configured      bool            `json:"configured"`
	OK              bool            `json:"ok"`
	HTTPStatus      int             `json:"status"`
	ClientReference string          `json:"clientReference"`
	TransactionID   string          `json:"transactionId,omitempty"`
	ProviderStatus  string          `json:"providerStatus,omitempty"`
	Body            json.RawMessage `json:"json,omitempty"`
	Raw             string          `json:"raw,omitempty"`
	Error           string          `json:"error,omitempty"`
	Meta            map[string]any  `json:"meta,omitempty"`
}

type Client struct {
	cfg     Config
	http    *http.Client
	metrics *metrics.PaymentMetrics
}

// NewClient builds a client. A nil httpClient gets one bounded by cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, m *metrics.PaymentMetrics) *Client {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.ReceiveMoneyURL = strings.TrimSpace(cfg.ReceiveMoneyURL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient, metrics: m}
}

// Configured reports whether real credentials and an endpoint are present.
func (c *Client) Configured() bool {
	return !isPlaceholder(c.cfg.ClientID) &&
		!isPlaceholder(c.cfg.ClientSecret) &&
		!isPlaceholder(c.cfg.ReceiveMoneyURL)
}

func (c *Client) ReceiveMoney(ctx context.Context, req ReceiveMoneyRequest) ReceiveMoneyResult {
	description := req.Description
	if strings.TrimSpace(description) == "" {
		description = defaultDescription
	}

	if !c.Configured() {
		c.metrics.ObserveProcessorCall(metrics.ProcessorResultNotConfigured, 0)
		return ReceiveMoneyResult{
			ClientReference: req.ClientReference,
			Error:           "payment processor not configured (missing or placeholder client id, client secret or receive-money url)",
			Meta: map[string]any{
				"destination": req.Destination,
				"amount":      req.Amount,
				"callbackUrl": req.CallbackURL,
				"description": description,
			},
		}
	}

	started := time.Now()
	result := c.send(ctx, req, description)
	outcome := metrics.ProcessorResultOK
	switch {
	case result.HTTPStatus == 0:
		outcome = metrics.ProcessorResultTransportError
	case !result.OK:
		outcome = metrics.ProcessorResultHTTPError
	}
	c.metrics.ObserveProcessorCall(outcome, time.Since(started))
	return result
}

func (c *Client) send(ctx context.Context, req ReceiveMoneyRequest, description string) ReceiveMoneyResult {
	result := ReceiveMoneyResult{Configured: true, ClientReference: req.ClientReference}

	payload := map[string]any{
		"Destination":     req.Destination,
		"Amount":          json.Number(req.Amount),
		"CallbackUrl":     req.CallbackURL,
		"ClientReference": req.ClientReference,
		"Description":     description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Sprintf("encode request: %v", err)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ReceiveMoneyURL, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("build request: %v", err)
		return result
	}
	httpReq.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.HTTPStatus = resp.StatusCode
	result.OK = resp.StatusCode >= 200 && resp.StatusCode < 300

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		result.Error = fmt.Sprintf("read response: %v", err)
		return result
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return result
	}
	if !json.Valid(raw) {
		result.Raw = string(raw)
		return result
	}

	result.Body = json.RawMessage(raw)
	if doc, err := fieldpath.Decode(raw); err == nil {
		result.TransactionID, _ = doc.String(fieldpath.TransactionID)
		result.ProviderStatus, _ = doc.String(fieldpath.Status)
	}
	return result
}

func isPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v == "" ||
		v == "your_client_id" ||
		v == "your_client_secret" ||
		strings.Contains(v, "<your_") ||
		strings.Contains(v, "placeholder")
}
