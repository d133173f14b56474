// Package esewa implements the payments.Gateway contract against eSewa ePay v2.
package esewa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/payments"
)

// Name is the gateway label stored on payments and claims.
const Name = "esewa"

// StatusComplete is eSewa's status for a settled transaction.
const StatusComplete = "COMPLETE"

// Sandbox defaults published by eSewa for merchant testing.
const (
	DefaultSecretKey   = "8gBm/:&EnhH.1/q"
	DefaultProductCode = "EPAYTEST"
	DefaultFormURL     = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
	DefaultStatusURL   = "https://rc.esewa.com.np/api/epay/transaction/status/"
)

var (
	ErrMalformedPayload = errors.New("esewa: malformed callback payload")
	ErrBadSignature     = errors.New("esewa: signature mismatch")
	ErrNotComplete      = errors.New("esewa: transaction not complete")
	ErrStatusCheck      = errors.New("esewa: status check failed")
)

// Config holds merchant credentials and endpoints.
type Config struct {
	SecretKey   string
	ProductCode string
	FormURL     string
	StatusURL   string
	SuccessURL  string
	FailureURL  string
	Timeout     time.Duration
}

func (c *Config) setDefaults() {
	if c.SecretKey == "" {
		c.SecretKey = DefaultSecretKey
	}
	if c.ProductCode == "" {
		c.ProductCode = DefaultProductCode
	}
	if c.FormURL == "" {
		c.FormURL = DefaultFormURL
	}
	if c.StatusURL == "" {
		c.StatusURL = DefaultStatusURL
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Gateway talks to eSewa. It implements payments.Gateway.
type Gateway struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ payments.Gateway = (*Gateway)(nil)

func New(cfg Config, client *http.Client, logger *zap.Logger) *Gateway {
	cfg.setDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{cfg: cfg, client: client, logger: logger}
}

func (g *Gateway) Name() string { return Name }

// Initiate signs the form fields the customer's browser posts to eSewa.
func (g *Gateway) Initiate(ctx context.Context, amount decimal.Decimal, transactionUUID string) (*payments.Initiation, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("esewa: amount must be positive, got %s", amount)
	}
	if transactionUUID == "" {
		return nil, errors.New("esewa: transaction uuid required")
	}
	total := amount.String()
	fields := map[string]string{
		"amount":                  total,
		"tax_amount":              "0",
		"product_service_charge":  "0",
		"product_delivery_charge": "0",
		"total_amount":            total,
		"transaction_uuid":        transactionUUID,
		"product_code":            g.cfg.ProductCode,
		"success_url":             g.cfg.SuccessURL,
		"failure_url":             g.cfg.FailureURL,
		"signed_field_names":      SignedFieldNames,
	}
	msg, _ := Message(SignedFieldNames, func(k string) (string, bool) {
		v, ok := fields[k]
		return v, ok
	})
	sig := Sign(g.cfg.SecretKey, msg)
	fields["signature"] = sig

	return &payments.Initiation{
		URL:              g.cfg.FormURL,
		Signature:        sig,
		SignedFieldNames: SignedFieldNames,
		Fields:           fields,
	}, nil
}

// Verify decodes the base64 callback payload, checks its signature and then
// confirms the transaction with eSewa's status API.
func (g *Gateway) Verify(ctx context.Context, data string) (*payments.Verification, error) {
	raw, err := decodeData(data)
	if err != nil {
		return nil, err
	}
	fields, err := parseFields(raw)
	if err != nil {
		return nil, err
	}

	signed, ok := fields["signed_field_names"]
	if !ok || signed == "" {
		return nil, fmt.Errorf("%w: signed_field_names missing", ErrMalformedPayload)
	}
	msg, ok := Message(signed, func(k string) (string, bool) {
		v, ok := fields[k]
		return v, ok
	})
	if !ok {
		return nil, fmt.Errorf("%w: signed field missing", ErrMalformedPayload)
	}
	if !ValidSignature(g.cfg.SecretKey, msg, fields["signature"]) {
		return nil, ErrBadSignature
	}
	if fields["status"] != StatusComplete {
		return nil, fmt.Errorf("%w: callback status %q", ErrNotComplete, fields["status"])
	}

	amount, err := parseAmount(fields["total_amount"])
	if err != nil {
		return nil, fmt.Errorf("%w: total_amount: %v", ErrMalformedPayload, err)
	}
	code := fields["transaction_code"]
	if code == "" {
		return nil, fmt.Errorf("%w: transaction_code missing", ErrMalformedPayload)
	}
	uuid := fields["transaction_uuid"]
	if uuid == "" {
		return nil, fmt.Errorf("%w: transaction_uuid missing", ErrMalformedPayload)
	}
	productCode := fields["product_code"]
	if productCode == "" {
		productCode = g.cfg.ProductCode
	}

	status, resp, err := g.checkStatus(ctx, productCode, amount, uuid)
	if err != nil {
		return nil, err
	}
	if status.Status != StatusComplete {
		return nil, fmt.Errorf("%w: status api reported %q", ErrNotComplete, status.Status)
	}
	if status.TransactionUUID != uuid {
		return nil, fmt.Errorf("%w: transaction uuid mismatch", ErrStatusCheck)
	}

	return &payments.Verification{
		TransactionCode: code,
		TransactionUUID: uuid,
		Status:          status.Status,
		TotalAmount:     amount,
		Decoded:         raw,
		Response:        resp,
	}, nil
}

type statusResponse struct {
	ProductCode     string          `json:"product_code"`
	TransactionUUID string          `json:"transaction_uuid"`
	TotalAmount     json.RawMessage `json:"total_amount"`
	Status          string          `json:"status"`
	RefID           *string         `json:"ref_id"`
}

func (g *Gateway) checkStatus(ctx context.Context, productCode string, amount decimal.Decimal, uuid string) (*statusResponse, json.RawMessage, error) {
	q := url.Values{}
	q.Set("product_code", productCode)
	q.Set("total_amount", amount.String())
	q.Set("transaction_uuid", uuid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.StatusURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStatusCheck, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStatusCheck, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read body: %v", ErrStatusCheck, err)
	}
	if res.StatusCode != http.StatusOK {
		g.logger.Warn("esewa status check rejected",
			zap.Int("http_status", res.StatusCode),
			zap.String("transaction_uuid", uuid))
		return nil, nil, fmt.Errorf("%w: http %d", ErrStatusCheck, res.StatusCode)
	}

	var out statusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, nil, fmt.Errorf("%w: decode: %v", ErrStatusCheck, err)
	}
	return &out, json.RawMessage(body), nil
}

func decodeData(data string) (json.RawMessage, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		// query strings sometimes carry the url-safe alphabet
		raw, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: not json", ErrMalformedPayload)
	}
	return json.RawMessage(raw), nil
}

// parseFields flattens the payload to strings. Numbers keep their literal text
// because the signature is computed over it.
func parseFields(raw []byte) (map[string]string, error) {
	var m map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		v = bytes.TrimSpace(v)
		if len(v) > 0 && v[0] == '"' {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("%w: field %s: %v", ErrMalformedPayload, k, err)
			}
			out[k] = s
			continue
		}
		if string(v) == "null" {
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}

// parseAmount accepts "1,000.0" style amounts.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, errors.New("empty")
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}
