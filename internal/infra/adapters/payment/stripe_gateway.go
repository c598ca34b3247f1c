// File: internal/infra/adapters/payment/stripe_gateway.go
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/ports/adapter"
	"esim-reseller/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway implements adapter.PaymentGateway against the Stripe REST API
// (payment intents, refunds) and verifies webhook deliveries with the shared
// endpoint secret.
type StripeGateway struct {
	secretKey     string
	webhookSecret string
	environment   string
	baseURL       string
	client        *http.Client
	// tolerance bounds the webhook timestamp skew we accept.
	tolerance time.Duration
}

func NewStripeGateway(cfg config.PaymentConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("payment secret key empty")
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.stripe.com"
	}
	return &StripeGateway{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		environment:   cfg.Environment,
		baseURL:       strings.TrimRight(base, "/"),
		client:        &http.Client{Timeout: 15 * time.Second},
		tolerance:     5 * time.Minute,
	}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency, customerEmail string, metadata map[string]string) (*adapter.PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	if customerEmail != "" {
		form.Set("receipt_email", customerEmail)
	}
	form.Set("metadata[env]", g.environment)
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var out struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		Customer     string `json:"customer"`
		LiveMode     bool   `json:"livemode"`
	}
	if err := g.call(ctx, "/v1/payment_intents", form, &out); err != nil {
		metrics.IncPayment("create_failed")
		return nil, err
	}
	metrics.IncPayment("initiated")
	return &adapter.PaymentIntent{
		ID:           out.ID,
		ClientSecret: out.ClientSecret,
		CustomerID:   out.Customer,
		LiveMode:     out.LiveMode,
	}, nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := g.call(ctx, "/v1/payment_intents/"+url.PathEscape(intentID)+"/cancel", url.Values{}, &out); err != nil {
		return err
	}
	metrics.IncPayment("canceled")
	return nil
}

func (g *StripeGateway) RefundPayment(ctx context.Context, intentID string, amount int64, reason string) error {
	form := url.Values{}
	form.Set("payment_intent", intentID)
	form.Set("amount", strconv.FormatInt(amount, 10))
	if reason != "" {
		form.Set("metadata[reason]", reason)
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := g.call(ctx, "/v1/refunds", form, &out); err != nil {
		metrics.IncPayment("refund_failed")
		return err
	}
	metrics.IncPayment("refunded")
	return nil
}

// ParseWebhook verifies the `t=...,v1=...` signature header against the raw
// body before decoding anything. The signed payload is "<t>.<body>".
func (g *StripeGateway) ParseWebhook(payload []byte, signatureHeader string) (*adapter.WebhookEvent, error) {
	ts, sigs, err := splitSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	if g.tolerance > 0 {
		at := time.Unix(ts, 0)
		if d := time.Since(at); d > g.tolerance || d < -g.tolerance {
			return nil, fmt.Errorf("%w: webhook timestamp outside tolerance", domain.ErrInvalidArgument)
		}
	}
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	ok := false
	for _, s := range sigs {
		raw, err := hex.DecodeString(s)
		if err == nil && hmac.Equal(raw, expected) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: webhook signature mismatch", domain.ErrInvalidArgument)
	}

	var body struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string            `json:"id"`
				Metadata map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", domain.ErrInvalidArgument)
	}
	if body.ID == "" {
		return nil, fmt.Errorf("%w: webhook without event id", domain.ErrInvalidArgument)
	}
	meta := body.Data.Object.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return &adapter.WebhookEvent{
		ID:       body.ID,
		Type:     body.Type,
		IntentID: body.Data.Object.ID,
		Metadata: meta,
	}, nil
}

func splitSignatureHeader(header string) (int64, []string, error) {
	var ts int64 = -1
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			v, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad webhook timestamp", domain.ErrInvalidArgument)
			}
			ts = v
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts < 0 || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("%w: missing webhook signature", domain.ErrInvalidArgument)
	}
	return ts, sigs, nil
}

func (g *StripeGateway) call(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.secretKey, "")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(b, &apiErr)
		if apiErr.Error.Message != "" {
			return fmt.Errorf("stripe %s: %s", path, apiErr.Error.Message)
		}
		return fmt.Errorf("stripe %s: http %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
