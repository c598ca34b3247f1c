// File: internal/infra/adapters/payment/dcb_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/ports/adapter"
	"esim-reseller/internal/infra/metrics"
)

var _ adapter.CarrierBillingGateway = (*DCBGateway)(nil)

// DCBGateway implements adapter.CarrierBillingGateway against the carrier's
// direct billing REST API. The carrier keys everything by our order id as the
// transaction id, so a retried request lands on the same open transaction.
type DCBGateway struct {
	chargeURL      string
	verifyOTPURL   string
	apiKey         string
	merchantMSISDN string
	client         *http.Client
}

func NewDCBGateway(cfg config.DCBConfig) (*DCBGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("dcb api key empty")
	}
	if cfg.ChargeURL == "" || cfg.VerifyOTPURL == "" {
		return nil, errors.New("dcb charge and verify urls are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &DCBGateway{
		chargeURL:      cfg.ChargeURL,
		verifyOTPURL:   cfg.VerifyOTPURL,
		apiKey:         cfg.APIKey,
		merchantMSISDN: cfg.MerchantMSISDN,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

func (g *DCBGateway) Name() string { return "dcb" }

func (g *DCBGateway) RequestCharge(ctx context.Context, msisdn string, amount int64, orderID string) error {
	body := map[string]interface{}{
		"CustomerMSISDN": strings.TrimPrefix(msisdn, "+"),
		"MerchantMSISDN": g.merchantMSISDN,
		"Amount":         amount,
		"TransactionID":  orderID,
	}
	code, err := g.call(ctx, g.chargeURL, body)
	if err != nil {
		metrics.IncPayment("dcb_request_failed")
		return err
	}
	switch code {
	case "0":
		metrics.IncPayment("dcb_initiated")
		return nil
	case "-13":
		return domain.ErrInsufficientFunds
	case "-17":
		return fmt.Errorf("%w: daily carrier spending limit exceeded", domain.ErrInsufficientFunds)
	default:
		metrics.IncPayment("dcb_request_failed")
		return fmt.Errorf("carrier charge rejected: code %s", code)
	}
}

func (g *DCBGateway) ConfirmCharge(ctx context.Context, otp, orderID string) error {
	body := map[string]interface{}{
		"OTP":            otp,
		"MerchantMSISDN": g.merchantMSISDN,
		"TransactionID":  orderID,
	}
	code, err := g.call(ctx, g.verifyOTPURL, body)
	if err != nil {
		metrics.IncPayment("dcb_capture_failed")
		return err
	}
	switch code {
	case "0":
		metrics.IncPayment("dcb_captured")
		return nil
	case "-13":
		return domain.ErrInsufficientFunds
	case "-96", "-104":
		return fmt.Errorf("%w: invalid or expired otp", domain.ErrInvalidArgument)
	case "-97", "-98":
		return fmt.Errorf("%w: carrier billing transaction expired", domain.ErrInvalidArgument)
	default:
		metrics.IncPayment("dcb_capture_failed")
		return fmt.Errorf("carrier capture rejected: code %s", code)
	}
}

// call posts the JSON body and returns the carrier's error code. Transport
// and non-2xx failures surface as plain errors; code mapping is the caller's.
func (g *DCBGateway) call(ctx context.Context, url string, body map[string]interface{}) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(b, &apiErr)
		if apiErr.Message != "" {
			return "", fmt.Errorf("dcb %s: %s", url, apiErr.Message)
		}
		return "", fmt.Errorf("dcb %s: http %d", url, resp.StatusCode)
	}

	var out struct {
		Data struct {
			ErrorCode string `json:"errorCode"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("dcb %s: malformed response", url)
	}
	return out.Data.ErrorCode, nil
}
