// File: internal/infra/adapters/fulfillment/esimhub_client.go
package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/ports/adapter"
	"esim-reseller/internal/infra/metrics"
)

var _ adapter.FulfillmentClient = (*HubClient)(nil)

// HubClient talks to the eSIM hub's reseller API. Every order call passes our
// order id as UniqueIdentifier so a retried request lands on the same
// provider-side order instead of provisioning twice.
type HubClient struct {
	baseURL   string
	apiKey    string
	tenantKey string
	client    *http.Client
}

func NewHubClient(cfg config.FulfillmentConfig) *HubClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HubClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		tenantKey: cfg.TenantKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type hubOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		OrderID        string `json:"orderId"`
		ICCID          string `json:"iccid"`
		SMDPAddress    string `json:"smdpAddress"`
		ActivationCode string `json:"activationCode"`
		AllowTopUp     bool   `json:"allowTopUp"`
		Validity       string `json:"validity"`
	} `json:"data"`
}

func (c *HubClient) CreateOrder(ctx context.Context, bundleCode, uniqueID string) (*adapter.FulfillmentOrder, error) {
	body := map[string]interface{}{
		"BundleCode":       bundleCode,
		"UniqueIdentifier": uniqueID,
		"Quantity":         1,
	}
	return c.postOrder(ctx, "/api/v1/reseller/orders", body)
}

func (c *HubClient) CreateTopUp(ctx context.Context, bundleCode, fulfillmentOrderID, uniqueID string) (*adapter.FulfillmentOrder, error) {
	body := map[string]interface{}{
		"BundleCode":       bundleCode,
		"OrderId":          fulfillmentOrderID,
		"UniqueIdentifier": uniqueID,
	}
	return c.postOrder(ctx, "/api/v1/reseller/orders/topup", body)
}

func (c *HubClient) CheckBundleAvailable(ctx context.Context, bundleInfoCode string) (bool, error) {
	endpoint := c.baseURL + "/api/v1/reseller/bundles/" + url.PathEscape(bundleInfoCode) + "/availability"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("esim hub availability: http %d", resp.StatusCode)
	}
	var out struct {
		Data struct {
			Available bool `json:"available"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Data.Available, nil
}

func (c *HubClient) postOrder(ctx context.Context, path string, body map[string]interface{}) (*adapter.FulfillmentOrder, error) {
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveFulfillment(path, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d from %s", domain.ErrFulfillmentFailed, resp.StatusCode, path)
	}
	var out hubOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if !out.Success || out.Data.ICCID == "" && path == "/api/v1/reseller/orders" {
		return nil, fmt.Errorf("%w: %s", domain.ErrFulfillmentFailed, out.Message)
	}
	return &adapter.FulfillmentOrder{
		OrderID:        out.Data.OrderID,
		ICCID:          out.Data.ICCID,
		SMDPAddress:    out.Data.SMDPAddress,
		ActivationCode: out.Data.ActivationCode,
		AllowTopUp:     out.Data.AllowTopUp,
		Validity:       out.Data.Validity,
	}, nil
}

func (c *HubClient) auth(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	if c.tenantKey != "" {
		req.Header.Set("Tenant-Key", c.tenantKey)
	}
}
