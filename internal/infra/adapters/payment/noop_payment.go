package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"esim-reseller/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is a simple in-memory gateway for dev mode and tests.
type NoopPaymentGateway struct {
	mu          sync.Mutex
	seq         int64
	environment string
	intents     map[string]int64 // intent id -> amount
	canceled    map[string]bool
	refunds     map[string]int64 // intent id -> refunded amount
}

func NewNoopPaymentGateway(environment string) *NoopPaymentGateway {
	return &NoopPaymentGateway{
		environment: environment,
		intents:     make(map[string]int64),
		canceled:    make(map[string]bool),
		refunds:     make(map[string]int64),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next() string {
	g.seq++
	return fmt.Sprintf("pi_noop_%d", g.seq)
}

func (g *NoopPaymentGateway) CreateIntent(ctx context.Context, amount int64, currency, customerEmail string, metadata map[string]string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next()
	g.intents[id] = amount
	return &adapter.PaymentIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *NoopPaymentGateway) CancelIntent(ctx context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.intents[intentID]; !ok {
		return fmt.Errorf("noop: intent not found")
	}
	g.canceled[intentID] = true
	return nil
}

func (g *NoopPaymentGateway) RefundPayment(ctx context.Context, intentID string, amount int64, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.intents[intentID]; !ok {
		return fmt.Errorf("noop: intent not found")
	}
	g.refunds[intentID] += amount
	return nil
}

// ParseWebhook accepts the raw event body unsigned. Dev mode only.
func (g *NoopPaymentGateway) ParseWebhook(payload []byte, signatureHeader string) (*adapter.WebhookEvent, error) {
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
		return nil, err
	}
	meta := body.Data.Object.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	if meta["env"] == "" {
		meta["env"] = g.environment
	}
	return &adapter.WebhookEvent{ID: body.ID, Type: body.Type, IntentID: body.Data.Object.ID, Metadata: meta}, nil
}

// Refunded reports the total amount refunded for an intent; test helper.
func (g *NoopPaymentGateway) Refunded(intentID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds[intentID]
}

var _ adapter.CarrierBillingGateway = (*NoopCarrierBilling)(nil)

// NoopCarrierBilling accepts any charge and any OTP. Dev mode only.
type NoopCarrierBilling struct {
	mu      sync.Mutex
	charges map[string]int64 // order id -> amount
}

func NewNoopCarrierBilling() *NoopCarrierBilling {
	return &NoopCarrierBilling{charges: make(map[string]int64)}
}

func (g *NoopCarrierBilling) Name() string { return "noop-dcb" }

func (g *NoopCarrierBilling) RequestCharge(ctx context.Context, msisdn string, amount int64, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges[orderID] = amount
	return nil
}

func (g *NoopCarrierBilling) ConfirmCharge(ctx context.Context, otp, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.charges[orderID]; !ok {
		return fmt.Errorf("noop: no open charge for order %s", orderID)
	}
	return nil
}
